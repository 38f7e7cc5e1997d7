package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const CommissionTypeReferral = "REFERRAL"

// Commission is money owed to an affiliate. Auto-derived commissions point at
// the converted referral; manual ones have no ReferralID.
type Commission struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	AffiliateID uint             `gorm:"not null;index" json:"affiliate_id"`
	ClientID    uint             `gorm:"index" json:"client_id"`
	ReferralID  *uint            `gorm:"uniqueIndex:idx_commissions_referral,where:type = 'REFERRAL'" json:"referral_id,omitempty"`
	Amount      decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"amount"`
	Percentage  decimal.Decimal  `gorm:"type:decimal(5,2)" json:"percentage"`
	Currency    string           `gorm:"size:3" json:"currency"`
	Status      CommissionStatus `gorm:"size:20;not null;index" json:"status"`
	Type        string           `gorm:"size:50" json:"type"`
	Description string           `gorm:"size:500" json:"description,omitempty"`
	DeviceType  string           `gorm:"size:50" json:"device_type,omitempty"`
	EarnedAt    time.Time        `json:"earned_at"`
	PaidAt      *time.Time       `json:"paid_at,omitempty"`
	CreatedAt   time.Time        `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (Commission) TableName() string {
	return "commissions"
}
