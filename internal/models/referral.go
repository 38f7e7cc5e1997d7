package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Referral is one tracked click on an affiliate link and everything that
// happened to it afterwards.
type Referral struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	AffiliateID     uint              `gorm:"not null;index" json:"affiliate_id"`
	ClientID        uint              `gorm:"index" json:"client_id"`
	ReferralCode    string            `gorm:"size:100;not null;index;uniqueIndex:idx_referrals_active_code,where:status = 'CLICKED'" json:"referral_code"`
	TargetURL       string            `gorm:"size:2000;not null" json:"target_url"`
	SourceURL       string            `gorm:"size:2000" json:"source_url,omitempty"`
	Campaign        string            `gorm:"size:100" json:"campaign,omitempty"`
	Status          ReferralStatus    `gorm:"size:20;not null;index" json:"status"`
	UserAgent       string            `gorm:"size:500" json:"user_agent,omitempty"`
	IPAddress       string            `gorm:"size:45" json:"ip_address,omitempty"`
	DeviceType      string            `gorm:"size:50" json:"device_type"`
	BrowserName     string            `gorm:"size:50" json:"browser_name"`
	OperatingSystem string            `gorm:"size:50" json:"operating_system"`
	Country         string            `gorm:"size:100" json:"country"`
	City            string            `gorm:"size:100" json:"city"`
	ConversionValue *decimal.Decimal  `gorm:"type:decimal(10,2)" json:"conversion_value"`
	OrderID         *string           `gorm:"size:100" json:"order_id,omitempty"`
	Metadata        map[string]string `gorm:"column:metadata_json;type:text;serializer:json" json:"metadata,omitempty"`
	ClickedAt       time.Time         `gorm:"not null;index" json:"clicked_at"`
	ConvertedAt     *time.Time        `json:"converted_at,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Referral) TableName() string {
	return "referrals"
}

func (r *Referral) IsConverted() bool {
	return r.Status == ReferralConverted
}

// Revenue is the conversion value counted towards analytics: zero unless the
// referral is currently converted.
func (r *Referral) Revenue() decimal.Decimal {
	if r.Status != ReferralConverted || r.ConversionValue == nil {
		return decimal.Zero
	}
	return *r.ConversionValue
}
