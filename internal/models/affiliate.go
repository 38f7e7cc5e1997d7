package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Affiliate is owned by the account-management side; the engine only reads it.
type Affiliate struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	ClientID         uint             `gorm:"not null;index" json:"client_id"`
	UniqueIdentifier string           `gorm:"size:50;not null;uniqueIndex" json:"unique_identifier"`
	Name             string           `gorm:"size:255" json:"name"`
	Email            string           `gorm:"size:255" json:"email"`
	Status           string           `gorm:"size:20;not null;index" json:"status"`
	TargetURL        string           `gorm:"size:2000" json:"target_url"`
	CommissionRate   *decimal.Decimal `gorm:"type:decimal(5,2)" json:"commission_rate,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Affiliate) TableName() string {
	return "affiliates"
}

func (a *Affiliate) IsActive() bool {
	return a.Status == AffiliateActive
}
