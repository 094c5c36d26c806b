package models

import "time"

// Affiliate earns commission on orders placed by users it referred.
type Affiliate struct {
	ID     string `gorm:"column:id;primary_key;type:varchar(64)" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex" json:"userId"`
	// CommissionRateBps is the commission in basis points of the order total.
	CommissionRateBps int64     `gorm:"column:commission_rate_bps;type:bigint;not null" json:"commissionRateBps"`
	Balance           int64     `gorm:"column:balance;type:bigint;not null;default:0" json:"balance"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Affiliate) TableName() string {
	return "affiliate"
}

// Referral links a customer to the affiliate that referred them.
type Referral struct {
	UserID      string    `gorm:"column:user_id;primary_key;type:varchar(64)" json:"userId"`
	AffiliateID string    `gorm:"column:affiliate_id;type:varchar(64);not null;index" json:"affiliateId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Referral) TableName() string {
	return "referral"
}
