package models

import (
	"time"

	"github.com/fatflowers/smmpay/pkg/types"

	"gorm.io/datatypes"
)

// OrderDetails is the audit payload captured at checkout.
type OrderDetails struct {
	Link        string `json:"link"`
	Quantity    int64  `json:"quantity"`
	ServiceName string `json:"serviceName"`
	// CatalogPrice is the service price per 1000 units at checkout time.
	CatalogPrice int64 `json:"catalogPrice"`
	// ClientPrice is whatever the client submitted. Never used for pricing.
	ClientPrice int64 `json:"clientPrice,omitempty"`
}

type Order struct {
	ID            string            `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID        string            `gorm:"column:user_id;type:varchar(64);not null;index" json:"userId"`
	ServiceID     string            `gorm:"column:service_id;type:varchar(64);not null" json:"serviceId"`
	Status        types.OrderStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	TotalAmount   int64             `gorm:"column:total_amount;type:bigint;not null" json:"totalAmount"`
	Currency      string            `gorm:"column:currency;type:varchar(8);not null;default:'USD'" json:"currency"`
	TransactionID *string           `gorm:"column:transaction_id;type:varchar(64);index" json:"transactionId"`

	Details datatypes.JSONType[*OrderDetails] `gorm:"column:details;type:jsonb;default:'{}'" json:"details"`

	AffiliateID      *string                 `gorm:"column:affiliate_id;type:varchar(64)" json:"affiliateId"`
	CommissionAmount *int64                  `gorm:"column:commission_amount;type:bigint" json:"commissionAmount"`
	CommissionStatus *types.CommissionStatus `gorm:"column:commission_status;type:varchar(32)" json:"commissionStatus"`

	LastNotifyAt *time.Time `gorm:"column:last_notify_at;default:null" json:"lastNotifyAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) GetDetails() *OrderDetails {
	if o == nil || o.Details.Data() == nil {
		return &OrderDetails{}
	}
	return o.Details.Data()
}

func (o *Order) HasPendingCommission() bool {
	return o != nil && o.CommissionStatus != nil && *o.CommissionStatus == types.CommissionStatusPending
}
