package models

import (
	"time"

	"github.com/fatflowers/smmpay/pkg/types"
)

// Payment is the financial record for one checkout. It is never deleted.
type Payment struct {
	ID     string  `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID string  `gorm:"column:user_id;type:varchar(64);not null;index" json:"userId"`
	// OrderID is set only when the payment covers a single order.
	OrderID  *string             `gorm:"column:order_id;type:uuid" json:"orderId"`
	Amount   int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency string              `gorm:"column:currency;type:varchar(8);not null;default:'USD'" json:"currency"`
	Method   types.PaymentMethod `gorm:"column:method;type:varchar(32);not null" json:"method"`
	Status   types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// TransactionID correlates the payment, its orders and the gateway session.
	TransactionID string `gorm:"column:transaction_id;type:varchar(64);not null;uniqueIndex" json:"transactionId"`
	// ProviderReference is the gateway's order or session id.
	ProviderReference *string    `gorm:"column:provider_reference;type:varchar(128);index" json:"providerReference"`
	PaidAt            *time.Time `gorm:"column:paid_at;default:null" json:"paidAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (Payment) TableName() string {
	return "payment"
}
