package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentEventLogStatus string

const (
	PaymentEventLogStatusReceived     PaymentEventLogStatus = "received"
	PaymentEventLogStatusHandled      PaymentEventLogStatus = "handled"
	PaymentEventLogStatusIgnored      PaymentEventLogStatus = "ignored"
	PaymentEventLogStatusHandleFailed PaymentEventLogStatus = "handle_failed"
)

// PaymentEventLog is an append-only audit row for every gateway push or
// callback the service receives. Each event is written twice: once on
// receipt, once with its outcome.
type PaymentEventLog struct {
	ID             string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider       string                `gorm:"column:provider;type:varchar(64);not null" json:"provider"`
	EventID        string                `gorm:"column:event_id;type:varchar(128);index" json:"event_id"`
	EventType      string                `gorm:"column:event_type;type:varchar(128)" json:"event_type"`
	TransactionID  string                `gorm:"column:transaction_id;type:varchar(128);index" json:"transaction_id"`
	TraceID        string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	SignatureValid bool                  `gorm:"column:signature_valid" json:"signature_valid"`
	Data           datatypes.JSON        `gorm:"column:data;type:jsonb" json:"data"`
	Result         *datatypes.JSON       `gorm:"column:result;type:jsonb" json:"result"`
	Status         PaymentEventLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (PaymentEventLog) TableName() string { return "payment_event_log" }
