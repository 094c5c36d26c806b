// Package notify fans settled payments and order events out to downstream
// consumers. Delivery is best effort: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/samber/lo"
)

const (
	EventPaymentSettled     = "payment.settled"
	EventOrderCreated       = "order.created"
	EventOrderDelayReported = "order.delay_reported"
)

type Notifier interface {
	// PaymentSettled fires once per payment, only for the settlement that won.
	PaymentSettled(ctx context.Context, payment *models.Payment, orders []*models.Order) error
	OrderCreated(ctx context.Context, order *models.Order) error
	OrderDelayReported(ctx context.Context, order *models.Order) error
}

type PaymentSettledEvent struct {
	Type          string              `json:"type"`
	TransactionID string              `json:"transactionId"`
	PaymentID     string              `json:"paymentId"`
	UserID        string              `json:"userId"`
	Amount        int64               `json:"amount"`
	Currency      string              `json:"currency"`
	Method        types.PaymentMethod `json:"method"`
	OrderIDs      []string            `json:"orderIds"`
	OccurredAt    time.Time           `json:"occurredAt"`
}

type OrderEvent struct {
	Type          string            `json:"type"`
	OrderID       string            `json:"orderId"`
	UserID        string            `json:"userId"`
	ServiceID     string            `json:"serviceId"`
	Status        types.OrderStatus `json:"status"`
	TotalAmount   int64             `json:"totalAmount"`
	Currency      string            `json:"currency"`
	TransactionID string            `json:"transactionId,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
}

func newPaymentSettledEvent(p *models.Payment, orders []*models.Order, now time.Time) *PaymentSettledEvent {
	return &PaymentSettledEvent{
		Type:          EventPaymentSettled,
		TransactionID: p.TransactionID,
		PaymentID:     p.ID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        p.Method,
		OrderIDs:      lo.Map(orders, func(o *models.Order, _ int) string { return o.ID }),
		OccurredAt:    now,
	}
}

func newOrderEvent(typ string, o *models.Order, now time.Time) *OrderEvent {
	return &OrderEvent{
		Type:          typ,
		OrderID:       o.ID,
		UserID:        o.UserID,
		ServiceID:     o.ServiceID,
		Status:        o.Status,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		TransactionID: lo.FromPtr(o.TransactionID),
		OccurredAt:    now,
	}
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) PaymentSettled(ctx context.Context, p *models.Payment, orders []*models.Order) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.PaymentSettled(ctx, p, orders))
	}
	return errors.Join(errs...)
}

func (m Multi) OrderCreated(ctx context.Context, o *models.Order) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.OrderCreated(ctx, o))
	}
	return errors.Join(errs...)
}

func (m Multi) OrderDelayReported(ctx context.Context, o *models.Order) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.OrderDelayReported(ctx, o))
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) PaymentSettled(context.Context, *models.Payment, []*models.Order) error { return nil }
func (Nop) OrderCreated(context.Context, *models.Order) error                     { return nil }
func (Nop) OrderDelayReported(context.Context, *models.Order) error               { return nil }
