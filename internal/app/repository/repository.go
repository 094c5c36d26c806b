// Package repository owns every Payment and Order state transition.
//
// Two implementations share the Repository interface: GormRepository on
// postgres for production and MemoryRepository for tests and local runs.
// Both serialize settlement per transaction id through a conditional
// update, so only one caller ever observes Applied == true.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/types"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicateTransaction = errors.New("transaction id already exists")
	ErrEmptyCheckout        = errors.New("checkout must contain a payment and at least one order")
	ErrPaymentNotPending    = errors.New("payment is not pending")
	ErrNotifyCooldown       = errors.New("order notify cooldown active")
)

// Transition moves a payment, and every order sharing its transaction id,
// in one atomic step. It applies only when the payment is currently in From.
type Transition struct {
	TransactionID string
	From          []types.PaymentStatus
	To            types.PaymentStatus
	// OrderStatus is applied to all sibling orders; empty leaves them untouched.
	OrderStatus types.OrderStatus
	// CancelPendingCommissions moves sibling orders' pending commissions to cancelled.
	CancelPendingCommissions bool
	At                       time.Time
}

type TransitionResult struct {
	Applied bool
	// Payment is the committed row after the call, whether or not it applied.
	Payment *models.Payment
	Orders  []*models.Order
}

// OrderStatusUpdate is an operator driven business status change.
type OrderStatusUpdate struct {
	OrderID string
	Status  types.OrderStatus
	// Commission, when set, is applied only if the commission is still pending.
	Commission *types.CommissionStatus
	// CreditAffiliate adds the commission to the affiliate balance when the
	// commission moves to approved in this call.
	CreditAffiliate bool
}

type OrderStatusResult struct {
	Order             *models.Order
	CommissionChanged bool
	Credited          int64
}

type ScanRequest struct {
	Filters   types.Filters
	From      int
	Size      int
	SortBy    string
	SortOrder string
}

type ScanResult[T any] struct {
	Items []T
	Total int64
}

type Repository interface {
	GetService(ctx context.Context, id string) (*models.Service, error)
	// GetAffiliateForUser returns the affiliate that referred userID.
	GetAffiliateForUser(ctx context.Context, userID string) (*models.Affiliate, error)
	GetAffiliate(ctx context.Context, id string) (*models.Affiliate, error)

	// CreateCheckout persists one payment and its orders, all or nothing.
	CreateCheckout(ctx context.Context, payment *models.Payment, orders []*models.Order) error
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	// SetPaymentProviderReference records the gateway session id on a pending payment.
	SetPaymentProviderReference(ctx context.Context, transactionID, reference string) error
	TransitionPayment(ctx context.Context, t *Transition) (*TransitionResult, error)

	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrdersByTransactionID(ctx context.Context, transactionID string) ([]*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, u *OrderStatusUpdate) (*OrderStatusResult, error)
	// TouchOrderNotify stamps last_notify_at when the owner's cooldown has elapsed.
	TouchOrderNotify(ctx context.Context, orderID, userID string, cooldown time.Duration, now time.Time) (*models.Order, error)

	ScanPayments(ctx context.Context, req *ScanRequest) (*ScanResult[*models.Payment], error)
	ScanOrders(ctx context.Context, req *ScanRequest) (*ScanResult[*models.Order], error)
}

func normalizeScan(req *ScanRequest) *ScanRequest {
	if req == nil {
		req = &ScanRequest{}
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}
	return req
}
