// Package checkout turns a cart into one pending payment and its orders.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatflowers/smmpay/internal/app/repository"
	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/money"
	"github.com/fatflowers/smmpay/pkg/tool"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	ErrEmptyCart                = errors.New("cart is empty")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrServiceNotFound          = errors.New("service not found")
	ErrServiceUnavailable       = errors.New("service is not available")
	ErrInvalidQuantity          = errors.New("quantity is outside the allowed range")
	ErrInvalidLink              = errors.New("link is required")
	ErrInvalidAmount            = errors.New("order amount is zero")
)

// LineError names the cart line that aborted the checkout.
type LineError struct {
	Index     int
	ServiceID string
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("cart item %d (service %s): %v", e.Index+1, e.ServiceID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

type Item struct {
	ServiceID string `json:"serviceId"`
	Quantity  int64  `json:"quantity"`
	Link      string `json:"link"`
	// Price is recorded for audit only.
	Price any `json:"price,omitempty" swaggertype:"number"`
}

type Request struct {
	UserID        string
	Items         []Item
	PaymentMethod types.PaymentMethod
}

type Result struct {
	TransactionID string
	Payment       *models.Payment
	Orders        []*models.Order
}

type Service struct {
	repo     repository.Repository
	currency string
	log      *zap.SugaredLogger
	now      func() time.Time
}

func New(repo repository.Repository, cfg *config.Config, log *zap.SugaredLogger) *Service {
	currency := cfg.Payment.Currency
	if currency == "" {
		currency = "USD"
	}
	return &Service{repo: repo, currency: currency, log: log, now: time.Now}
}

// Checkout prices every line from the catalog and persists the batch
// atomically. Any invalid line aborts the whole cart.
func (s *Service) Checkout(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if !req.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, req.PaymentMethod)
	}

	now := s.now()
	txID := tool.GenerateTransactionID(now)
	affiliate, err := s.affiliateFor(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(req.Items))
	var total int64
	for i, item := range req.Items {
		o, err := s.priceLine(ctx, req.UserID, txID, item, affiliate)
		if err != nil {
			return nil, &LineError{Index: i, ServiceID: item.ServiceID, Err: err}
		}
		total += o.TotalAmount
		orders = append(orders, o)
	}
	if !money.IsValid(total) {
		return nil, fmt.Errorf("%w: total %d", ErrInvalidAmount, total)
	}

	payment := &models.Payment{
		ID:            tool.GenerateUUIDV7(),
		UserID:        req.UserID,
		Amount:        total,
		Currency:      s.currency,
		Method:        req.PaymentMethod,
		Status:        types.PaymentStatusPending,
		TransactionID: txID,
	}
	if len(orders) == 1 {
		payment.OrderID = lo.ToPtr(orders[0].ID)
	}

	if err := s.repo.CreateCheckout(ctx, payment, orders); err != nil {
		return nil, fmt.Errorf("failed to persist checkout: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("checkout_created",
		"transaction_id", txID, "orders", len(orders), "amount", total, "method", req.PaymentMethod)
	return &Result{TransactionID: txID, Payment: payment, Orders: orders}, nil
}

func (s *Service) priceLine(ctx context.Context, userID, txID string, item Item, affiliate *models.Affiliate) (*models.Order, error) {
	svc, err := s.repo.GetService(ctx, item.ServiceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, ErrServiceUnavailable
	}
	if !svc.AcceptsQuantity(item.Quantity) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, item.Quantity)
	}
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return nil, ErrInvalidLink
	}
	amount := money.LineAmount(svc.Price, item.Quantity)
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	o := &models.Order{
		ID:            tool.GenerateUUIDV7(),
		UserID:        userID,
		ServiceID:     svc.ID,
		Status:        types.OrderStatusPending,
		TotalAmount:   amount,
		Currency:      s.currency,
		TransactionID: lo.ToPtr(txID),
		Details: datatypes.NewJSONType(&models.OrderDetails{
			Link:         link,
			Quantity:     item.Quantity,
			ServiceName:  svc.Name,
			CatalogPrice: svc.Price,
			ClientPrice:  money.Normalize(item.Price),
		}),
	}
	if affiliate != nil {
		o.AffiliateID = lo.ToPtr(affiliate.ID)
		o.CommissionAmount = lo.ToPtr(money.Percent(amount, affiliate.CommissionRateBps))
		o.CommissionStatus = lo.ToPtr(types.CommissionStatusPending)
	}
	return o, nil
}

func (s *Service) affiliateFor(ctx context.Context, userID string) (*models.Affiliate, error) {
	a, err := s.repo.GetAffiliateForUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load referral: %w", err)
	}
	// no commission on your own purchases
	if a.UserID == userID || a.CommissionRateBps <= 0 {
		return nil, nil
	}
	return a, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
