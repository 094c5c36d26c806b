// Package order holds the order operations that sit outside settlement:
// operator status changes, customer delay reports and listings.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/smmpay/internal/app/repository"
	"github.com/fatflowers/smmpay/internal/app/service/notify"
	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrInvalidStatus  = errors.New("invalid order status")
	ErrNotifyCooldown = errors.New("delay already reported recently")
)

type Service struct {
	repo     repository.Repository
	notifier notify.Notifier
	cooldown time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time
}

func New(repo repository.Repository, notifier notify.Notifier, cfg *config.Config, log *zap.SugaredLogger) *Service {
	cooldown := cfg.Order.DelayReportCooldown
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	return &Service{repo: repo, notifier: notifier, cooldown: cooldown, log: log, now: time.Now}
}

// UpdateStatus applies an operator status change. Completing an order
// approves its pending commission only once the payment has settled.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status types.OrderStatus) (*repository.OrderStatusResult, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	lg := logctx.FromCtx(ctx, s.log).With("order_id", orderID, "status", status)
	o, err := s.repo.GetOrder(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	upd := &repository.OrderStatusUpdate{OrderID: orderID, Status: status}
	if o.HasPendingCommission() {
		switch status {
		case types.OrderStatusCompleted:
			settled, err := s.paymentSettled(ctx, o)
			if err != nil {
				return nil, err
			}
			if settled {
				upd.Commission = lo.ToPtr(types.CommissionStatusApproved)
				upd.CreditAffiliate = true
			} else {
				lg.Warnw("commission_approval_deferred", "transaction_id", lo.FromPtr(o.TransactionID))
			}
		case types.OrderStatusCancelled:
			upd.Commission = lo.ToPtr(types.CommissionStatusCancelled)
		}
	}

	res, err := s.repo.UpdateOrderStatus(ctx, upd)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	lg.Infow("order_status_updated", "commission_changed", res.CommissionChanged, "credited", res.Credited)
	return res, nil
}

// ReportDelay lets the owner flag a slow order, at most once per cooldown.
func (s *Service) ReportDelay(ctx context.Context, userID, orderID string) (*models.Order, error) {
	o, err := s.repo.TouchOrderNotify(ctx, orderID, userID, s.cooldown, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrOrderNotFound
	case errors.Is(err, repository.ErrNotifyCooldown):
		return o, ErrNotifyCooldown
	case err != nil:
		return nil, err
	}
	if err := s.notifier.OrderDelayReported(context.WithoutCancel(ctx), o); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("notify_order_delay_failed", "order_id", o.ID, "err", err)
	}
	return o, nil
}

// NextReportAt is when the owner may report a delay again.
func (s *Service) NextReportAt(o *models.Order) time.Time {
	if o == nil || o.LastNotifyAt == nil {
		return s.now()
	}
	return o.LastNotifyAt.Add(s.cooldown)
}

func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

func (s *Service) ScanOrders(ctx context.Context, req *repository.ScanRequest) (*repository.ScanResult[*models.Order], error) {
	return s.repo.ScanOrders(ctx, req)
}

func (s *Service) ScanPayments(ctx context.Context, req *repository.ScanRequest) (*repository.ScanResult[*models.Payment], error) {
	return s.repo.ScanPayments(ctx, req)
}

func (s *Service) paymentSettled(ctx context.Context, o *models.Order) (bool, error) {
	if o.TransactionID == nil {
		return false, nil
	}
	p, err := s.repo.GetPaymentByTransactionID(ctx, *o.TransactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Status.IsSettled(), nil
}

var Module = fx.Options(
	fx.Provide(New),
)
