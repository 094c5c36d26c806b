// Package settlement reconciles gateway outcomes into Payment and Order
// state. Every path that can mark a payment as paid ends in Settle.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatflowers/smmpay/internal/app/repository"
	"github.com/fatflowers/smmpay/internal/app/service/event_log"
	"github.com/fatflowers/smmpay/internal/app/service/notify"
	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/internal/platform/cache"
	"github.com/fatflowers/smmpay/internal/platform/gateway"
	"github.com/fatflowers/smmpay/internal/platform/gateway/paypal"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/metrics"
	"github.com/fatflowers/smmpay/pkg/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyCompleted = errors.New("payment already completed")
	ErrPaymentNotPending       = errors.New("payment is not pending")
	ErrCheckoutInProgress      = errors.New("a payment session for this checkout is already being created")
	ErrPaymentRecordMissing    = errors.New("no payment record for provider order")
	ErrAmountMismatch          = errors.New("provider amount does not match payment")
	ErrCaptureFailed           = errors.New("capture was not completed")
	ErrProviderMismatch        = errors.New("payment method does not match provider")
)

const (
	outcomeApplied        = "applied"
	outcomeAlreadySettled = "already_settled"
	outcomeRejected       = "rejected"
	outcomeError          = "error"
)

type Params struct {
	fx.In

	Repo     repository.Repository
	Gateways *gateway.Registry
	PayPal   gateway.PayPal
	Locker   cache.Locker
	Notifier notify.Notifier
	Events   event_log.Recorder
	Config   *config.Config
	Logger   *zap.SugaredLogger
}

type Service struct {
	repo     repository.Repository
	gateways *gateway.Registry
	paypal   gateway.PayPal
	locker   cache.Locker
	notifier notify.Notifier
	events   event_log.Recorder
	cfg      *config.Config
	log      *zap.SugaredLogger
	now      func() time.Time
}

func New(p Params) *Service {
	return &Service{
		repo:     p.Repo,
		gateways: p.Gateways,
		paypal:   p.PayPal,
		locker:   p.Locker,
		notifier: p.Notifier,
		events:   p.Events,
		cfg:      p.Config,
		log:      p.Logger,
		now:      time.Now,
	}
}

type IntentResult struct {
	TransactionID         string
	RedirectURL           string
	ProviderTransactionID string
}

// Result reports the committed payment status after a settlement attempt.
type Result struct {
	Applied bool
	Status  types.PaymentStatus
	Payment *models.Payment
}

// CreateIntent opens a gateway session for the caller's pending payment.
func (s *Service) CreateIntent(ctx context.Context, userID string, provider types.PaymentProvider, transactionID string) (*IntentResult, error) {
	lg := logctx.FromCtx(ctx, s.log)
	p, err := s.ownedPayment(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if p.Status.IsSettled() {
		return nil, ErrPaymentAlreadyCompleted
	}
	if p.Status != types.PaymentStatusPending {
		return nil, ErrPaymentNotPending
	}
	if gatewayMethod(p.Method) && string(p.Method) != string(provider) {
		return nil, fmt.Errorf("%w: %s != %s", ErrProviderMismatch, p.Method, provider)
	}
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, "checkout:"+transactionID)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, ErrCheckoutInProgress
	}
	if err != nil {
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	req := &gateway.IntentRequest{
		Amount:        p.Amount,
		Currency:      p.Currency,
		CorrelationID: p.TransactionID,
		ReturnURL:     s.cfg.Payment.FrontendSuccessURL,
		CancelURL:     s.cfg.Payment.FrontendFailureURL,
	}
	if p.ProviderReference != nil {
		req.ExistingReference = *p.ProviderReference
	}
	intent, err := gw.CreatePaymentIntent(ctx, req)
	if err != nil {
		lg.Errorw("payment_intent_failed", "provider", provider, "transaction_id", transactionID, "err", err)
		return nil, fmt.Errorf("create %s intent: %w", provider, err)
	}
	if intent.ProviderTransactionID == req.ExistingReference {
		lg.Infow("payment_intent_resumed", "provider", provider, "transaction_id", transactionID)
	} else if err := s.repo.SetPaymentProviderReference(ctx, transactionID, intent.ProviderTransactionID); err != nil {
		if errors.Is(err, repository.ErrPaymentNotPending) {
			return nil, ErrPaymentNotPending
		}
		return nil, fmt.Errorf("record provider reference: %w", err)
	}
	lg.Infow("payment_intent_created", "provider", provider, "transaction_id", transactionID, "provider_reference", intent.ProviderTransactionID)
	return &IntentResult{
		TransactionID:         transactionID,
		RedirectURL:           intent.RedirectURL,
		ProviderTransactionID: intent.ProviderTransactionID,
	}, nil
}

// CapturePayPal captures an approved PayPal order after checking that the
// provider amount matches what we charged.
func (s *Service) CapturePayPal(ctx context.Context, providerOrderID string) (*Result, error) {
	lg := logctx.FromCtx(ctx, s.log).With("provider_order_id", providerOrderID)
	details, err := s.paypal.GetOrderDetails(ctx, providerOrderID)
	if err != nil {
		metrics.Settlement.WithLabelValues(string(types.SettlementSourceCapture), outcomeError).Inc()
		return nil, fmt.Errorf("get paypal order: %w", err)
	}
	if details.CorrelationID == "" {
		return nil, ErrPaymentRecordMissing
	}
	lg = lg.With("transaction_id", details.CorrelationID)

	p, err := s.repo.GetPaymentByTransactionID(ctx, details.CorrelationID)
	if errors.Is(err, repository.ErrNotFound) {
		lg.Warnw("paypal_capture_payment_missing")
		return nil, ErrPaymentRecordMissing
	}
	if err != nil {
		return nil, err
	}
	if p.Status.IsSettled() {
		metrics.Settlement.WithLabelValues(string(types.SettlementSourceCapture), outcomeAlreadySettled).Inc()
		return &Result{Status: p.Status, Payment: p}, nil
	}
	if p.Status != types.PaymentStatusPending {
		return nil, ErrPaymentNotPending
	}
	if !amountMatches(p, details.Amount, details.Currency) {
		metrics.Settlement.WithLabelValues(string(types.SettlementSourceCapture), outcomeRejected).Inc()
		lg.Errorw("paypal_capture_amount_mismatch",
			"expected_amount", p.Amount, "expected_currency", p.Currency,
			"provider_amount", details.Amount, "provider_currency", details.Currency)
		s.record(ctx, "capture", p.TransactionID, details.Raw, models.PaymentEventLogStatusIgnored, "amount_mismatch")
		return nil, ErrAmountMismatch
	}

	// an order captured earlier whose settlement was lost still reads COMPLETED
	if details.Status != paypal.StatusCompleted {
		cr, err := s.paypal.CaptureOrder(ctx, providerOrderID)
		if err != nil {
			metrics.Settlement.WithLabelValues(string(types.SettlementSourceCapture), outcomeError).Inc()
			return nil, fmt.Errorf("capture paypal order: %w", err)
		}
		if !cr.OK {
			metrics.Settlement.WithLabelValues(string(types.SettlementSourceCapture), outcomeRejected).Inc()
			lg.Warnw("paypal_capture_not_completed", "provider_status", cr.ProviderStatus)
			s.record(ctx, "capture", p.TransactionID, cr.Raw, models.PaymentEventLogStatusIgnored, cr.ProviderStatus)
			return nil, ErrCaptureFailed
		}
	}

	res, err := s.Settle(ctx, p.TransactionID, types.SettlementSourceCapture)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "capture", p.TransactionID, details.Raw, models.PaymentEventLogStatusHandled, string(res.Status))
	if !res.Status.IsSettled() {
		return nil, ErrPaymentNotPending
	}
	return res, nil
}

// VerifyPayoneer is the polling fallback for redirect based payments.
func (s *Service) VerifyPayoneer(ctx context.Context, userID, transactionID string) (*Result, error) {
	p, err := s.ownedPayment(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if p.Status != types.PaymentStatusPending || p.ProviderReference == nil {
		return &Result{Status: p.Status, Payment: p}, nil
	}
	gw, err := s.gateways.Get(types.PaymentProviderPayoneer)
	if err != nil {
		return nil, err
	}
	ok, err := gw.VerifyPayment(ctx, *p.ProviderReference)
	if err != nil {
		metrics.Settlement.WithLabelValues(string(types.SettlementSourceVerify), outcomeError).Inc()
		return nil, fmt.Errorf("verify payoneer payment: %w", err)
	}
	if !ok {
		return &Result{Status: p.Status, Payment: p}, nil
	}
	return s.Settle(ctx, transactionID, types.SettlementSourceVerify)
}

// HandlePayoneerCallback settles on a buyer redirect. It reports whether the
// payment ended up settled so the caller can pick the redirect target.
func (s *Service) HandlePayoneerCallback(ctx context.Context, transactionID, refID, status string) (bool, error) {
	lg := logctx.FromCtx(ctx, s.log).With("transaction_id", transactionID, "ref_id", refID, "status", status)
	if status != "success" {
		lg.Infow("payoneer_callback_not_successful")
		return false, nil
	}
	p, err := s.repo.GetPaymentByTransactionID(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrPaymentNotFound
	}
	if err != nil {
		return false, err
	}
	if p.Status.IsSettled() {
		return true, nil
	}
	if p.Status != types.PaymentStatusPending {
		return false, nil
	}
	if p.ProviderReference == nil || *p.ProviderReference != refID {
		lg.Warnw("payoneer_callback_reference_mismatch")
		s.record(ctx, "callback", transactionID, nil, models.PaymentEventLogStatusIgnored, "reference_mismatch")
		return false, nil
	}
	gw, err := s.gateways.Get(types.PaymentProviderPayoneer)
	if err != nil {
		return false, err
	}
	ok, err := gw.VerifyPayment(ctx, refID)
	if err != nil {
		metrics.Settlement.WithLabelValues(string(types.SettlementSourceCallback), outcomeError).Inc()
		return false, fmt.Errorf("verify payoneer payment: %w", err)
	}
	if !ok {
		s.record(ctx, "callback", transactionID, nil, models.PaymentEventLogStatusIgnored, "not_verified")
		return false, nil
	}
	res, err := s.Settle(ctx, transactionID, types.SettlementSourceCallback)
	if err != nil {
		return false, err
	}
	s.record(ctx, "callback", transactionID, nil, models.PaymentEventLogStatusHandled, string(res.Status))
	return res.Status.IsSettled(), nil
}

// Settle moves a pending payment to paid and its orders to processing.
// Only the caller whose transition applies publishes the fan-out.
func (s *Service) Settle(ctx context.Context, transactionID string, source types.SettlementSource) (*Result, error) {
	lg := logctx.FromCtx(ctx, s.log).With("transaction_id", transactionID, "source", source)
	tr, err := s.repo.TransitionPayment(ctx, &repository.Transition{
		TransactionID: transactionID,
		From:          []types.PaymentStatus{types.PaymentStatusPending},
		To:            types.PaymentStatusPaid,
		OrderStatus:   types.OrderStatusProcessing,
		At:            s.now(),
	})
	if err != nil {
		metrics.Settlement.WithLabelValues(string(source), outcomeError).Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentRecordMissing
		}
		return nil, fmt.Errorf("settle payment: %w", err)
	}
	res := &Result{Applied: tr.Applied, Status: tr.Payment.Status, Payment: tr.Payment}
	if !tr.Applied {
		metrics.Settlement.WithLabelValues(string(source), outcomeAlreadySettled).Inc()
		lg.Infow("settlement_noop", "status", tr.Payment.Status)
		return res, nil
	}
	metrics.Settlement.WithLabelValues(string(source), outcomeApplied).Inc()
	lg.Infow("settlement_applied", "orders", len(tr.Orders), "amount", tr.Payment.Amount)
	s.fanOut(ctx, tr.Payment, tr.Orders)
	return res, nil
}

func (s *Service) fanOut(ctx context.Context, p *models.Payment, orders []*models.Order) {
	ctx = context.WithoutCancel(ctx)
	lg := logctx.FromCtx(ctx, s.log)
	if err := s.notifier.PaymentSettled(ctx, p, orders); err != nil {
		lg.Errorw("notify_payment_settled_failed", "transaction_id", p.TransactionID, "err", err)
	}
	for _, o := range orders {
		if err := s.notifier.OrderCreated(ctx, o); err != nil {
			lg.Errorw("notify_order_created_failed", "order_id", o.ID, "err", err)
		}
	}
}

func (s *Service) ownedPayment(ctx context.Context, userID, transactionID string) (*models.Payment, error) {
	p, err := s.repo.GetPaymentByTransactionID(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	// someone else's payment looks exactly like a missing one
	if p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) record(ctx context.Context, eventType, transactionID string, raw []byte, status models.PaymentEventLogStatus, result string) {
	if s.events == nil {
		return
	}
	provider := types.PaymentProviderPayPal
	if eventType == "callback" {
		provider = types.PaymentProviderPayoneer
	}
	ev := &models.PaymentEventLog{
		Provider:       string(provider),
		EventType:      eventType,
		TransactionID:  transactionID,
		TraceID:        logctx.TraceID(ctx),
		SignatureValid: true,
		Data:           datatypes.JSON(nonEmptyJSON(raw)),
		Result:         resultJSON(result),
		Status:         status,
	}
	s.events.Save(ctx, ev)
}

// AmountMatches compares a provider amount against the payment in minor units.
func AmountMatches(p *models.Payment, amount int64, currency string) bool {
	return amountMatches(p, amount, currency)
}

func amountMatches(p *models.Payment, amount int64, currency string) bool {
	return p.Amount == amount && strings.EqualFold(p.Currency, currency)
}

func gatewayMethod(m types.PaymentMethod) bool {
	return m == types.PaymentMethodPayPal || m == types.PaymentMethodPayoneer
}

func nonEmptyJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

func resultJSON(result string) *datatypes.JSON {
	b, _ := json.Marshal(map[string]string{"result": result})
	j := datatypes.JSON(b)
	return &j
}

var Module = fx.Options(
	fx.Provide(New),
)
