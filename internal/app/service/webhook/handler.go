// Package webhook reconciles asynchronous PayPal notifications.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fatflowers/smmpay/internal/app/repository"
	"github.com/fatflowers/smmpay/internal/app/service/event_log"
	"github.com/fatflowers/smmpay/internal/app/service/settlement"
	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/internal/platform/gateway"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/metrics"
	"github.com/fatflowers/smmpay/pkg/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	// ErrInvalidSignature is a permanent rejection; the provider must not retry.
	ErrInvalidSignature = errors.New("webhook signature invalid")
	// ErrVerificationUnavailable means we could not reach the verifier; the provider should retry.
	ErrVerificationUnavailable = errors.New("webhook signature verification unavailable")
)

type Outcome string

const (
	OutcomeHandled Outcome = "handled"
	OutcomeIgnored Outcome = "ignored"
)

// Settler is the part of the settlement service the webhook path needs.
type Settler interface {
	Settle(ctx context.Context, transactionID string, source types.SettlementSource) (*settlement.Result, error)
}

type Handler struct {
	paypal  gateway.PayPal
	settler Settler
	repo    repository.Repository
	events  event_log.Recorder
	log     *zap.SugaredLogger
}

func NewHandler(pp gateway.PayPal, settler *settlement.Service, repo repository.Repository, events event_log.Recorder, log *zap.SugaredLogger) *Handler {
	return &Handler{paypal: pp, settler: settler, repo: repo, events: events, log: log}
}

// HandlePayPal verifies and applies one PayPal webhook delivery. A nil
// error means the delivery should be acknowledged.
func (h *Handler) HandlePayPal(ctx context.Context, header http.Header, raw []byte) (err error) {
	lg := logctx.FromCtx(ctx, h.log)
	lg.Infow("webhook_paypal_received", "bytes", len(raw))

	valid, err := h.paypal.VerifyWebhookSignature(ctx, header, raw)
	if err != nil {
		lg.Errorw("webhook_paypal_verify_failed", "err", err)
		h.save(ctx, Envelope{Type: "unverified"}, false, raw, models.PaymentEventLogStatusHandleFailed, map[string]any{"error": err.Error()})
		return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if !valid {
		lg.Warnw("webhook_paypal_invalid_signature")
		h.save(ctx, Envelope{Type: "unverified"}, false, raw, models.PaymentEventLogStatusIgnored, map[string]any{"error": ErrInvalidSignature.Error()})
		return ErrInvalidSignature
	}

	ev, perr := ParseEvent(raw)
	if perr != nil {
		lg.Warnw("webhook_paypal_malformed", "err", perr)
		h.save(ctx, Envelope{Type: "malformed"}, true, raw, models.PaymentEventLogStatusIgnored, map[string]any{"error": perr.Error()})
		return nil
	}
	meta := ev.Meta()
	lg = lg.With("event_id", meta.ID, "event_type", meta.Type, "transaction_id", meta.TransactionID)
	h.save(ctx, meta, true, raw, models.PaymentEventLogStatusReceived, nil)

	var outcome Outcome
	var reason string
	defer func() {
		status := models.PaymentEventLogStatusHandled
		result := map[string]any{"outcome": outcome, "reason": reason}
		switch {
		case err != nil:
			status = models.PaymentEventLogStatusHandleFailed
			result["error"] = err.Error()
		case outcome == OutcomeIgnored:
			status = models.PaymentEventLogStatusIgnored
		}
		h.save(ctx, meta, true, raw, status, result)
		metrics.WebhookEvents.WithLabelValues(string(types.PaymentProviderPayPal), meta.Type, string(status)).Inc()
	}()

	switch e := ev.(type) {
	case CaptureCompleted:
		outcome, reason, err = h.captureCompleted(ctx, lg, e)
	case CaptureDenied:
		outcome, reason, err = h.transition(ctx, lg, &repository.Transition{
			TransactionID: e.TransactionID,
			From:          []types.PaymentStatus{types.PaymentStatusPending},
			To:            types.PaymentStatusFailed,
			OrderStatus:   types.OrderStatusPendingPayment,
		})
	case CaptureRefunded:
		outcome, reason, err = h.transition(ctx, lg, &repository.Transition{
			TransactionID:            e.TransactionID,
			From:                     []types.PaymentStatus{types.PaymentStatusPaid, types.PaymentStatusCompleted},
			To:                       types.PaymentStatusRefunded,
			OrderStatus:              types.OrderStatusCancelled,
			CancelPendingCommissions: true,
		})
	default:
		outcome, reason = OutcomeIgnored, "unhandled_event_type"
		lg.Infow("webhook_paypal_unhandled_event")
	}
	return err
}

func (h *Handler) captureCompleted(ctx context.Context, lg *zap.SugaredLogger, e CaptureCompleted) (Outcome, string, error) {
	if e.TransactionID == "" {
		lg.Warnw("webhook_paypal_missing_custom_id")
		return OutcomeIgnored, "missing_custom_id", nil
	}
	p, err := h.repo.GetPaymentByTransactionID(ctx, e.TransactionID)
	if errors.Is(err, repository.ErrNotFound) {
		lg.Warnw("webhook_paypal_payment_not_found")
		return OutcomeIgnored, "payment_not_found", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("load payment: %w", err)
	}
	if p.Status.IsSettled() {
		return OutcomeIgnored, "already_settled", nil
	}
	if p.Status != types.PaymentStatusPending {
		lg.Warnw("webhook_paypal_payment_not_pending", "status", p.Status)
		return OutcomeIgnored, "payment_" + string(p.Status), nil
	}
	if !e.Amount.Valid || !settlement.AmountMatches(p, e.Amount.Value, e.Amount.Currency) {
		lg.Errorw("webhook_paypal_amount_mismatch",
			"expected_amount", p.Amount, "expected_currency", p.Currency,
			"provider_amount", e.Amount.Value, "provider_currency", e.Amount.Currency)
		return OutcomeIgnored, "amount_mismatch", nil
	}
	res, err := h.settler.Settle(ctx, e.TransactionID, types.SettlementSourceWebhook)
	if err != nil {
		return "", "", err
	}
	if !res.Applied {
		return OutcomeIgnored, "already_settled", nil
	}
	return OutcomeHandled, "settled", nil
}

func (h *Handler) transition(ctx context.Context, lg *zap.SugaredLogger, t *repository.Transition) (Outcome, string, error) {
	if t.TransactionID == "" {
		lg.Warnw("webhook_paypal_missing_custom_id")
		return OutcomeIgnored, "missing_custom_id", nil
	}
	res, err := h.repo.TransitionPayment(ctx, t)
	if errors.Is(err, repository.ErrNotFound) {
		lg.Warnw("webhook_paypal_payment_not_found")
		return OutcomeIgnored, "payment_not_found", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("transition payment to %s: %w", t.To, err)
	}
	if !res.Applied {
		lg.Infow("webhook_paypal_transition_noop", "status", res.Payment.Status, "target", t.To)
		return OutcomeIgnored, "payment_" + string(res.Payment.Status), nil
	}
	lg.Infow("webhook_paypal_transition_applied", "target", t.To, "orders", len(res.Orders))
	return OutcomeHandled, string(t.To), nil
}

func (h *Handler) save(ctx context.Context, meta Envelope, signatureValid bool, raw []byte, status models.PaymentEventLogStatus, result map[string]any) {
	data := raw
	if !json.Valid(data) {
		data, _ = json.Marshal(map[string]string{"raw": string(raw)})
	}
	ev := &models.PaymentEventLog{
		Provider:       string(types.PaymentProviderPayPal),
		EventID:        meta.ID,
		EventType:      meta.Type,
		TransactionID:  meta.TransactionID,
		TraceID:        logctx.TraceID(ctx),
		SignatureValid: signatureValid,
		Data:           datatypes.JSON(data),
		Status:         status,
	}
	if result != nil {
		b, _ := json.Marshal(result)
		j := datatypes.JSON(b)
		ev.Result = &j
	}
	h.events.Save(ctx, ev)
}

var Module = fx.Options(
	fx.Provide(NewHandler),
)
