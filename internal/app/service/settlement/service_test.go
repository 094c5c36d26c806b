package settlement

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fatflowers/smmpay/internal/app/repository"
	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/internal/platform/cache"
	"github.com/fatflowers/smmpay/internal/platform/gateway"
	"github.com/fatflowers/smmpay/internal/platform/gateway/payoneer"
	"github.com/fatflowers/smmpay/internal/platform/gateway/paypal"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePayPal struct {
	details    *gateway.OrderDetails
	detailsErr error
	capture    *gateway.CaptureResult
	captures   atomic.Int32
}

func (f *fakePayPal) Provider() types.PaymentProvider { return types.PaymentProviderPayPal }

func (f *fakePayPal) CreatePaymentIntent(_ context.Context, req *gateway.IntentRequest) (*gateway.Intent, error) {
	return &gateway.Intent{RedirectURL: "https://paypal.test/approve?token=PP-1", ProviderTransactionID: "PP-1"}, nil
}

func (f *fakePayPal) VerifyPayment(context.Context, string) (bool, error) { return false, nil }

func (f *fakePayPal) CaptureOrder(_ context.Context, _ string) (*gateway.CaptureResult, error) {
	f.captures.Add(1)
	return f.capture, nil
}

func (f *fakePayPal) GetOrderDetails(_ context.Context, _ string) (*gateway.OrderDetails, error) {
	return f.details, f.detailsErr
}

func (f *fakePayPal) VerifyWebhookSignature(context.Context, http.Header, []byte) (bool, error) {
	return true, nil
}

type countingNotifier struct {
	settled atomic.Int32
	created atomic.Int32
}

func (n *countingNotifier) PaymentSettled(context.Context, *models.Payment, []*models.Order) error {
	n.settled.Add(1)
	return nil
}

func (n *countingNotifier) OrderCreated(context.Context, *models.Order) error {
	n.created.Add(1)
	return errors.New("broker down")
}

func (n *countingNotifier) OrderDelayReported(context.Context, *models.Order) error { return nil }

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (cache.ReleaseFunc, error) {
	return nil, cache.ErrLockHeld
}

type nopRecorder struct{}

func (nopRecorder) Save(context.Context, *models.PaymentEventLog) {}

type fixture struct {
	svc      *Service
	repo     *repository.MemoryRepository
	paypal   *fakePayPal
	notifier *countingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.Payment.Currency = "USD"
	cfg.Payment.PublicBaseURL = "http://localhost:8080"
	cfg.Payment.Payoneer.Sandbox = true
	log := zap.NewNop().Sugar()

	pp := &fakePayPal{
		details: &gateway.OrderDetails{ID: "PP-1", Status: "APPROVED", CorrelationID: "TXN-1", Amount: 1500, Currency: "USD"},
		capture: &gateway.CaptureResult{OK: true, ProviderStatus: paypal.StatusCompleted},
	}
	repo := repository.NewMemoryRepository()
	n := &countingNotifier{}
	svc := New(Params{
		Repo:     repo,
		Gateways: gateway.NewRegistry(pp, payoneer.New(cfg, log)),
		PayPal:   pp,
		Locker:   cache.NopLocker{},
		Notifier: n,
		Events:   nopRecorder{},
		Config:   cfg,
		Logger:   log,
	})
	return &fixture{svc: svc, repo: repo, paypal: pp, notifier: n}
}

func (f *fixture) seed(t *testing.T, txID string, method types.PaymentMethod) {
	t.Helper()
	p := &models.Payment{ID: "pay-" + txID, UserID: "u1", Amount: 1500, Currency: "USD", Method: method, Status: types.PaymentStatusPending, TransactionID: txID}
	orders := []*models.Order{
		{ID: txID + "-a", UserID: "u1", ServiceID: "svc", Status: types.OrderStatusPending, TotalAmount: 500, Currency: "USD", TransactionID: lo.ToPtr(txID)},
		{ID: txID + "-b", UserID: "u1", ServiceID: "svc", Status: types.OrderStatusPending, TotalAmount: 1000, Currency: "USD", TransactionID: lo.ToPtr(txID)},
	}
	require.NoError(t, f.repo.CreateCheckout(context.Background(), p, orders))
}

func (f *fixture) requireState(t *testing.T, txID string, ps types.PaymentStatus, os types.OrderStatus) {
	t.Helper()
	p, err := f.repo.GetPaymentByTransactionID(context.Background(), txID)
	require.NoError(t, err)
	require.Equal(t, ps, p.Status)
	orders, err := f.repo.ListOrdersByTransactionID(context.Background(), txID)
	require.NoError(t, err)
	for _, o := range orders {
		require.Equal(t, os, o.Status)
	}
}

func TestCapturePayPal_SettlesOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "TXN-1", types.PaymentMethodPayPal)

	res, err := f.svc.CapturePayPal(context.Background(), "PP-1")
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, types.PaymentStatusPaid, res.Status)
	f.requireState(t, "TXN-1", types.PaymentStatusPaid, types.OrderStatusProcessing)
	require.Equal(t, int32(1), f.notifier.settled.Load())
	require.Equal(t, int32(2), f.notifier.created.Load())

	res, err = f.svc.CapturePayPal(context.Background(), "PP-1")
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, types.PaymentStatusPaid, res.Status)
	require.Equal(t, int32(1), f.paypal.captures.Load())
	require.Equal(t, int32(1), f.notifier.settled.Load())
}

func TestCapturePayPal_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "TXN-1", types.PaymentMethodPayPal)
	f.paypal.details.Amount = 1

	_, err := f.svc.CapturePayPal(context.Background(), "PP-1")
	require.ErrorIs(t, err, ErrAmountMismatch)
	require.Zero(t, f.paypal.captures.Load())
	f.requireState(t, "TXN-1", types.PaymentStatusPending, types.OrderStatusPending)

	f.paypal.details.Amount = 1500
	f.paypal.details.Currency = "EUR"
	_, err = f.svc.CapturePayPal(context.Background(), "PP-1")
	require.ErrorIs(t, err, ErrAmountMismatch)
}

func TestCapturePayPal_Failures(t *testing.T) {
	t.Run("missing record", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CapturePayPal(context.Background(), "PP-1")
		require.ErrorIs(t, err, ErrPaymentRecordMissing)
	})
	t.Run("capture declined", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "TXN-1", types.PaymentMethodPayPal)
		f.paypal.capture = &gateway.CaptureResult{OK: false, ProviderStatus: "DECLINED"}
		_, err := f.svc.CapturePayPal(context.Background(), "PP-1")
		require.ErrorIs(t, err, ErrCaptureFailed)
		f.requireState(t, "TXN-1", types.PaymentStatusPending, types.OrderStatusPending)
	})
	t.Run("gateway timeout leaves payment pending", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "TXN-1", types.PaymentMethodPayPal)
		f.paypal.detailsErr = &gateway.RequestError{Op: "get order", Status: 504, Body: "timeout"}
		_, err := f.svc.CapturePayPal(context.Background(), "PP-1")
		require.ErrorIs(t, err, gateway.ErrGatewayRequest)
		f.requireState(t, "TXN-1", types.PaymentStatusPending, types.OrderStatusPending)
	})
	t.Run("already captured order skips capture", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "TXN-1", types.PaymentMethodPayPal)
		f.paypal.details.Status = paypal.StatusCompleted
		res, err := f.svc.CapturePayPal(context.Background(), "PP-1")
		require.NoError(t, err)
		require.True(t, res.Applied)
		require.Zero(t, f.paypal.captures.Load())
	})
}

func TestSettle_ConcurrentSourcesFanOutOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "TXN-1", types.PaymentMethodPayPal)

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		source := types.SettlementSourceWebhook
		if i%2 == 0 {
			source = types.SettlementSourceCapture
		}
		go func() {
			defer wg.Done()
			res, err := f.svc.Settle(context.Background(), "TXN-1", source)
			assert.NoError(t, err)
			if res != nil && res.Applied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), applied.Load())
	require.Equal(t, int32(1), f.notifier.settled.Load())
	require.Equal(t, int32(2), f.notifier.created.Load())
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "TXN-1", types.PaymentMethodPayoneer)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, "intruder", types.PaymentProviderPayoneer, "TXN-1")
	require.ErrorIs(t, err, ErrPaymentNotFound)
	_, err = f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayoneer, "TXN-404")
	require.ErrorIs(t, err, ErrPaymentNotFound)
	_, err = f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayPal, "TXN-1")
	require.ErrorIs(t, err, ErrProviderMismatch)

	res, err := f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayoneer, "TXN-1")
	require.NoError(t, err)
	require.Contains(t, res.RedirectURL, payoneer.MockCheckoutPath)
	require.Contains(t, res.ProviderTransactionID, payoneer.MockPrefix)
	p, err := f.repo.GetPaymentByTransactionID(ctx, "TXN-1")
	require.NoError(t, err)
	require.Equal(t, res.ProviderTransactionID, *p.ProviderReference)

	f.svc.locker = heldLocker{}
	_, err = f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayoneer, "TXN-1")
	require.ErrorIs(t, err, ErrCheckoutInProgress)

	_, err = f.svc.Settle(ctx, "TXN-1", types.SettlementSourceVerify)
	require.NoError(t, err)
	_, err = f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayoneer, "TXN-1")
	require.ErrorIs(t, err, ErrPaymentAlreadyCompleted)
}

func TestPayoneerCallbackAndVerify(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "TXN-1", types.PaymentMethodPayoneer)
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayoneer, "TXN-1")
	require.NoError(t, err)

	ok, err := f.svc.HandlePayoneerCallback(ctx, "TXN-1", intent.ProviderTransactionID, "cancelled")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.svc.HandlePayoneerCallback(ctx, "TXN-1", payoneer.MockPrefix+"forged", "success")
	require.NoError(t, err)
	require.False(t, ok)
	f.requireState(t, "TXN-1", types.PaymentStatusPending, types.OrderStatusPending)

	res, err := f.svc.VerifyPayoneer(ctx, "u1", "TXN-1")
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPaid, res.Status)

	ok, err = f.svc.HandlePayoneerCallback(ctx, "TXN-1", intent.ProviderTransactionID, "success")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(1), f.notifier.settled.Load())
}

func TestPayoneerCallback_Settles(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "TXN-1", types.PaymentMethodPayoneer)
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayoneer, "TXN-1")
	require.NoError(t, err)
	ok, err := f.svc.HandlePayoneerCallback(ctx, "TXN-1", intent.ProviderTransactionID, "success")
	require.NoError(t, err)
	require.True(t, ok)
	f.requireState(t, "TXN-1", types.PaymentStatusPaid, types.OrderStatusProcessing)

	_, err = f.svc.VerifyPayoneer(ctx, "intruder", "TXN-1")
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestCreateIntent_RepeatKeepsPayoneerSession(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "TXN-1", types.PaymentMethodPayoneer)
	ctx := context.Background()

	first, err := f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayoneer, "TXN-1")
	require.NoError(t, err)
	second, err := f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayoneer, "TXN-1")
	require.NoError(t, err)
	require.Equal(t, first.ProviderTransactionID, second.ProviderTransactionID)

	ok, err := f.svc.HandlePayoneerCallback(ctx, "TXN-1", first.ProviderTransactionID, "success")
	require.NoError(t, err)
	require.True(t, ok)
	f.requireState(t, "TXN-1", types.PaymentStatusPaid, types.OrderStatusProcessing)
}

func TestCreateIntent_DeniedPaymentNeedsNewCheckout(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "TXN-1", types.PaymentMethodPayPal)
	ctx := context.Background()

	_, err := f.repo.TransitionPayment(ctx, &repository.Transition{
		TransactionID: "TXN-1",
		From:          []types.PaymentStatus{types.PaymentStatusPending},
		To:            types.PaymentStatusFailed,
		OrderStatus:   types.OrderStatusPendingPayment,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateIntent(ctx, "u1", types.PaymentProviderPayPal, "TXN-1")
	require.ErrorIs(t, err, ErrPaymentNotPending)
	f.requireState(t, "TXN-1", types.PaymentStatusFailed, types.OrderStatusPendingPayment)
}
