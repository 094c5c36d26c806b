package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCheckout(t *testing.T, r *MemoryRepository, txID string, n int) {
	t.Helper()
	p := &models.Payment{ID: "pay-" + txID, UserID: "u1", Amount: 1500, Currency: "USD", Method: types.PaymentMethodPayPal, Status: types.PaymentStatusPending, TransactionID: txID}
	var orders []*models.Order
	for i := 0; i < n; i++ {
		orders = append(orders, &models.Order{
			ID: txID + "-o" + string(rune('a'+i)), UserID: "u1", ServiceID: "svc", Status: types.OrderStatusPending,
			TotalAmount: 500, Currency: "USD", TransactionID: lo.ToPtr(txID),
			AffiliateID: lo.ToPtr("aff-1"), CommissionAmount: lo.ToPtr(int64(50)), CommissionStatus: lo.ToPtr(types.CommissionStatusPending),
		})
	}
	require.NoError(t, r.CreateCheckout(context.Background(), p, orders))
}

func TestMemory_CreateCheckout(t *testing.T) {
	r := NewMemoryRepository()
	seedCheckout(t, r, "TXN-1", 2)

	orders, err := r.ListOrdersByTransactionID(context.Background(), "TXN-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)

	err = r.CreateCheckout(context.Background(), &models.Payment{TransactionID: "TXN-1"}, []*models.Order{{ID: "other"}})
	require.ErrorIs(t, err, ErrDuplicateTransaction)

	require.ErrorIs(t, r.CreateCheckout(context.Background(), &models.Payment{TransactionID: "TXN-2"}, nil), ErrEmptyCheckout)
	_, err = r.GetPaymentByTransactionID(context.Background(), "TXN-2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_TransitionPayment_OnlyOneWinner(t *testing.T) {
	r := NewMemoryRepository()
	seedCheckout(t, r, "TXN-1", 3)

	var applied int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.TransitionPayment(context.Background(), &Transition{
				TransactionID: "TXN-1",
				From:          []types.PaymentStatus{types.PaymentStatusPending},
				To:            types.PaymentStatusPaid,
				OrderStatus:   types.OrderStatusProcessing,
			})
			if !assert.NoError(t, err) {
				return
			}
			if res.Applied {
				atomic.AddInt32(&applied, 1)
			}
			assert.Equal(t, types.PaymentStatusPaid, res.Payment.Status)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), applied)

	p, err := r.GetPaymentByTransactionID(context.Background(), "TXN-1")
	require.NoError(t, err)
	require.NotNil(t, p.PaidAt)
	orders, _ := r.ListOrdersByTransactionID(context.Background(), "TXN-1")
	for _, o := range orders {
		require.Equal(t, types.OrderStatusProcessing, o.Status)
	}
}

func TestMemory_TransitionPayment_RefundCancelsCommission(t *testing.T) {
	r := NewMemoryRepository()
	seedCheckout(t, r, "TXN-1", 1)
	ctx := context.Background()

	// refund is not allowed from pending
	res, err := r.TransitionPayment(ctx, &Transition{TransactionID: "TXN-1", From: []types.PaymentStatus{types.PaymentStatusPaid}, To: types.PaymentStatusRefunded})
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, types.PaymentStatusPending, res.Payment.Status)

	_, err = r.TransitionPayment(ctx, &Transition{TransactionID: "TXN-1", From: []types.PaymentStatus{types.PaymentStatusPending}, To: types.PaymentStatusPaid, OrderStatus: types.OrderStatusProcessing})
	require.NoError(t, err)
	res, err = r.TransitionPayment(ctx, &Transition{
		TransactionID: "TXN-1", From: []types.PaymentStatus{types.PaymentStatusPaid, types.PaymentStatusCompleted},
		To: types.PaymentStatusRefunded, OrderStatus: types.OrderStatusCancelled, CancelPendingCommissions: true,
	})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, types.OrderStatusCancelled, res.Orders[0].Status)
	require.Equal(t, types.CommissionStatusCancelled, *res.Orders[0].CommissionStatus)

	_, err = r.TransitionPayment(ctx, &Transition{TransactionID: "missing", From: []types.PaymentStatus{types.PaymentStatusPending}, To: types.PaymentStatusPaid})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UpdateOrderStatus_CreditsOnce(t *testing.T) {
	r := NewMemoryRepository()
	r.PutAffiliate(&models.Affiliate{ID: "aff-1", UserID: "aff-user", CommissionRateBps: 1000}, "u1")
	seedCheckout(t, r, "TXN-1", 1)
	ctx := context.Background()
	approve := lo.ToPtr(types.CommissionStatusApproved)

	res, err := r.UpdateOrderStatus(ctx, &OrderStatusUpdate{OrderID: "TXN-1-oa", Status: types.OrderStatusCompleted, Commission: approve, CreditAffiliate: true})
	require.NoError(t, err)
	require.True(t, res.CommissionChanged)
	require.Equal(t, int64(50), res.Credited)

	res, err = r.UpdateOrderStatus(ctx, &OrderStatusUpdate{OrderID: "TXN-1-oa", Status: types.OrderStatusCompleted, Commission: approve, CreditAffiliate: true})
	require.NoError(t, err)
	require.False(t, res.CommissionChanged)
	require.Zero(t, res.Credited)

	// approved never moves back
	res, err = r.UpdateOrderStatus(ctx, &OrderStatusUpdate{OrderID: "TXN-1-oa", Status: types.OrderStatusCancelled, Commission: lo.ToPtr(types.CommissionStatusCancelled)})
	require.NoError(t, err)
	require.Equal(t, types.CommissionStatusApproved, *res.Order.CommissionStatus)

	a, err := r.GetAffiliate(ctx, "aff-1")
	require.NoError(t, err)
	require.Equal(t, int64(50), a.Balance)

	got, err := r.GetAffiliateForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "aff-1", got.ID)
}

func TestMemory_TouchOrderNotify(t *testing.T) {
	r := NewMemoryRepository()
	seedCheckout(t, r, "TXN-1", 1)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	o, err := r.TouchOrderNotify(ctx, "TXN-1-oa", "u1", 24*time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, now, *o.LastNotifyAt)

	_, err = r.TouchOrderNotify(ctx, "TXN-1-oa", "u1", 24*time.Hour, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrNotifyCooldown)

	_, err = r.TouchOrderNotify(ctx, "TXN-1-oa", "u1", 24*time.Hour, now.Add(25*time.Hour))
	require.NoError(t, err)

	_, err = r.TouchOrderNotify(ctx, "TXN-1-oa", "someone-else", 24*time.Hour, now.Add(50*time.Hour))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SetPaymentProviderReference(t *testing.T) {
	r := NewMemoryRepository()
	seedCheckout(t, r, "TXN-1", 1)
	ctx := context.Background()

	require.NoError(t, r.SetPaymentProviderReference(ctx, "TXN-1", "PP-ORDER-1"))
	p, _ := r.GetPaymentByTransactionID(ctx, "TXN-1")
	require.Equal(t, "PP-ORDER-1", *p.ProviderReference)

	_, err := r.TransitionPayment(ctx, &Transition{TransactionID: "TXN-1", From: []types.PaymentStatus{types.PaymentStatusPending}, To: types.PaymentStatusFailed})
	require.NoError(t, err)
	require.ErrorIs(t, r.SetPaymentProviderReference(ctx, "TXN-1", "PP-ORDER-2"), ErrPaymentNotPending)
	require.ErrorIs(t, r.SetPaymentProviderReference(ctx, "TXN-X", "PP"), ErrNotFound)
}

func TestMemory_ScanOrders(t *testing.T) {
	r := NewMemoryRepository()
	seedCheckout(t, r, "TXN-1", 3)
	seedCheckout(t, r, "TXN-2", 2)
	ctx := context.Background()

	res, err := r.ScanOrders(ctx, &ScanRequest{
		Filters: types.Filters{{Field: "transaction_id", Operator: types.CommonFilterOperatorEq, Values: []any{"TXN-1"}}},
		Size:    2,
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Total)
	require.Len(t, res.Items, 2)

	res, err = r.ScanOrders(ctx, &ScanRequest{From: 10})
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Total)
	require.Empty(t, res.Items)

	pays, err := r.ScanPayments(ctx, &ScanRequest{
		Filters: types.Filters{{Field: "unknown_column", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
	})
	require.NoError(t, err)
	require.Zero(t, pays.Total)
}
