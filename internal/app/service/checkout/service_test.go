package checkout

import (
	"context"
	"testing"

	"github.com/fatflowers/smmpay/internal/app/repository"
	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	repo.PutService(&models.Service{ID: "ig-followers", Name: "Instagram Followers", Price: 500, MinQuantity: 100, MaxQuantity: 10000, IsActive: true})
	repo.PutService(&models.Service{ID: "tt-likes", Name: "TikTok Likes", Price: 300, IsActive: false})
	cfg := &config.Config{}
	cfg.Payment.Currency = "USD"
	return New(repo, cfg, zap.NewNop().Sugar()), repo
}

func TestCheckout_PricesFromCatalog(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, &Request{
		UserID:        "u1",
		PaymentMethod: types.PaymentMethodPayPal,
		Items: []Item{
			{ServiceID: "ig-followers", Quantity: 1000, Link: "https://instagram.com/acme", Price: "0.01"},
			{ServiceID: "ig-followers", Quantity: 2000, Link: "https://instagram.com/acme"},
		},
	})
	require.NoError(t, err)
	require.Regexp(t, `^TXN-\d+-[0-9A-F]{8}$`, res.TransactionID)
	require.Len(t, res.Orders, 2)
	require.Equal(t, int64(500), res.Orders[0].TotalAmount)
	require.Equal(t, int64(1000), res.Orders[1].TotalAmount)
	require.Equal(t, int64(1), res.Orders[0].GetDetails().ClientPrice)
	require.Equal(t, int64(500), res.Orders[0].GetDetails().CatalogPrice)

	p, err := repo.GetPaymentByTransactionID(ctx, res.TransactionID)
	require.NoError(t, err)
	require.Equal(t, int64(1500), p.Amount)
	require.Equal(t, types.PaymentStatusPending, p.Status)
	require.Equal(t, types.PaymentMethodPayPal, p.Method)
	require.Nil(t, p.OrderID)

	orders, err := repo.ListOrdersByTransactionID(ctx, res.TransactionID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		require.Equal(t, types.OrderStatusPending, o.Status)
		require.Nil(t, o.CommissionStatus)
	}
}

func TestCheckout_SingleLineSetsOrderID(t *testing.T) {
	svc, repo := newTestService(t)
	res, err := svc.Checkout(context.Background(), &Request{
		UserID:        "u1",
		PaymentMethod: types.PaymentMethodPayoneer,
		Items:         []Item{{ServiceID: "ig-followers", Quantity: 150, Link: "acme"}},
	})
	require.NoError(t, err)
	p, err := repo.GetPaymentByTransactionID(context.Background(), res.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, p.OrderID)
	require.Equal(t, res.Orders[0].ID, *p.OrderID)
	// 500 * 150 / 1000 = 75
	require.Equal(t, int64(75), p.Amount)
}

func TestCheckout_InvalidLineAbortsCart(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want error
	}{
		{"missing service", Item{ServiceID: "nope", Quantity: 1000, Link: "x"}, ErrServiceNotFound},
		{"inactive service", Item{ServiceID: "tt-likes", Quantity: 1000, Link: "x"}, ErrServiceUnavailable},
		{"below min", Item{ServiceID: "ig-followers", Quantity: 10, Link: "x"}, ErrInvalidQuantity},
		{"above max", Item{ServiceID: "ig-followers", Quantity: 20000, Link: "x"}, ErrInvalidQuantity},
		{"blank link", Item{ServiceID: "ig-followers", Quantity: 1000, Link: "  "}, ErrInvalidLink},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newTestService(t)
			_, err := svc.Checkout(context.Background(), &Request{
				UserID:        "u1",
				PaymentMethod: types.PaymentMethodPayPal,
				Items: []Item{
					{ServiceID: "ig-followers", Quantity: 1000, Link: "ok"},
					tc.item,
				},
			})
			require.ErrorIs(t, err, tc.want)
			var lineErr *LineError
			require.ErrorAs(t, err, &lineErr)
			require.Equal(t, 1, lineErr.Index)

			orders, err := repo.ListOrdersByUser(context.Background(), "u1")
			require.NoError(t, err)
			require.Empty(t, orders)
		})
	}
}

func TestCheckout_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Checkout(context.Background(), &Request{UserID: "u1", PaymentMethod: types.PaymentMethodPayPal})
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.Checkout(context.Background(), &Request{
		UserID:        "u1",
		PaymentMethod: "bitcoin",
		Items:         []Item{{ServiceID: "ig-followers", Quantity: 1000, Link: "x"}},
	})
	require.ErrorIs(t, err, ErrUnsupportedPaymentMethod)
}

func TestCheckout_AffiliateCommission(t *testing.T) {
	svc, repo := newTestService(t)
	repo.PutAffiliate(&models.Affiliate{ID: "aff-1", UserID: "partner", CommissionRateBps: 1000}, "u1", "partner")

	res, err := svc.Checkout(context.Background(), &Request{
		UserID:        "u1",
		PaymentMethod: types.PaymentMethodPayPal,
		Items:         []Item{{ServiceID: "ig-followers", Quantity: 2000, Link: "x"}},
	})
	require.NoError(t, err)
	o := res.Orders[0]
	require.Equal(t, "aff-1", *o.AffiliateID)
	require.Equal(t, int64(100), *o.CommissionAmount)
	require.True(t, o.HasPendingCommission())

	res, err = svc.Checkout(context.Background(), &Request{
		UserID:        "partner",
		PaymentMethod: types.PaymentMethodPayPal,
		Items:         []Item{{ServiceID: "ig-followers", Quantity: 2000, Link: "x"}},
	})
	require.NoError(t, err)
	require.Nil(t, res.Orders[0].AffiliateID)
}
