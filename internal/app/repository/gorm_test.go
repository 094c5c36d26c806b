package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("postgres://u:p@localhost:5432/db?sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestFiltersBuildSQL(t *testing.T) {
	db := dryRunDB(t)
	filters := types.Filters{
		{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"paid"}},
		{Field: "amount", Operator: types.CommonFilterOperatorGt, Values: []any{1000}},
		{Field: "method", Operator: types.CommonFilterOperatorIn, Values: []any{"paypal", "payoneer"}},
	}
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []*models.Payment
		return tx.Model(&models.Payment{}).Where(clause.Where{Exprs: []clause.Expression{filters}}).Find(&rows)
	})
	require.Contains(t, sql, `"status" = 'paid'`)
	require.Contains(t, sql, `"amount" > 1000`)
	require.Contains(t, sql, `"method" IN ('paypal','payoneer')`)
}

func mockDB(t *testing.T) (*GormRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return NewGormRepository(db), mock
}

var (
	updatePaymentSQL = regexp.QuoteMeta(`UPDATE "payment" SET "paid_at"=$1,"status"=$2,"updated_at"=$3 WHERE transaction_id = $4 AND status IN ($5)`)
	selectPaymentSQL = regexp.QuoteMeta(`SELECT * FROM "payment" WHERE transaction_id = $1`)
	selectOrdersSQL  = regexp.QuoteMeta(`SELECT * FROM "orders" WHERE transaction_id = $1 ORDER BY created_at asc`)
	updateOrdersSQL  = regexp.QuoteMeta(`UPDATE "orders" SET "status"=$1,"updated_at"=$2 WHERE transaction_id = $3`)
)

func paymentRow(status types.PaymentStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "amount", "currency", "method", "status", "transaction_id"}).
		AddRow("p1", "u1", int64(1500), "USD", "paypal", string(status), "TXN-1")
}

func orderRows(status types.OrderStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "service_id", "status", "total_amount", "currency", "transaction_id"}).
		AddRow("o1", "u1", "ig", string(status), int64(500), "USD", "TXN-1").
		AddRow("o2", "u1", "tt", string(status), int64(1000), "USD", "TXN-1")
}

func settleTransition() *Transition {
	return &Transition{
		TransactionID: "TXN-1",
		From:          []types.PaymentStatus{types.PaymentStatusPending},
		To:            types.PaymentStatusPaid,
		OrderStatus:   types.OrderStatusProcessing,
		At:            time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestGormTransitionPayment_Applied(t *testing.T) {
	repo, mock := mockDB(t)
	at := settleTransition().At

	mock.ExpectBegin()
	mock.ExpectExec(updatePaymentSQL).
		WithArgs(at, types.PaymentStatusPaid, at, "TXN-1", types.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateOrdersSQL).
		WithArgs(types.OrderStatusProcessing, at, "TXN-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(selectPaymentSQL).WillReturnRows(paymentRow(types.PaymentStatusPaid))
	mock.ExpectQuery(selectOrdersSQL).WillReturnRows(orderRows(types.OrderStatusProcessing))
	mock.ExpectCommit()

	res, err := repo.TransitionPayment(context.Background(), settleTransition())
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, types.PaymentStatusPaid, res.Payment.Status)
	require.Len(t, res.Orders, 2)
	require.Equal(t, types.OrderStatusProcessing, res.Orders[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTransitionPayment_LoserTouchesNoOrders(t *testing.T) {
	repo, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(updatePaymentSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectPaymentSQL).WillReturnRows(paymentRow(types.PaymentStatusPaid))
	mock.ExpectQuery(selectOrdersSQL).WillReturnRows(orderRows(types.OrderStatusProcessing))
	mock.ExpectCommit()

	res, err := repo.TransitionPayment(context.Background(), settleTransition())
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, types.PaymentStatusPaid, res.Payment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTransitionPayment_RefundCancelsCommissions(t *testing.T) {
	repo, mock := mockDB(t)
	at := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(updatePaymentSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateOrdersSQL).
		WithArgs(types.OrderStatusCancelled, at, "TXN-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "commission_status"=$1,"updated_at"=$2 WHERE transaction_id = $3 AND commission_status = $4`)).
		WithArgs(types.CommissionStatusCancelled, sqlmock.AnyArg(), "TXN-1", types.CommissionStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectPaymentSQL).WillReturnRows(paymentRow(types.PaymentStatusRefunded))
	mock.ExpectQuery(selectOrdersSQL).WillReturnRows(orderRows(types.OrderStatusCancelled))
	mock.ExpectCommit()

	res, err := repo.TransitionPayment(context.Background(), &Transition{
		TransactionID:            "TXN-1",
		From:                     []types.PaymentStatus{types.PaymentStatusPaid, types.PaymentStatusCompleted},
		To:                       types.PaymentStatusRefunded,
		OrderStatus:              types.OrderStatusCancelled,
		CancelPendingCommissions: true,
		At:                       at,
	})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTransitionPayment_OrdersFailureRollsBack(t *testing.T) {
	repo, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(updatePaymentSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateOrdersSQL).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.TransitionPayment(context.Background(), settleTransition())
	require.ErrorContains(t, err, "failed to update orders")
	require.NoError(t, mock.ExpectationsWereMet())
}

func checkoutRows() (*models.Payment, []*models.Order) {
	p := &models.Payment{ID: "p1", UserID: "u1", Amount: 1500, Currency: "USD", Method: types.PaymentMethodPayPal, Status: types.PaymentStatusPending, TransactionID: "TXN-1"}
	orders := []*models.Order{
		{ID: "o1", UserID: "u1", ServiceID: "ig", Status: types.OrderStatusPending, TotalAmount: 500, Currency: "USD", TransactionID: lo.ToPtr("TXN-1")},
		{ID: "o2", UserID: "u1", ServiceID: "tt", Status: types.OrderStatusPending, TotalAmount: 1000, Currency: "USD", TransactionID: lo.ToPtr("TXN-1")},
	}
	return p, orders
}

func TestGormCreateCheckout(t *testing.T) {
	repo, mock := mockDB(t)
	p, orders := checkoutRows()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payment"`)).
		WillReturnRows(sqlmock.NewRows([]string{"paid_at"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"last_notify_at"}).AddRow(nil).AddRow(nil))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateCheckout(context.Background(), p, orders))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCreateCheckout_OrderInsertFailureRollsBack(t *testing.T) {
	repo, mock := mockDB(t)
	p, orders := checkoutRows()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payment"`)).
		WillReturnRows(sqlmock.NewRows([]string{"paid_at"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "orders"`)).
		WillReturnError(errors.New("value too long for type character varying(64)"))
	mock.ExpectRollback()

	err := repo.CreateCheckout(context.Background(), p, orders)
	require.ErrorContains(t, err, "failed to create checkout")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUpdateOrderStatus_CreditsOnce(t *testing.T) {
	orderSQL := regexp.QuoteMeta(`SELECT * FROM "orders" WHERE id = $1`)
	commissionSQL := regexp.QuoteMeta(`UPDATE "orders" SET "commission_status"=$1,"updated_at"=$2 WHERE id = $3 AND commission_status = $4`)
	creditSQL := regexp.QuoteMeta(`UPDATE "affiliate" SET "balance"=balance + $1 WHERE id = $2`)
	pendingOrder := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "user_id", "status", "transaction_id", "affiliate_id", "commission_amount", "commission_status"}).
			AddRow("o1", "u1", "processing", "TXN-1", "aff-1", int64(50), "pending")
	}
	approve := &OrderStatusUpdate{
		OrderID:         "o1",
		Status:          types.OrderStatusCompleted,
		Commission:      lo.ToPtr(types.CommissionStatusApproved),
		CreditAffiliate: true,
	}
	repo, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(orderSQL).WillReturnRows(pendingOrder())
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "status"=$1`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(commissionSQL).
		WithArgs(types.CommissionStatusApproved, sqlmock.AnyArg(), "o1", types.CommissionStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(creditSQL).WithArgs(int64(50), "aff-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.UpdateOrderStatus(context.Background(), approve)
	require.NoError(t, err)
	require.True(t, res.CommissionChanged)
	require.EqualValues(t, 50, res.Credited)
	require.Equal(t, types.CommissionStatusApproved, *res.Order.CommissionStatus)

	// a racing approval read the same pending row but lost the conditional update
	mock.ExpectBegin()
	mock.ExpectQuery(orderSQL).WillReturnRows(pendingOrder())
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "status"=$1`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(commissionSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res, err = repo.UpdateOrderStatus(context.Background(), approve)
	require.NoError(t, err)
	require.False(t, res.CommissionChanged)
	require.Zero(t, res.Credited)
	require.NoError(t, mock.ExpectationsWereMet())
}
