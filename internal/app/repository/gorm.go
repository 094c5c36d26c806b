package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetService(ctx context.Context, id string) (*models.Service, error) {
	var s models.Service
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error; err != nil {
		return nil, wrapNotFound(err, "service")
	}
	return &s, nil
}

func (r *GormRepository) GetAffiliateForUser(ctx context.Context, userID string) (*models.Affiliate, error) {
	var ref models.Referral
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&ref).Error; err != nil {
		return nil, wrapNotFound(err, "referral")
	}
	return r.GetAffiliate(ctx, ref.AffiliateID)
}

func (r *GormRepository) GetAffiliate(ctx context.Context, id string) (*models.Affiliate, error) {
	var a models.Affiliate
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error; err != nil {
		return nil, wrapNotFound(err, "affiliate")
	}
	return &a, nil
}

func (r *GormRepository) CreateCheckout(ctx context.Context, payment *models.Payment, orders []*models.Order) error {
	if payment == nil || len(orders) == 0 {
		return ErrEmptyCheckout
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		return tx.Create(&orders).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, payment.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to create checkout: %w", err)
	}
	return nil
}

func (r *GormRepository) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return getPayment(r.db.WithContext(ctx), transactionID)
}

func (r *GormRepository) SetPaymentProviderReference(ctx context.Context, transactionID, reference string) error {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("transaction_id = ? AND status = ?", transactionID, types.PaymentStatusPending).
		Updates(map[string]any{"provider_reference": reference, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to set provider reference: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.GetPaymentByTransactionID(ctx, transactionID); err != nil {
		return err
	}
	return ErrPaymentNotPending
}

// TransitionPayment relies on UPDATE ... WHERE status IN (from) so that two
// racing settlements cannot both see RowsAffected == 1.
func (r *GormRepository) TransitionPayment(ctx context.Context, t *Transition) (*TransitionResult, error) {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	out := &TransitionResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": t.To, "updated_at": at}
		if t.To.IsSettled() {
			updates["paid_at"] = at
		}
		res := tx.Model(&models.Payment{}).
			Where("transaction_id = ? AND status IN ?", t.TransactionID, t.From).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update payment: %w", res.Error)
		}
		out.Applied = res.RowsAffected == 1

		if out.Applied {
			if t.OrderStatus != "" {
				if err := tx.Model(&models.Order{}).
					Where("transaction_id = ?", t.TransactionID).
					Updates(map[string]any{"status": t.OrderStatus, "updated_at": at}).Error; err != nil {
					return fmt.Errorf("failed to update orders: %w", err)
				}
			}
			if t.CancelPendingCommissions {
				if err := tx.Model(&models.Order{}).
					Where("transaction_id = ? AND commission_status = ?", t.TransactionID, types.CommissionStatusPending).
					Update("commission_status", types.CommissionStatusCancelled).Error; err != nil {
					return fmt.Errorf("failed to cancel commissions: %w", err)
				}
			}
		}

		p, err := getPayment(tx, t.TransactionID)
		if err != nil {
			return err
		}
		out.Payment = p
		return tx.Where("transaction_id = ?", t.TransactionID).Order("created_at asc").Find(&out.Orders).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&o).Error; err != nil {
		return nil, wrapNotFound(err, "order")
	}
	return &o, nil
}

func (r *GormRepository) ListOrdersByTransactionID(ctx context.Context, transactionID string) ([]*models.Order, error) {
	var rows []*models.Order
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return rows, nil
}

func (r *GormRepository) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	var rows []*models.Order
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return rows, nil
}

func (r *GormRepository) UpdateOrderStatus(ctx context.Context, u *OrderStatusUpdate) (*OrderStatusResult, error) {
	out := &OrderStatusResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", u.OrderID).Take(&o).Error; err != nil {
			return wrapNotFound(err, "order")
		}
		if err := tx.Model(&o).Updates(map[string]any{"status": u.Status, "updated_at": time.Now()}).Error; err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if u.Commission != nil && o.CommissionStatus != nil {
			res := tx.Model(&models.Order{}).
				Where("id = ? AND commission_status = ?", o.ID, types.CommissionStatusPending).
				Update("commission_status", *u.Commission)
			if res.Error != nil {
				return fmt.Errorf("failed to update commission: %w", res.Error)
			}
			out.CommissionChanged = res.RowsAffected == 1
			if out.CommissionChanged {
				o.CommissionStatus = lo.ToPtr(*u.Commission)
			}
		}
		if out.CommissionChanged && u.CreditAffiliate && *u.Commission == types.CommissionStatusApproved &&
			o.AffiliateID != nil && o.CommissionAmount != nil && *o.CommissionAmount > 0 {
			if err := tx.Model(&models.Affiliate{}).Where("id = ?", *o.AffiliateID).
				UpdateColumn("balance", gorm.Expr("balance + ?", *o.CommissionAmount)).Error; err != nil {
				return fmt.Errorf("failed to credit affiliate: %w", err)
			}
			out.Credited = *o.CommissionAmount
		}
		o.Status = u.Status
		out.Order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepository) TouchOrderNotify(ctx context.Context, orderID, userID string, cooldown time.Duration, now time.Time) (*models.Order, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND user_id = ? AND (last_notify_at IS NULL OR last_notify_at <= ?)", orderID, userID, now.Add(-cooldown)).
		Updates(map[string]any{"last_notify_at": now, "updated_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to touch order: %w", res.Error)
	}
	o, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	if res.RowsAffected == 0 {
		return o, ErrNotifyCooldown
	}
	return o, nil
}

func (r *GormRepository) ScanPayments(ctx context.Context, req *ScanRequest) (*ScanResult[*models.Payment], error) {
	return scan[*models.Payment](ctx, r.db, &models.Payment{}, req)
}

func (r *GormRepository) ScanOrders(ctx context.Context, req *ScanRequest) (*ScanResult[*models.Order], error) {
	return scan[*models.Order](ctx, r.db, &models.Order{}, req)
}

func scan[T any](ctx context.Context, db *gorm.DB, model any, req *ScanRequest) (*ScanResult[T], error) {
	req = normalizeScan(req)
	tx := db.WithContext(ctx).Model(model)
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{req.Filters}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	return &ScanResult[T]{Items: rows, Total: total}, nil
}

func getPayment(db *gorm.DB, transactionID string) (*models.Payment, error) {
	var p models.Payment
	if err := db.Where("transaction_id = ?", transactionID).Take(&p).Error; err != nil {
		return nil, wrapNotFound(err, "payment")
	}
	return &p, nil
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
