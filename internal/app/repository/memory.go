package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/types"

	"github.com/samber/lo"
)

// MemoryRepository keeps rows in maps behind one mutex. Rows are copied on
// the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu         sync.Mutex
	services   map[string]models.Service
	affiliates map[string]models.Affiliate
	referrals  map[string]string
	payments   map[string]models.Payment
	orders     map[string]models.Order
	now        func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		services:   map[string]models.Service{},
		affiliates: map[string]models.Affiliate{},
		referrals:  map[string]string{},
		payments:   map[string]models.Payment{},
		orders:     map[string]models.Order{},
		now:        time.Now,
	}
}

func (r *MemoryRepository) PutService(s *models.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.ID] = *s
}

func (r *MemoryRepository) PutAffiliate(a *models.Affiliate, referredUserIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.affiliates[a.ID] = *a
	for _, uid := range referredUserIDs {
		r.referrals[uid] = a.ID
	}
}

func (r *MemoryRepository) GetService(_ context.Context, id string) (*models.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: service", ErrNotFound)
	}
	return &s, nil
}

func (r *MemoryRepository) GetAffiliateForUser(ctx context.Context, userID string) (*models.Affiliate, error) {
	r.mu.Lock()
	id, ok := r.referrals[userID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: referral", ErrNotFound)
	}
	return r.GetAffiliate(ctx, id)
}

func (r *MemoryRepository) GetAffiliate(_ context.Context, id string) (*models.Affiliate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.affiliates[id]
	if !ok {
		return nil, fmt.Errorf("%w: affiliate", ErrNotFound)
	}
	return &a, nil
}

func (r *MemoryRepository) CreateCheckout(_ context.Context, payment *models.Payment, orders []*models.Order) error {
	if payment == nil || len(orders) == 0 {
		return ErrEmptyCheckout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[payment.TransactionID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, payment.TransactionID)
	}
	now := r.now()
	for i, o := range orders {
		if _, exists := r.orders[o.ID]; exists {
			return fmt.Errorf("duplicate order id %s", o.ID)
		}
		stampCreated(&o.CreatedAt, &o.UpdatedAt, now.Add(time.Duration(i)))
	}
	stampCreated(&payment.CreatedAt, &payment.UpdatedAt, now)

	r.payments[payment.TransactionID] = *payment
	for _, o := range orders {
		r.orders[o.ID] = *o
	}
	return nil
}

func (r *MemoryRepository) GetPaymentByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: payment", ErrNotFound)
	}
	return &p, nil
}

func (r *MemoryRepository) SetPaymentProviderReference(_ context.Context, transactionID, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionID]
	if !ok {
		return fmt.Errorf("%w: payment", ErrNotFound)
	}
	if p.Status != types.PaymentStatusPending {
		return ErrPaymentNotPending
	}
	p.ProviderReference = lo.ToPtr(reference)
	p.UpdatedAt = r.now()
	r.payments[transactionID] = p
	return nil
}

func (r *MemoryRepository) TransitionPayment(_ context.Context, t *Transition) (*TransitionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[t.TransactionID]
	if !ok {
		return nil, fmt.Errorf("%w: payment", ErrNotFound)
	}
	at := t.At
	if at.IsZero() {
		at = r.now()
	}
	out := &TransitionResult{}
	if lo.Contains(t.From, p.Status) {
		out.Applied = true
		p.Status = t.To
		p.UpdatedAt = at
		if t.To.IsSettled() {
			p.PaidAt = lo.ToPtr(at)
		}
		r.payments[t.TransactionID] = p
		for id, o := range r.orders {
			if o.TransactionID == nil || *o.TransactionID != t.TransactionID {
				continue
			}
			if t.OrderStatus != "" {
				o.Status = t.OrderStatus
				o.UpdatedAt = at
			}
			if t.CancelPendingCommissions && o.HasPendingCommission() {
				o.CommissionStatus = lo.ToPtr(types.CommissionStatusCancelled)
			}
			r.orders[id] = o
		}
	}
	out.Payment = &p
	out.Orders = r.ordersByTransactionLocked(t.TransactionID)
	return out, nil
}

func (r *MemoryRepository) GetOrder(_ context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	return &o, nil
}

func (r *MemoryRepository) ListOrdersByTransactionID(_ context.Context, transactionID string) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ordersByTransactionLocked(transactionID), nil
}

func (r *MemoryRepository) ListOrdersByUser(_ context.Context, userID string) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, lo.ToPtr(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateOrderStatus(_ context.Context, u *OrderStatusUpdate) (*OrderStatusResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[u.OrderID]
	if !ok {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	out := &OrderStatusResult{}
	o.Status = u.Status
	o.UpdatedAt = r.now()
	if u.Commission != nil && o.HasPendingCommission() {
		o.CommissionStatus = lo.ToPtr(*u.Commission)
		out.CommissionChanged = true
	}
	if out.CommissionChanged && u.CreditAffiliate && *u.Commission == types.CommissionStatusApproved &&
		o.AffiliateID != nil && o.CommissionAmount != nil && *o.CommissionAmount > 0 {
		a, ok := r.affiliates[*o.AffiliateID]
		if ok {
			a.Balance += *o.CommissionAmount
			r.affiliates[a.ID] = a
			out.Credited = *o.CommissionAmount
		}
	}
	r.orders[o.ID] = o
	out.Order = &o
	return out, nil
}

func (r *MemoryRepository) TouchOrderNotify(_ context.Context, orderID, userID string, cooldown time.Duration, now time.Time) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	if o.LastNotifyAt != nil && o.LastNotifyAt.After(now.Add(-cooldown)) {
		return &o, ErrNotifyCooldown
	}
	o.LastNotifyAt = lo.ToPtr(now)
	o.UpdatedAt = now
	r.orders[orderID] = o
	return &o, nil
}

func (r *MemoryRepository) ScanPayments(_ context.Context, req *ScanRequest) (*ScanResult[*models.Payment], error) {
	r.mu.Lock()
	rows := lo.MapToSlice(r.payments, func(_ string, p models.Payment) *models.Payment { return lo.ToPtr(p) })
	r.mu.Unlock()
	return scanMemory(rows, paymentField, req), nil
}

func (r *MemoryRepository) ScanOrders(_ context.Context, req *ScanRequest) (*ScanResult[*models.Order], error) {
	r.mu.Lock()
	rows := lo.MapToSlice(r.orders, func(_ string, o models.Order) *models.Order { return lo.ToPtr(o) })
	r.mu.Unlock()
	return scanMemory(rows, orderField, req), nil
}

func (r *MemoryRepository) ordersByTransactionLocked(transactionID string) []*models.Order {
	var out []*models.Order
	for _, o := range r.orders {
		if o.TransactionID != nil && *o.TransactionID == transactionID {
			out = append(out, lo.ToPtr(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func scanMemory[T any](rows []T, field func(T, string) (any, bool), req *ScanRequest) *ScanResult[T] {
	req = normalizeScan(req)
	matched := lo.Filter(rows, func(row T, _ int) bool {
		for _, f := range req.Filters {
			v, ok := field(row, f.Field)
			if !ok || !f.Match(v) {
				return false
			}
		}
		return true
	})
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, _ := field(matched[i], sortBy)
		b, _ := field(matched[j], sortBy)
		if req.SortOrder == "asc" {
			return types.Compare(a, b) < 0
		}
		return types.Compare(a, b) > 0
	})
	total := int64(len(matched))
	if req.From >= len(matched) {
		return &ScanResult[T]{Items: []T{}, Total: total}
	}
	end := min(req.From+req.Size, len(matched))
	return &ScanResult[T]{Items: matched[req.From:end], Total: total}
}

func paymentField(p *models.Payment, name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "user_id":
		return p.UserID, true
	case "amount":
		return p.Amount, true
	case "currency":
		return p.Currency, true
	case "method":
		return string(p.Method), true
	case "status":
		return string(p.Status), true
	case "transaction_id":
		return p.TransactionID, true
	case "created_at":
		return p.CreatedAt, true
	case "updated_at":
		return p.UpdatedAt, true
	}
	return nil, false
}

func orderField(o *models.Order, name string) (any, bool) {
	switch name {
	case "id":
		return o.ID, true
	case "user_id":
		return o.UserID, true
	case "service_id":
		return o.ServiceID, true
	case "status":
		return string(o.Status), true
	case "total_amount":
		return o.TotalAmount, true
	case "currency":
		return o.Currency, true
	case "transaction_id":
		return lo.FromPtr(o.TransactionID), true
	case "affiliate_id":
		return lo.FromPtr(o.AffiliateID), true
	case "commission_status":
		return string(lo.FromPtr(o.CommissionStatus)), true
	case "created_at":
		return o.CreatedAt, true
	case "updated_at":
		return o.UpdatedAt, true
	}
	return nil, false
}

func stampCreated(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}
