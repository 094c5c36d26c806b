package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatflowers/smmpay/internal/models"

	"github.com/redis/go-redis/v9"
)

// AdminOrdersChannel receives delay reports for the operator dashboard.
const AdminOrdersChannel = "admin:orders"

// RedisNotifier publishes realtime events that socket gateways relay to
// the customer's browser.
type RedisNotifier struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewRedisNotifier(rdb redis.Cmdable) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, now: time.Now}
}

func UserChannel(userID string) string { return "user:" + userID + ":orders" }

func (r *RedisNotifier) PaymentSettled(ctx context.Context, p *models.Payment, orders []*models.Order) error {
	return r.publish(ctx, UserChannel(p.UserID), newPaymentSettledEvent(p, orders, r.now()))
}

func (r *RedisNotifier) OrderCreated(ctx context.Context, o *models.Order) error {
	return r.publish(ctx, UserChannel(o.UserID), newOrderEvent(EventOrderCreated, o, r.now()))
}

func (r *RedisNotifier) OrderDelayReported(ctx context.Context, o *models.Order) error {
	return r.publish(ctx, AdminOrdersChannel, newOrderEvent(EventOrderDelayReported, o, r.now()))
}

func (r *RedisNotifier) publish(ctx context.Context, channel string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime event: %w", err)
	}
	if err := r.rdb.Publish(ctx, channel, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}
