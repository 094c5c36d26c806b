package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatflowers/smmpay/internal/models"
	cfgpkg "github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/logctx"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type KafkaTopics struct {
	PaymentSettled string
	OrderCreated   string
	OrderDelay     string
}

// KafkaNotifier publishes JSON events keyed by transaction id so every event
// of one checkout lands on the same partition.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topics   KafkaTopics
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewKafkaProducer(cfg *cfgpkg.Config) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	p, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return p, nil
}

func NewKafkaNotifier(producer sarama.SyncProducer, topics KafkaTopics, log *zap.SugaredLogger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topics: topics, log: log, now: time.Now}
}

func (k *KafkaNotifier) PaymentSettled(ctx context.Context, p *models.Payment, orders []*models.Order) error {
	return k.publish(ctx, k.topics.PaymentSettled, p.TransactionID, newPaymentSettledEvent(p, orders, k.now()))
}

func (k *KafkaNotifier) OrderCreated(ctx context.Context, o *models.Order) error {
	return k.publish(ctx, k.topics.OrderCreated, orderKey(o), newOrderEvent(EventOrderCreated, o, k.now()))
}

func (k *KafkaNotifier) OrderDelayReported(ctx context.Context, o *models.Order) error {
	return k.publish(ctx, k.topics.OrderDelay, orderKey(o), newOrderEvent(EventOrderDelayReported, o, k.now()))
}

func (k *KafkaNotifier) publish(ctx context.Context, topic, key string, event any) error {
	if topic == "" {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to send %s event: %w", topic, err)
	}
	logctx.FromCtx(ctx, k.log).Infow("kafka_event_published", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return nil
}

func orderKey(o *models.Order) string {
	if o.TransactionID != nil && *o.TransactionID != "" {
		return *o.TransactionID
	}
	return o.ID
}
