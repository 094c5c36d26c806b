package notify

import (
	"context"

	cfgpkg "github.com/fatflowers/smmpay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// New assembles the configured publishers. With none configured it returns Nop.
func New(lc fx.Lifecycle, cfg *cfgpkg.Config, log *zap.SugaredLogger, rdb *redis.Client) (Notifier, error) {
	var out Multi
	if cfg.Kafka.Enabled {
		producer, err := NewKafkaProducer(cfg)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			log.Infow("closing kafka producer")
			return producer.Close()
		}})
		out = append(out, NewKafkaNotifier(producer, KafkaTopics{
			PaymentSettled: cfg.Kafka.TopicPaymentSettled,
			OrderCreated:   cfg.Kafka.TopicOrderCreated,
			OrderDelay:     cfg.Kafka.TopicOrderDelay,
		}, log))
	}
	if rdb != nil {
		out = append(out, NewRedisNotifier(rdb))
	}
	if len(out) == 0 {
		log.Warnw("no notification publishers configured")
		return Nop{}, nil
	}
	return out, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
