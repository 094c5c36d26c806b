package event_log

import (
	"context"
	"sync"

	"github.com/fatflowers/smmpay/internal/models"
	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/tool"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recorder persists gateway event audit rows.
type Recorder interface {
	Save(ctx context.Context, log *models.PaymentEventLog)
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

// New accepts a nil db, in which case events are only written to the log.
func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a payment event log. Nil input is ignored.
// The write outlives the request, so request cancellation is dropped.
func (s *Service) Save(ctx context.Context, ev *models.PaymentEventLog) {
	if ev == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = tool.GenerateUUIDV7()
	}
	row := *ev
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		lg := logctx.FromCtx(ctx, s.log)
		if s.db == nil {
			lg.Infow("payment_event", "provider", row.Provider, "event_type", row.EventType, "transaction_id", row.TransactionID, "status", row.Status)
			return
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			lg.Errorf("failed to save payment event log: %v", err)
		}
	}()
}

// Wait blocks until in-flight writes finish.
func (s *Service) Wait() { s.wg.Wait() }

func registerFlush(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		s.Wait()
		return nil
	}})
}

var Module = fx.Options(
	fx.Provide(New, func(s *Service) Recorder { return s }),
	fx.Invoke(registerFlush),
)
