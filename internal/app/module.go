package app

import (
	"time"

	"github.com/fatflowers/smmpay/internal/app/api/server"
	"github.com/fatflowers/smmpay/internal/app/repository"
	"github.com/fatflowers/smmpay/internal/app/service/checkout"
	"github.com/fatflowers/smmpay/internal/app/service/event_log"
	"github.com/fatflowers/smmpay/internal/app/service/notify"
	"github.com/fatflowers/smmpay/internal/app/service/order"
	"github.com/fatflowers/smmpay/internal/app/service/settlement"
	"github.com/fatflowers/smmpay/internal/app/service/webhook"
	"github.com/fatflowers/smmpay/internal/platform/cache"
	"github.com/fatflowers/smmpay/internal/platform/db"
	"github.com/fatflowers/smmpay/internal/platform/gateway"
	"github.com/fatflowers/smmpay/internal/platform/gateway/payoneer"
	"github.com/fatflowers/smmpay/internal/platform/gateway/paypal"
	"github.com/fatflowers/smmpay/pkg/config"
	"github.com/fatflowers/smmpay/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	cache.Module,
	repository.Module,
	gateway.Module,
	paypal.Module,
	payoneer.Module,
	event_log.Module,
	notify.Module,
	checkout.Module,
	settlement.Module,
	webhook.Module,
	order.Module,
	server.Module,
)
