package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatflowers/smmpay/docs"
	"github.com/fatflowers/smmpay/internal/app/api/handlers"
	mw "github.com/fatflowers/smmpay/internal/app/api/middleware"
	"github.com/fatflowers/smmpay/internal/app/service/checkout"
	"github.com/fatflowers/smmpay/internal/app/service/order"
	"github.com/fatflowers/smmpay/internal/app/service/settlement"
	"github.com/fatflowers/smmpay/internal/app/service/webhook"
	"github.com/fatflowers/smmpay/internal/platform/gateway/payoneer"
	cfgpkg "github.com/fatflowers/smmpay/pkg/config"
	metrics "github.com/fatflowers/smmpay/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeParams struct {
	fx.In

	Engine     *gin.Engine
	Logger     *zap.SugaredLogger
	Config     *cfgpkg.Config
	Checkout   *checkout.Service
	Settlement *settlement.Service
	Orders     *order.Service
	Webhook    *webhook.Handler
	Payoneer   *payoneer.Mock
}

func registerRoutes(p routeParams) {
	r, log, cfg := p.Engine, p.Logger, p.Config
	if cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus(metrics.NewPrometheusOptions{Subsystem: "http", Logger: log})
		r.Use(prom.HandlerFunc())
	}
	logging := []gin.HandlerFunc{mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log)}
	auth := mw.Auth(cfg.Auth.JWTSecret, log)

	// Public group: request logger + access log
	pub := r.Group("/", logging...)
	handlers.RegisterHealthRoutes(pub, cfg)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	handlers.RegisterWebhookRoutes(pub.Group("/webhooks"), p.Webhook, log)
	handlers.RegisterPaymentRedirectRoutes(pub.Group("/payments"), p.Settlement, cfg, p.Payoneer.Sandbox(), log)

	// Customer routes need a bearer token
	handlers.RegisterOrderRoutes(r.Group("/orders", append(logging, auth)...), p.Checkout, p.Orders, log)
	handlers.RegisterPaymentRoutes(r.Group("/payments", append(logging, auth)...), p.Settlement, log)

	// Admin APIs
	admin := r.Group("/api/v1/admin", append(logging, auth, mw.RequireAdmin())...)
	handlers.RegisterAdminRoutes(admin, p.Orders, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// runMetricsServer serves the default registry on MetricsAddr, apart from
// the public router.
func runMetricsServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(metrics.DefaultMetricsPath, promhttp.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("metrics started", "addr", cfg.MetricsAddr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("metrics server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
	fx.Invoke(runMetricsServer),
)
