package metrics

// HTTP middleware adapted from github.com/zsais/go-gin-prometheus: the
// push gateway and basic auth paths are gone, the url label is the gin
// route template and errors go to zap.

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const DefaultMetricsPath = "/metrics"

var httpLabels = []string{"code", "method", "url"}

// Prometheus holds the HTTP request collectors of one subsystem.
type Prometheus struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec
	resSz  *prometheus.SummaryVec

	MetricsPath string
	log         *zap.SugaredLogger
}

type NewPrometheusOptions struct {
	Subsystem   string
	MetricsPath string
	Registerer  prometheus.Registerer
	Logger      *zap.SugaredLogger
}

func NewPrometheus(opts NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		MetricsPath: opts.MetricsPath,
		log:         opts.Logger,
		reqCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: opts.Subsystem,
			Name:      "req_total",
			Help:      "How many HTTP requests processed, partitioned by status code, method and route.",
		}, httpLabels),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: opts.Subsystem,
			Name:      "req_dur_ms",
			Help:      "The HTTP request latencies in milliseconds.",
			Buckets:   HistogramBuckets,
		}, httpLabels),
		resSz: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Subsystem: opts.Subsystem,
			Name:      "resp_sz_bytes",
			Help:      "The HTTP response sizes in bytes.",
		}, httpLabels),
	}
	if p.MetricsPath == "" {
		p.MetricsPath = DefaultMetricsPath
	}
	if p.log == nil {
		p.log = zap.NewNop().Sugar()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{p.reqCnt, p.reqDur, p.resSz} {
		if err := reg.Register(c); err != nil {
			p.log.Errorw("metrics_register_failed", "subsystem", opts.Subsystem, "err", err)
		}
	}
	return p
}

// Use installs the middleware and serves the default registry on MetricsPath.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	h := promhttp.Handler()
	e.GET(p.MetricsPath, func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) })
}

func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := []string{strconv.Itoa(c.Writer.Status()), c.Request.Method, route}
		p.reqDur.WithLabelValues(labels...).Observe(MillisecondsSince(start))
		p.reqCnt.WithLabelValues(labels...).Inc()
		p.resSz.WithLabelValues(labels...).Observe(float64(c.Writer.Size()))
	}
}
