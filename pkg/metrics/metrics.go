package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HistogramBuckets are latency buckets in milliseconds.
var HistogramBuckets = []float64{
	// fast
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	// gateway round trips
	750, 1000, 1250, 1500, 1750, 2000,
	// slow
	2500, 3000, 4000, 5000, 7500, 10000, 15000,
	// gateway timeouts land here
	20000, 30000, 45000, 60000,
}

// Settlement is counted once per settlement attempt, labelled by the entry
// path and the outcome (applied, already_settled, rejected, error).
var Settlement = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: "payment",
		Name:      "settlement_total",
		Help:      "Settlement attempts partitioned by source and outcome.",
	},
	[]string{"source", "outcome"},
)

// GatewayLatency observes outbound payment gateway calls in milliseconds.
var GatewayLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: "payment",
		Name:      "gateway_call_ms",
		Help:      "Payment gateway call latency in milliseconds.",
		Buckets:   HistogramBuckets,
	},
	[]string{"provider", "call", "ok"},
)

// WebhookEvents counts inbound provider events by type and final status.
var WebhookEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: "payment",
		Name:      "webhook_events_total",
		Help:      "Inbound webhook events partitioned by provider, event type and status.",
	},
	[]string{"provider", "event_type", "status"},
)

func init() {
	prometheus.MustRegister(Settlement, GatewayLatency, WebhookEvents)
}

// MillisecondsSince returns the elapsed time since start in milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
