// Package telemetry provides observability primitives for the KeyHub gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	RelayDuration    *prometheus.HistogramVec
	RelayErrors      *prometheus.CounterVec
	KeyChecksTotal   *prometheus.CounterVec
	RateLimitRejects prometheus.Counter
	LogQueueLength   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "keyhub",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "keyhub",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		RelayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "keyhub",
			Name:                            "relay_duration_seconds",
			Help:                            "Upstream relay duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"channel_type", "model"}),

		RelayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "relay_errors_total",
			Help:      "Total upstream relay errors.",
		}, []string{"channel_type", "status"}),

		KeyChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "key_checks_total",
			Help:      "Total key health probes by resulting status.",
		}, []string{"status"}),

		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}),

		LogQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "keyhub",
			Name:      "log_queue_length",
			Help:      "Current number of queued request logs.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.RelayDuration,
		m.RelayErrors,
		m.KeyChecksTotal,
		m.RateLimitRejects,
		m.LogQueueLength,
	)

	return m
}
