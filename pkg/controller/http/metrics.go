package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics served at /metrics. Each server owns
// its own registry so tests never trip duplicate registration.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	ActiveStreams    prometheus.Gauge
	ChunksStreamed   prometheus.Counter
	RateLimitHits    prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blendstream_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blendstream_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blendstream_active_streams",
				Help: "Number of streaming jobs currently running",
			},
		),
		ChunksStreamed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blendstream_chunks_streamed_total",
				Help: "Total number of chunk results delivered to clients",
			},
		),
		RateLimitHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blendstream_rate_limit_hits_total",
				Help: "Total number of requests rejected by rate limiting",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.RequestCounter,
		m.LatencyHistogram,
		m.ActiveStreams,
		m.ChunksStreamed,
		m.RateLimitHits,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
