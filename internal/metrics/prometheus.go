package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes gateway metrics to an external scraper.
type Metrics interface {
	ObserveRequest(endpoint, code string, status int, latency time.Duration)
	IncRateLimited(tier string)
	IncInFlight()
	DecInFlight()
	HTTPHandler() http.Handler
}

// PrometheusMetrics exports request counters and latencies. It owns its
// registry so several instances can coexist in tests.
type PrometheusMetrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	rateLimited *prometheus.CounterVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	m := &PrometheusMetrics{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "requests_total",
				Help:      "Processed gateway requests by endpoint, error code and HTTP status.",
			},
			[]string{"endpoint", "code", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "request_duration_seconds",
				Help:      "End-to-end gateway processing time.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "requests_in_flight",
				Help:      "Requests currently being processed.",
			},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter, by tier.",
			},
			[]string{"tier"},
		),
	}

	reg.MustRegister(
		m.requests,
		m.latency,
		m.inFlight,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PrometheusMetrics) ObserveRequest(endpoint, code string, status int, latency time.Duration) {
	if code == "" {
		code = "OK"
	}
	m.requests.WithLabelValues(endpoint, code, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

func (m *PrometheusMetrics) IncRateLimited(tier string) {
	m.rateLimited.WithLabelValues(tier).Inc()
}

func (m *PrometheusMetrics) IncInFlight() { m.inFlight.Inc() }

func (m *PrometheusMetrics) DecInFlight() { m.inFlight.Dec() }

// Registry exposes the underlying registry, mainly for tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) ObserveRequest(endpoint, code string, status int, latency time.Duration) {}

func (m *NoopMetrics) IncRateLimited(tier string) {}

func (m *NoopMetrics) IncInFlight() {}

func (m *NoopMetrics) DecInFlight() {}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
