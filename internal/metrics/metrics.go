// Package metrics exposes Prometheus collectors for receipt delivery and the
// HTTP surface. Each Metrics owns its registry so tests can build as many as
// they need without colliding on the global default registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes recorded on receipts_deliveries_total.
const (
	OutcomeSent            = "sent"
	OutcomeInvalid         = "invalid"
	OutcomeRenderFailed    = "render_failed"
	OutcomeTransportFailed = "transport_failed"
	OutcomeCancelled       = "cancelled"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	deliveries       *prometheus.CounterVec
	deliveryDuration prometheus.Histogram
	cleanupFailures  prometheus.Counter

	requests  *prometheus.CounterVec
	latencyMS *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipts",
			Name:      "deliveries_total",
			Help:      "Receipt delivery attempts by outcome.",
		}, []string{"outcome"}),
		deliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "receipts",
			Name:      "delivery_duration_seconds",
			Help:      "Time from render start to transport response.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipts",
			Name:      "artifact_cleanup_failures_total",
			Help:      "Scratch receipt files that could not be removed.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipts",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		latencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "receipts",
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.deliveries,
		m.deliveryDuration,
		m.cleanupFailures,
		m.requests,
		m.latencyMS,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDelivery records one delivery attempt. Safe on a nil *Metrics.
func (m *Metrics) ObserveDelivery(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
	m.deliveryDuration.Observe(d.Seconds())
}

// CleanupFailed counts a scratch artifact that could not be deleted.
func (m *Metrics) CleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

// ObserveRequest records one HTTP request. route is the chi route pattern.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latencyMS.WithLabelValues(route).Observe(float64(d.Milliseconds()))
}
