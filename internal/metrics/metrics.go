// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all gateway collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	generations   *prometheus.CounterVec
	creditDebits  prometheus.Counter
	creditRefunds prometheus.Counter
	creditDenied  prometheus.Counter
}

// New creates and registers all collectors on a private registry.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total HTTP requests processed",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency",
			ConstLabels: labels,
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
		}, []string{"method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_requests_in_flight",
			Help:        "HTTP requests currently being served",
			ConstLabels: labels,
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "generations_total",
			Help:        "Generation attempts by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		creditDebits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "credits_debited_total",
			Help:        "Credits committed for successful generations",
			ConstLabels: labels,
		}),
		creditRefunds: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "credits_refunded_total",
			Help:        "Credits refunded after failed generations",
			ConstLabels: labels,
		}),
		creditDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "credits_denied_total",
			Help:        "Generation requests rejected for insufficient credit",
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.generations, m.creditDebits, m.creditRefunds, m.creditDenied,
	)
	return m
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementInFlight marks a request as started.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordGeneration records a generation attempt outcome, e.g. "success",
// "out_of_credit", "provider_unavailable", "rejected_by_policy",
// "extraction_failed".
func (m *Metrics) RecordGeneration(outcome string) {
	m.generations.WithLabelValues(outcome).Inc()
}

// RecordDebit counts a committed credit debit.
func (m *Metrics) RecordDebit() { m.creditDebits.Inc() }

// RecordRefund counts a refunded credit.
func (m *Metrics) RecordRefund() { m.creditRefunds.Inc() }

// RecordDenied counts an insufficient-credit rejection.
func (m *Metrics) RecordDenied() { m.creditDenied.Inc() }
