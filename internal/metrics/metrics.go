// Package metrics provides the Errly prometheus registry and collectors.
// The registry is injected, never global: constructing two Metrics values
// yields two independent registries, which keeps tests isolated.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the process-wide collectors for the ingest service.
type Metrics struct {
	registry *prometheus.Registry

	// IngestEvents counts accepted events per project.
	IngestEvents *prometheus.CounterVec
	// IngestBatches counts ingest batches by outcome (accepted|rejected|failed).
	IngestBatches *prometheus.CounterVec
	// RateLimitDenials counts 429 responses per bucket.
	RateLimitDenials *prometheus.CounterVec
	// AuthFailures counts authentication failures per stable error code.
	AuthFailures *prometheus.CounterVec
	// RequestDuration observes HTTP request latency.
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics value with its own registry, including the standard
// Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		IngestEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errly_ingest_events_total",
			Help: "Number of error events accepted for ingestion.",
		}, []string{"project"}),
		IngestBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errly_ingest_batches_total",
			Help: "Number of ingest batches by outcome.",
		}, []string{"status"}),
		RateLimitDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errly_rate_limit_denials_total",
			Help: "Number of requests denied by the rate limiter, per bucket.",
		}, []string{"bucket"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errly_auth_failures_total",
			Help: "Number of authentication failures by error code.",
		}, []string{"code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "errly_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.IngestEvents,
		m.IngestBatches,
		m.RateLimitDenials,
		m.AuthFailures,
		m.RequestDuration,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request.
// Nil-safe so callers can leave metrics unconfigured.
func (m *Metrics) ObserveRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.RequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordAuthFailure counts one authentication failure.
// Nil-safe so callers can leave metrics unconfigured.
func (m *Metrics) RecordAuthFailure(code string) {
	if m == nil {
		return
	}

	m.AuthFailures.WithLabelValues(code).Inc()
}

// RecordRateLimitDenial counts one 429 per bucket.
// Nil-safe so callers can leave metrics unconfigured.
func (m *Metrics) RecordRateLimitDenial(bucket string) {
	if m == nil {
		return
	}

	m.RateLimitDenials.WithLabelValues(bucket).Inc()
}

// RecordBatch counts one ingest batch outcome and its accepted events.
// Nil-safe so callers can leave metrics unconfigured.
func (m *Metrics) RecordBatch(project, status string, events int) {
	if m == nil {
		return
	}

	m.IngestBatches.WithLabelValues(status).Inc()

	if events > 0 {
		m.IngestEvents.WithLabelValues(project).Add(float64(events))
	}
}
