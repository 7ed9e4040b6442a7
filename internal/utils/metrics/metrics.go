package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec
	StoreFallbacksTotal  *prometheus.CounterVec
	StoreDegradedWrites  prometheus.Counter
	StoreSweptTotal      prometheus.Counter

	// Webhook retry metrics
	WebhookRetriesTotal *prometheus.CounterVec
	WebhookQueueDepth   prometheus.Gauge

	// Payment processor metrics
	ProcessorRequestsTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered with the default registry.
func New(namespace string) *Metrics {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance registered with reg.
func NewWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "vpio"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of key-value operations by tier and result",
			},
			[]string{"operation", "tier", "result"},
		),
		StoreFallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "fallbacks_total",
				Help:      "Operations that failed on the remote tier and were served from memory",
			},
			[]string{"operation"},
		),
		StoreDegradedWrites: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "degraded_writes_total",
				Help:      "Writes requested against the remote tier that landed only in memory",
			},
		),
		StoreSweptTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "swept_entries_total",
				Help:      "Expired memory-tier entries removed by the periodic sweep",
			},
		),

		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "retries_total",
				Help:      "Webhook redelivery outcomes",
			},
			[]string{"outcome"}, // delivered, rescheduled, expired
		),
		WebhookQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "queue_depth",
				Help:      "Failed webhooks waiting for redelivery",
			},
		),

		ProcessorRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "processor",
				Name:      "requests_total",
				Help:      "Requests sent to the payment processor",
			},
			[]string{"operation", "status"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStoreOperation records one key-value operation.
func (m *Metrics) RecordStoreOperation(operation, tier string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "miss"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, tier, result).Inc()
}

// RecordStoreFallback records a remote failure absorbed by the memory tier.
// Writes that land only in memory are also counted as degraded.
func (m *Metrics) RecordStoreFallback(operation string, write bool) {
	if m == nil {
		return
	}
	m.StoreFallbacksTotal.WithLabelValues(operation).Inc()
	if write {
		m.StoreDegradedWrites.Inc()
	}
}

// RecordSweep records entries evicted by a sweep.
func (m *Metrics) RecordSweep(evicted int) {
	if m == nil || evicted <= 0 {
		return
	}
	m.StoreSweptTotal.Add(float64(evicted))
}

// RecordWebhookRetry records the outcome of one queued webhook in a tick.
func (m *Metrics) RecordWebhookRetry(outcome string) {
	if m == nil {
		return
	}
	m.WebhookRetriesTotal.WithLabelValues(outcome).Inc()
}

// SetWebhookQueueDepth sets the current retry queue size.
func (m *Metrics) SetWebhookQueueDepth(n int) {
	if m == nil {
		return
	}
	m.WebhookQueueDepth.Set(float64(n))
}

// RecordProcessorRequest records a call to the payment processor.
func (m *Metrics) RecordProcessorRequest(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ProcessorRequestsTotal.WithLabelValues(operation, status).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
