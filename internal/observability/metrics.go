package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	workflowTransitionsTotal *prometheus.CounterVec
	workflowDeniedTotal      *prometheus.CounterVec
	webhookEventsTotal       *prometheus.CounterVec
	catalogLatencySeconds    prometheus.Histogram
	catalogRequestsTotal     *prometheus.CounterVec
	adminRequestsTotal       *prometheus.CounterVec
	adminLatencySeconds      *prometheus.HistogramVec
	adminErrorsTotal         *prometheus.CounterVec
	sseClientsActive         prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		workflowTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certification_workflow_transitions_total",
			Help: "Total number of committed certification workflow transitions.",
		}, []string{"transition"})

		workflowDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certification_workflow_denied_total",
			Help: "Total number of workflow transitions denied by a precondition.",
		}, []string{"transition"})

		webhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certification_webhook_events_total",
			Help: "Total number of provider webhook events by outcome.",
		}, []string{"provider", "outcome"})

		catalogLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_latency_seconds",
			Help:    "Latency distribution for course catalog reads.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		})

		catalogRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total number of course catalog reads by cache outcome.",
		}, []string{"result"})

		adminRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_requests_total",
			Help: "Total number of admin API requests served.",
		}, []string{"method", "route", "status"})

		adminLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admin_latency_seconds",
			Help:    "Latency distribution for admin API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		adminErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_errors_total",
			Help: "Total number of error responses returned by admin endpoints.",
		}, []string{"method", "route", "status"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workflow_event_subscribers_active",
			Help: "Number of connected workflow event stream subscribers.",
		})

		prometheus.MustRegister(
			workflowTransitionsTotal,
			workflowDeniedTotal,
			webhookEventsTotal,
			catalogLatencySeconds,
			catalogRequestsTotal,
			adminRequestsTotal,
			adminLatencySeconds,
			adminErrorsTotal,
			sseClientsActive,
		)
	})
}

// WorkflowTransitions exposes the counter for committed transitions.
func WorkflowTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return workflowTransitionsTotal
}

// WorkflowDenied exposes the counter for precondition-denied transitions.
func WorkflowDenied() *prometheus.CounterVec {
	RegisterMetrics()
	return workflowDeniedTotal
}

// WebhookEvents exposes the counter for provider webhook outcomes.
func WebhookEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return webhookEventsTotal
}

// CatalogLatency exposes the catalog read latency histogram.
func CatalogLatency() prometheus.Histogram {
	RegisterMetrics()
	return catalogLatencySeconds
}

// CatalogRequests exposes the catalog cache outcome counter.
func CatalogRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return catalogRequestsTotal
}

// AdminRequests exposes the counter for admin requests.
func AdminRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return adminRequestsTotal
}

// AdminLatency exposes the latency histogram for admin requests.
func AdminLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return adminLatencySeconds
}

// AdminErrors exposes the counter for admin error responses.
func AdminErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return adminErrorsTotal
}

// SSEClientsActive exposes the gauge for connected event stream clients.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}
