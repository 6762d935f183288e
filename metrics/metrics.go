package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors exposed on /metrics. Each server owns its
// own registry so tests can build servers side by side.
type Metrics struct {
	Registry          *prometheus.Registry
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	ComplaintsCreated prometheus.Counter
	Upvotes           prometheus.Counter
	TaskStatusChanges *prometheus.CounterVec
	RateLimited       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civic_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ComplaintsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "civic_complaints_created_total",
			Help: "Complaints filed.",
		}),
		Upvotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "civic_upvotes_total",
			Help: "Accepted upvotes.",
		}),
		TaskStatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_task_status_changes_total",
			Help: "Employee task status updates by target status.",
		}, []string{"status"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "civic_complaint_rate_limited_total",
			Help: "Complaint submissions rejected by the rate limiter.",
		}),
	}
	m.Registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.ComplaintsCreated,
		m.Upvotes,
		m.TaskStatusChanges,
		m.RateLimited,
		collectors.NewGoCollector(),
	)
	return m
}
