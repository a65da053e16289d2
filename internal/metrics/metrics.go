package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the per-tenant limiter
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected with 429."})

	// Solves counts finished solves by mode and stop reason
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dayplan_solves_total", Help: "Finished solves by mode and stop reason."},
		[]string{"mode", "stop_reason"},
	)
	// SolveErrors counts solves rejected by validation or feasibility checks
	SolveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dayplan_solve_errors_total", Help: "Solves that returned an error, by kind."},
		[]string{"kind"},
	)
	// SolveDuration records wall time per solve in seconds
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dayplan_solve_duration_seconds", Help: "Solve wall time in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5, 10}},
		[]string{"mode"},
	)
	// SolveNodes records search nodes expanded by exact solves
	SolveNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "dayplan_solve_nodes", Help: "Branch-and-bound nodes per exact solve.", Buckets: prometheus.ExponentialBuckets(10, 4, 10)},
	)
	// SolveGap records best minus greedy priority per exact solve
	SolveGap = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "dayplan_solve_priority_gain", Help: "Priority gained by exact search over the greedy seed.", Buckets: []float64{0, 1, 2, 5, 10, 20, 50}},
	)
	// EventSubscribers is the number of open websocket/SSE listeners
	EventSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dayplan_event_subscribers", Help: "Open event stream listeners."})

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration, RateLimited)
		Registry.MustRegister(Solves, SolveErrors, SolveDuration, SolveNodes, SolveGap, EventSubscribers)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
