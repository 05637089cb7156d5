package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	errors          *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	directoryOps    *prometheus.CounterVec
	snapshots       prometheus.Counter
	directoryCounts *prometheus.GaugeVec
}

// NewMetrics registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karteji_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karteji_http_errors_total",
			Help: "HTTP error responses by method, route and error code.",
		}, []string{"method", "path", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "karteji_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		directoryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karteji_directory_operations_total",
			Help: "Membership operations by outcome code.",
		}, []string{"operation", "outcome"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "karteji_directory_snapshots_total",
			Help: "Member directory snapshot replacements.",
		}),
		directoryCounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "karteji_directory_members",
			Help: "Members in the latest snapshot by lifecycle status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.requests, m.errors, m.duration,
		m.directoryOps, m.snapshots, m.directoryCounts,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordDirectoryOp counts one membership operation; outcome is "ok" or an error code.
func (m *Metrics) RecordDirectoryOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.directoryOps.WithLabelValues(operation, outcome).Inc()
}

// RecordSnapshot counts a snapshot replacement and publishes its per-status sizes.
func (m *Metrics) RecordSnapshot(countsByStatus map[string]int) {
	if m == nil {
		return
	}
	m.snapshots.Inc()
	m.directoryCounts.Reset()
	for status, n := range countsByStatus {
		m.directoryCounts.WithLabelValues(status).Set(float64(n))
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
