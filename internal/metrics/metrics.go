// Package metrics exports Prometheus metrics for the memory operations and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memory_server"

// Exporter holds the collectors on a private registry.
type Exporter struct {
	registry *prometheus.Registry

	operations      *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	searchResults   prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
	rateLimitDenied prometheus.Counter
}

// New builds an Exporter. The registry also carries the Go runtime and
// process collectors.
func New() *Exporter {
	registry := prometheus.NewRegistry()
	buckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

	e := &Exporter{registry: registry}

	e.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "operations_total",
			Help:      "Total number of memory operations",
		},
		[]string{"operation", "status"},
	)
	e.operationTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "operation_duration_seconds",
			Help:      "Memory operation latency in seconds",
			Buckets:   buckets,
		},
		[]string{"operation"},
	)
	e.searchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "search_results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 3, 5, 10, 25, 50, 100},
		},
	)
	e.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)
	e.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   buckets,
		},
		[]string{"method", "route"},
	)
	e.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)
	e.rateLimitDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		e.operations,
		e.operationTime,
		e.searchResults,
		e.httpRequests,
		e.httpLatency,
		e.toolCalls,
		e.rateLimitDenied,
	)
	return e
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOperation records one memory operation. A nil Exporter is a no-op.
func (e *Exporter) ObserveOperation(op string, started time.Time, err error) {
	if e == nil {
		return
	}
	e.operations.WithLabelValues(op, status(err)).Inc()
	e.operationTime.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveSearchResults records the size of a search result set.
func (e *Exporter) ObserveSearchResults(n int) {
	if e == nil {
		return
	}
	e.searchResults.Observe(float64(n))
}

// ObserveHTTP records one HTTP request.
func (e *Exporter) ObserveHTTP(method, route string, code int, latency time.Duration) {
	if e == nil {
		return
	}
	e.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	e.httpLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

// ObserveToolCall records one MCP tool call.
func (e *Exporter) ObserveToolCall(tool string, err error) {
	if e == nil {
		return
	}
	e.toolCalls.WithLabelValues(tool, status(err)).Inc()
}

// RateLimited counts a rejected request.
func (e *Exporter) RateLimited() {
	if e == nil {
		return
	}
	e.rateLimitDenied.Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
