// Package telemetry holds the Prometheus metrics and OpenTelemetry tracing
// setup shared by every pagesmith component.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagesmith"

// ServiceName is the AppContext service the shared Metrics is published under.
const ServiceName = "telemetry.metrics"

// Metrics groups the Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can take it as an optional dependency.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	remoteRequests *prometheus.CounterVec
	remoteRetries  *prometheus.CounterVec
	writeBatches   *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	sessionEvents  *prometheus.CounterVec
	sessionsPruned prometheus.Counter
	httpRequests   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"tool"}),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Workspace API requests by operation and HTTP status.",
		}, []string{"operation", "status"}),
		remoteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_retries_total",
			Help:      "Workspace API retries after transient failures.",
		}, []string{"operation"}),
		writeBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_batches_total",
			Help:      "Chunked write requests by outcome.",
		}, []string{"outcome"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently open.",
		}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Events emitted to session streams by type.",
		}, []string{"type"}),
		sessionsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_pruned_total",
			Help:      "Idle sessions dropped by the pruning job.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Gateway requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.toolCalls,
		m.toolDuration,
		m.remoteRequests,
		m.remoteRetries,
		m.writeBatches,
		m.sessionsActive,
		m.sessionEvents,
		m.sessionsPruned,
		m.httpRequests,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RemoteRequest records one workspace API response. Status 0 means the
// request never produced a response.
func (m *Metrics) RemoteRequest(operation string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.remoteRequests.WithLabelValues(operation, label).Inc()
}

// RemoteRetry records a retry of a workspace API request.
func (m *Metrics) RemoteRetry(operation string) {
	if m == nil {
		return
	}
	m.remoteRetries.WithLabelValues(operation).Inc()
}

// WriteBatch records a chunked write request.
func (m *Metrics) WriteBatch(ok bool) {
	if m == nil {
		return
	}
	outcome := "committed"
	if !ok {
		outcome = "failed"
	}
	m.writeBatches.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// SessionEvent records an emitted session event.
func (m *Metrics) SessionEvent(eventType string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(eventType).Inc()
}

// SessionsPruned adds n to the pruned session counter.
func (m *Metrics) SessionsPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsPruned.Add(float64(n))
}

// HTTPRequest records one gateway request.
func (m *Metrics) HTTPRequest(route, method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
