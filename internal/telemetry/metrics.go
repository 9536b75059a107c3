package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/surveil/internal/audit"
)

// MetricsService is the core service name of the process Metrics.
const MetricsService = "telemetry.metrics"

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	decisions    *prometheus.CounterVec
	tasks        *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_tool_calls_total",
			Help: "Evidence tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "surveil_tool_duration_seconds",
			Help:    "Evidence tool latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"tool"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_decisions_total",
			Help: "Published decisions by category and determination.",
		}, []string{"category", "determination", "fallback"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "surveil_tasks",
			Help: "Tracked analysis tasks by status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.toolCalls, m.toolDuration, m.decisions, m.tasks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(name string, elapsed time.Duration, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(name, outcome).Inc()
	m.toolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ObserveDecision records a published decision. Its signature matches
// audit.Config.OnEntry.
func (m *Metrics) ObserveDecision(e audit.Entry) {
	fallback := "false"
	if e.Fallback {
		fallback = "true"
	}
	m.decisions.WithLabelValues(e.Category, e.Determination, fallback).Inc()
}

// SetTasks replaces the per-status task gauge.
func (m *Metrics) SetTasks(counts map[string]int) {
	m.tasks.Reset()
	for status, n := range counts {
		m.tasks.WithLabelValues(status).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
