// Package metrics exposes Prometheus instrumentation for workspace operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forage_ws"

// Result labels.
const (
	ResultOK     = "ok"
	ResultError  = "error"
	ResultRolled = "rolled_back"
)

// Metrics holds the collectors for one process. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Operations      *prometheus.CounterVec
	OperationTime   *prometheus.HistogramVec
	StepRetries     *prometheus.CounterVec
	Rollbacks       *prometheus.CounterVec
	ClaimedPorts    prometheus.Gauge
	PortPoolSize    prometheus.Gauge
	Workspaces      *prometheus.GaugeVec
	DriftDetections *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Workspace operations by operation and result",
			},
			[]string{"op", "result"},
		),
		OperationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of workspace operations in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"op", "result"},
		),
		StepRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Pipeline step retries after a transient failure",
			},
			[]string{"step"},
		),
		Rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Pipeline rollbacks by outcome",
			},
			[]string{"result"},
		),
		ClaimedPorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ports_claimed",
			Help:      "Ports currently held by a workspace",
		}),
		PortPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ports_total",
			Help:      "Size of the configured port pool",
		}),
		Workspaces: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workspaces",
				Help:      "Workspaces by status",
			},
			[]string{"status"},
		),
		DriftDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_detections_total",
				Help:      "Differences between recorded and observed workspace state",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.Operations,
		m.OperationTime,
		m.StepRetries,
		m.Rollbacks,
		m.ClaimedPorts,
		m.PortPoolSize,
		m.Workspaces,
		m.DriftDetections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.OperationTime.WithLabelValues(op, result).Observe(d.Seconds())
}

// Retry records a retried step.
func (m *Metrics) Retry(step string) {
	if m == nil {
		return
	}
	m.StepRetries.WithLabelValues(step).Inc()
}

// Rollback records a rollback outcome.
func (m *Metrics) Rollback(ok bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultError
	}
	m.Rollbacks.WithLabelValues(result).Inc()
}

// SetPorts updates the port pool gauges.
func (m *Metrics) SetPorts(claimed, total int) {
	if m == nil {
		return
	}
	m.ClaimedPorts.Set(float64(claimed))
	m.PortPoolSize.Set(float64(total))
}

// SetWorkspaceCounts replaces the per-status workspace gauge.
func (m *Metrics) SetWorkspaceCounts(counts map[string]int64) {
	if m == nil {
		return
	}
	m.Workspaces.Reset()
	for status, n := range counts {
		m.Workspaces.WithLabelValues(status).Set(float64(n))
	}
}

// Drift records a drift detection of the given kind.
func (m *Metrics) Drift(kind string) {
	if m == nil {
		return
	}
	m.DriftDetections.WithLabelValues(kind).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
