// Package metrics holds the Prometheus collectors for the import pipeline and
// the incremental reconciler.
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "npiregistry"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	StageDuration    *prometheus.HistogramVec
	RowsWritten      *prometheus.CounterVec
	ReconcileRecords *prometheus.CounterVec
	Cutovers         *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_stage_duration_seconds",
			Help:      "Duration of bulk import stages",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16),
		},
		[]string{"stage"},
	)
	m.RowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Rows written by the staging loader and the transformer",
		},
		[]string{"table"},
	)
	m.ReconcileRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_records_total",
			Help:      "Incremental feed records by outcome",
		},
		[]string{"outcome"},
	)
	m.Cutovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cutover_total",
			Help:      "Table swap, discard and rollback attempts by result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(
		m.StageDuration,
		m.RowsWritten,
		m.ReconcileRecords,
		m.Cutovers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) AddRows(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsWritten.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ReconcileRecords.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Cutover(result string) {
	if m == nil {
		return
	}
	m.Cutovers.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
