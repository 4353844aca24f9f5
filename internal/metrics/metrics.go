// Package metrics collects per-run Prometheus metrics and writes them in the
// node_exporter textfile format.
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KaramelBytes/datacrew-cli/internal/utils"
)

// Collector holds the pipeline metrics on a custom registry; nothing is
// registered globally.
type Collector struct {
	Registry *prometheus.Registry

	StageCallsTotal *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StageTokens     *prometheus.CounterVec

	ChartsTotal *prometheus.CounterVec

	RowsProcessed *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
}

// New creates a Collector with every metric registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	m := &Collector{
		Registry: reg,

		StageCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacrew",
			Subsystem: "stage",
			Name:      "results_total",
			Help:      "Stage results by outcome.",
		}, []string{"stage", "status", "error_kind"}),

		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datacrew",
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Stage wall time in seconds, retries included.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),

		StageTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacrew",
			Subsystem: "stage",
			Name:      "tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"stage", "direction"}),

		ChartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacrew",
			Subsystem: "chart",
			Name:      "rendered_total",
			Help:      "Chart render attempts by kind and outcome.",
		}, []string{"kind", "status"}),

		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacrew",
			Subsystem: "clean",
			Name:      "rows_total",
			Help:      "Rows seen by the cleaner.",
		}, []string{"phase"}),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacrew",
			Subsystem: "run",
			Name:      "total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"status"}),

		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "datacrew",
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Pipeline wall time in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
	}
	reg.MustRegister(
		m.StageCallsTotal,
		m.StageDuration,
		m.StageTokens,
		m.ChartsTotal,
		m.RowsProcessed,
		m.RunsTotal,
		m.RunDuration,
	)
	return m
}

// ObserveStage records one finished stage.
func (m *Collector) ObserveStage(stage, status, errorKind string, d time.Duration, promptTokens, completionTokens int) {
	m.StageCallsTotal.WithLabelValues(stage, status, errorKind).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if promptTokens > 0 {
		m.StageTokens.WithLabelValues(stage, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.StageTokens.WithLabelValues(stage, "completion").Add(float64(completionTokens))
	}
}

// ObserveChart records one chart attempt.
func (m *Collector) ObserveChart(kind string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.ChartsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveClean records row counts before and after cleaning.
func (m *Collector) ObserveClean(rowsIn, rowsOut int) {
	m.RowsProcessed.WithLabelValues("in").Add(float64(rowsIn))
	m.RowsProcessed.WithLabelValues("out").Add(float64(rowsOut))
}

// ObserveRun records a finished pipeline run.
func (m *Collector) ObserveRun(ok bool, d time.Duration) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// WriteFile writes every metric to path in the Prometheus text format.
func (m *Collector) WriteFile(path string) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
