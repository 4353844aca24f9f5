// Package pipeline runs one dataset through the full analysis: load, clean,
// language-model stages, charts and reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/KaramelBytes/datacrew-cli/internal/chart"
	"github.com/KaramelBytes/datacrew-cli/internal/clean"
	"github.com/KaramelBytes/datacrew-cli/internal/ledger"
	"github.com/KaramelBytes/datacrew-cli/internal/metrics"
	"github.com/KaramelBytes/datacrew-cli/internal/report"
	"github.com/KaramelBytes/datacrew-cli/internal/stage"
	"github.com/KaramelBytes/datacrew-cli/internal/utils"
)

// Output file names inside the output directory.
const (
	BundleFile  = "bundle.json"
	CodeFile    = "op.py"
	MetricsFile = "metrics.prom"
)

// DefaultCleanedPath is where the cleaned dataset is written when no path is
// configured.
var DefaultCleanedPath = filepath.Join("data", "cleaned_csv.csv")

// Bundle collects everything one run produced. Every stage has a slot.
type Bundle struct {
	RunID         string           `json:"run_id"`
	Input         string           `json:"input"`
	OutputDir     string           `json:"output_dir"`
	Provider      string           `json:"provider,omitempty"`
	Model         string           `json:"model,omitempty"`
	Cleaned       *analysis.Table  `json:"-"`
	Schema        []analysis.Field `json:"schema"`
	CleanedPath   string           `json:"cleaned_path"`
	CleanLog      clean.Log        `json:"clean_log"`
	Stages        stage.Results    `json:"stages"`
	CodePath      string           `json:"code_path,omitempty"`
	Charts        []chart.Artifact `json:"charts"`
	ChartFailures []chart.Failure  `json:"chart_failures,omitempty"`
	Reports       []string         `json:"reports,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// ReportData converts the bundle for the report renderers.
func (b *Bundle) ReportData() report.Data {
	return report.Data{
		RunID:      b.RunID,
		Input:      b.Input,
		OutputDir:  b.OutputDir,
		Table:      b.Cleaned,
		CleanLog:   b.CleanLog,
		Stages:     b.Stages,
		Charts:     b.Charts,
		Failures:   b.ChartFailures,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
	}
}

// LedgerRun converts the bundle into a ledger entry.
func (b *Bundle) LedgerRun() ledger.Run {
	r := ledger.Run{
		ID:            b.RunID,
		Input:         b.Input,
		OutputDir:     b.OutputDir,
		Provider:      b.Provider,
		Model:         b.Model,
		RowsIn:        b.CleanLog.RowsIn,
		RowsOut:       b.CleanLog.RowsOut,
		Charts:        len(b.Charts),
		ChartFailures: len(b.ChartFailures),
		StartedAt:     b.StartedAt,
		FinishedAt:    b.FinishedAt,
	}
	for _, id := range stage.All() {
		s, ok := b.Stages[id]
		if !ok {
			continue
		}
		r.Stages = append(r.Stages, ledger.Stage{
			Stage:     string(id),
			Status:    string(s.Status),
			ErrorKind: string(s.ErrorKind),
			Attempts:  s.Attempts,
			Duration:  s.Duration,
			Tokens:    s.Usage.TotalTokens,
		})
	}
	return r
}

// Recorder stores finished runs.
type Recorder interface {
	Record(ctx context.Context, r ledger.Run) error
}

// Options configures a Runner.
type Options struct {
	Provider    string
	OutputDir   string
	CleanedPath string
	Load        analysis.Options
	Stages      stage.Config
	// MetricsFile, when set, receives the run's metrics in text format.
	MetricsFile string
}

// Runner executes the pipeline. A Runner may be reused for several inputs.
type Runner struct {
	rt       ai.Runtime
	opts     Options
	log      *zap.Logger
	renderer chart.Renderer
	ledger   Recorder
	now      func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithRenderer replaces the chart renderer.
func WithRenderer(r chart.Renderer) Option { return func(rn *Runner) { rn.renderer = r } }

// WithLedger records every finished run in l.
func WithLedger(l Recorder) Option { return func(rn *Runner) { rn.ledger = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(rn *Runner) { rn.now = now } }

// NewRunner returns a Runner calling rt for the external stages.
func NewRunner(rt ai.Runtime, opts Options, log *zap.Logger, options ...Option) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "outputs"
	}
	if opts.CleanedPath == "" {
		opts.CleanedPath = DefaultCleanedPath
	}
	r := &Runner{rt: rt, opts: opts, log: log.Named("pipeline"), now: time.Now}
	for _, o := range options {
		o(r)
	}
	return r
}

// Run processes the dataset at input. Only load and persistence errors are
// returned; stage and chart failures are recorded in the bundle.
func (r *Runner) Run(ctx context.Context, input string) (*Bundle, error) {
	b := &Bundle{
		RunID:       uuid.NewString(),
		Input:       input,
		OutputDir:   r.opts.OutputDir,
		Provider:    r.opts.Provider,
		Model:       r.opts.Stages.Model,
		CleanedPath: r.opts.CleanedPath,
		StartedAt:   r.now(),
	}
	log := r.log.With(zap.String("run_id", b.RunID), zap.String("input", input))
	m := metrics.New()

	t, err := analysis.Load(input, r.opts.Load)
	if err != nil {
		m.ObserveRun(false, r.now().Sub(b.StartedAt))
		r.writeMetrics(m, log)
		return nil, err
	}
	log.Info("dataset loaded", zap.Int("rows", t.NumRows()), zap.Int("columns", len(t.Columns)))

	cleaned, cl := clean.Clean(t)
	b.Cleaned, b.CleanLog, b.Schema = cleaned, cl, cleaned.Schema()
	m.ObserveClean(cl.RowsIn, cl.RowsOut)
	if err := clean.Persist(b.CleanedPath, cleaned); err != nil {
		return nil, fmt.Errorf("persist cleaned dataset: %w", err)
	}
	log.Info("dataset cleaned", zap.Int("rows_in", cl.RowsIn), zap.Int("rows_out", cl.RowsOut), zap.String("path", b.CleanedPath))

	if err := utils.EnsureDir(b.OutputDir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Remove(filepath.Join(b.OutputDir, CodeFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove previous generated code: %w", err)
	}

	cfg := r.opts.Stages
	cfg.DataPath = b.CleanedPath
	orch := stage.New(r.rt, cfg, log)
	orch.OnStageDone(func(res stage.Result) {
		m.ObserveStage(string(res.Stage), string(res.Status), string(res.ErrorKind), res.Duration, res.Usage.PromptTokens, res.Usage.CompletionTokens)
	})
	b.Stages = orch.Run(ctx, stage.Input{Schema: b.Schema, CleanLog: cl.Text()})
	b.Stages[stage.Clean] = stage.Result{Stage: stage.Clean, Status: stage.StatusOK, Text: cl.Text()}

	if code := codeOf(b.Stages[stage.Codegen]); code != "" {
		path := filepath.Join(b.OutputDir, CodeFile)
		if err := utils.SafeWriteFile(path, []byte(code+"\n")); err != nil {
			log.Warn("write generated code", zap.Error(err))
		} else {
			b.CodePath = path
		}
	}

	gen := chart.NewGenerator(r.renderer, log)
	gen.OnChartDone(func(k chart.Kind, ok bool) { m.ObserveChart(string(k), ok) })
	out, err := gen.Render(ctx, cleaned, b.OutputDir)
	b.Charts, b.ChartFailures = out.Artifacts, out.Failures
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		log.Warn("chart generation aborted", zap.Error(err))
		b.ChartFailures = append(b.ChartFailures, chart.Failure{Error: err.Error()})
	}

	b.FinishedAt = r.now()
	paths, err := report.WriteAll(b.OutputDir, b.ReportData())
	b.Reports = paths
	if err != nil {
		return b, fmt.Errorf("write reports: %w", err)
	}
	data, err := utils.PrettyJSON(b)
	if err != nil {
		return b, fmt.Errorf("encode bundle: %w", err)
	}
	if err := utils.SafeWriteFile(filepath.Join(b.OutputDir, BundleFile), data); err != nil {
		return b, fmt.Errorf("write bundle: %w", err)
	}

	m.ObserveRun(true, b.FinishedAt.Sub(b.StartedAt))
	r.writeMetrics(m, log)
	if r.ledger != nil {
		if err := r.ledger.Record(ctx, b.LedgerRun()); err != nil {
			log.Warn("record run in ledger", zap.Error(err))
		}
	}
	log.Info("run finished",
		zap.Int("charts", len(b.Charts)),
		zap.Int("chart_failures", len(b.ChartFailures)),
		zap.Duration("elapsed", b.FinishedAt.Sub(b.StartedAt)))
	return b, nil
}

func (r *Runner) writeMetrics(m *metrics.Collector, log *zap.Logger) {
	if r.opts.MetricsFile == "" {
		return
	}
	if err := m.WriteFile(r.opts.MetricsFile); err != nil {
		log.Warn("write metrics", zap.Error(err))
	}
}

// codeOf returns the Python block of a successful codegen stage.
func codeOf(r stage.Result) string {
	if !r.OK() {
		return ""
	}
	return stage.ExtractPython(r.Text)
}
