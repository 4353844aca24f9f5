package chart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/KaramelBytes/datacrew-cli/internal/utils"
)

// filePattern matches chart files written by earlier runs.
const filePattern = "chart_*.png"

// Artifact is one rendered chart.
type Artifact struct {
	Index   int      `json:"index"`
	Kind    Kind     `json:"kind"`
	Columns []string `json:"columns"`
	Title   string   `json:"title"`
	Path    string   `json:"path"`
}

// Failure records a chart that could not be rendered.
type Failure struct {
	Index   int      `json:"index"`
	Kind    Kind     `json:"kind"`
	Columns []string `json:"columns"`
	Error   string   `json:"error"`
}

// Output is the result of one rendering pass.
type Output struct {
	Artifacts []Artifact `json:"artifacts"`
	Failures  []Failure  `json:"failures,omitempty"`
}

// Generator renders planned charts into a directory.
type Generator struct {
	renderer Renderer
	log      *zap.Logger
	observe  func(kind Kind, ok bool)
}

// NewGenerator returns a generator using r; nil selects DefaultRenderer.
func NewGenerator(r Renderer, log *zap.Logger) *Generator {
	if r == nil {
		r = DefaultRenderer()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{renderer: r, log: log.Named("chart")}
}

// OnChartDone registers fn to be called after each chart attempt.
func (g *Generator) OnChartDone(fn func(kind Kind, ok bool)) { g.observe = fn }

// FileName is the name of the index-th chart (1-based) of kind k.
func FileName(index int, k Kind) string {
	return fmt.Sprintf("chart_%02d_%s.png", index, k)
}

// ClearPrevious deletes chart files left in dir by an earlier run.
func ClearPrevious(dir string) (int, error) {
	old, err := filepath.Glob(filepath.Join(dir, filePattern))
	if err != nil {
		return 0, fmt.Errorf("list old charts: %w", err)
	}
	for _, f := range old {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("remove old chart: %w", err)
		}
	}
	return len(old), nil
}

// Render clears old charts in dir, then renders every planned chart. A
// chart that errors or panics is recorded as a Failure and the rest still
// render. The error return covers only directory problems and
// cancellation.
func (g *Generator) Render(ctx context.Context, t *analysis.Table, dir string) (Output, error) {
	var out Output
	if err := utils.EnsureDir(dir); err != nil {
		return out, fmt.Errorf("create chart dir: %w", err)
	}
	removed, err := ClearPrevious(dir)
	if err != nil {
		return out, err
	}
	if removed > 0 {
		g.log.Debug("removed previous charts", zap.Int("count", removed), zap.String("dir", dir))
	}

	for i, s := range Plan(t) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		index := i + 1
		path := filepath.Join(dir, FileName(index, s.Kind))
		if err := g.renderOne(t, s, path); err != nil {
			_ = os.Remove(path)
			g.log.Warn("chart failed",
				zap.Int("index", index),
				zap.String("kind", string(s.Kind)),
				zap.Strings("columns", s.Columns),
				zap.Error(err))
			out.Failures = append(out.Failures, Failure{Index: index, Kind: s.Kind, Columns: s.Columns, Error: err.Error()})
			g.done(s.Kind, false)
			continue
		}
		out.Artifacts = append(out.Artifacts, Artifact{Index: index, Kind: s.Kind, Columns: s.Columns, Title: s.Title(), Path: path})
		g.done(s.Kind, true)
	}
	g.log.Info("charts rendered", zap.Int("ok", len(out.Artifacts)), zap.Int("failed", len(out.Failures)))
	return out, nil
}

func (g *Generator) renderOne(t *analysis.Table, s Spec, path string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panic: %v", p)
		}
	}()
	return g.renderer.Render(t, s, path)
}

func (g *Generator) done(k Kind, ok bool) {
	if g.observe != nil {
		g.observe(k, ok)
	}
}
