package chart

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
)

// Renderer draws one chart to path.
type Renderer interface {
	Render(t *analysis.Table, s Spec, path string) error
}

// PlotRenderer renders PNG charts with gonum/plot.
type PlotRenderer struct {
	Width, Height vg.Length
}

// DefaultRenderer returns a renderer producing 8x5 inch images.
func DefaultRenderer() PlotRenderer {
	return PlotRenderer{Width: 8 * vg.Inch, Height: 5 * vg.Inch}
}

var errNoValues = errors.New("no values to plot")

func (r PlotRenderer) Render(t *analysis.Table, s Spec, path string) error {
	p := plot.New()
	p.Title.Text = s.Title()
	var err error
	switch s.Kind {
	case KindDistribution:
		err = distribution(p, t, s)
	case KindHeatmap:
		err = heatmap(p, t, s)
	case KindScatter:
		err = scatter(p, t, s)
	case KindBar:
		err = bar(p, t, s)
	case KindBox:
		err = box(p, t, s)
	default:
		err = fmt.Errorf("unknown chart kind %q", s.Kind)
	}
	if err != nil {
		return err
	}
	w, h := r.Width, r.Height
	if w <= 0 || h <= 0 {
		w, h = 8*vg.Inch, 5*vg.Inch
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func column(t *analysis.Table, name string) (int, error) {
	c := t.ColumnIndex(name)
	if c < 0 {
		return -1, fmt.Errorf("column %q not found", name)
	}
	return c, nil
}

func distribution(p *plot.Plot, t *analysis.Table, s Spec) error {
	c, err := column(t, s.Columns[0])
	if err != nil {
		return err
	}
	vals := t.Values(c)
	if len(vals) == 0 {
		return errNoValues
	}
	h, err := plotter.NewHist(plotter.Values(vals), sturgesBins(len(vals)))
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	p.Add(h)
	p.X.Label.Text = s.Columns[0]
	p.Y.Label.Text = "count"
	return nil
}

// sturgesBins returns ceil(log2 n)+1 bins, kept within [5, 30].
func sturgesBins(n int) int {
	b := int(math.Ceil(math.Log2(float64(n)))) + 1
	return max(5, min(30, b))
}

// corrGrid adapts a correlation matrix to plotter.GridXYZ.
type corrGrid struct{ m *analysis.CorrMatrix }

func (g corrGrid) Dims() (c, r int)   { n := len(g.m.Columns); return n, n }
func (g corrGrid) Z(c, r int) float64 { return g.m.Values[r][c] }
func (g corrGrid) X(c int) float64    { return float64(c) }
func (g corrGrid) Y(r int) float64    { return float64(r) }

func heatmap(p *plot.Plot, t *analysis.Table, _ Spec) error {
	m := analysis.Correlations(t)
	if m == nil {
		return errors.New("heatmap needs at least two numeric columns")
	}
	hm := plotter.NewHeatMap(corrGrid{m}, palette.Heat(12, 1))
	hm.Min, hm.Max = -1, 1
	p.Add(hm)

	var xys plotter.XYs
	var labels []string
	ticks := make([]plot.Tick, len(m.Columns))
	for i, name := range m.Columns {
		ticks[i] = plot.Tick{Value: float64(i), Label: name}
		for j := range m.Columns {
			xys = append(xys, plotter.XY{X: float64(j), Y: float64(i)})
			labels = append(labels, fmt.Sprintf("%.2f", m.Values[i][j]))
		}
	}
	l, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return fmt.Errorf("heatmap labels: %w", err)
	}
	p.Add(l)
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	return nil
}

func scatter(p *plot.Plot, t *analysis.Table, s Spec) error {
	xc, err := column(t, s.Columns[0])
	if err != nil {
		return err
	}
	yc, err := column(t, s.Columns[1])
	if err != nil {
		return err
	}
	var xys plotter.XYs
	for r := range t.Rows {
		x, okx := t.Float(r, xc)
		y, oky := t.Float(r, yc)
		if okx && oky {
			xys = append(xys, plotter.XY{X: x, Y: y})
		}
	}
	if len(xys) == 0 {
		return errNoValues
	}
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	p.Add(sc)
	p.X.Label.Text = s.Columns[0]
	p.Y.Label.Text = s.Columns[1]
	return nil
}

// groups returns the numeric values of column num for each listed category
// of column cat.
func groups(t *analysis.Table, s Spec) ([]plotter.Values, error) {
	cc, err := column(t, s.Columns[0])
	if err != nil {
		return nil, err
	}
	nc, err := column(t, s.Columns[1])
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(s.Categories))
	for i, c := range s.Categories {
		pos[c] = i
	}
	out := make([]plotter.Values, len(s.Categories))
	total := 0
	for r, row := range t.Rows {
		i, ok := pos[row[cc]]
		if !ok {
			continue
		}
		if v, ok := t.Float(r, nc); ok {
			out[i] = append(out[i], v)
			total++
		}
	}
	if total == 0 {
		return nil, errNoValues
	}
	return out, nil
}

func bar(p *plot.Plot, t *analysis.Table, s Spec) error {
	gs, err := groups(t, s)
	if err != nil {
		return err
	}
	means := make(plotter.Values, len(gs))
	for i, g := range gs {
		if len(g) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range g {
			sum += v
		}
		means[i] = sum / float64(len(g))
	}
	b, err := plotter.NewBarChart(means, vg.Points(20))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	b.LineStyle.Width = vg.Length(0)
	b.Color = plotter.DefaultLineStyle.Color
	p.Add(b)
	p.NominalX(s.Categories...)
	p.X.Label.Text = s.Columns[0]
	p.Y.Label.Text = "mean " + s.Columns[1]
	return nil
}

func box(p *plot.Plot, t *analysis.Table, s Spec) error {
	gs, err := groups(t, s)
	if err != nil {
		return err
	}
	for i, g := range gs {
		if len(g) == 0 {
			continue
		}
		b, err := plotter.NewBoxPlot(vg.Points(20), float64(i), g)
		if err != nil {
			return fmt.Errorf("box plot %q: %w", s.Categories[i], err)
		}
		p.Add(b)
	}
	p.NominalX(s.Categories...)
	p.X.Label.Text = s.Columns[0]
	p.Y.Label.Text = s.Columns[1]
	return nil
}
