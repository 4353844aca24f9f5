// Package chart plans and renders the fixed battery of dataset charts.
package chart

import (
	"fmt"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
)

// Kind is a chart type.
type Kind string

const (
	KindDistribution Kind = "distribution"
	KindHeatmap      Kind = "heatmap"
	KindScatter      Kind = "scatter"
	KindBar          Kind = "bar"
	KindBox          Kind = "box"
)

// Plan limits.
const (
	MaxDistributions = 3
	BarCategories    = 10
	BoxCategories    = 8
)

// Spec is one planned chart.
type Spec struct {
	Kind    Kind     `json:"kind"`
	Columns []string `json:"columns"`
	// Categories lists the category values shown by bar and box charts,
	// most frequent first.
	Categories []string `json:"categories,omitempty"`
}

// Title is a human readable caption.
func (s Spec) Title() string {
	switch s.Kind {
	case KindDistribution:
		return fmt.Sprintf("Distribution of %s", s.Columns[0])
	case KindHeatmap:
		return "Correlation heatmap"
	case KindScatter:
		return fmt.Sprintf("%s vs %s", s.Columns[1], s.Columns[0])
	case KindBar:
		return fmt.Sprintf("Mean %s by %s", s.Columns[1], s.Columns[0])
	case KindBox:
		return fmt.Sprintf("%s by %s", s.Columns[1], s.Columns[0])
	}
	return string(s.Kind)
}

// Plan returns the charts that apply to t, in fixed priority order:
// distributions for the first three numeric columns, a heatmap and a
// scatter when two numeric columns exist, then a bar and a box of the first
// numeric column split by the first categorical column. Charts whose
// preconditions fail are left out.
func Plan(t *analysis.Table) []Spec {
	numeric := t.ColumnsOfKind(analysis.KindNumeric)
	categorical := t.ColumnsOfKind(analysis.KindCategorical)

	var specs []Spec
	for i, c := range numeric {
		if i == MaxDistributions {
			break
		}
		specs = append(specs, Spec{Kind: KindDistribution, Columns: []string{t.Columns[c]}})
	}
	if len(numeric) >= 2 {
		names := make([]string, len(numeric))
		for i, c := range numeric {
			names[i] = t.Columns[c]
		}
		specs = append(specs, Spec{Kind: KindHeatmap, Columns: names})
		specs = append(specs, Spec{Kind: KindScatter, Columns: []string{t.Columns[numeric[0]], t.Columns[numeric[1]]}})
	}
	if len(numeric) >= 1 && len(categorical) >= 1 {
		cat, num := categorical[0], numeric[0]
		cols := []string{t.Columns[cat], t.Columns[num]}
		counts := analysis.CategoryCounts(t, cat)
		specs = append(specs,
			Spec{Kind: KindBar, Columns: cols, Categories: topValues(counts, BarCategories)},
			Spec{Kind: KindBox, Columns: cols, Categories: topValues(counts, BoxCategories)},
		)
	}
	return specs
}

func topValues(counts []analysis.CategoryCount, n int) []string {
	if len(counts) > n {
		counts = counts[:n]
	}
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Value
	}
	return out
}
