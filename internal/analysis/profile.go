package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/stat"
)

// ProfileOptions controls the dataset summary.
type ProfileOptions struct {
	// SampleRows determines how many leading rows to include in the report.
	SampleRows int
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Outlier detection via robust Z-score (MAD). Counts |z| > threshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultProfileOptions returns reasonable defaults for dataset summaries.
func DefaultProfileOptions() ProfileOptions {
	return ProfileOptions{SampleRows: 5, Correlations: true, Outliers: true, OutlierThreshold: 3.5}
}

// Report is a markdown-friendly summary of a Table.
type Report struct {
	Name       string
	Rows       int
	Duplicates int
	Cols       []ColumnSummary
	Samples    [][]string
	Corr       *CorrMatrix
	Warnings   []string
}

// ColumnSummary captures inferred kind and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    Kind
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Std    float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Categorical top values
	TopValues []CategoryCount
}

// CategoryCount is a category value and its frequency.
type CategoryCount struct {
	Value string
	Count int
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

// Profile computes per-column statistics for t.
func Profile(t *Table, opt ProfileOptions) *Report {
	rep := &Report{Name: t.Name, Rows: t.NumRows(), Duplicates: DuplicateRows(t)}
	for c, name := range t.Columns {
		s := ColumnSummary{Name: name, Kind: t.Kinds[c], Missing: t.Missing(c)}
		s.NonNull = rep.Rows - s.Missing
		counts := CategoryCounts(t, c)
		s.Unique = len(counts)
		switch s.Kind {
		case KindNumeric:
			summarizeNumeric(&s, t.Values(c), opt)
		default:
			if len(counts) > 8 {
				counts = counts[:8]
			}
			s.TopValues = counts
		}
		rep.Cols = append(rep.Cols, s)
	}
	n := opt.SampleRows
	if n > rep.Rows {
		n = rep.Rows
	}
	for i := 0; i < n; i++ {
		rep.Samples = append(rep.Samples, append([]string(nil), t.Rows[i]...))
	}
	if opt.Correlations {
		rep.Corr = Correlations(t)
	}
	if rep.Duplicates > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d exact duplicate rows", rep.Duplicates))
	}
	for _, c := range rep.Cols {
		if c.NonNull == 0 && rep.Rows > 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %q is entirely missing", c.Name))
		}
	}
	return rep
}

func summarizeNumeric(s *ColumnSummary, vals []float64, opt ProfileOptions) {
	if len(vals) == 0 {
		return
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	s.Min, s.Max = sorted[0], sorted[len(sorted)-1]
	s.Mean = stat.Mean(vals, nil)
	if len(vals) > 1 {
		s.Std = stat.StdDev(vals, nil)
	}
	s.Median = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	if !opt.Outliers || len(vals) < 8 {
		return
	}
	thr := opt.OutlierThreshold
	if thr <= 0 {
		thr = 3.5
	}
	s.OutlierThreshold = thr
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - s.Median)
	}
	sort.Float64s(dev)
	mad := stat.Quantile(0.5, stat.LinInterp, dev, nil)
	if mad == 0 {
		return
	}
	for _, v := range vals {
		z := math.Abs(0.6745 * (v - s.Median) / mad)
		if z > thr {
			s.OutliersCount++
		}
		s.OutliersMaxAbsZ = math.Max(s.OutliersMaxAbsZ, z)
	}
}

// CategoryCounts returns non-missing value frequencies for a column, most
// frequent first, ties broken by value.
func CategoryCounts(t *Table, col int) []CategoryCount {
	freq := map[string]int{}
	for _, row := range t.Rows {
		if v := row[col]; v != "" {
			freq[v]++
		}
	}
	out := make([]CategoryCount, 0, len(freq))
	for k, v := range freq {
		out = append(out, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// Correlations computes pairwise-complete Pearson correlations among numeric
// columns. Pairs with fewer than two shared rows or zero variance get 0.
// Returns nil when fewer than two numeric columns exist.
func Correlations(t *Table) *CorrMatrix {
	cols := t.ColumnsOfKind(KindNumeric)
	if len(cols) < 2 {
		return nil
	}
	m := &CorrMatrix{Columns: make([]string, len(cols)), Values: make([][]float64, len(cols))}
	for i, c := range cols {
		m.Columns[i] = t.Columns[c]
		m.Values[i] = make([]float64, len(cols))
		m.Values[i][i] = 1
	}
	for a := 0; a < len(cols); a++ {
		for b := a + 1; b < len(cols); b++ {
			var xs, ys []float64
			for r := range t.Rows {
				x, okx := t.Float(r, cols[a])
				y, oky := t.Float(r, cols[b])
				if okx && oky {
					xs = append(xs, x)
					ys = append(ys, y)
				}
			}
			var rho float64
			if len(xs) >= 2 {
				rho = stat.Correlation(xs, ys, nil)
				if math.IsNaN(rho) || math.IsInf(rho, 0) {
					rho = 0
				}
				rho = math.Max(-1, math.Min(1, rho))
			}
			m.Values[a][b], m.Values[b][a] = rho, rho
		}
	}
	return m
}

// RowKey returns a key identifying a row's exact content. Each cell is
// prefixed with its length so no separator can make two rows collide.
func RowKey(row []string) string {
	var b strings.Builder
	for _, c := range row {
		b.WriteString(strconv.Itoa(len(c)))
		b.WriteByte(':')
		b.WriteString(c)
	}
	return b.String()
}

// DuplicateRows counts rows that exactly repeat an earlier row.
func DuplicateRows(t *Table) int {
	seen := make(map[string]struct{}, len(t.Rows))
	n := 0
	for _, row := range t.Rows {
		k := RowKey(row)
		if _, ok := seen[k]; ok {
			n++
			continue
		}
		seen[k] = struct{}{}
	}
	return n
}

// Markdown renders a compact report suitable for prompts or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	fmt.Fprintf(&b, "Columns: %d\n\n", len(r.Cols))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		missPct := 0.0
		if total := c.NonNull + c.Missing; total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct)
		switch c.Kind {
		case KindNumeric:
			if c.NonNull > 0 {
				fmt.Fprintf(&b, "; min %.4g, max %.4g, mean %.4g, median %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Median, c.Std)
			}
			if c.OutlierThreshold > 0 {
				fmt.Fprintf(&b, "; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold)
				if c.OutliersMaxAbsZ > 0 {
					fmt.Fprintf(&b, " (max |z|≈%.2f)", c.OutliersMaxAbsZ)
				}
			}
		case KindCategorical:
			if len(c.TopValues) > 0 {
				parts := make([]string, len(c.TopValues))
				for i, kv := range c.TopValues {
					parts[i] = fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count)
				}
				fmt.Fprintf(&b, "; top: %s", strings.Join(parts, ", "))
				if c.Unique > len(c.TopValues) {
					fmt.Fprintf(&b, "; unique=%d", c.Unique)
				}
			}
		}
		b.WriteString("\n")
	}
	if r.Corr != nil {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Corr.TopPairs(10) {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", p.A, p.B, p.R)
		}
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		tw := table.NewWriter()
		header := make(table.Row, len(r.Cols))
		for i, c := range r.Cols {
			header[i] = safeName(c.Name)
		}
		tw.AppendHeader(header)
		for _, row := range r.Samples {
			tr := make(table.Row, len(row))
			for i, v := range row {
				if len(v) > 80 {
					v = v[:77] + "..."
				}
				tr[i] = safeVal(v)
			}
			tw.AppendRow(tr)
		}
		b.WriteString(tw.RenderMarkdown())
		b.WriteString("\n")
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

// PairCorr is a simple correlation pair summary.
type PairCorr struct {
	A, B string
	R    float64
}

// TopPairs lists the strongest off-diagonal pairs by |r|.
func (m *CorrMatrix) TopPairs(n int) []PairCorr {
	var pairs []PairCorr
	for i := range m.Columns {
		for j := i + 1; j < len(m.Columns); j++ {
			pairs = append(pairs, PairCorr{A: m.Columns[i], B: m.Columns[j], R: m.Values[i][j]})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
