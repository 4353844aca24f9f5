// Package clean implements the deterministic cleaning pass that runs before
// any external stage: exact-duplicate removal followed by per-column
// imputation. It never drops columns and never removes outliers.
package clean

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/KaramelBytes/datacrew-cli/internal/utils"
	"gonum.org/v1/gonum/stat"
)

// Sentinel fills categorical columns that have no mode (entirely missing).
const Sentinel = "Unknown"

// Action identifies a cleaning step.
type Action string

const (
	ActionDedupe         Action = "dedupe"
	ActionImputeMean     Action = "impute_mean"
	ActionImputeMode     Action = "impute_mode"
	ActionImputeSentinel Action = "impute_sentinel"
	ActionDedupeImputed  Action = "dedupe_imputed"
)

// Step records one change made to the table.
type Step struct {
	Action Action `json:"action"`
	Column string `json:"column,omitempty"`
	Count  int    `json:"count"`
	Value  string `json:"value,omitempty"`
}

func (s Step) String() string {
	switch s.Action {
	case ActionDedupe:
		return fmt.Sprintf("Removed %s", plural(s.Count, "exact duplicate row"))
	case ActionImputeMean:
		return fmt.Sprintf("Filled %s in %q with the column mean %s", plural(s.Count, "missing value"), s.Column, s.Value)
	case ActionImputeMode:
		return fmt.Sprintf("Filled %s in %q with the most frequent value %q", plural(s.Count, "missing value"), s.Column, s.Value)
	case ActionImputeSentinel:
		return fmt.Sprintf("Filled %s in %q with the placeholder %q (column had no values)", plural(s.Count, "missing value"), s.Column, s.Value)
	case ActionDedupeImputed:
		return fmt.Sprintf("Removed %s that became identical after imputation", plural(s.Count, "row"))
	}
	return string(s.Action)
}

// Log summarizes a cleaning pass.
type Log struct {
	RowsIn  int    `json:"rows_in"`
	RowsOut int    `json:"rows_out"`
	Steps   []Step `json:"steps"`
}

// Text renders the log as a bullet list.
func (l Log) Text() string {
	if len(l.Steps) == 0 {
		return fmt.Sprintf("- No duplicates or missing values found; %d rows left unchanged", l.RowsIn)
	}
	var b strings.Builder
	for _, s := range l.Steps {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	fmt.Fprintf(&b, "- Rows: %d before cleaning, %d after", l.RowsIn, l.RowsOut)
	return b.String()
}

// Clean returns a cleaned copy of t; t itself is not modified.
//
// Order matters: duplicates are removed first so imputation statistics are
// computed over distinct rows only. Numeric columns get the mean, categorical
// columns the mode (ties resolve to the lexicographically smallest value) or
// Sentinel when no value exists. A last exact-duplicate sweep removes rows
// that imputation made identical, so the output is duplicate-free and
// Clean(Clean(t)) equals Clean(t).
func Clean(t *analysis.Table) (*analysis.Table, Log) {
	out := t.Clone()
	log := Log{RowsIn: t.NumRows()}

	if n := dedupe(out); n > 0 {
		log.Steps = append(log.Steps, Step{Action: ActionDedupe, Count: n})
	}
	for c := range out.Columns {
		missing := out.Missing(c)
		if missing == 0 {
			continue
		}
		var fill string
		var action Action
		switch out.Kinds[c] {
		case analysis.KindNumeric:
			vals := out.Values(c)
			if len(vals) == 0 {
				continue
			}
			fill, action = out.FormatNumber(stat.Mean(vals, nil)), ActionImputeMean
		default:
			if counts := analysis.CategoryCounts(out, c); len(counts) > 0 {
				fill, action = counts[0].Value, ActionImputeMode
			} else {
				fill, action = Sentinel, ActionImputeSentinel
			}
		}
		for _, row := range out.Rows {
			if row[c] == "" {
				row[c] = fill
			}
		}
		log.Steps = append(log.Steps, Step{Action: action, Column: out.Columns[c], Count: missing, Value: fill})
	}
	if n := dedupe(out); n > 0 {
		log.Steps = append(log.Steps, Step{Action: ActionDedupeImputed, Count: n})
	}
	log.RowsOut = out.NumRows()
	return out, log
}

// dedupe drops exact duplicate rows in place, keeping first occurrences.
func dedupe(t *analysis.Table) int {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		k := analysis.RowKey(row)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, row)
	}
	removed := len(t.Rows) - len(kept)
	t.Rows = kept
	return removed
}

// Persist writes the cleaned table as delimited text, atomically.
func Persist(path string, t *analysis.Table) error {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return fmt.Errorf("encode cleaned table: %w", err)
	}
	if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("persist cleaned table: %w", err)
	}
	return nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
