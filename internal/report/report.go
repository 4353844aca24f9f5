// Package report renders a finished run as HTML, Markdown and a terminal
// summary. Every section renders for both structured and unstructured stage
// output; empty sections show NoData.
package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/KaramelBytes/datacrew-cli/internal/chart"
	"github.com/KaramelBytes/datacrew-cli/internal/clean"
	"github.com/KaramelBytes/datacrew-cli/internal/stage"
)

// PreviewRows is the number of leading rows shown in the dataset preview.
const PreviewRows = 50

// NoData is shown for sections without content.
const NoData = "No data available"

// Data is everything a report needs.
type Data struct {
	RunID      string
	Input      string
	OutputDir  string
	Table      *analysis.Table
	CleanLog   clean.Log
	Stages     stage.Results
	Charts     []chart.Artifact
	Failures   []chart.Failure
	StartedAt  time.Time
	FinishedAt time.Time
}

type stageRow struct {
	Stage    stage.ID
	Status   stage.Status
	Kind     string
	Attempts int
	Duration string
	Tokens   int
}

type chartView struct {
	Title string
	Src   string
	Kind  chart.Kind
}

// view is the presentation model shared by the HTML and Markdown templates.
type view struct {
	RunID       string
	Input       string
	Generated   string
	Elapsed     string
	Columns     []string
	Kinds       []analysis.Kind
	Rows        [][]string
	TotalRows   int
	CleanSteps  []string
	CleanRows   string
	Validation  stage.Parsed[stage.Validation]
	Relations   stage.Parsed[[]stage.Relation]
	Code        string
	CodeRaw     string
	Insights    []string
	InsightsRaw string
	Stages      []stageRow
	Charts      []chartView
	Failures    []chart.Failure
	NoData      string
}

func buildView(d Data) view {
	v := view{
		RunID:     d.RunID,
		Input:     d.Input,
		Generated: d.FinishedAt.UTC().Format(time.RFC3339),
		NoData:    NoData,
		Failures:  d.Failures,
	}
	if !d.StartedAt.IsZero() && !d.FinishedAt.IsZero() {
		v.Elapsed = d.FinishedAt.Sub(d.StartedAt).Round(time.Millisecond).String()
	}
	if d.Table != nil {
		v.Columns = d.Table.Columns
		v.Kinds = d.Table.Kinds
		v.TotalRows = d.Table.NumRows()
		v.Rows = d.Table.Rows
		if len(v.Rows) > PreviewRows {
			v.Rows = v.Rows[:PreviewRows]
		}
	}
	for _, s := range d.CleanLog.Steps {
		v.CleanSteps = append(v.CleanSteps, s.String())
	}
	if d.CleanLog.RowsIn > 0 || d.CleanLog.RowsOut > 0 {
		v.CleanRows = stageRowsText(d.CleanLog)
	}

	v.Validation = stage.ParseValidation(d.Stages[stage.Validate].Text)
	v.Relations = stage.ParseRelations(d.Stages[stage.Relate].Text)
	if r, ok := d.Stages[stage.Codegen]; ok {
		if r.OK() {
			v.Code = stage.ExtractPython(r.Text)
		}
		if v.Code == "" {
			v.CodeRaw = r.Text
		}
	}
	insight := d.Stages[stage.Insight]
	if insight.OK() {
		v.Insights = stage.ParseBullets(insight.Text)
	}
	if len(v.Insights) == 0 {
		v.InsightsRaw = insight.Text
	}

	for _, id := range stage.All() {
		r, ok := d.Stages[id]
		if !ok {
			continue
		}
		v.Stages = append(v.Stages, stageRow{
			Stage:    id,
			Status:   r.Status,
			Kind:     string(r.ErrorKind),
			Attempts: r.Attempts,
			Duration: r.Duration.Round(time.Millisecond).String(),
			Tokens:   r.Usage.TotalTokens,
		})
	}
	for _, a := range d.Charts {
		src := a.Path
		if d.OutputDir != "" {
			if rel, err := filepath.Rel(d.OutputDir, a.Path); err == nil {
				src = filepath.ToSlash(rel)
			}
		}
		v.Charts = append(v.Charts, chartView{Title: a.Title, Src: src, Kind: a.Kind})
	}
	return v
}

func stageRowsText(l clean.Log) string {
	return fmt.Sprintf("Rows: %d before cleaning, %d after", l.RowsIn, l.RowsOut)
}
