package report

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	"path/filepath"
	"sort"
	"strings"
	texttemplate "text/template"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/KaramelBytes/datacrew-cli/internal/utils"
)

//go:embed templates/*
var templatesFS embed.FS

var (
	htmlTmpl = htmltemplate.Must(htmltemplate.ParseFS(templatesFS, "templates/report.html.tmpl"))
	mdTmpl   = texttemplate.Must(texttemplate.New("report.md.tmpl").
			Funcs(texttemplate.FuncMap{"inc": func(i int) int { return i + 1 }}).
			ParseFS(templatesFS, "templates/report.md.tmpl"))
)

// File names written by WriteAll.
const (
	HTMLFile     = "report.html"
	MarkdownFile = "report.md"
)

// HTML renders the report as a standalone HTML page.
func HTML(w io.Writer, d Data) error {
	if err := htmlTmpl.ExecuteTemplate(w, "report.html.tmpl", buildView(d)); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

type markdownView struct {
	view
	StageTable   string
	PreviewTable string
}

// Markdown renders the report as GitHub-flavoured Markdown.
func Markdown(w io.Writer, d Data) error {
	v := buildView(d)
	mv := markdownView{view: v}
	if len(v.Stages) > 0 {
		mv.StageTable = stageTable(v.Stages).RenderMarkdown()
	}
	if len(v.Rows) > 0 {
		tw := table.NewWriter()
		header := make(table.Row, len(v.Columns))
		for i, c := range v.Columns {
			header[i] = c
		}
		tw.AppendHeader(header)
		for _, r := range v.Rows {
			row := make(table.Row, len(r))
			for i, c := range r {
				row[i] = c
			}
			tw.AppendRow(row)
		}
		mv.PreviewTable = tw.RenderMarkdown()
	}
	if err := mdTmpl.ExecuteTemplate(w, "report.md.tmpl", mv); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	return nil
}

// WriteAll writes report.html and report.md into dir and returns their paths.
func WriteAll(dir string, d Data) ([]string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	var paths []string
	for _, f := range []struct {
		name   string
		render func(io.Writer, Data) error
	}{
		{HTMLFile, HTML},
		{MarkdownFile, Markdown},
	} {
		var buf bytes.Buffer
		if err := f.render(&buf, d); err != nil {
			return paths, err
		}
		path := filepath.Join(dir, f.name)
		if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func stageTable(rows []stageRow) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Stage", "Status", "Error", "Attempts", "Duration", "Tokens"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.Stage, r.Status, r.Kind, r.Attempts, r.Duration, r.Tokens})
	}
	return tw
}

// Summary writes a terminal table of stage outcomes and charts to w.
func Summary(w io.Writer, d Data) {
	v := buildView(d)
	tw := stageTable(v.Stages)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Stages")
	fmt.Fprintln(w, tw.Render())

	ct := table.NewWriter()
	ct.SetStyle(table.StyleLight)
	ct.SetTitle("Charts")
	ct.AppendHeader(table.Row{"#", "Kind", "Columns", "Result"})
	type chartRow struct {
		index int
		row   table.Row
	}
	var rows []chartRow
	for _, a := range d.Charts {
		rows = append(rows, chartRow{a.Index, table.Row{a.Index, a.Kind, strings.Join(a.Columns, ", "), filepath.Base(a.Path)}})
	}
	for _, f := range d.Failures {
		rows = append(rows, chartRow{f.Index, table.Row{f.Index, f.Kind, strings.Join(f.Columns, ", "), "failed: " + f.Error}})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].index < rows[j].index })
	for _, r := range rows {
		ct.AppendRow(r.row)
	}
	if len(rows) == 0 {
		ct.AppendRow(table.Row{"-", "-", "-", NoData})
	}
	fmt.Fprintln(w, ct.Render())
}
