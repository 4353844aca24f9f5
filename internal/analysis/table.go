package analysis

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLoad marks fatal dataset loading failures (absent, empty or malformed
// input). Callers test for it with errors.Is.
var ErrLoad = errors.New("load dataset")

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// Options controls how tabular files are read.
type Options struct {
	// Delimiter for CSV. If 0, sniffed from the header line among ',', ';', '\t'.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune // optional; if 0, auto-detect common separators (',' '.' space)
	// XLSX sheet selection; SheetIndex is 1-based and used when SheetName is empty.
	SheetName  string
	SheetIndex int
}

// DefaultOptions returns reasonable defaults for dataset loading.
func DefaultOptions() Options {
	return Options{SheetIndex: 1}
}

// Table is an in-memory dataset. Cells keep their source text; "" marks a
// missing value. Row order is source order and column names are unique.
type Table struct {
	Name      string
	Delimiter rune
	Columns   []string
	Kinds     []Kind
	Rows      [][]string

	decimal   rune
	thousands rune
}

// missingTokens are read as missing values, matching common dataframe readers.
var missingTokens = map[string]struct{}{
	"na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {}, "#n/a": {}, "<na>": {}, "-nan": {},
}

func isMissingToken(s string) bool {
	if s == "" {
		return true
	}
	_, ok := missingTokens[strings.ToLower(s)]
	return ok
}

// Load reads a CSV, TSV or XLSX file into a Table. Any failure is wrapped
// with ErrLoad.
func Load(path string, opt Options) (*Table, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		rows, err := readXLSXRows(path, opt.SheetName, opt.SheetIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoad, filepath.Base(path), err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: %s: sheet is empty", ErrLoad, filepath.Base(path))
		}
		t, err := FromRecords(filepath.Base(path), rows[0], rows[1:], opt)
		if err != nil {
			return nil, err
		}
		t.Delimiter = ','
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return ParseCSV(filepath.Base(path), b, opt)
}

// ParseCSV parses delimited text into a Table.
func ParseCSV(name string, data []byte, opt Options) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s: file is empty", ErrLoad, name)
	}
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name, data)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read header: %w", ErrLoad, name, err)
	}
	var records [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %s: read row %d: %w", ErrLoad, name, len(records)+1, err)
		}
		records = append(records, rec)
	}
	t, err := FromRecords(name, header, records, opt)
	if err != nil {
		return nil, err
	}
	t.Delimiter = delim
	return t, nil
}

// FromRecords builds a Table from a header and data records. Short records
// are padded with missing cells; records wider than the header are rejected
// as malformed.
func FromRecords(name string, header []string, records [][]string, opt Options) (*Table, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: %s: no columns", ErrLoad, name)
	}
	t := &Table{
		Name:      name,
		Delimiter: ',',
		Columns:   uniqueColumnNames(header),
		decimal:   opt.DecimalSeparator,
		thousands: opt.ThousandsSeparator,
	}
	ncol := len(t.Columns)
	t.Rows = make([][]string, 0, len(records))
	for i, rec := range records {
		if len(rec) > ncol {
			// Trailing empty fields are tolerated (common in spreadsheet exports).
			extra := rec[ncol:]
			for _, v := range extra {
				if strings.TrimSpace(v) != "" {
					return nil, fmt.Errorf("%w: %s: row %d has %d fields, header has %d", ErrLoad, name, i+1, len(rec), ncol)
				}
			}
			rec = rec[:ncol]
		}
		row := make([]string, ncol)
		for j := range rec {
			v := strings.TrimSpace(rec[j])
			if isMissingToken(v) {
				v = ""
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}
	t.InferKinds()
	return t, nil
}

// uniqueColumnNames trims header cells, names blank ones "Unnamed: <i>" and
// suffixes repeats with ".1", ".2", ...
func uniqueColumnNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if _, dup := seen[name]; dup {
			base, k := name, seen[name]
			for {
				k++
				name = fmt.Sprintf("%s.%d", base, k)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[base] = k
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

// InferKinds recomputes column kinds. A column is numeric when it has at
// least one value and every value parses as a number; otherwise it is
// categorical (including columns that are entirely missing).
func (t *Table) InferKinds() {
	t.Kinds = make([]Kind, len(t.Columns))
	for c := range t.Columns {
		numeric, seen := true, 0
		for _, row := range t.Rows {
			v := row[c]
			if v == "" {
				continue
			}
			seen++
			if _, ok := t.parse(v); !ok {
				numeric = false
				break
			}
		}
		if numeric && seen > 0 {
			t.Kinds[c] = KindNumeric
		} else {
			t.Kinds[c] = KindCategorical
		}
	}
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// ColumnIndex returns the index of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Float returns the numeric value of a cell; ok is false for missing or
// non-numeric cells.
func (t *Table) Float(row, col int) (float64, bool) {
	v := t.Rows[row][col]
	if v == "" {
		return 0, false
	}
	return t.parse(v)
}

// Values returns the parsed non-missing values of a numeric column in row order.
func (t *Table) Values(col int) []float64 {
	out := make([]float64, 0, len(t.Rows))
	for r := range t.Rows {
		if x, ok := t.Float(r, col); ok {
			out = append(out, x)
		}
	}
	return out
}

// Missing counts missing cells in a column.
func (t *Table) Missing(col int) int {
	n := 0
	for _, row := range t.Rows {
		if row[col] == "" {
			n++
		}
	}
	return n
}

// ColumnsOfKind returns column indexes of the given kind in column order.
func (t *Table) ColumnsOfKind(k Kind) []int {
	var out []int
	for i, kind := range t.Kinds {
		if kind == k {
			out = append(out, i)
		}
	}
	return out
}

// Field describes one column of the schema.
type Field struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema returns column names and kinds. It carries no row content.
func (t *Table) Schema() []Field {
	out := make([]Field, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = Field{Name: c, Kind: t.Kinds[i]}
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	cp := *t
	cp.Columns = append([]string(nil), t.Columns...)
	cp.Kinds = append([]Kind(nil), t.Kinds...)
	cp.Rows = make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		cp.Rows[i] = append([]string(nil), r...)
	}
	return &cp
}

// WriteCSV encodes the table (header first) with its delimiter.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if t.Delimiter != 0 {
		cw.Comma = t.Delimiter
	}
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatNumber renders a computed value (an imputed mean) in the shortest
// form that parses back to the same float under the table's number locale.
func (t *Table) FormatNumber(x float64) string {
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if t.decimal == ',' {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}

func (t *Table) parse(s string) (float64, bool) {
	return parseNumeric(s, t.decimal, t.thousands)
}

// sniffDelimiter picks the most frequent candidate in the header line, with
// .tsv files defaulting to tab.
func sniffDelimiter(name string, data []byte) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func parseNumeric(s string, dec, thou rune) (float64, bool) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), "\u00A0", " ")
	if raw == "" {
		return 0, false
	}
	if dec == 0 {
		// auto detect: the right-most of ',' and '.' is the decimal mark
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	// reject forms ParseFloat accepts but a dataset cell should not mean
	if strings.ContainsAny(raw, "xXpP_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
