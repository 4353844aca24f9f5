package clean

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, text string) *analysis.Table {
	t.Helper()
	tb, err := analysis.ParseCSV("t.csv", []byte(text), analysis.DefaultOptions())
	require.NoError(t, err)
	return tb
}

// employees builds 97 distinct rows plus 3 exact duplicates; department is
// missing once.
func employees() string {
	depts := []string{"Sales", "Engineering", "HR", "Sales"}
	var b strings.Builder
	b.WriteString("age,income,department\n")
	var rows []string
	for i := 0; i < 97; i++ {
		dept := depts[i%4]
		if i == 5 {
			dept = ""
		}
		rows = append(rows, fmt.Sprintf("%d,%d,%s", 20+i%40, 30000+i*137, dept))
	}
	rows = append(rows, rows[0], rows[1], rows[2])
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
	return b.String()
}

func missingCells(t *analysis.Table) int {
	n := 0
	for c := range t.Columns {
		n += t.Missing(c)
	}
	return n
}

func TestCleanEmployeesScenario(t *testing.T) {
	in := parse(t, employees())
	require.Equal(t, 100, in.NumRows())
	require.Equal(t, []analysis.Kind{analysis.KindNumeric, analysis.KindNumeric, analysis.KindCategorical}, in.Kinds)

	out, log := Clean(in)
	require.Equal(t, 97, out.NumRows())
	require.Zero(t, missingCells(out))
	require.Equal(t, "Sales", out.Rows[5][2])
	require.Equal(t, 100, log.RowsIn)
	require.Equal(t, 97, log.RowsOut)

	want := []Step{
		{Action: ActionDedupe, Count: 3},
		{Action: ActionImputeMode, Column: "department", Count: 1, Value: "Sales"},
	}
	if diff := cmp.Diff(want, log.Steps); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
	require.Contains(t, log.Text(), `Filled 1 missing value in "department" with the most frequent value "Sales"`)
	require.Equal(t, 0, analysis.DuplicateRows(out))
}

func TestCleanDoesNotMutateInput(t *testing.T) {
	in := parse(t, "a,b\n1,x\n1,x\n,y\n")
	before := in.Clone()
	_, _ = Clean(in)
	if diff := cmp.Diff(before.Rows, in.Rows); diff != "" {
		t.Fatalf("input mutated (-before +after):\n%s", diff)
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	in := parse(t, employees()+"51,,Sales\n,42000,\n")
	once, _ := Clean(in)
	twice, log := Clean(once)
	if diff := cmp.Diff(once.Rows, twice.Rows); diff != "" {
		t.Fatalf("second clean changed rows (-once +twice):\n%s", diff)
	}
	require.Empty(t, log.Steps)
	require.Contains(t, log.Text(), "No duplicates or missing values found")
}

func TestMeanComputedAfterDedupe(t *testing.T) {
	out, _ := Clean(parse(t, "x,y\n1,a\n1,a\n1,a\n4,b\n,c\n"))
	require.Equal(t, [][]string{{"1", "a"}, {"4", "b"}, {"2.5", "c"}}, out.Rows)
}

func TestAllMissingCategoricalGetsSentinel(t *testing.T) {
	out, log := Clean(parse(t, "a,b\n1,\n2,\n"))
	require.Equal(t, [][]string{{"1", Sentinel}, {"2", Sentinel}}, out.Rows)
	require.Equal(t, ActionImputeSentinel, log.Steps[0].Action)
}

func TestModeTieBreaksLexicographically(t *testing.T) {
	out, _ := Clean(parse(t, "k,c\n1,b\n2,a\n3,\n"))
	require.Equal(t, "a", out.Rows[2][1])
}

func TestImputationDuplicatesAreRemoved(t *testing.T) {
	out, log := Clean(parse(t, "x,y\n1,5\n1,\n"))
	require.Equal(t, [][]string{{"1", "5"}}, out.Rows)
	require.Equal(t, ActionDedupeImputed, log.Steps[len(log.Steps)-1].Action)
}

func TestCommaDecimalMeanStaysParseable(t *testing.T) {
	opt := analysis.DefaultOptions()
	opt.DecimalSeparator = ','
	opt.ThousandsSeparator = '.'
	in, err := analysis.ParseCSV("t.csv", []byte("v;k\n1,5;a\n2,5;b\n;c\n"), opt)
	require.NoError(t, err)
	out, _ := Clean(in)
	require.Equal(t, "2", out.Rows[2][0])
	in2, err := analysis.ParseCSV("t.csv", []byte("v;k\n1,5;a\n2;b\n;c\n"), opt)
	require.NoError(t, err)
	out2, _ := Clean(in2)
	require.Equal(t, "1,75", out2.Rows[2][0])
	x, ok := out2.Float(2, 0)
	require.True(t, ok)
	require.InDelta(t, 1.75, x, 1e-12)
}

func TestPersistIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	in := parse(t, employees())
	a, _ := Clean(in)
	b, _ := Clean(in)
	pa, pb := filepath.Join(dir, "a", "cleaned.csv"), filepath.Join(dir, "b", "cleaned.csv")
	require.NoError(t, Persist(pa, a))
	require.NoError(t, Persist(pb, b))
	ba, err := os.ReadFile(pa)
	require.NoError(t, err)
	bb, err := os.ReadFile(pb)
	require.NoError(t, err)
	require.Equal(t, string(ba), string(bb))
	require.True(t, strings.HasPrefix(string(ba), "age,income,department\n"))

	reloaded, err := analysis.Load(pa, analysis.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 97, reloaded.NumRows())
	require.Zero(t, missingCells(reloaded))
}
