package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveStage(t *testing.T) {
	m := New()
	m.ObserveStage("validate", "ok", "", 2*time.Second, 120, 30)
	m.ObserveStage("relate", "failed", "network", time.Second, 0, 0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.StageCallsTotal.WithLabelValues("validate", "ok", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StageCallsTotal.WithLabelValues("relate", "failed", "network")))
	require.Equal(t, 120.0, testutil.ToFloat64(m.StageTokens.WithLabelValues("validate", "prompt")))
	require.Equal(t, 2, testutil.CollectAndCount(m.StageTokens), "zero token counts are not recorded")
}

func TestObserveChartAndRun(t *testing.T) {
	m := New()
	m.ObserveChart("heatmap", true)
	m.ObserveChart("heatmap", false)
	m.ObserveChart("box", true)
	m.ObserveClean(100, 97)
	m.ObserveRun(true, 3*time.Second)

	require.Equal(t, 1.0, testutil.ToFloat64(m.ChartsTotal.WithLabelValues("heatmap", "failed")))
	require.Equal(t, 97.0, testutil.ToFloat64(m.RowsProcessed.WithLabelValues("out")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ok")))
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.ObserveChart("bar", true)
	path := filepath.Join(t.TempDir(), "nested", "run.prom")
	require.NoError(t, m.WriteFile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `datacrew_chart_rendered_total{kind="bar",status="ok"} 1`)
}
