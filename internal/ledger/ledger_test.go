package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func sampleRun(id string, started time.Time) Run {
	return Run{
		ID: id, Input: "employees.csv", OutputDir: "outputs", Provider: "groq", Model: "llama-3.3-70b-versatile",
		RowsIn: 100, RowsOut: 97, Charts: 6,
		StartedAt: started, FinishedAt: started.Add(12 * time.Second),
		Stages: []Stage{
			{Stage: "clean", Status: "ok", Attempts: 0},
			{Stage: "validate", Status: "ok", Attempts: 1, Duration: 1500 * time.Millisecond, Tokens: 210},
			{Stage: "relate", Status: "failed", ErrorKind: "network", Attempts: 2, Duration: 3 * time.Second},
		},
	}
}

func TestRecordAndRecent(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(ctx, sampleRun("a", base)))
	require.NoError(t, s.Record(ctx, sampleRun("b", base.Add(time.Hour))))

	runs, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "b", runs[0].ID)
	if diff := cmp.Diff(sampleRun("a", base), runs[1]); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, runs[1].Failed())

	one, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
}

func TestRecordReplacesSameID(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	r := sampleRun("a", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.Record(ctx, r))
	r.Stages = r.Stages[:1]
	r.Charts = 4
	require.NoError(t, s.Record(ctx, r))

	runs, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 4, runs[0].Charts)
	require.Len(t, runs[0].Stages, 1)
}

func TestReopenKeepsHistory(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Record(context.Background(), sampleRun("a", time.Now().UTC())))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	runs, err := s2.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
