package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helloscan/helloscan/internal/types"
)

func sampleFindings() []types.Finding {
	return []types.Finding{
		{RuleID: "builtin.todo", Path: "a.py", Line: 3, Column: 3, Message: "TODO found", Severity: types.SevLow, Tags: []string{"code_style"}, Snippet: "# TODO: fix"},
		{RuleID: "builtin.large_file", Path: "big.py", Message: "file has 150 lines", Severity: types.SevLow, Context: map[string]any{"lines": float64(150)}},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "results.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id, err := s.SaveRun(ctx, Run{Root: "/repo", StartedAt: started, Duration: 1500 * time.Millisecond, TotalFiles: 2, ScannedFiles: 2, TotalRules: 7, Partial: true}, sampleFindings())
	require.NoError(t, err)
	assert.Len(t, id, 36)

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 2, runs[0].FindingsCount)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Duration)
	assert.True(t, runs[0].Partial)
	assert.True(t, started.Equal(runs[0].StartedAt))

	fs, err := s.Findings(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sampleFindings(), fs)

	none, err := s.Findings(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_RunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.SaveRun(ctx, Run{ID: NewRunID(), Root: "r", StartedAt: base.Add(time.Duration(i) * time.Hour)}, nil)
		require.NoError(t, err)
	}
	runs, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}

func TestStore_PersistsFingerprints(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	fs := sampleFindings()
	id, err := s.SaveRun(ctx, Run{Root: "r", StartedAt: time.Now()}, fs)
	require.NoError(t, err)

	var got []string
	rows, err := s.db.QueryContext(ctx, "SELECT fingerprint FROM findings WHERE run_id = ? ORDER BY id", id)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var fp string
		require.NoError(t, rows.Scan(&fp))
		got = append(got, fp)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{fs[0].Fingerprint(), fs[1].Fingerprint()}, got)
}
