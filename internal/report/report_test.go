package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helloscan/helloscan/internal/types"
)

func sample() []types.Finding {
	return []types.Finding{
		{RuleID: "security.weak_crypto", Path: "b.py", Line: 7, Column: 5, Message: "weak algorithm MD5", Severity: types.SevMed},
		{RuleID: "builtin.todo", Path: "a.py", Line: 3, Message: "TODO found", Severity: types.SevLow},
		{RuleID: "builtin.large_file", Path: "big.py", Message: "file has 150 lines", Severity: types.SevLow},
	}
}

func TestPrintText_NoFindings_ShowsFooter(t *testing.T) {
	var buf bytes.Buffer
	PrintText(&buf, nil, PrintOptions{Duration: 1200 * time.Millisecond, FilesScanned: 10, TotalFiles: 12})
	out := buf.String()
	if !strings.Contains(out, "No findings") {
		t.Fatalf("expected friendly no-findings message; got: %q", out)
	}
	if !strings.Contains(out, "Files scanned: 10 of 12") {
		t.Fatalf("expected footer with files scanned; got: %q", out)
	}
}

func TestPrintText_WithFindings(t *testing.T) {
	var buf bytes.Buffer
	PrintText(&buf, sample(), PrintOptions{NoColor: true, Partial: true, FilesScanned: 3})
	out := buf.String()
	assert.Contains(t, out, "Findings: 3")
	assert.Contains(t, out, "a.py:3  builtin.todo")
	assert.Contains(t, out, "big.py  builtin.large_file")
	assert.Contains(t, out, "results are partial")
	assert.NotContains(t, out, "\x1b[")
	assert.Less(t, strings.Index(out, "a.py:3"), strings.Index(out, "b.py:7"), "sorted by path")
}

func TestPrintTable_WithFindings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, sample(), PrintOptions{NoColor: true}))
	out := buf.String()
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "builtin.todo")
	assert.Contains(t, out, "b.py:7")
}

func TestPrintTable_NoFindings_ShowsFooter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, nil, PrintOptions{Duration: time.Second, FilesScanned: 10, TotalFiles: 10, TotalRules: 4}))
	out := buf.String()
	assert.Contains(t, out, "No findings")
	assert.Contains(t, out, "Rules: 4")
}

func TestSeverityLabel_Colored(t *testing.T) {
	assert.Contains(t, severityLabel(types.SevHigh, false), "\x1b[")
	assert.Equal(t, "high", severityLabel(types.SevHigh, true))
}

func TestColorEnabled_NonTTY(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, ColorEnabled(&buf, false))
	assert.False(t, ColorEnabled(&buf, true))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, sample()[:1]))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "security.weak_crypto", got[0]["rule_id"])
	assert.Equal(t, float64(7), got[0]["line"])
}

func TestWriteSARIF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSARIF(&buf, sample(), "1.2.3"))

	var doc sarif
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	run := doc.Runs[0]
	assert.Equal(t, "helloscan", run.Tool.Driver.Name)
	assert.Equal(t, "1.2.3", run.Tool.Driver.Version)
	assert.Len(t, run.Tool.Driver.Rules, 3)
	require.Len(t, run.Results, 3)

	assert.Equal(t, "warning", run.Results[0].Level)
	require.NotNil(t, run.Results[0].Locations[0].PhysicalLocation.Region)
	assert.Equal(t, 7, run.Results[0].Locations[0].PhysicalLocation.Region.StartLine)
	assert.Equal(t, 5, run.Results[0].Locations[0].PhysicalLocation.Region.StartColumn)
	assert.Nil(t, run.Results[2].Locations[0].PhysicalLocation.Region, "file-level findings have no region")
	assert.Equal(t, "note", run.Results[2].Level)
}

func TestWriteSARIF_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSARIF(&buf, nil, "dev"))
	assert.Contains(t, buf.String(), `"results": []`)
}

func TestBaseline_RoundTripAndFilter(t *testing.T) {
	p := filepath.Join(t.TempDir(), "baseline.json")
	fs := sample()
	require.NoError(t, SaveBaseline(p, fs[:2]))

	base, err := LoadBaseline(p)
	require.NoError(t, err)
	assert.Len(t, base.Items, 2)

	moved := fs[1]
	moved.Line = 99
	got := FilterNewFindings([]types.Finding{fs[0], moved, fs[2]}, base)
	require.Len(t, got, 1)
	assert.Equal(t, "builtin.large_file", got[0].RuleID)

	missing, err := LoadBaseline(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
	assert.NotNil(t, missing.Items)
}

func TestShouldFail(t *testing.T) {
	fs := sample()
	assert.True(t, ShouldFail(fs, "medium"))
	assert.True(t, ShouldFail(fs, ""))
	assert.False(t, ShouldFail(fs, "high"))
	assert.True(t, ShouldFail(fs, "low"))
	assert.False(t, ShouldFail(nil, "low"))
	assert.True(t, ShouldFail([]types.Finding{{Severity: types.SevCritical}}, "critical"))
}
