package declarative

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helloscan/helloscan/internal/types"
)

const sample = `
rules:
  - id: custom.no_print
    version: 1.2.0
    categories: [style]
    extensions: [.py]
    pattern: print
    match: 'print\('
    severity: low
    message: print call
  - id: custom.no_eval
    match: 'eval\('
  - id: ""
    pattern: x
  - id: custom.broken
    match: '('
`

func TestParse_SkipsInvalidEntries(t *testing.T) {
	rs, err := Parse([]byte(sample), "sample.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules[2]")
	assert.Contains(t, err.Error(), "rules[3]")
	require.Len(t, rs, 2)

	first := rs[0]
	assert.Equal(t, "custom.no_print", first.Info().ID)
	assert.Equal(t, "1.2.0", first.Info().Version)
	assert.Equal(t, "print", first.Pattern())
	assert.Equal(t, []string{".py"}, first.Extensions())

	second := rs[1]
	assert.Empty(t, second.Pattern(), "match-only rules are not prefiltered")
	assert.Equal(t, "0.0.0", second.Info().Version)
}

func TestRule_ScanLine(t *testing.T) {
	rs, _ := Parse([]byte(sample), "sample.yaml")
	r := rs[0]
	require.NoError(t, r.Initialize(nil))

	fs, err := r.ScanLine("a.py", 4, "    print(x)", nil)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, types.Finding{
		RuleID: "custom.no_print", Path: "a.py", Line: 4, Column: 5,
		Message: "print call", Severity: types.SevLow, Tags: []string{"style"}, Snippet: "print(",
	}, fs[0])

	fs, err = r.ScanLine("a.py", 5, "printer = 1", nil)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestRule_InitializeOverrides(t *testing.T) {
	rs, _ := Parse([]byte(sample), "sample.yaml")
	r := rs[0]
	require.NoError(t, r.Initialize(map[string]any{"severity": "critical", "message": "no prints"}))
	fs, _ := r.ScanLine("a.py", 1, "print(1)", nil)
	require.Len(t, fs, 1)
	assert.Equal(t, types.SevCritical, fs[0].Severity)
	assert.Equal(t, "no prints", fs[0].Message)

	assert.Error(t, rs[1].Initialize(map[string]any{"severity": "meh"}))
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(p, []byte("rules:\n  - id: a\n    pattern: x\n"), 0644))
	rs, err := LoadFile(p)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, p, rs[0].(*Rule).Source())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(p, []byte("rules: {unclosed"), 0644))
	_, err = LoadFile(p)
	assert.Error(t, err)
}
