package script

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

const twoRules = `
local seen = 0

rules = {
  {
    id = "lua.debugger",
    version = "1.0.0",
    categories = {"style"},
    extensions = {".js"},
    pattern = "debugger",
    initialize = function(cfg)
      if cfg.off then return false, "switched off" end
      return true
    end,
    scan_line = function(path, line_no, text)
      seen = seen + 1
      local col = string.find(text, "debugger", 1, true)
      if col == nil then return nil end
      return {{message = "debugger statement", severity = "high", column = col}}
    end,
  },
  {
    id = "lua.empty_file",
    scan_file = function(path, content)
      if #content == 0 then
        return {{message = "empty file", severity = "low"}}
      end
      return {}
    end,
  },
}
`

func TestLoad_DeclaresRules(t *testing.T) {
	rs, err := Load(twoRules, "two.lua", time.Second)
	require.NoError(t, err)
	require.Len(t, rs, 2)

	assert.Equal(t, "lua.debugger", rs[0].Info().ID)
	assert.Equal(t, "lua.debugger", rs[0].Info().Name)
	assert.Equal(t, "debugger", rs[0].Pattern())
	assert.Equal(t, []string{".js"}, rs[0].Extensions())
	_, isFile := rs[0].(rules.FileScanner)
	assert.False(t, isFile)

	assert.Equal(t, "0.0.0", rs[1].Info().Version)
	assert.Empty(t, rs[1].Pattern())
	_, isFile = rs[1].(rules.FileScanner)
	assert.True(t, isFile)

	for _, r := range rs {
		require.NoError(t, r.Cleanup())
	}
}

func TestRule_ScanLine(t *testing.T) {
	rs, err := Load(twoRules, "two.lua", time.Second)
	require.NoError(t, err)
	r := rs[0]
	require.NoError(t, r.Initialize(map[string]any{"off": false}))

	fs, err := r.ScanLine("app.js", 3, "  debugger;", nil)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, types.Finding{
		RuleID: "lua.debugger", Path: "app.js", Line: 3, Column: 3,
		Message: "debugger statement", Severity: types.SevHigh,
		Tags: []string{"style"}, Snippet: "  debugger;",
	}, fs[0])

	fs, err = r.ScanLine("app.js", 4, "no match here", nil)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestRule_InitializeDeclined(t *testing.T) {
	rs, err := Load(twoRules, "two.lua", time.Second)
	require.NoError(t, err)
	err = rs[0].Initialize(map[string]any{"off": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "switched off")
}

func TestFileRule_ScanFile(t *testing.T) {
	rs, err := Load(twoRules, "two.lua", time.Second)
	require.NoError(t, err)
	fr := rs[1].(rules.FileScanner)

	fs, err := fr.ScanFile("empty.txt", "", nil)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, 0, fs[0].Line)
	assert.Equal(t, types.SevLow, fs[0].Severity)

	fs, err = fr.ScanFile("full.txt", "hello\n", nil)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestLoad_Sandboxed(t *testing.T) {
	for _, src := range []string{
		`os.exit(1)`,
		`io.open("/etc/passwd")`,
		`dofile("/etc/passwd")`,
		`require("os")`,
	} {
		_, err := Load(src, "evil.lua", time.Second)
		assert.Error(t, err, src)
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(`x = 1`, "none.lua", time.Second)
	assert.ErrorContains(t, err, "no rule or rules table")

	_, err = Load(`rule = {`, "syntax.lua", time.Second)
	assert.Error(t, err)

	rs, err := Load(`rules = {
	  {id = "", scan_line = function() end},
	  {id = "lua.nofn"},
	  {id = "lua.ok", scan_line = function() return nil end},
	}`, "mixed.lua", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
	assert.Contains(t, err.Error(), "scan_line or scan_file is required")
	require.Len(t, rs, 1)
	assert.Equal(t, "lua.ok", rs[0].Info().ID)
}

func TestRule_BadReturnIsError(t *testing.T) {
	rs, err := Load(`rule = {id = "lua.bad", scan_line = function() return 42 end}`, "bad.lua", time.Second)
	require.NoError(t, err)
	_, err = rs[0].ScanLine("a", 1, "x", nil)
	assert.Error(t, err)

	rs, err = Load(`rule = {id = "lua.raise", scan_line = function() error("boom") end}`, "raise.lua", time.Second)
	require.NoError(t, err)
	_, err = rs[0].ScanLine("a", 1, "x", nil)
	assert.ErrorContains(t, err, "boom")
}

func TestRule_CallTimeout(t *testing.T) {
	rs, err := Load(`rule = {id = "lua.spin", scan_line = function() while true do end end}`, "spin.lua", 50*time.Millisecond)
	require.NoError(t, err)
	_, err = rs[0].ScanLine("a", 1, "x", nil)
	assert.Error(t, err)
}

func TestRule_CleanupIdempotent(t *testing.T) {
	rs, err := Load(`rule = {id = "lua.one", scan_line = function() return nil end, cleanup = function() end}`, "one.lua", time.Second)
	require.NoError(t, err)
	require.NoError(t, rs[0].Cleanup())
	require.NoError(t, rs[0].Cleanup())

	fs, err := rs[0].ScanLine("a", 1, "x", nil)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "r.lua")
	require.NoError(t, os.WriteFile(p, []byte(twoRules), 0o600))

	rs, err := LoadFile(p)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, p, rs[0].(*Rule).Source())

	_, err = LoadFile(filepath.Join(dir, "missing.lua"))
	assert.Error(t, err)
}
