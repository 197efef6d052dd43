package linesource

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/encoding/htmlindex"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	return root
}

var fixture = map[string]string{
	"main.py":                 "import os\n# TODO: tidy\nprint('x')\n",
	"lib/util.py":             "def f():\n    pass  # FIXME later\n",
	"lib/util.js":             "// TODO js\nconst a = 1;\r\n",
	"node_modules/dep/x.py":   "# TODO vendored\n",
	"build/out.py":            "# TODO generated\n",
	"docs/readme.md":          "todo in lower case\nTODO upper\n",
	"bin/blob.py":             "TODO\x00binary",
	"notes.PY":                "# TODO wrong case ext\n",
	"deep/a/b/c/settings.py":  "password = 'x'\n",
	"deep/a/b/c/settings.txt": "no match here\n",
}

func collect(t *testing.T, st Stream) []Line {
	t.Helper()
	defer st.Close()
	var out []Line
	for st.Next() {
		out = append(out, st.Line())
	}
	require.NoError(t, st.Err())
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func TestFilter_Keep(t *testing.T) {
	f := Filter{IgnoreDirs: []string{"node_modules", ".*cache*"}, Extensions: []string{".py"}}
	assert.True(t, f.Keep("a/b/c.py"))
	assert.False(t, f.Keep("node_modules/x.py"))
	assert.False(t, f.Keep("src/node_modules/x.py"))
	assert.False(t, f.Keep("src/.pytest_cache/x.py"))
	assert.False(t, f.Keep("a/b/c.pyc"))
	assert.False(t, f.Keep("a/b/c.PY"))
	assert.True(t, f.Keep("node_modules.py"), "only directory segments are ignored")
	assert.True(t, Filter{}.Keep(`win\path\file.bin`))
}

func TestFilter_ExtensionIdempotent(t *testing.T) {
	f := Filter{}.WithExtensions([]string{"py", ".js"})
	assert.Equal(t, []string{".py", ".js"}, f.Extensions)
	paths := []string{"a.py", "b.js", "c.go", "d.py.bak"}
	var once []string
	for _, p := range paths {
		if f.Keep(p) {
			once = append(once, p)
		}
	}
	var twice []string
	for _, p := range once {
		if f.Keep(p) {
			twice = append(twice, p)
		}
	}
	assert.Equal(t, []string{"a.py", "b.js"}, once)
	assert.Equal(t, once, twice)
}

func TestInventory(t *testing.T) {
	root := writeTree(t, fixture)
	files, err := Inventory(context.Background(), root, Filter{IgnoreDirs: DefaultIgnoreDirs, Extensions: []string{".py"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bin/blob.py", "deep/a/b/c/settings.py", "lib/util.py", "main.py"}, files)

	_, err = Inventory(context.Background(), filepath.Join(root, "missing"), Filter{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Inventory(ctx, root, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecoder(t *testing.T) {
	d, err := NewDecoder("")
	require.NoError(t, err)
	assert.Equal(t, "héllo", d.String([]byte("héllo")))
	assert.Equal(t, "a�b", d.String([]byte{'a', 0xff, 'b'}))

	latin, err := NewDecoder("windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "café", latin.String([]byte{'c', 'a', 'f', 0xe9}))

	_, err = NewDecoder("klingon-8")
	assert.Error(t, err)
}

func TestIsBinaryAndSplitLines(t *testing.T) {
	assert.True(t, IsBinary([]byte("ab\x00c")))
	assert.False(t, IsBinary([]byte("plain")))
	late := make([]byte, binarySniff+10)
	for i := range late {
		late[i] = 'a'
	}
	late[binarySniff+5] = 0
	assert.False(t, IsBinary(late))

	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb"))
}

func TestParseMatch(t *testing.T) {
	d, _ := NewDecoder("utf-8")
	ln, ok := parseMatch([]byte("./src/a:b.py\x0012:x = 1: y"), d)
	require.True(t, ok)
	assert.Equal(t, Line{Path: "src/a:b.py", Number: 12, Text: "x = 1: y"}, ln)

	ln, ok = parseMatch([]byte(`src\win.py:3:text: more`), d)
	require.True(t, ok)
	assert.Equal(t, Line{Path: "src/win.py", Number: 3, Text: "text: more"}, ln)

	for _, bad := range []string{"", "nocolon", "a.py:x:y", "a.py:0:y", "a.py\x00nonum"} {
		_, ok := parseMatch([]byte(bad), d)
		assert.False(t, ok, bad)
	}
}

func TestEreOf(t *testing.T) {
	cases := []struct {
		in    string
		ere   string
		icase bool
		ok    bool
	}{
		{"TODO|FIXME", "TODO|FIXME", false, true},
		{"(?i)password|todo", "pa(s|\u017f)(s|\u017f)word|todo", true, true},
		{`print\(`, `print\(`, false, true},
		{`(?i)(pwd|api).*=.*["'].*["']`, `(pwd|api).*=.*["'].*["']`, true, true},
		{"密码", "密码", false, true},
		{"a[^x]+b", "a[^x]+b", false, true},
		{"[]a[:digit:]]x", "[]a[:digit:]]x", false, true},
		{"a.b", "", false, false},
		{"a.?b", "", false, false},
		{"a.{2}b", "", false, false},
		{"a[^x]b", "", false, false},
		{"[éa]", "", false, false},
		{"é+", "", false, false},
		{"(?i)密码", "", false, false},
		{"(?i)[a-z]", "", false, false},
		{`[\]]`, "", false, false},
		{"[abc", "", false, false},
		{`\d+`, "", false, false},
		{`\bword\b`, "", false, false},
		{`(?s)a.b`, "", false, false},
		{`a(?:b)`, "", false, false},
		{`a+?`, "", false, false},
		{`a{2,3}?`, "", false, false},
		{`trailing\`, "", false, false},
	}
	for _, c := range cases {
		ere, icase, ok := ereOf(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.ere, ere, c.in)
			assert.Equal(t, c.icase, icase, c.in)
		}
	}
}

func TestLiteralAlternation(t *testing.T) {
	lits, icase, ok := literalAlternation(`(?i)TODO|FIX\.ME`)
	require.True(t, ok)
	assert.True(t, icase)
	assert.Equal(t, []string{"TODO", "FIX.ME"}, lits)

	for _, bad := range []string{"", "a|", "a.b", `\d`, "(a|b)", "x*"} {
		_, _, ok := literalAlternation(bad)
		assert.False(t, ok, bad)
	}
}

func TestToolArgs(t *testing.T) {
	g := &grepTier{ignoreDirs: []string{".git", "node_modules"}}
	args, ok := g.args(query{pattern: "(?i)todo", exts: []string{".py", ".js"}})
	require.True(t, ok)
	assert.Equal(t, []string{
		"-r", "-n", "-I", "--null", "--binary-files=without-match", "-E", "-i",
		"--include=*.py", "--include=*.js",
		"--exclude-dir=.git", "--exclude-dir=node_modules",
		"-e", "todo", ".",
	}, args)
	_, ok = g.args(query{pattern: `\d`})
	assert.False(t, ok)

	f := &findstrTier{}
	args, ok = f.args(query{pattern: "TODO|FIXME"})
	require.True(t, ok)
	assert.Equal(t, []string{"/S", "/N", "/P", "/L", "/C:TODO", "/C:FIXME", "*"}, args)
	args, ok = f.args(query{pattern: "(?i)todo", exts: []string{".py"}})
	require.True(t, ok)
	assert.Equal(t, []string{"/S", "/N", "/P", "/L", "/I", "/C:todo", "*.py"}, args)
	for _, bad := range []string{"a.*b", "密码", "(?i)key"} {
		_, ok = f.args(query{pattern: bad})
		assert.False(t, ok, bad)
	}
}

func TestScan_Walk(t *testing.T) {
	root := writeTree(t, fixture)
	s, err := New(Options{DisableTools: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"walk"}, s.Tiers())

	st, err := s.Scan(context.Background(), root, "TODO|FIXME", []string{"py", ".js"})
	require.NoError(t, err)
	assert.Equal(t, []Line{
		{Path: "lib/util.js", Number: 1, Text: "// TODO js"},
		{Path: "lib/util.py", Number: 2, Text: "    pass  # FIXME later"},
		{Path: "main.py", Number: 2, Text: "# TODO: tidy"},
	}, collect(t, st))

	st, err = s.Scan(context.Background(), root, "(?i)^todo", []string{".md"})
	require.NoError(t, err)
	assert.Len(t, collect(t, st), 2)

	_, err = s.Scan(context.Background(), root, "(", nil)
	assert.Error(t, err)
}

func TestScan_GrepMatchesWalk(t *testing.T) {
	if _, err := exec.LookPath("grep"); err != nil {
		t.Skip("grep not available")
	}
	root := writeTree(t, fixture)
	withTools, err := New(Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, "grep", withTools.Tiers()[0])
	walkOnly, err := New(Options{DisableTools: true}, nil)
	require.NoError(t, err)

	for _, c := range []struct {
		pattern string
		exts    []string
	}{
		{"TODO|FIXME", nil},
		{"TODO", []string{".py"}},
		{"(?i)password|token", nil},
		{"(?i)todo", []string{".md", ".js"}},
		{`\d`, nil},
		{`\bTODO\b`, []string{".py"}},
	} {
		a, err := withTools.Scan(context.Background(), root, c.pattern, c.exts)
		require.NoError(t, err)
		b, err := walkOnly.Scan(context.Background(), root, c.pattern, c.exts)
		require.NoError(t, err)
		assert.Equal(t, collect(t, b), collect(t, a), c.pattern)
	}
}

func TestScan_GrepMatchesWalkOnNonASCII(t *testing.T) {
	if _, err := exec.LookPath("grep"); err != nil {
		t.Skip("grep not available")
	}
	root := writeTree(t, map[string]string{
		"uni.py":   "x = 'aéb'\nname = '密码'\nunit = 'Kelvin \u212a'\nlong = 'pa\u017f\u017fword'\n",
		"plain.py": "x = 'axb'\ny = 'a b'\n",
		"bad.py":   "raw = 'a\xffb'\n",
	})
	withTools, err := New(Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, "grep", withTools.Tiers()[0])
	walkOnly, err := New(Options{DisableTools: true}, nil)
	require.NoError(t, err)

	for _, pattern := range []string{
		"a.b", "a.?b", "a[^x]b", "a[^x]+b", "a.*b", "a.+b",
		"密码", "[密]", "é+", "(?i)kelvin k", "(?i)password", "(?i)[k]",
	} {
		a, err := withTools.Scan(context.Background(), root, pattern, nil)
		require.NoError(t, err)
		b, err := walkOnly.Scan(context.Background(), root, pattern, nil)
		require.NoError(t, err)
		want := collect(t, b)
		assert.NotEmpty(t, want, pattern)
		assert.Equal(t, want, collect(t, a), pattern)
	}
}

func TestScan_LegacyEncodingUsesWalk(t *testing.T) {
	gbk, err := htmlindex.Get("gbk")
	require.NoError(t, err)
	body, err := gbk.NewEncoder().String("# 密码 = 'hunter2'\nprint(1)\n")
	require.NoError(t, err)
	root := writeTree(t, map[string]string{"cfg.py": body})

	s, err := New(Options{Encoding: "gbk"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"walk"}, s.Tiers(), "byte-matching tools are not used for non UTF-8 files")

	st, err := s.Scan(context.Background(), root, "密码", nil)
	require.NoError(t, err)
	assert.Equal(t, []Line{{Path: "cfg.py", Number: 1, Text: "# 密码 = 'hunter2'"}}, collect(t, st))
}

func fakeGrep(t *testing.T, script string) string {
	t.Helper()
	shell(t)
	p := filepath.Join(t.TempDir(), "grep")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755))
	return p
}

func TestScan_GrepSkipsUnreadableFiles(t *testing.T) {
	grep := fakeGrep(t, `printf './a.py\000%s\n' '1:# TODO here'
echo 'grep: ./locked.py: Permission denied' >&2
exit 2
`)
	root := writeTree(t, map[string]string{"a.py": "# TODO here\n"})
	core, logs := observer.New(zap.WarnLevel)
	s, err := New(Options{GrepPath: grep}, zap.New(core))
	require.NoError(t, err)
	require.Equal(t, "grep", s.Tiers()[0])

	st, err := s.Scan(context.Background(), root, "TODO", nil)
	require.NoError(t, err)
	assert.Equal(t, []Line{{Path: "a.py", Number: 1, Text: "# TODO here"}}, collect(t, st))

	skipped := logs.FilterMessage("skipped unreadable file").All()
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].ContextMap()["detail"], "./locked.py")
	assert.Zero(t, logs.FilterMessageSnippet("partial").Len())
}

func TestScan_GrepUsageErrorIsNotSkipped(t *testing.T) {
	grep := fakeGrep(t, `printf './a.py\000%s\n' '1:# TODO here'
echo 'grep: ./locked.py: Permission denied' >&2
echo 'grep: memory exhausted' >&2
exit 2
`)
	root := writeTree(t, map[string]string{"a.py": "# TODO here\n"})
	s, err := New(Options{GrepPath: grep}, nil)
	require.NoError(t, err)

	st, err := s.Scan(context.Background(), root, "TODO", nil)
	require.NoError(t, err)
	defer st.Close()
	for st.Next() {
	}
	assert.ErrorIs(t, st.Err(), ErrPartial)
	assert.ErrorContains(t, st.Err(), "memory exhausted")
}

func TestWalk_LogsUnreadableFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "TODO\n"})
	dec, _ := NewDecoder("")
	core, logs := observer.New(zap.WarnLevel)
	ctx, cancel := context.WithCancel(context.Background())
	s := &walkStream{
		log: zap.New(core), parent: context.Background(), tctx: ctx, cancel: cancel,
		root: root, re: regexp.MustCompile("TODO"), dec: dec,
		files: []string{"gone.py", "a.py"},
	}
	defer s.Close()

	require.True(t, s.Next())
	assert.Equal(t, Line{Path: "a.py", Number: 1, Text: "TODO"}, s.Line())
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())

	skipped := logs.FilterMessage("skipped unreadable file").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "gone.py", skipped[0].ContextMap()["path"])
}

type sliceStream struct {
	lines  []Line
	i      int
	err    error
	closed bool
}

func (s *sliceStream) Next() bool {
	if s.i >= len(s.lines) {
		return false
	}
	s.i++
	return true
}
func (s *sliceStream) Line() Line   { return s.lines[s.i-1] }
func (s *sliceStream) Err() error   { return s.err }
func (s *sliceStream) Close() error { s.closed = true; return nil }

type sliceTier struct {
	label    string
	lines    []Line
	err      error
	startErr error
	started  int
}

func (t *sliceTier) name() string { return t.label }

func (t *sliceTier) start(context.Context, query) (Stream, error) {
	t.started++
	if t.startErr != nil {
		return nil, t.startErr
	}
	return &sliceStream{lines: t.lines, err: t.err}, nil
}

func chainOf(tiers ...tier) *chain {
	return &chain{ctx: context.Background(), log: zap.NewNop(), filter: Filter{IgnoreDirs: DefaultIgnoreDirs}, tiers: tiers}
}

func drain(c *chain) []Line {
	var out []Line
	for c.Next() {
		out = append(out, c.Line())
	}
	return out
}

func TestChain_FallsBackBeforeFirstLine(t *testing.T) {
	declined := &sliceTier{label: "declined", startErr: errDeclined}
	broken := &sliceTier{label: "broken", startErr: errors.New("exec failed")}
	silent := &sliceTier{label: "silent", err: errors.New("exit 2")}
	good := &sliceTier{label: "good", lines: []Line{{Path: "a.py", Number: 1, Text: "x"}}}
	c := chainOf(declined, broken, silent, good)

	assert.Equal(t, []Line{{Path: "a.py", Number: 1, Text: "x"}}, drain(c))
	assert.NoError(t, c.Err())
	assert.Equal(t, 1, good.started)
}

func TestChain_KeepsPartialAfterLines(t *testing.T) {
	flaky := &sliceTier{label: "flaky", lines: []Line{{Path: "a.py", Number: 1}}, err: errors.New("read error")}
	next := &sliceTier{label: "next"}
	c := chainOf(flaky, next)

	assert.Len(t, drain(c), 1)
	assert.ErrorIs(t, c.Err(), ErrPartial)
	assert.Equal(t, 0, next.started)
}

func TestChain_TimeoutIsTerminal(t *testing.T) {
	slow := &sliceTier{label: "slow", lines: []Line{{Path: "a.py", Number: 1}}, err: ErrTimeout}
	next := &sliceTier{label: "next"}
	c := chainOf(slow, next)

	assert.Len(t, drain(c), 1)
	assert.ErrorIs(t, c.Err(), ErrTimeout)
	assert.Equal(t, 0, next.started)
}

func TestChain_AllTiersFail(t *testing.T) {
	c := chainOf(&sliceTier{label: "a", startErr: errors.New("nope")}, &sliceTier{label: "b", err: errors.New("nope")})
	assert.Empty(t, drain(c))
	assert.ErrorIs(t, c.Err(), ErrNoLineSource)
	assert.False(t, c.Next())
}

func TestChain_PostFiltersEveryTier(t *testing.T) {
	tool := &sliceTier{label: "tool", lines: []Line{
		{Path: "node_modules/x.py", Number: 1},
		{Path: "src/ok.py", Number: 2},
		{Path: "src/skip.txt", Number: 3},
	}}
	c := chainOf(tool)
	c.filter = c.filter.WithExtensions([]string{".py"})
	assert.Equal(t, []Line{{Path: "src/ok.py", Number: 2}}, drain(c))
}

func TestChain_CloseEarly(t *testing.T) {
	tool := &sliceTier{label: "tool", lines: []Line{{Path: "a.py", Number: 1}, {Path: "a.py", Number: 2}}}
	c := chainOf(tool)
	require.True(t, c.Next())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.Next())
}

func TestWalk_Timeout(t *testing.T) {
	root := writeTree(t, fixture)
	dec, _ := NewDecoder("")
	w := &walkTier{timeout: time.Nanosecond, dec: dec}
	q := query{root: root, pattern: "TODO"}
	st, err := w.start(context.Background(), q)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	for st.Next() {
	}
	assert.ErrorIs(t, st.Err(), ErrTimeout)
}

func shell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestProc_TimeoutKeepsStreamedLines(t *testing.T) {
	sh := shell(t)
	dec, _ := NewDecoder("")
	p, err := startProc(context.Background(), nil, "sh", sh, t.TempDir(), 300*time.Millisecond, dec,
		[]string{"-c", "printf 'a.py:1:first\\n'; exec sleep 10"})
	require.NoError(t, err)
	defer p.Close()

	require.True(t, p.Next())
	assert.Equal(t, Line{Path: "a.py", Number: 1, Text: "first"}, p.Line())
	assert.False(t, p.Next())
	assert.ErrorIs(t, p.Err(), ErrTimeout)
}

func TestProc_ExitCodes(t *testing.T) {
	sh := shell(t)
	dec, _ := NewDecoder("")

	p, err := startProc(context.Background(), nil, "sh", sh, t.TempDir(), time.Minute, dec, []string{"-c", "exit 1"})
	require.NoError(t, err)
	assert.False(t, p.Next())
	assert.NoError(t, p.Err(), "exit 1 means no match")

	p, err = startProc(context.Background(), nil, "sh", sh, t.TempDir(), time.Minute, dec, []string{"-c", "echo broken >&2; exit 2"})
	require.NoError(t, err)
	assert.False(t, p.Next())
	assert.ErrorContains(t, p.Err(), "broken")
}

func TestProc_CloseKillsProcess(t *testing.T) {
	sh := shell(t)
	dec, _ := NewDecoder("")
	p, err := startProc(context.Background(), nil, "sh", sh, t.TempDir(), 0, dec, []string{"-c", "exec sleep 30"})
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		_ = p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not reap the subprocess")
	}
	assert.NoError(t, p.Close())
}
