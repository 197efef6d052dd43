// Package script loads rules written in Lua. Scripts run in a restricted
// interpreter: only the base, table, string and math libraries are available
// and file-loading builtins are removed.
//
// A script declares one rule in the global "rule" or several in "rules":
//
//	rule = {
//	  id = "lua.no_debugger",
//	  version = "1.0.0",
//	  extensions = {".js"},
//	  pattern = "debugger",
//	  scan_line = function(path, line_no, text)
//	    return {{message = "debugger statement", severity = "high"}}
//	  end,
//	}
//
// Optional functions: initialize(config) returning false[, reason] to opt
// out, scan_file(path, content) for pattern-less whole-file rules, and
// cleanup().
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

// DefaultCallTimeout bounds a single call into a script.
const DefaultCallTimeout = 5 * time.Second

var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "module", "require", "collectgarbage"}

// module is one interpreter shared by the rules a script declares. Lua
// states are not safe for concurrent use, so every call holds mu.
type module struct {
	mu      sync.Mutex
	L       *lua.LState
	source  string
	timeout time.Duration
	refs    int
}

// LoadFile executes the script at path and returns the rules it declares.
func LoadFile(path string) ([]rules.Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(string(b), path, DefaultCallTimeout)
}

// Load executes src and returns the rules it declares. Invalid declarations
// are skipped and reported in the joined error.
func Load(src, source string, timeout time.Duration) ([]rules.Rule, error) {
	L, err := newSandbox()
	if err != nil {
		return nil, err
	}
	m := &module{L: L, source: source, timeout: timeout}

	ctx, cancel := m.callContext()
	L.SetContext(ctx)
	err = L.DoString(src)
	L.RemoveContext()
	cancel()
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	var decls []*lua.LTable
	if t, ok := L.GetGlobal("rule").(*lua.LTable); ok {
		decls = append(decls, t)
	}
	if t, ok := L.GetGlobal("rules").(*lua.LTable); ok {
		for i := 1; i <= t.Len(); i++ {
			if rt, ok := t.RawGetInt(i).(*lua.LTable); ok {
				decls = append(decls, rt)
			}
		}
	}
	if len(decls) == 0 {
		L.Close()
		return nil, fmt.Errorf("%s: no rule or rules table declared", source)
	}

	var out []rules.Rule
	var errs []error
	for i, d := range decls {
		r, err := m.newRule(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: rule %d: %w", source, i+1, err))
			continue
		}
		m.refs++
		out = append(out, r)
	}
	if m.refs == 0 {
		L.Close()
	}
	return out, errors.Join(errs...)
}

func newSandbox() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua library %s: %w", lib.name, err)
		}
	}
	for _, g := range removedGlobals {
		L.SetGlobal(g, lua.LNil)
	}
	return L, nil
}

func (m *module) callContext() (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), m.timeout)
}

// call invokes fn with args and returns nret results. Callers hold m.mu.
func (m *module) call(fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	ctx, cancel := m.callContext()
	defer cancel()
	m.L.SetContext(ctx)
	defer m.L.RemoveContext()

	if err := m.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return nil, err
	}
	out := make([]lua.LValue, nret)
	for i := 0; i < nret; i++ {
		out[i] = m.L.Get(-nret + i)
	}
	m.L.Pop(nret)
	return out, nil
}

func (m *module) release() {
	m.refs--
	if m.refs == 0 {
		m.L.Close()
	}
}

func (m *module) newRule(t *lua.LTable) (rules.Rule, error) {
	info := rules.Info{
		ID:          str(t, "id"),
		Name:        str(t, "name"),
		Version:     str(t, "version"),
		Description: str(t, "description"),
		Author:      str(t, "author"),
		Categories:  strList(t, "categories"),
	}
	if info.ID == "" {
		return nil, errors.New("id is required")
	}
	if info.Name == "" {
		info.Name = info.ID
	}
	if info.Version == "" {
		info.Version = "0.0.0"
	}
	r := &Rule{
		mod:      m,
		info:     info,
		exts:     strList(t, "extensions"),
		pattern:  str(t, "pattern"),
		initFn:   fn(t, "initialize"),
		lineFn:   fn(t, "scan_line"),
		cleanFn:  fn(t, "cleanup"),
		fileFunc: fn(t, "scan_file"),
	}
	if r.lineFn == nil && r.fileFunc == nil {
		return nil, fmt.Errorf("rule %s: scan_line or scan_file is required", info.ID)
	}
	if r.fileFunc != nil {
		return &FileRule{Rule: r}, nil
	}
	return r, nil
}

// Rule is a rules.Rule implemented by Lua functions.
type Rule struct {
	mod      *module
	info     rules.Info
	exts     []string
	pattern  string
	initFn   *lua.LFunction
	lineFn   *lua.LFunction
	cleanFn  *lua.LFunction
	fileFunc *lua.LFunction
	closed   bool
}

var _ rules.Rule = (*Rule)(nil)

func (r *Rule) Info() rules.Info     { return r.info }
func (r *Rule) Extensions() []string { return r.exts }
func (r *Rule) Pattern() string      { return r.pattern }

// Source returns the script path.
func (r *Rule) Source() string { return r.mod.source }

func (r *Rule) Initialize(cfg map[string]any) error {
	if r.initFn == nil {
		return nil
	}
	r.mod.mu.Lock()
	defer r.mod.mu.Unlock()
	ret, err := r.mod.call(r.initFn, 2, toLua(r.mod.L, cfg))
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if ret[0] == lua.LFalse {
		if reason := lua.LVAsString(ret[1]); reason != "" {
			return fmt.Errorf("initialize declined: %s", reason)
		}
		return errors.New("initialize declined")
	}
	return nil
}

func (r *Rule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	if r.lineFn == nil {
		return nil, nil
	}
	r.mod.mu.Lock()
	defer r.mod.mu.Unlock()
	if r.closed {
		return nil, nil
	}
	ret, err := r.mod.call(r.lineFn, 1, lua.LString(path), lua.LNumber(lineNo), lua.LString(line))
	if err != nil {
		return nil, fmt.Errorf("scan_line: %w", err)
	}
	return r.findings(ret[0], path, lineNo, line)
}

func (r *Rule) Cleanup() error {
	r.mod.mu.Lock()
	defer r.mod.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.cleanFn != nil {
		if _, cerr := r.mod.call(r.cleanFn, 0); cerr != nil {
			err = fmt.Errorf("cleanup: %w", cerr)
		}
	}
	r.mod.release()
	return err
}

// FileRule is a scripted rule that also defines scan_file.
type FileRule struct {
	*Rule
}

var _ rules.FileScanner = (*FileRule)(nil)

func (r *FileRule) ScanFile(path string, content string, _ *rules.ScanContext) ([]types.Finding, error) {
	r.mod.mu.Lock()
	defer r.mod.mu.Unlock()
	if r.closed {
		return nil, nil
	}
	ret, err := r.mod.call(r.fileFunc, 1, lua.LString(path), lua.LString(content))
	if err != nil {
		return nil, fmt.Errorf("scan_file: %w", err)
	}
	return r.findings(ret[0], path, 0, "")
}

// findings converts a returned Lua value: nil or false means none, a table
// of tables is a list of findings.
func (r *Rule) findings(v lua.LValue, path string, lineNo int, line string) ([]types.Finding, error) {
	switch v.Type() {
	case lua.LTNil:
		return nil, nil
	case lua.LTBool:
		if v == lua.LFalse {
			return nil, nil
		}
	case lua.LTTable:
	default:
		return nil, fmt.Errorf("expected a table of findings, got %s", v.Type())
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("expected a table of findings, got %s", v.Type())
	}
	var out []types.Finding
	for i := 1; i <= t.Len(); i++ {
		ft, ok := t.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("finding %d: expected table", i)
		}
		f, err := r.finding(ft, path, lineNo, line)
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *Rule) finding(t *lua.LTable, path string, lineNo int, line string) (types.Finding, error) {
	sev := types.SevMed
	if s := str(t, "severity"); s != "" {
		var err error
		if sev, err = types.ParseSeverity(s); err != nil {
			return types.Finding{}, err
		}
	}
	f := types.Finding{
		RuleID:     r.info.ID,
		Path:       path,
		Line:       lineNo,
		Column:     num(t, "column"),
		Message:    str(t, "message"),
		Severity:   sev,
		Tags:       append(append([]string(nil), r.info.Categories...), strList(t, "tags")...),
		Suggestion: str(t, "suggestion"),
		Snippet:    str(t, "snippet"),
	}
	if n := num(t, "line"); n > 0 {
		f.Line = n
	}
	if f.Snippet == "" && line != "" {
		f.Snippet = line
	}
	if f.Message == "" {
		f.Message = r.info.Name
	}
	return f, nil
}
