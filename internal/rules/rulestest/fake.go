// Package rulestest provides configurable rules for tests.
package rulestest

import (
	"sync"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

// Call records one ScanLine or ScanFile invocation.
type Call struct {
	Path   string
	Line   int
	Text   string
	IsFile bool
}

// Fake is a rule whose behaviour is set through its fields.
type Fake struct {
	ID         string
	Version    string
	Exts       []string
	Pat        string
	Categories []string
	InitErr    error
	CleanupErr error

	// OnLine is called by ScanLine; nil means no findings.
	OnLine func(path string, lineNo int, line string) ([]types.Finding, error)

	mu       sync.Mutex
	calls    []Call
	inits    int
	cleanups int
	config   map[string]any
}

var _ rules.Rule = (*Fake)(nil)

func (f *Fake) Info() rules.Info {
	v := f.Version
	if v == "" {
		v = "1.0.0"
	}
	return rules.Info{ID: f.ID, Name: f.ID, Version: v, Categories: f.Categories}
}

func (f *Fake) Extensions() []string { return f.Exts }
func (f *Fake) Pattern() string      { return f.Pat }

func (f *Fake) Initialize(cfg map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	f.config = cfg
	return f.InitErr
}

func (f *Fake) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	f.record(Call{Path: path, Line: lineNo, Text: line})
	if f.OnLine == nil {
		return nil, nil
	}
	return f.OnLine(path, lineNo, line)
}

func (f *Fake) Cleanup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	return f.CleanupErr
}

// Calls returns a copy of the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Inits returns how many times Initialize ran.
func (f *Fake) Inits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inits
}

// Cleanups returns how many times Cleanup ran.
func (f *Fake) Cleanups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanups
}

// Config returns the block passed to Initialize.
func (f *Fake) Config() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

// FakeFile is a Fake that also analyses whole files.
type FakeFile struct {
	Fake
	OnFile func(path, content string) ([]types.Finding, error)
}

var _ rules.FileScanner = (*FakeFile)(nil)

func (f *FakeFile) ScanFile(path string, content string, _ *rules.ScanContext) ([]types.Finding, error) {
	f.record(Call{Path: path, IsFile: true})
	if f.OnFile == nil {
		return nil, nil
	}
	return f.OnFile(path, content)
}

// Hit builds a finding for rule id at path:line.
func Hit(id, path string, line int) types.Finding {
	return types.Finding{RuleID: id, Path: path, Line: line, Severity: types.SevMed, Message: id}
}
