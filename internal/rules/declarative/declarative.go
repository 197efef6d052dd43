// Package declarative loads regex rules described in YAML files.
//
//	rules:
//	  - id: custom.no_print
//	    version: 1.0.0
//	    extensions: [.py]
//	    pattern: 'print'          # prefilter, optional
//	    match: 'print\('          # precise check, defaults to pattern
//	    severity: low
//	    message: print call left in code
//
// A rule without pattern is fed every line of accepted files. A rule's
// configuration block may override severity and message.
package declarative

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

// File is the on-disk shape of a rule module.
type File struct {
	Rules []Spec `yaml:"rules"`
}

// Spec describes one rule.
type Spec struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Author      string   `yaml:"author"`
	Categories  []string `yaml:"categories"`
	Extensions  []string `yaml:"extensions"`
	Pattern     string   `yaml:"pattern"`
	Match       string   `yaml:"match"`
	Severity    string   `yaml:"severity"`
	Message     string   `yaml:"message"`
	Suggestion  string   `yaml:"suggestion"`
}

// LoadFile parses the rule module at path.
func LoadFile(path string) ([]rules.Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, path)
}

// Parse builds rules from YAML. Entries that fail validation are skipped and
// reported in the joined error; valid entries are still returned.
func Parse(data []byte, source string) ([]rules.Rule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	var out []rules.Rule
	var errs []error
	for i, s := range f.Rules {
		r, err := New(s, source)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: rules[%d]: %w", source, i, err))
			continue
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}

// Rule is a rules.Rule backed by a Spec.
type Rule struct {
	spec     Spec
	source   string
	match    *regexp.Regexp
	severity types.Severity
	message  string
}

var _ rules.Rule = (*Rule)(nil)

// New validates s and returns the rule.
func New(s Spec, source string) (*Rule, error) {
	if s.ID == "" {
		return nil, errors.New("id is required")
	}
	expr := s.Match
	if expr == "" {
		expr = s.Pattern
	}
	if expr == "" {
		return nil, fmt.Errorf("rule %s: pattern or match is required", s.ID)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("rule %s: match: %w", s.ID, err)
	}
	if s.Pattern != "" {
		if _, err := regexp.Compile(s.Pattern); err != nil {
			return nil, fmt.Errorf("rule %s: pattern: %w", s.ID, err)
		}
	}
	sev := types.SevMed
	if s.Severity != "" {
		if sev, err = types.ParseSeverity(s.Severity); err != nil {
			return nil, fmt.Errorf("rule %s: %w", s.ID, err)
		}
	}
	if s.Version == "" {
		s.Version = "0.0.0"
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	msg := s.Message
	if msg == "" {
		msg = "pattern matched: " + s.ID
	}
	return &Rule{spec: s, source: source, match: re, severity: sev, message: msg}, nil
}

func (r *Rule) Info() rules.Info {
	return rules.Info{
		ID:          r.spec.ID,
		Name:        r.spec.Name,
		Version:     r.spec.Version,
		Description: r.spec.Description,
		Author:      r.spec.Author,
		Categories:  r.spec.Categories,
	}
}

func (r *Rule) Extensions() []string { return r.spec.Extensions }
func (r *Rule) Pattern() string      { return r.spec.Pattern }
func (r *Rule) Cleanup() error       { return nil }

// Source returns the file the rule was loaded from.
func (r *Rule) Source() string { return r.source }

func (r *Rule) Initialize(cfg map[string]any) error {
	if s, err := rules.String(cfg, "severity", ""); err != nil {
		return err
	} else if s != "" {
		sev, err := types.ParseSeverity(s)
		if err != nil {
			return err
		}
		r.severity = sev
	}
	msg, err := rules.String(cfg, "message", r.message)
	if err != nil {
		return err
	}
	r.message = msg
	return nil
}

func (r *Rule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	loc := r.match.FindStringIndex(line)
	if loc == nil {
		return nil, nil
	}
	return []types.Finding{{
		RuleID:     r.spec.ID,
		Path:       path,
		Line:       lineNo,
		Column:     loc[0] + 1,
		Message:    r.message,
		Severity:   r.severity,
		Tags:       append([]string(nil), r.spec.Categories...),
		Suggestion: r.spec.Suggestion,
		Snippet:    line[loc[0]:loc[1]],
	}}, nil
}
