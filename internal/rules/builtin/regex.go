package builtin

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

type regexPattern struct {
	re         *regexp.Regexp
	subRule    string
	message    string
	severity   types.Severity
	category   string
	suggestion string
}

type regexRule struct {
	base
	patterns []regexPattern
}

// NewRegex applies user-configured regular expressions. It has no prefilter
// pattern, so the engine feeds it every line of every accepted file.
//
// Config:
//
//	patterns:
//	  - pattern: 'eval\('
//	    rule_id: NO_EVAL
//	    message: eval call
//	    severity: high
//	    category: security
//	    suggestion: avoid eval
func NewRegex() rules.Rule {
	return &regexRule{base: base{
		info: rules.Info{
			ID:          "builtin.regex",
			Name:        "Regex Scanner",
			Version:     "1.0.0",
			Description: "Matches user-defined regular expressions",
			Author:      author,
			Categories:  []string{"custom"},
		},
		exts: []string{".py", ".js", ".java", ".cpp", ".c", ".h", ".go", ".rs", ".php", ".cs", ".ts", ".sql", ".xml", ".html"},
	}}
}

func (r *regexRule) Pattern() string { return "" }

func (r *regexRule) Initialize(cfg map[string]any) error {
	raw, ok := cfg["patterns"]
	if !ok || raw == nil {
		r.patterns = nil
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("patterns: expected list, got %T", raw)
	}
	var errs []error
	r.patterns = r.patterns[:0]
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("patterns[%d]: expected mapping, got %T", i, item))
			continue
		}
		p, err := parseRegexPattern(m)
		if err != nil {
			errs = append(errs, fmt.Errorf("patterns[%d]: %w", i, err))
			continue
		}
		r.patterns = append(r.patterns, p)
	}
	return errors.Join(errs...)
}

func parseRegexPattern(m map[string]any) (regexPattern, error) {
	var p regexPattern
	expr, err := rules.String(m, "pattern", "")
	if err != nil {
		return p, err
	}
	if expr == "" {
		return p, errors.New("pattern is required")
	}
	if p.re, err = regexp.Compile(expr); err != nil {
		return p, err
	}
	if p.subRule, err = rules.String(m, "rule_id", "REGEX_PATTERN"); err != nil {
		return p, err
	}
	if p.message, err = rules.String(m, "message", "regular expression matched"); err != nil {
		return p, err
	}
	if p.category, err = rules.String(m, "category", "custom"); err != nil {
		return p, err
	}
	if p.suggestion, err = rules.String(m, "suggestion", "Review the matched code"); err != nil {
		return p, err
	}
	sev, err := rules.String(m, "severity", string(types.SevMed))
	if err != nil {
		return p, err
	}
	if p.severity, err = types.ParseSeverity(sev); err != nil {
		return p, err
	}
	return p, nil
}

func (r *regexRule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	var out []types.Finding
	for _, p := range r.patterns {
		loc := p.re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		f := r.finding(path, lineNo, loc[0]+1, p.message, p.severity, p.subRule)
		if p.category != "" && p.category != "custom" {
			f.Tags = append(f.Tags, p.category)
		}
		f.Suggestion = p.suggestion
		f.Snippet = snippet(line)
		out = append(out, f)
	}
	return out, nil
}
