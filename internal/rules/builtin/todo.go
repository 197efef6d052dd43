package builtin

import (
	"strings"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

var todoMarkers = []struct {
	word string
	sev  types.Severity
}{
	{"TODO", types.SevLow},
	{"FIXME", types.SevMed},
	{"BUG", types.SevHigh},
	{"HACK", types.SevMed},
	{"XXX", types.SevMed},
}

type todoRule struct {
	base
}

// NewTodo flags TODO-style markers. Matching is case-sensitive so it never
// flags a line the prefilter pattern would drop.
func NewTodo() rules.Rule {
	return &todoRule{base{
		info: rules.Info{
			ID:          "builtin.todo",
			Name:        "TODO Scanner",
			Version:     "1.0.0",
			Description: "Detects TODO, FIXME, BUG, HACK and XXX markers",
			Author:      author,
			Categories:  []string{"code_style"},
		},
		exts: sourceExtensions,
	}}
}

func (r *todoRule) Pattern() string { return "TODO|FIXME|BUG|HACK|XXX" }

func (r *todoRule) Initialize(map[string]any) error { return nil }

func (r *todoRule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	var out []types.Finding
	for _, m := range todoMarkers {
		idx := strings.Index(line, m.word)
		if idx < 0 {
			continue
		}
		f := r.finding(path, lineNo, idx+1, m.word+" marker found", m.sev, "TODO_"+m.word)
		f.Suggestion = "Resolve or remove the marker"
		f.Snippet = snippet(line)
		f.Context = map[string]any{"keyword": m.word}
		out = append(out, f)
	}
	return out, nil
}
