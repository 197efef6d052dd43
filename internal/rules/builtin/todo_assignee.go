package builtin

import (
	"regexp"
	"strings"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

var (
	todoWord        = regexp.MustCompile(`\bTODO\b`)
	assigneeMarkers = []string{"@author", "@assignee", "@owner"}
)

type todoAssigneeRule struct {
	base
}

// NewTodoAssignee flags TODO comments that name no owner via @author,
// @assignee or @owner.
func NewTodoAssignee() rules.Rule {
	return &todoAssigneeRule{base{
		info: rules.Info{
			ID:          "builtin.todo_assignee",
			Name:        "TODO without assignee",
			Version:     "1.0.0",
			Description: "Flags TODO comments that do not name an assignee",
			Author:      author,
			Categories:  []string{"code_style"},
		},
		exts: []string{".py", ".js", ".java", ".go", ".cpp", ".c", ".h", ".hpp", ".cs", ".php", ".rb", ".swift"},
	}}
}

func (r *todoAssigneeRule) Pattern() string { return todoWord.String() }

func (r *todoAssigneeRule) Initialize(map[string]any) error { return nil }

func (r *todoAssigneeRule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	loc := todoWord.FindStringIndex(line)
	if loc == nil {
		return nil, nil
	}
	for _, m := range assigneeMarkers {
		if strings.Contains(line, m) {
			return nil, nil
		}
	}
	f := r.finding(path, lineNo, loc[0]+1, "TODO comment missing assignee", types.SevMed, "")
	f.Suggestion = "Add @assignee, @owner or @author to the TODO"
	f.Snippet = snippet(line)
	return []types.Finding{f}, nil
}
