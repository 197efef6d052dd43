package builtin

import (
	"strings"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

const author = "helloscan"

// Constructor returns a new, uninitialized rule instance.
type Constructor func() rules.Rule

var all = []Constructor{
	NewTodo, NewTodoAssignee, NewKeyword, NewSecurity, NewRegex,
	NewHardcodedPassword, NewWeakCrypto,
	NewLargeFile,
}

// All returns one fresh instance of every built-in rule.
func All() []rules.Rule {
	out := make([]rules.Rule, 0, len(all))
	for _, c := range all {
		out = append(out, c())
	}
	return out
}

// IDs lists the IDs of the built-in rules in registration order.
func IDs() []string {
	var out []string
	for _, r := range All() {
		out = append(out, r.Info().ID)
	}
	return out
}

var sourceExtensions = []string{".py", ".js", ".java", ".cpp", ".c", ".h", ".go", ".rs", ".php", ".cs", ".ts"}

// base supplies the identity half of rules.Rule.
type base struct {
	info rules.Info
	exts []string
}

func (b *base) Info() rules.Info     { return b.info }
func (b *base) Extensions() []string { return b.exts }
func (b *base) Cleanup() error       { return nil }

func (b *base) finding(path string, line int, col int, msg string, sev types.Severity, sub string) types.Finding {
	tags := append([]string(nil), b.info.Categories...)
	if sub != "" {
		tags = append(tags, sub)
	}
	return types.Finding{
		RuleID:   b.info.ID,
		Path:     path,
		Line:     line,
		Column:   col,
		Message:  msg,
		Severity: sev,
		Tags:     tags,
	}
}

func snippet(line string) string {
	return strings.TrimSpace(line)
}
