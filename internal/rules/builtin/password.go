package builtin

import (
	"regexp"
	"strings"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

var reQuotedValue = regexp.MustCompile(`=\s*["']([^"']+)["']`)

var commonPasswords = map[string]bool{
	"123456":   true,
	"password": true,
	"admin":    true,
	"root":     true,
	"guest":    true,
}

const minPasswordLen = 6

type hardcodedPasswordRule struct {
	base
}

// NewHardcodedPassword flags short or well-known passwords assigned as
// string literals.
func NewHardcodedPassword() rules.Rule {
	return &hardcodedPasswordRule{base{
		info: rules.Info{
			ID:          "security.hardcoded_password",
			Name:        "Hardcoded Password",
			Version:     "1.0.0",
			Description: "Detects weak passwords hardcoded in source",
			Author:      author,
			Categories:  []string{"security"},
		},
		exts: []string{".py", ".js", ".java", ".go", ".cpp", ".c", ".h", ".hpp", ".cs", ".php", ".rb", ".swift", ".yaml", ".yml"},
	}}
}

func (r *hardcodedPasswordRule) Pattern() string {
	return `(?i)(password|passwd|pwd|token|secret).*=.*["'].*["']`
}

func (r *hardcodedPasswordRule) Initialize(map[string]any) error { return nil }

func (r *hardcodedPasswordRule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	m := reQuotedValue.FindStringSubmatchIndex(line)
	if m == nil {
		return nil, nil
	}
	value := line[m[2]:m[3]]
	if len(value) >= minPasswordLen && !commonPasswords[strings.ToLower(value)] {
		return nil, nil
	}
	f := r.finding(path, lineNo, m[2]+1, "hardcoded weak password", types.SevHigh, "")
	f.Suggestion = "Use a strong secret loaded at runtime"
	f.Snippet = snippet(line)
	return []types.Finding{f}, nil
}
