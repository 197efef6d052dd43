package builtin

import (
	"regexp"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

var securityChecks = []struct {
	re  *regexp.Regexp
	sub string
	msg string
}{
	{regexp.MustCompile(`(?i)password\s*=\s*["'][^"']*["']`), "PASSWORD_LITERAL", "hardcoded password"},
	{regexp.MustCompile(`(?i)api[_-]?key\s*=\s*["'][^"']*["']`), "API_KEY_LITERAL", "hardcoded API key"},
	{regexp.MustCompile(`(?i)secret[_-]?token\s*=\s*["'][^"']*["']`), "SECRET_TOKEN", "hardcoded secret token"},
}

type securityRule struct {
	base
}

// NewSecurity flags literal credentials assigned in source and config files.
func NewSecurity() rules.Rule {
	return &securityRule{base{
		info: rules.Info{
			ID:          "builtin.security",
			Name:        "Security Scanner",
			Version:     "1.0.0",
			Description: "Detects credentials assigned as string literals",
			Author:      author,
			Categories:  []string{"security"},
		},
		exts: []string{".py", ".js", ".java", ".go", ".yaml", ".yml", ".json"},
	}}
}

func (r *securityRule) Pattern() string { return "(?i)password|passwd|secret|token|key|pwd" }

func (r *securityRule) Initialize(map[string]any) error { return nil }

func (r *securityRule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	var out []types.Finding
	for _, c := range securityChecks {
		loc := c.re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		f := r.finding(path, lineNo, loc[0]+1, c.msg, types.SevCritical, c.sub)
		f.Suggestion = "Load the value from the environment or a secret manager"
		f.Snippet = snippet(line)
		out = append(out, f)
	}
	return out, nil
}
