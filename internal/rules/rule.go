package rules

import (
	"path"
	"strings"

	"github.com/helloscan/helloscan/internal/types"
)

// Info identifies a rule. ID must be stable and unique across all rule
// sources; Version is a semantic version.
type Info struct {
	ID          string
	Name        string
	Version     string
	Description string
	Author      string
	// Categories are free-form tags (e.g. "security", "code_style") used by
	// Registry.ByCategory and copied onto findings by most rules.
	Categories []string
}

// Rule is the contract every matching rule implements.
type Rule interface {
	// Info returns the rule identity.
	Info() Info

	// Extensions lists the file suffixes the rule applies to (".py").
	// An empty list means every file.
	Extensions() []string

	// Pattern returns the prefilter regular expression. Every line ScanLine
	// would flag must match it; extra matches are fine. An empty pattern
	// means the rule cannot be prefiltered and is fed whole files.
	Pattern() string

	// Initialize prepares the rule with its configuration block. A nil error
	// means the rule is usable. It is called at most once per process.
	Initialize(cfg map[string]any) error

	// ScanLine inspects one candidate line. path is relative to the scan root
	// and lineNo is 1-based.
	ScanLine(path string, lineNo int, line string, sc *ScanContext) ([]types.Finding, error)

	// Cleanup releases resources held by the rule.
	Cleanup() error
}

// FileScanner is implemented by rules that analyse whole files. It is only
// consulted for rules without a prefilter pattern.
type FileScanner interface {
	ScanFile(path string, content string, sc *ScanContext) ([]types.Finding, error)
}

// NormalizeExtensions trims entries and prefixes a dot where missing.
// Blank entries are dropped; a nil result means "all files".
func NormalizeExtensions(exts []string) []string {
	var out []string
	for _, e := range exts {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// AcceptsPath reports whether a file at p passes the extension list exts.
// Matching is an exact, case-sensitive comparison against the final suffix.
func AcceptsPath(exts []string, p string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := path.Ext(strings.ReplaceAll(p, "\\", "/"))
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

// Accepts reports whether r applies to the file at p.
func Accepts(r Rule, p string) bool {
	return AcceptsPath(NormalizeExtensions(r.Extensions()), p)
}
