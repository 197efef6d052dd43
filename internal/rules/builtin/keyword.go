package builtin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

var defaultKeywords = []string{"TODO", "FIXME", "BUG", "HACK"}

var keywordSeverity = map[string]types.Severity{
	"TODO":  types.SevLow,
	"FIXME": types.SevMed,
	"HACK":  types.SevMed,
	"BUG":   types.SevHigh,
	"XXX":   types.SevMed,
}

type keywordRule struct {
	base
	keywords      []string
	matchers      []*regexp.Regexp
	caseSensitive bool
	pattern       string
}

// NewKeyword flags configured keywords. Config keys: keywords ([]string,
// default TODO FIXME BUG HACK) and case_sensitive (bool, default false).
func NewKeyword() rules.Rule {
	return &keywordRule{base: base{
		info: rules.Info{
			ID:          "builtin.keyword",
			Name:        "Keyword Scanner",
			Version:     "1.0.0",
			Description: "Flags lines containing configured keywords",
			Author:      author,
			Categories:  []string{"code_style"},
		},
		exts: []string{".py", ".js", ".java", ".cpp", ".c", ".h", ".go", ".rs", ".php"},
	}}
}

func (r *keywordRule) Initialize(cfg map[string]any) error {
	kws, err := rules.StringList(cfg, "keywords", defaultKeywords)
	if err != nil {
		return err
	}
	cs, err := rules.Bool(cfg, "case_sensitive", false)
	if err != nil {
		return err
	}
	r.keywords, r.matchers = nil, nil
	for _, k := range kws {
		if k = strings.TrimSpace(k); k != "" {
			r.keywords = append(r.keywords, k)
			r.matchers = append(r.matchers, regexp.MustCompile(buildKeywordPattern([]string{k}, cs)))
		}
	}
	r.caseSensitive = cs
	r.pattern = buildKeywordPattern(r.keywords, cs)
	return nil
}

func buildKeywordPattern(keywords []string, caseSensitive bool) string {
	if len(keywords) == 0 {
		return ""
	}
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	p := strings.Join(quoted, "|")
	if !caseSensitive {
		p = "(?i)" + p
	}
	return p
}

func (r *keywordRule) Pattern() string { return r.pattern }

func (r *keywordRule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	var out []types.Finding
	for i, k := range r.keywords {
		loc := r.matchers[i].FindStringIndex(line)
		if loc == nil {
			continue
		}
		idx := loc[0]
		sev, ok := keywordSeverity[strings.ToUpper(k)]
		if !ok {
			sev = types.SevLow
		}
		f := r.finding(path, lineNo, idx+1, fmt.Sprintf("keyword found: %s", k), sev, "KEYWORD_"+k)
		f.Suggestion = "Resolve or remove the marker"
		f.Snippet = snippet(line)
		f.Context = map[string]any{"keyword": k}
		out = append(out, f)
	}
	return out, nil
}
