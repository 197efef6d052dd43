package builtin

import (
	"strings"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

var weakAlgorithms = []string{"MD5", "SHA1", "DES", "RC4"}

// lines mentioning one of these are treated as prose, not code
var cryptoProseMarkers = []string{"comment", "note", "todo"}

type weakCryptoRule struct {
	base
}

// NewWeakCrypto flags references to broken hash and cipher algorithms.
func NewWeakCrypto() rules.Rule {
	return &weakCryptoRule{base{
		info: rules.Info{
			ID:          "security.weak_crypto",
			Name:        "Weak Cryptographic Algorithm",
			Version:     "1.0.0",
			Description: "Detects MD5, SHA1, DES and RC4 usage",
			Author:      author,
			Categories:  []string{"security"},
		},
		exts: []string{".py", ".js", ".java", ".go", ".cpp", ".c", ".h", ".hpp", ".cs", ".php", ".rb", ".swift"},
	}}
}

func (r *weakCryptoRule) Pattern() string { return "MD5|SHA1|DES|RC4" }

func (r *weakCryptoRule) Initialize(map[string]any) error { return nil }

func (r *weakCryptoRule) ScanLine(path string, lineNo int, line string, _ *rules.ScanContext) ([]types.Finding, error) {
	for _, m := range cryptoProseMarkers {
		if strings.Contains(line, m) {
			return nil, nil
		}
	}
	for _, alg := range weakAlgorithms {
		idx := strings.Index(line, alg)
		if idx < 0 {
			continue
		}
		f := r.finding(path, lineNo, idx+1, "weak cryptographic algorithm "+alg, types.SevMed, alg)
		f.Suggestion = "Use SHA-256 or AES-GCM"
		f.Snippet = snippet(line)
		f.Context = map[string]any{"algorithm": alg}
		return []types.Finding{f}, nil
	}
	return nil, nil
}
