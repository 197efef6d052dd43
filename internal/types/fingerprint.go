package types

import (
	"strconv"
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
)

// Fingerprint identifies a finding independently of its line and column so
// that moving code does not make it look new.
func (f Finding) Fingerprint() string {
	h := xxhash.New()
	for _, part := range []string{f.RuleID, f.Path, f.Message, strings.TrimSpace(f.Snippet)} {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
