package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/helloscan/helloscan/internal/types"
)

// Baseline is a set of accepted finding fingerprints.
type Baseline struct {
	Items map[string]bool `json:"items"`
}

// LoadBaseline reads a baseline file. A missing file is returned as an
// empty baseline together with the error.
func LoadBaseline(path string) (Baseline, error) {
	b := Baseline{Items: map[string]bool{}}
	f, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(f, &b); err != nil {
		return Baseline{Items: map[string]bool{}}, fmt.Errorf("%s: %w", path, err)
	}
	if b.Items == nil {
		b.Items = map[string]bool{}
	}
	return b, nil
}

// SaveBaseline records every finding as accepted.
func SaveBaseline(path string, findings []types.Finding) error {
	b := Baseline{Items: map[string]bool{}}
	for _, f := range findings {
		b.Items[f.Fingerprint()] = true
	}
	buf, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// FilterNewFindings drops findings present in base.
func FilterNewFindings(findings []types.Finding, base Baseline) []types.Finding {
	out := []types.Finding{}
	for _, f := range findings {
		if !base.Items[f.Fingerprint()] {
			out = append(out, f)
		}
	}
	return out
}

// ShouldFail reports whether any finding reaches the failOn severity.
// An empty or unknown level defaults to medium.
func ShouldFail(findings []types.Finding, failOn string) bool {
	th, err := types.ParseSeverity(failOn)
	if err != nil {
		th = types.SevMed
	}
	for _, f := range findings {
		if f.Severity.Rank() >= th.Rank() {
			return true
		}
	}
	return false
}
