package types

import (
	"fmt"
	"strings"
)

// Severity is a coarse-grained risk level for a finding.
type Severity string

const (
	SevLow      Severity = "low"
	SevMed      Severity = "medium"
	SevHigh     Severity = "high"
	SevCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SevLow:
		return 1
	case SevMed:
		return 2
	case SevHigh:
		return 3
	case SevCritical:
		return 4
	}
	return 0
}

// ParseSeverity accepts any casing of low, medium, high or critical.
// "med" and "warn" are accepted as medium, "error" as high.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "info":
		return SevLow, nil
	case "medium", "med", "warn", "warning":
		return SevMed, nil
	case "high", "error":
		return SevHigh, nil
	case "critical":
		return SevCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Finding is one reported match attributed to a rule, a file and optionally
// a line. Path is slash-separated and relative to the scan root. Line is
// 1-based; 0 marks a file-level finding.
type Finding struct {
	RuleID     string         `json:"rule_id"`
	Path       string         `json:"path"`
	Line       int            `json:"line"`
	Column     int            `json:"column,omitempty"`
	Message    string         `json:"message"`
	Severity   Severity       `json:"severity"`
	Tags       []string       `json:"tags,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Snippet    string         `json:"snippet,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// FileLevel reports whether the finding is attached to a whole file.
func (f Finding) FileLevel() bool { return f.Line <= 0 }
