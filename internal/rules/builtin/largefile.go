package builtin

import (
	"fmt"
	"strings"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

const defaultMaxLines = 100

type largeFileRule struct {
	base
	maxLines int
}

// NewLargeFile reports files longer than max_lines (default 100). It has no
// prefilter pattern and only runs through the full-file stage.
func NewLargeFile() rules.Rule {
	return &largeFileRule{
		base: base{
			info: rules.Info{
				ID:          "builtin.large_file",
				Name:        "Large File",
				Version:     "1.0.0",
				Description: "Flags files exceeding a line budget",
				Author:      author,
				Categories:  []string{"maintainability"},
			},
		},
		maxLines: defaultMaxLines,
	}
}

func (r *largeFileRule) Pattern() string { return "" }

func (r *largeFileRule) Initialize(cfg map[string]any) error {
	n, err := rules.Int(cfg, "max_lines", defaultMaxLines)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("max_lines must be positive, got %d", n)
	}
	r.maxLines = n
	return nil
}

func (r *largeFileRule) ScanLine(string, int, string, *rules.ScanContext) ([]types.Finding, error) {
	return nil, nil
}

func (r *largeFileRule) ScanFile(path string, content string, _ *rules.ScanContext) ([]types.Finding, error) {
	n := CountLines(content)
	if n <= r.maxLines {
		return nil, nil
	}
	f := r.finding(path, 0, 0, fmt.Sprintf("file has %d lines (limit %d)", n, r.maxLines), types.SevLow, "")
	f.Suggestion = "Split the file into smaller units"
	f.Context = map[string]any{"lines": n, "max_lines": r.maxLines}
	return []types.Finding{f}, nil
}

// CountLines counts lines the way editors do: a trailing newline does not
// start a new line.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
