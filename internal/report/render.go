package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/helloscan/helloscan/internal/types"
)

type PrintOptions struct {
	NoColor      bool
	Duration     time.Duration
	TotalFiles   int
	FilesScanned int
	TotalRules   int
	Partial      bool
}

// ColorEnabled reports whether w is a terminal and colour was not disabled.
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Sort orders findings by path, line and rule.
func Sort(findings []types.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.RuleID < b.RuleID
	})
}

// PrintTable renders findings as a table followed by a summary footer.
func PrintTable(w io.Writer, findings []types.Finding, opts PrintOptions) error {
	Sort(findings)
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings ✅")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("SEVERITY", "RULE", "LOCATION", "MESSAGE")
		for _, f := range findings {
			if err := table.Append([]string{
				severityLabel(f.Severity, opts.NoColor),
				f.RuleID,
				location(f),
				f.Message,
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	printFooter(w, findings, opts)
	return nil
}

// PrintText renders one finding per line, for pipes and CI logs.
func PrintText(w io.Writer, findings []types.Finding, opts PrintOptions) {
	Sort(findings)
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings ✅")
	} else {
		fmt.Fprintf(w, "Findings: %d\n", len(findings))
		for _, f := range findings {
			fmt.Fprintf(w, "%-8s %s  %s  %s\n", severityLabel(f.Severity, opts.NoColor), location(f), f.RuleID, f.Message)
		}
	}
	printFooter(w, findings, opts)
}

func location(f types.Finding) string {
	if f.FileLevel() {
		return f.Path
	}
	return f.Path + ":" + strconv.Itoa(f.Line)
}

func printFooter(w io.Writer, findings []types.Finding, opts PrintOptions) {
	counts := map[types.Severity]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	if opts.Duration <= 0 && opts.FilesScanned <= 0 && opts.TotalFiles <= 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Findings: %d (critical: %d, high: %d, medium: %d, low: %d)\n", len(findings),
		counts[types.SevCritical], counts[types.SevHigh], counts[types.SevMed], counts[types.SevLow])
	if opts.Duration > 0 {
		fmt.Fprintf(w, "Scan duration: %.2fs\n", opts.Duration.Seconds())
	}
	if opts.FilesScanned > 0 || opts.TotalFiles > 0 {
		fmt.Fprintf(w, "Files scanned: %d of %d\n", opts.FilesScanned, opts.TotalFiles)
	}
	if opts.TotalRules > 0 {
		fmt.Fprintf(w, "Rules: %d\n", opts.TotalRules)
	}
	if opts.Partial {
		fmt.Fprintln(w, "Warning: results are partial (a line source timed out or failed midway)")
	}
}

var severityColors = map[types.Severity]*color.Color{
	types.SevCritical: color.New(color.FgHiRed, color.Bold),
	types.SevHigh:     color.New(color.FgRed),
	types.SevMed:      color.New(color.FgYellow),
	types.SevLow:      color.New(color.FgCyan),
}

func severityLabel(s types.Severity, noColor bool) string {
	c, ok := severityColors[s]
	if noColor || !ok {
		return string(s)
	}
	// Callers decide about terminals; force escapes even when stdout is not one.
	cc := *c
	cc.EnableColor()
	return cc.Sprint(string(s))
}
