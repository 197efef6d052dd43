package helloscan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/engine"
	"github.com/helloscan/helloscan/internal/linesource"
	"github.com/helloscan/helloscan/internal/report"
	"github.com/helloscan/helloscan/internal/store"
	"github.com/helloscan/helloscan/internal/types"
)

const defaultBaselineFile = "helloscan.baseline.json"

var (
	flagExt             string
	flagIgnoreDir       string
	flagInclude         string
	flagExclude         string
	flagDefaultExcludes bool
	flagEncoding        string
	flagWorkers         int
	flagTimeout         time.Duration
	flagWalkTimeout     time.Duration
	flagPartial         string
	flagNoTools         bool
	flagDB              string
	flagBaseline        string
	flagFailOn          string
	flagText            bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a source tree with the enabled rules",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
	rootCmd.AddCommand(cmd)

	cmd.Flags().StringVar(&flagExt, "ext", "", "comma-separated file extensions to scan (default: all)")
	cmd.Flags().StringVar(&flagIgnoreDir, "ignore-dir", "", "comma-separated directory names or globs to skip")
	cmd.Flags().StringVar(&flagInclude, "include", "", "comma-separated include globs")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "comma-separated exclude globs")
	cmd.Flags().BoolVar(&flagDefaultExcludes, "default-excludes", false, "skip lockfiles, minified bundles and binary assets")
	cmd.Flags().StringVar(&flagEncoding, "encoding", "", "text encoding of scanned files (default utf-8)")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "pattern groups scanned in parallel (0 or 1 = sequential)")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", linesource.DefaultToolTimeout, "timeout for grep/findstr passes")
	cmd.Flags().DurationVar(&flagWalkTimeout, "walk-timeout", 0, "timeout for native walk passes (0 = none)")
	cmd.Flags().StringVar(&flagPartial, "partial", "", "on timeout: keep partial results or fail (keep|fail)")
	cmd.Flags().BoolVar(&flagNoTools, "no-tools", false, "never use grep/findstr; walk the tree natively")
	cmd.Flags().StringVar(&flagDB, "db", "", "save the run and its findings to this SQLite database")
	cmd.Flags().StringVar(&flagBaseline, "baseline", "", "baseline file (default "+defaultBaselineFile+")")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "exit 1 when a finding reaches low|medium|high|critical (default medium)")
	cmd.Flags().BoolVar(&flagText, "text", false, "output in plain text instead of a table")
}

func runScan(cmd *cobra.Command, _ []string) error {
	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	c, err := s.build()
	if err != nil {
		return err
	}
	defer c.close()

	out := cmd.OutOrStdout()
	human := !flagJSON && !flagSARIF
	if human {
		fmt.Fprintf(cmd.ErrOrStderr(), "Scanning %s with %d rules...\n", s.root, len(c.loader.EnabledRules()))
	}

	runID := store.NewRunID()
	started := time.Now()
	eng := c.engine(s, map[string]any{"scan_id": runID})
	findings, scanErr := eng.Scan(cmd.Context(), s.root)
	stats := eng.Stats()
	if scanErr != nil && !errors.Is(scanErr, linesource.ErrPartial) {
		return fmt.Errorf("scan error: %w", scanErr)
	}

	if s.dbPath != "" {
		if err := saveRun(cmd, s, runID, started, stats, findings); err != nil {
			return err
		}
	}

	baseline, err := report.LoadBaseline(s.baseline)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn("ignoring unreadable baseline", zap.String("path", s.baseline), zap.Error(err))
	}
	newFindings := report.FilterNewFindings(findings, baseline)

	if err := writeFindings(out, newFindings, stats, s); err != nil {
		return err
	}
	if scanErr != nil {
		return &exitError{code: 2, err: scanErr}
	}
	if report.ShouldFail(newFindings, s.failOn) {
		return &exitError{code: 1}
	}
	return nil
}

func writeFindings(w io.Writer, findings []types.Finding, stats engine.Stats, s settings) error {
	switch {
	case flagSARIF:
		if err := report.WriteSARIF(w, findings, buildVersion()); err != nil {
			return fmt.Errorf("sarif error: %w", err)
		}
		return nil
	case flagJSON:
		return report.WriteJSON(w, findings)
	}
	opts := report.PrintOptions{
		NoColor:      s.noColor || !report.ColorEnabled(w, s.noColor),
		Duration:     stats.Duration,
		TotalFiles:   stats.TotalFiles,
		FilesScanned: stats.ScannedFiles,
		TotalRules:   stats.TotalRules,
		Partial:      stats.Partial,
	}
	if flagText {
		report.PrintText(w, findings, opts)
		return nil
	}
	return report.PrintTable(w, findings, opts)
}

func saveRun(cmd *cobra.Command, s settings, runID string, started time.Time, stats engine.Stats, findings []types.Finding) error {
	db, err := store.Open(s.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.SaveRun(cmd.Context(), store.Run{
		ID:           runID,
		Root:         s.root,
		StartedAt:    started,
		Duration:     stats.Duration,
		TotalFiles:   stats.TotalFiles,
		ScannedFiles: stats.ScannedFiles,
		TotalRules:   stats.TotalRules,
		Partial:      stats.Partial,
	}, findings)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}
