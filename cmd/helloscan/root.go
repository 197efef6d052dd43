package helloscan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	flagJSON      bool
	flagSARIF     bool
	flagNoColor   bool
	flagPath      string
	flagConfig    string
	flagEnable    string
	flagRulesDir  string
	flagLogLevel  string
	flagLogFormat string

	version = "0.1.0"
)

// rootCmd is the base Cobra command for the helloscan CLI.
var rootCmd = &cobra.Command{
	Use:           "helloscan",
	Short:         "Scan source trees with pluggable line rules",
	Long:          "helloscan groups rules by prefilter pattern, streams candidate lines through grep or a native walk, and reports findings with file, line and severity.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code through cobra without printing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the helloscan CLI. It should be called by the main package.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return 2
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON")
	rootCmd.PersistentFlags().BoolVar(&flagSARIF, "sarif", false, "emit SARIF 2.1.0")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().StringVarP(&flagPath, "path", "p", ".", "path to scan")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: repo-local .helloscan.yml)")
	rootCmd.PersistentFlags().StringVar(&flagEnable, "enable", "", "only run these rules (comma-separated IDs)")
	rootCmd.PersistentFlags().StringVar(&flagRulesDir, "rules-dir", "", "comma-separated external rule directories")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: console|json")
}
