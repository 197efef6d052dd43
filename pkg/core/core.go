package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/engine"
	"github.com/helloscan/helloscan/internal/ignore"
	"github.com/helloscan/helloscan/internal/linesource"
	"github.com/helloscan/helloscan/internal/loader"
	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

// Re-export selected internal types as a stable public API surface.
type (
	Finding     = types.Finding
	Severity    = types.Severity
	Rule        = rules.Rule
	FileScanner = rules.FileScanner
	RuleInfo    = rules.Info
	ScanContext = rules.ScanContext
	Stats       = engine.Stats
)

// Sentinel errors callers may test with errors.Is.
var (
	ErrNoLineSource = linesource.ErrNoLineSource
	ErrPartial      = linesource.ErrPartial
)

// Config describes one scan. The zero value scans the current directory
// with every built-in rule.
type Config struct {
	Root       string
	Extensions []string
	// IgnoreDirs nil means the default ignore list.
	IgnoreDirs []string
	Encoding   string

	// Enabled nil enables every rule; an empty non-nil slice enables none.
	Enabled    []string
	RuleDirs   []string
	RuleConfig map[string]map[string]any
	// Rules are registered after the built-ins and RuleDirs.
	Rules []Rule

	Workers      int
	ToolTimeout  time.Duration
	WalkTimeout  time.Duration
	FailPartial  bool
	DisableTools bool

	Logger *zap.Logger
}

// Result bundles the findings and statistics of a scan.
type Result struct {
	Findings []Finding
	Stats    Stats
}

// Scan is the stable entrypoint for other programs.
func Scan(ctx context.Context, cfg Config) ([]Finding, error) {
	res, err := ScanWithStats(ctx, cfg)
	return res.Findings, err
}

// ScanWithStats runs a scan and also returns its statistics. With
// FailPartial unset, a timed-out line source yields Stats.Partial and no
// error.
func ScanWithStats(ctx context.Context, cfg Config) (Result, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	ls, err := linesource.New(linesource.Options{
		IgnoreDirs:   cfg.IgnoreDirs,
		Encoding:     cfg.Encoding,
		ToolTimeout:  cfg.ToolTimeout,
		WalkTimeout:  cfg.WalkTimeout,
		DisableTools: cfg.DisableTools,
	}, cfg.Logger)
	if err != nil {
		return Result{}, err
	}

	ig, err := ignore.LoadRoot(root)
	if err != nil {
		return Result{}, err
	}

	sources := []loader.Source{loader.Builtin()}
	if len(cfg.Rules) > 0 {
		extra := cfg.Rules
		sources = append(sources, loader.Func{Label: "api", Fn: func() ([]rules.Rule, error) { return extra, nil }})
	}
	ld := loader.New(loader.Options{
		Sources:    sources,
		Dirs:       cfg.RuleDirs,
		Enabled:    cfg.Enabled,
		RuleConfig: cfg.RuleConfig,
	}, cfg.Logger)

	partial := engine.PartialKeep
	if cfg.FailPartial {
		partial = engine.PartialFail
	}
	eng := engine.New(engine.Options{
		IgnoreDirs: cfg.IgnoreDirs,
		Extensions: cfg.Extensions,
		Ignore:     ig,
		Encoding:   cfg.Encoding,
		Workers:    cfg.Workers,
		Partial:    partial,
		Logger:     cfg.Logger,
	}, ld, ls)

	findings, err := eng.Scan(ctx, root)
	res := Result{Findings: findings, Stats: eng.Stats()}
	return res, errors.Join(err, ld.Close())
}

// RuleIDs returns the IDs of the built-in rules in registration order.
func RuleIDs() []string {
	ld := loader.New(loader.Options{}, nil)
	defer ld.Close()
	ld.Load()
	var ids []string
	for _, r := range ld.Registry().All() {
		ids = append(ids, r.Info().ID)
	}
	return ids
}
