package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helloscan/helloscan/internal/ignore"
	"github.com/helloscan/helloscan/internal/linesource"
	"github.com/helloscan/helloscan/internal/logging"
	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/types"
)

// PartialPolicy decides what a timed-out or interrupted line source means.
type PartialPolicy string

const (
	// PartialKeep logs the condition, keeps the lines already produced and
	// flags Stats.Partial.
	PartialKeep PartialPolicy = "keep"
	// PartialFail returns the findings together with an error wrapping
	// linesource.ErrPartial.
	PartialFail PartialPolicy = "fail"
)

// ParsePartialPolicy accepts "keep", "fail" or "" (keep).
func ParsePartialPolicy(s string) (PartialPolicy, error) {
	switch PartialPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PartialKeep:
		return PartialKeep, nil
	case PartialFail:
		return PartialFail, nil
	}
	return "", fmt.Errorf("unknown partial policy %q (want keep or fail)", s)
}

// RuleProvider supplies the rules that take part in a scan.
type RuleProvider interface {
	EnabledRules() []rules.Rule
}

// LineSource produces candidate lines under root for a prefilter pattern.
type LineSource interface {
	Scan(ctx context.Context, root, pattern string, exts []string) (linesource.Stream, error)
}

// Options controls inventory filters, parallelism and the scan context.
type Options struct {
	// IgnoreDirs are directory names or globs skipped anywhere in the tree.
	// Nil means linesource.DefaultIgnoreDirs.
	IgnoreDirs []string
	// Extensions restricts the inventory; empty means every file.
	Extensions []string
	// IncludeGlobs and ExcludeGlobs are comma-separated doublestar globs.
	IncludeGlobs string
	ExcludeGlobs string
	// DefaultExcludes skips lockfiles, minified bundles and binary assets.
	DefaultExcludes bool
	// Ignore drops inventory paths matched by a .helloscanignore file.
	Ignore *ignore.Matcher

	Encoding string
	// Workers bounds how many pattern groups run at once; values below 2
	// run them sequentially.
	Workers int
	Partial PartialPolicy

	// Config and Extra seed the ScanContext handed to rules.
	Config map[string]any
	Extra  map[string]any

	Logger *zap.Logger
}

// Stats summarizes the last scan.
type Stats struct {
	TotalFiles    int
	ScannedFiles  int
	TotalRules    int
	Groups        int
	FindingsCount int
	Duration      time.Duration
	Partial       bool
}

// DurationSeconds returns Duration in seconds.
func (s Stats) DurationSeconds() float64 { return s.Duration.Seconds() }

// Engine runs two-stage scans. A single Engine must not run overlapping
// scans.
type Engine struct {
	opts  Options
	rules RuleProvider
	lines LineSource
	log   *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New returns an engine over the given rules and line source.
func New(opts Options, rp RuleProvider, ls LineSource) *Engine {
	if opts.IgnoreDirs == nil {
		opts.IgnoreDirs = linesource.DefaultIgnoreDirs
	}
	if opts.Partial == "" {
		opts.Partial = PartialKeep
	}
	return &Engine{
		opts:  opts,
		rules: rp,
		lines: ls,
		log:   logging.OrNop(opts.Logger).Named("engine"),
	}
}

// Stats returns the statistics of the most recent scan.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Group is the set of rules sharing one prefilter pattern.
type Group struct {
	Pattern string
	Rules   []rules.Rule
}

// GroupRules partitions rs by exact pattern. Groups keep the order in which
// their pattern first appears; rules without a pattern are returned
// separately.
func GroupRules(rs []rules.Rule) (groups []Group, unpatterned []rules.Rule) {
	index := map[string]int{}
	for _, r := range rs {
		p := r.Pattern()
		if p == "" {
			unpatterned = append(unpatterned, r)
			continue
		}
		i, ok := index[p]
		if !ok {
			i = len(groups)
			index[p] = i
			groups = append(groups, Group{Pattern: p})
		}
		groups[i].Rules = append(groups[i].Rules, r)
	}
	return groups, unpatterned
}

// unionExtensions returns the extensions a group needs scanned. Any rule
// accepting every file makes the union unrestricted.
func unionExtensions(rs []rules.Rule) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rs {
		exts := rules.NormalizeExtensions(r.Extensions())
		if len(exts) == 0 {
			return nil
		}
		for _, e := range exts {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

type groupResult struct {
	findings []types.Finding
	files    map[string]struct{}
	partial  error
}

// Scan scans root and returns findings from both stages in order: pattern
// groups first, in group order, then whole-file rules. On cancellation or a
// hard line source failure the findings collected so far are returned with
// the error.
func (e *Engine) Scan(ctx context.Context, root string) ([]types.Finding, error) {
	started := time.Now()
	stats := Stats{}
	defer func() {
		stats.Duration = time.Since(started)
		e.mu.Lock()
		e.stats = stats
		e.mu.Unlock()
	}()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", abs)
	}
	dec, err := linesource.NewDecoder(e.opts.Encoding)
	if err != nil {
		return nil, err
	}

	inventory, err := e.inventory(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	stats.TotalFiles = len(inventory)
	inInventory := make(map[string]struct{}, len(inventory))
	for _, p := range inventory {
		inInventory[p] = struct{}{}
	}

	active := e.rules.EnabledRules()
	groups, unpatterned := GroupRules(active)
	stats.TotalRules = len(active)
	stats.Groups = len(groups)
	e.log.Debug("scan planned",
		zap.String("root", abs),
		zap.Int("files", len(inventory)),
		zap.Int("rules", len(active)),
		zap.Int("groups", len(groups)),
		zap.Int("whole_file_rules", len(unpatterned)))

	findings := []types.Finding{}
	if len(inventory) == 0 {
		return findings, nil
	}

	sc := rules.NewScanContext(abs, dec.Name(), e.opts.Config, e.opts.Extra)
	scanned := map[string]struct{}{}

	results, err := e.runGroups(ctx, abs, groups, inInventory, sc)
	for _, r := range results {
		findings = append(findings, r.findings...)
		for p := range r.files {
			scanned[p] = struct{}{}
		}
		if r.partial != nil {
			stats.Partial = true
		}
	}
	if err != nil {
		stats.ScannedFiles = len(scanned)
		stats.FindingsCount = len(findings)
		return findings, err
	}

	fileFindings, err := e.fullScan(ctx, abs, inventory, unpatterned, dec, sc, scanned)
	findings = append(findings, fileFindings...)
	stats.ScannedFiles = len(scanned)
	stats.FindingsCount = len(findings)
	if err != nil {
		return findings, err
	}

	if stats.Partial && e.opts.Partial == PartialFail {
		var errs []error
		for _, r := range results {
			if r.partial != nil {
				errs = append(errs, r.partial)
			}
		}
		return findings, errors.Join(errs...)
	}
	return findings, nil
}

func (e *Engine) inventory(ctx context.Context, root string) ([]string, error) {
	f := linesource.Filter{IgnoreDirs: e.opts.IgnoreDirs}.WithExtensions(e.opts.Extensions)
	all, err := linesource.Inventory(ctx, root, f)
	if err != nil {
		return nil, err
	}
	includes, excludes := ParseGlobs(e.opts.IncludeGlobs), ParseGlobs(e.opts.ExcludeGlobs)
	out := all[:0]
	for _, p := range all {
		if !allowedByGlobs(p, includes, excludes) {
			continue
		}
		if e.opts.DefaultExcludes && isDefaultFileExcluded(p) {
			continue
		}
		if e.opts.Ignore.Match(p) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// runGroups runs stage one. Results are indexed by group so concatenation
// order does not depend on scheduling.
func (e *Engine) runGroups(ctx context.Context, root string, groups []Group, inventory map[string]struct{}, sc *rules.ScanContext) ([]groupResult, error) {
	results := make([]groupResult, len(groups))
	if e.opts.Workers < 2 || len(groups) < 2 {
		for i, g := range groups {
			res, err := e.runGroup(ctx, root, g, inventory, sc)
			results[i] = res
			if err != nil {
				return results, err
			}
		}
		return results, nil
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opts.Workers)
	for i, g := range groups {
		eg.Go(func() error {
			res, err := e.runGroup(gctx, root, g, inventory, sc)
			results[i] = res
			return err
		})
	}
	err := eg.Wait()
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return results, err
}

func (e *Engine) runGroup(ctx context.Context, root string, g Group, inventory map[string]struct{}, sc *rules.ScanContext) (groupResult, error) {
	res := groupResult{files: map[string]struct{}{}}
	st, err := e.lines.Scan(ctx, root, g.Pattern, unionExtensions(g.Rules))
	if err != nil {
		return res, fmt.Errorf("pattern %q: %w", g.Pattern, err)
	}
	defer st.Close()

	accepts := map[string][]rules.Rule{}
	for st.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ln := st.Line()
		if _, ok := inventory[ln.Path]; !ok {
			continue
		}
		res.files[ln.Path] = struct{}{}
		rs, ok := accepts[ln.Path]
		if !ok {
			for _, r := range g.Rules {
				if rules.Accepts(r, ln.Path) {
					rs = append(rs, r)
				}
			}
			accepts[ln.Path] = rs
		}
		for _, r := range rs {
			res.findings = append(res.findings, e.scanLine(r, ln.Path, ln.Number, ln.Text, sc)...)
		}
	}

	switch err := st.Err(); {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return res, err
	case errors.Is(err, linesource.ErrPartial):
		e.log.Warn("prefilter results are partial", zap.String("pattern", g.Pattern), zap.Error(err))
		res.partial = fmt.Errorf("pattern %q: %w", g.Pattern, err)
	case errors.Is(err, linesource.ErrTimeout):
		e.log.Warn("prefilter results are partial", zap.String("pattern", g.Pattern), zap.Error(err))
		res.partial = fmt.Errorf("pattern %q: %w: %w", g.Pattern, linesource.ErrPartial, err)
	default:
		return res, fmt.Errorf("pattern %q: %w", g.Pattern, err)
	}
	return res, nil
}

// fullScan runs stage two: each inventory file accepted by at least one
// unpatterned rule is read once and handed to every accepting rule.
func (e *Engine) fullScan(ctx context.Context, root string, inventory []string, rs []rules.Rule, dec *linesource.Decoder, sc *rules.ScanContext, scanned map[string]struct{}) ([]types.Finding, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	var out []types.Finding
	for _, rel := range inventory {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var accepting []rules.Rule
		for _, r := range rs {
			if rules.Accepts(r, rel) {
				accepting = append(accepting, r)
			}
		}
		if len(accepting) == 0 {
			continue
		}
		text, ok, err := dec.ReadText(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			e.log.Warn("cannot read file", zap.String("path", rel), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		scanned[rel] = struct{}{}

		var lines []string
		for _, r := range accepting {
			if fsr, ok := r.(rules.FileScanner); ok {
				out = append(out, e.scanFile(r, fsr, rel, text, sc)...)
				continue
			}
			if lines == nil {
				lines = linesource.SplitLines(text)
			}
			for i, l := range lines {
				out = append(out, e.scanLine(r, rel, i+1, l, sc)...)
			}
		}
	}
	return out, nil
}

func (e *Engine) scanLine(r rules.Rule, path string, n int, line string, sc *rules.ScanContext) []types.Finding {
	return e.guard(r, path, func() ([]types.Finding, error) { return r.ScanLine(path, n, line, sc) })
}

func (e *Engine) scanFile(r rules.Rule, fsr rules.FileScanner, path, text string, sc *rules.ScanContext) []types.Finding {
	return e.guard(r, path, func() ([]types.Finding, error) { return fsr.ScanFile(path, text, sc) })
}

// guard isolates one rule call: errors and panics are logged and yield no
// findings.
func (e *Engine) guard(r rules.Rule, path string, call func() ([]types.Finding, error)) (out []types.Finding) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Warn("rule panicked", zap.String("rule", r.Info().ID), zap.String("path", path), zap.Any("panic", p))
			out = nil
		}
	}()
	fs, err := call()
	if err != nil {
		e.log.Warn("rule failed", zap.String("rule", r.Info().ID), zap.String("path", path), zap.Error(err))
		return nil
	}
	return fs
}
