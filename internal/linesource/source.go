// Package linesource finds candidate lines matching a prefilter pattern.
//
// A scan tries, in order, an external grep, findstr on Windows, and a native
// directory walk. A tool that fails before producing any line hands over to
// the next tier; one that fails after producing lines keeps them and stops.
// Directory and extension filters are applied to every produced line
// whichever tier ran.
package linesource

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/logging"
	"github.com/helloscan/helloscan/internal/rules"
)

var (
	// ErrNoLineSource is returned when every tier failed.
	ErrNoLineSource = errors.New("no line source succeeded")
	// ErrTimeout reports that a tier ran out of time; lines already streamed
	// are kept.
	ErrTimeout = errors.New("line source timed out")
	// ErrPartial reports that a tier failed after producing lines.
	ErrPartial = errors.New("partial line source results")

	errDeclined = errors.New("declined")
)

// DefaultToolTimeout bounds external tool tiers.
const DefaultToolTimeout = 300 * time.Second

// Line is one candidate line. Path is slash-separated and relative to the
// scan root; Number is 1-based.
type Line struct {
	Path   string
	Number int
	Text   string
}

// Stream is a finite, non-restartable sequence of lines. Close releases any
// subprocess and may be called at any time, more than once.
type Stream interface {
	Next() bool
	Line() Line
	Err() error
	Close() error
}

// Options configures a Source.
type Options struct {
	IgnoreDirs []string
	Encoding   string

	// ToolTimeout bounds the grep and findstr tiers; zero means
	// DefaultToolTimeout, negative means none.
	ToolTimeout time.Duration
	// WalkTimeout bounds the native walk; zero or negative means none.
	WalkTimeout time.Duration

	// DisableTools skips the external tool tiers.
	DisableTools bool

	// GrepPath and FindstrPath override tool lookup on PATH.
	GrepPath    string
	FindstrPath string
}

// Source runs prefilter scans. The root is given per scan.
type Source struct {
	log    *zap.Logger
	filter Filter
	dec    *Decoder
	tiers  []tier
}

type query struct {
	root    string
	pattern string
	re      *regexp.Regexp
	exts    []string
}

type tier interface {
	name() string
	// start begins a scan or returns errDeclined when the tier cannot serve
	// the query.
	start(ctx context.Context, q query) (Stream, error)
}

// New returns a Source. log may be nil. The external tools compare bytes, so
// they are only used when files are decoded as UTF-8.
func New(opts Options, log *zap.Logger) (*Source, error) {
	dec, err := NewDecoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	if opts.IgnoreDirs == nil {
		opts.IgnoreDirs = DefaultIgnoreDirs
	}
	toolTimeout := opts.ToolTimeout
	if toolTimeout == 0 {
		toolTimeout = DefaultToolTimeout
	}
	s := &Source{
		log:    logging.OrNop(log).Named("linesource"),
		filter: Filter{IgnoreDirs: opts.IgnoreDirs},
		dec:    dec,
	}
	if !opts.DisableTools && !dec.IsUTF8() {
		s.log.Debug("external tools disabled for non UTF-8 encoding", zap.String("encoding", dec.Name()))
	}
	if !opts.DisableTools && dec.IsUTF8() {
		if p := lookTool(opts.GrepPath, "grep"); p != "" {
			s.tiers = append(s.tiers, &grepTier{log: s.log, path: p, ignoreDirs: opts.IgnoreDirs, timeout: toolTimeout, dec: dec})
		}
		if runtime.GOOS == "windows" {
			if p := lookTool(opts.FindstrPath, "findstr"); p != "" {
				s.tiers = append(s.tiers, &findstrTier{log: s.log, path: p, timeout: toolTimeout, dec: dec})
			}
		}
	}
	s.tiers = append(s.tiers, &walkTier{log: s.log, filter: s.filter, timeout: opts.WalkTimeout, dec: dec})
	return s, nil
}

func lookTool(override, name string) string {
	if override != "" {
		name = override
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return p
}

// Decoder returns the decoder shared with whole-file readers.
func (s *Source) Decoder() *Decoder { return s.dec }

// Filter returns the directory filter of the source.
func (s *Source) Filter() Filter { return s.filter }

// Tiers lists the tier names in the order they are tried.
func (s *Source) Tiers() []string {
	out := make([]string, 0, len(s.tiers))
	for _, t := range s.tiers {
		out = append(out, t.name())
	}
	return out
}

// Scan starts a prefilter scan of root for pattern restricted to exts
// (empty = all files). The pattern uses Go regexp syntax.
func (s *Source) Scan(ctx context.Context, root, pattern string, exts []string) (Stream, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	exts = rules.NormalizeExtensions(exts)
	return &chain{
		ctx:    ctx,
		log:    s.log.With(zap.String("pattern", pattern)),
		q:      query{root: root, pattern: pattern, re: re, exts: exts},
		filter: s.filter.WithExtensions(exts),
		tiers:  s.tiers,
	}, nil
}

// chain walks the tiers until one completes.
type chain struct {
	ctx    context.Context
	log    *zap.Logger
	q      query
	filter Filter
	tiers  []tier

	next     int
	cur      Stream
	curName  string
	emitted  int
	line     Line
	err      error
	done     bool
	failures []error
}

func (c *chain) Next() bool {
	for !c.done {
		if c.cur == nil && !c.advance() {
			return false
		}
		if c.cur.Next() {
			ln := c.cur.Line()
			if !c.filter.Keep(ln.Path) {
				continue
			}
			c.line = ln
			c.emitted++
			return true
		}
		err := c.cur.Err()
		_ = c.cur.Close()
		c.cur = nil
		c.settle(err)
	}
	return false
}

// advance starts the next tier that accepts the query.
func (c *chain) advance() bool {
	for c.next < len(c.tiers) {
		t := c.tiers[c.next]
		c.next++
		st, err := t.start(c.ctx, c.q)
		if errors.Is(err, errDeclined) {
			c.log.Debug("tier declined", zap.String("tier", t.name()))
			continue
		}
		if err != nil {
			c.log.Warn("tier failed to start, falling back", zap.String("tier", t.name()), zap.Error(err))
			c.failures = append(c.failures, fmt.Errorf("%s: %w", t.name(), err))
			continue
		}
		c.cur, c.curName = st, t.name()
		c.log.Debug("tier started", zap.String("tier", t.name()))
		return true
	}
	c.done = true
	c.err = ErrNoLineSource
	if len(c.failures) > 0 {
		c.err = fmt.Errorf("%w: %w", ErrNoLineSource, errors.Join(c.failures...))
	}
	return false
}

// settle decides what a finished tier means for the chain.
func (c *chain) settle(err error) {
	switch {
	case err == nil:
		c.done = true
	case c.ctx.Err() != nil:
		c.done, c.err = true, c.ctx.Err()
	case errors.Is(err, ErrTimeout):
		c.log.Warn("line source timed out, keeping partial results", zap.String("tier", c.curName), zap.Int("lines", c.emitted))
		c.done, c.err = true, err
	case c.emitted > 0:
		c.log.Warn("tier failed after producing lines, keeping partial results", zap.String("tier", c.curName), zap.Int("lines", c.emitted), zap.Error(err))
		c.done, c.err = true, fmt.Errorf("%w: %s: %w", ErrPartial, c.curName, err)
	default:
		c.log.Warn("tier failed, falling back", zap.String("tier", c.curName), zap.Error(err))
		c.failures = append(c.failures, fmt.Errorf("%s: %w", c.curName, err))
	}
}

func (c *chain) Line() Line { return c.line }
func (c *chain) Err() error { return c.err }

func (c *chain) Close() error {
	c.done = true
	if c.cur != nil {
		err := c.cur.Close()
		c.cur = nil
		return err
	}
	return nil
}
