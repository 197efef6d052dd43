package linesource

import (
	"context"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/logging"
)

type walkTier struct {
	log     *zap.Logger
	filter  Filter
	timeout time.Duration
	dec     *Decoder
}

// withTimeout applies d when it is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (w *walkTier) name() string { return "walk" }

func (w *walkTier) start(ctx context.Context, q query) (Stream, error) {
	tctx, cancel := withTimeout(ctx, w.timeout)
	files, err := Inventory(tctx, q.root, w.filter.WithExtensions(q.exts))
	s := &walkStream{log: logging.OrNop(w.log), parent: ctx, tctx: tctx, cancel: cancel, root: q.root, re: q.re, dec: w.dec, files: files}
	if err != nil {
		if tctx.Err() != nil {
			s.fail()
			return s, nil
		}
		cancel()
		return nil, err
	}
	return s, nil
}

// walkStream reads the inventory one file at a time and yields lines
// matching re.
type walkStream struct {
	log    *zap.Logger
	parent context.Context
	tctx   context.Context
	cancel context.CancelFunc
	root   string
	re     *regexp.Regexp
	dec    *Decoder

	files []string
	fi    int
	path  string
	lines []string
	li    int

	line Line
	err  error
	done bool
}

func (s *walkStream) Next() bool {
	for !s.done {
		if s.tctx.Err() != nil {
			s.fail()
			return false
		}
		if s.li < len(s.lines) {
			text := s.lines[s.li]
			s.li++
			if s.re.MatchString(text) {
				s.line = Line{Path: s.path, Number: s.li, Text: text}
				return true
			}
			continue
		}
		if s.fi >= len(s.files) {
			s.done = true
			s.cancel()
			return false
		}
		s.path = s.files[s.fi]
		s.fi++
		s.lines, s.li = nil, 0
		text, ok, err := s.dec.ReadText(filepath.Join(s.root, filepath.FromSlash(s.path)))
		if err != nil {
			s.log.Warn("skipped unreadable file", zap.String("tier", "walk"), zap.String("path", s.path), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		s.lines = SplitLines(text)
	}
	return false
}

func (s *walkStream) fail() {
	s.done = true
	if err := s.parent.Err(); err != nil {
		s.err = err
	} else {
		s.err = ErrTimeout
	}
	s.cancel()
}

func (s *walkStream) Line() Line { return s.line }
func (s *walkStream) Err() error { return s.err }

func (s *walkStream) Close() error {
	s.done = true
	s.cancel()
	return nil
}
