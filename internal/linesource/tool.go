package linesource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/logging"
)

// procStream reads matches from a line-search subprocess. Exit code 1 is
// "no match" for both grep and findstr.
type procStream struct {
	log    *zap.Logger
	tool   string
	parent context.Context
	tctx   context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	r      *bufio.Reader
	stderr bytes.Buffer
	dec    *Decoder

	line Line
	err  error
	done bool

	waitOnce sync.Once
	waitErr  error
}

func startProc(ctx context.Context, log *zap.Logger, tool, path, dir string, timeout time.Duration, dec *Decoder, args []string) (*procStream, error) {
	tctx, cancel := withTimeout(ctx, timeout)
	cmd := exec.CommandContext(tctx, path, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	p := &procStream{log: logging.OrNop(log), tool: tool, parent: ctx, tctx: tctx, cancel: cancel, cmd: cmd, dec: dec}
	cmd.Stderr = &p.stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}
	p.r = bufio.NewReaderSize(out, 64*1024)
	return p, nil
}

func (p *procStream) Next() bool {
	for !p.done {
		b, err := p.r.ReadBytes('\n')
		if len(b) > 0 {
			if ln, ok := parseMatch(trimEOL(b), p.dec); ok {
				p.line = ln
				if err != nil && err != io.EOF {
					p.finish(err)
				}
				return true
			}
		}
		if err != nil {
			p.finish(err)
		}
	}
	return false
}

func (p *procStream) wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.cancel()
	})
	return p.waitErr
}

func (p *procStream) finish(readErr error) {
	p.done = true
	werr := p.wait()
	var ee *exec.ExitError
	switch {
	case p.parent.Err() != nil:
		p.err = p.parent.Err()
	case werr == nil, errors.As(werr, &ee) && ee.ExitCode() == 1:
		if readErr != nil && readErr != io.EOF {
			p.err = readErr
		}
	case errors.Is(p.tctx.Err(), context.DeadlineExceeded):
		p.err = ErrTimeout
	case ee != nil && ee.ExitCode() == 2 && p.skippedFiles():
		if readErr != nil && readErr != io.EOF {
			p.err = readErr
		}
	default:
		msg := strings.TrimSpace(p.stderr.String())
		if len(msg) > 512 {
			msg = msg[:512]
		}
		p.err = fmt.Errorf("%w: %s", werr, msg)
	}
}

// skippedFiles reports whether grep's exit status 2 came only from files it
// could not read. Each one is logged; the rest of the tree was searched.
func (p *procStream) skippedFiles() bool {
	if p.tool != "grep" {
		return false
	}
	var skipped []string
	for _, l := range strings.Split(p.stderr.String(), "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if !strings.Contains(l, ": ./") {
			return false
		}
		skipped = append(skipped, l)
	}
	for _, l := range skipped {
		p.log.Warn("skipped unreadable file", zap.String("tool", p.tool), zap.String("detail", l))
	}
	return len(skipped) > 0
}

func (p *procStream) Line() Line { return p.line }
func (p *procStream) Err() error { return p.err }

// Close kills the process if it is still running and reaps it.
func (p *procStream) Close() error {
	p.cancel()
	_ = p.wait()
	p.done = true
	return nil
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}

// parseMatch parses "path\x00N:text" (grep --null) or "path:N:text".
func parseMatch(b []byte, dec *Decoder) (Line, bool) {
	var path, rest []byte
	if i := bytes.IndexByte(b, 0); i >= 0 {
		path, rest = b[:i], b[i+1:]
	} else {
		i := bytes.IndexByte(b, ':')
		if i < 0 {
			return Line{}, false
		}
		path, rest = b[:i], b[i+1:]
	}
	j := bytes.IndexByte(rest, ':')
	if j < 0 {
		return Line{}, false
	}
	n, err := strconv.Atoi(string(rest[:j]))
	if err != nil || n < 1 {
		return Line{}, false
	}
	return Line{Path: cleanRel(string(path)), Number: n, Text: dec.String(rest[j+1:])}, true
}

func cleanRel(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// ereOf converts a Go regexp to a POSIX extended regexp that grep, matching
// bytes in the C locale, runs with the same result per UTF-8 line. A leading
// (?i) becomes icase. Constructs whose byte and rune readings differ are
// rejected: a single "." or negated class not repeated by * or +, non-ASCII
// text in a class, under a quantifier or under icase, escapes of letters or
// digits, flag groups and lazy quantifiers. Under icase, k and s also match
// the Kelvin sign and long s, so they are spelled out.
func ereOf(pattern string) (ere string, icase bool, ok bool) {
	p := pattern
	if strings.HasPrefix(p, "(?i)") {
		icase, p = true, p[len("(?i)"):]
	}
	if strings.Contains(p, "(?") {
		return "", false, false
	}
	var b strings.Builder
	for i := 0; i < len(p); {
		c := p[i]
		switch {
		case c == '\\':
			if i+1 >= len(p) || isAlnum(p[i+1]) || p[i+1] >= utf8.RuneSelf {
				return "", false, false
			}
			b.WriteString(p[i : i+2])
			i += 2
		case c == '[':
			end, negated, ok := classEnd(p, i)
			if !ok || !classIsByteSafe(p[i:end], icase) || negated && !repeated(p, end) {
				return "", false, false
			}
			b.WriteString(p[i:end])
			i = end
		case c == '.':
			if !repeated(p, i+1) {
				return "", false, false
			}
			b.WriteByte(c)
			i++
		case c >= utf8.RuneSelf:
			_, size := utf8.DecodeRuneInString(p[i:])
			if icase || quantified(p, i+size) {
				return "", false, false
			}
			b.WriteString(p[i : i+size])
			i += size
		case icase && (c == 'k' || c == 'K'):
			b.WriteString("(k|\u212a)")
			i++
		case icase && (c == 's' || c == 'S'):
			b.WriteString("(s|\u017f)")
			i++
		default:
			if strings.IndexByte("*+?}", c) >= 0 && i+1 < len(p) && p[i+1] == '?' {
				return "", false, false
			}
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), icase, true
}

// repeated reports whether p[i] is * or +, which match a run of bytes exactly
// when they match a run of runes.
func repeated(p string, i int) bool {
	return i < len(p) && (p[i] == '*' || p[i] == '+')
}

func quantified(p string, i int) bool {
	return i < len(p) && strings.IndexByte("*+?{", p[i]) >= 0
}

// classEnd returns the index just past the bracket expression opening at
// p[i], honouring a leading "]" and [:name:] classes.
func classEnd(p string, i int) (end int, negated bool, ok bool) {
	j := i + 1
	if j < len(p) && p[j] == '^' {
		negated = true
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	for j < len(p) {
		switch {
		case p[j] == '[' && j+1 < len(p) && p[j+1] == ':':
			k := strings.Index(p[j+2:], ":]")
			if k < 0 {
				return 0, false, false
			}
			j += k + 4
		case p[j] == ']':
			return j + 1, negated, true
		default:
			j++
		}
	}
	return 0, false, false
}

// classIsByteSafe rejects classes that grep would read differently: any
// non-ASCII byte or backslash, and under icase anything that could cover k or
// s.
func classIsByteSafe(cls string, icase bool) bool {
	for i := 0; i < len(cls); i++ {
		c := cls[i]
		if c >= utf8.RuneSelf || c == '\\' {
			return false
		}
		if icase && strings.IndexByte("kKsS-:", c) >= 0 {
			return false
		}
	}
	return true
}

// literalAlternation splits "a|b|c" into literals, undoing backslash escapes
// of punctuation. Any other regexp syntax is rejected, as are literals findstr
// would compare differently from Go: non-ASCII text, and k or s under icase.
func literalAlternation(pattern string) (lits []string, icase bool, ok bool) {
	p := pattern
	if strings.HasPrefix(p, "(?i)") {
		icase, p = true, p[len("(?i)"):]
	}
	if p == "" {
		return nil, false, false
	}
	for _, part := range strings.Split(p, "|") {
		var b strings.Builder
		for i := 0; i < len(part); i++ {
			c := part[i]
			if c == '\\' {
				if i+1 >= len(part) || isAlnum(part[i+1]) {
					return nil, false, false
				}
				i++
				b.WriteByte(part[i])
				continue
			}
			if strings.IndexByte(`.+*?()[]{}^$`, c) >= 0 {
				return nil, false, false
			}
			b.WriteByte(c)
		}
		lit := b.String()
		if lit == "" || !asciiOnly(lit) || icase && strings.ContainsAny(lit, "kKsS") {
			return nil, false, false
		}
		lits = append(lits, lit)
	}
	return lits, icase, true
}

func asciiOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

type grepTier struct {
	log        *zap.Logger
	path       string
	ignoreDirs []string
	timeout    time.Duration
	dec        *Decoder
}

func (g *grepTier) name() string { return "grep" }

func (g *grepTier) args(q query) ([]string, bool) {
	ere, icase, ok := ereOf(q.pattern)
	if !ok {
		return nil, false
	}
	args := []string{"-r", "-n", "-I", "--null", "--binary-files=without-match", "-E"}
	if icase {
		args = append(args, "-i")
	}
	for _, e := range q.exts {
		args = append(args, "--include=*"+e)
	}
	for _, d := range g.ignoreDirs {
		args = append(args, "--exclude-dir="+d)
	}
	return append(args, "-e", ere, "."), true
}

func (g *grepTier) start(ctx context.Context, q query) (Stream, error) {
	args, ok := g.args(q)
	if !ok {
		return nil, errDeclined
	}
	return startProc(ctx, g.log, "grep", g.path, q.root, g.timeout, g.dec, args)
}

type findstrTier struct {
	log     *zap.Logger
	path    string
	timeout time.Duration
	dec     *Decoder
}

func (f *findstrTier) name() string { return "findstr" }

func (f *findstrTier) args(q query) ([]string, bool) {
	lits, icase, ok := literalAlternation(q.pattern)
	if !ok {
		return nil, false
	}
	args := []string{"/S", "/N", "/P", "/L"}
	if icase {
		args = append(args, "/I")
	}
	for _, l := range lits {
		args = append(args, "/C:"+l)
	}
	if len(q.exts) == 0 {
		return append(args, "*"), true
	}
	for _, e := range q.exts {
		args = append(args, "*"+e)
	}
	return args, true
}

func (f *findstrTier) start(ctx context.Context, q query) (Stream, error) {
	args, ok := f.args(q)
	if !ok {
		return nil, errDeclined
	}
	return startProc(ctx, f.log, "findstr", f.path, q.root, f.timeout, f.dec, args)
}
