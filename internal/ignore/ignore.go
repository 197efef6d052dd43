// Package ignore reads .helloscanignore files: one doublestar glob per line,
// gitignore style.
package ignore

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file looked up at the scan root.
const FileName = ".helloscanignore"

type pattern struct {
	glob     string
	negate   bool
	dirOnly  bool
	anchored bool
}

// Matcher decides whether a slash-separated relative path is ignored. The
// last matching pattern wins; "!" re-includes.
type Matcher struct {
	patterns []pattern
}

// Load reads patterns from path.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// LoadRoot loads root/.helloscanignore. A missing file yields a nil matcher
// and no error.
func LoadRoot(root string) (*Matcher, error) {
	m, err := Load(filepath.Join(root, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return m, err
}

// Parse reads patterns from r. Blank lines and "#" comments are skipped.
func Parse(r io.Reader) (*Matcher, error) {
	m := &Matcher{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var p pattern
		if strings.HasPrefix(line, "!") {
			p.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			p.anchored = true
			line = strings.TrimPrefix(line, "/")
		} else if strings.Contains(line, "/") {
			p.anchored = true
		}
		if !doublestar.ValidatePattern(line) {
			return nil, errors.New("invalid ignore pattern: " + sc.Text())
		}
		p.glob = line
		m.patterns = append(m.patterns, p)
	}
	return m, sc.Err()
}

// Match reports whether rel (a file path) is ignored. A nil matcher ignores
// nothing.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return false
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	ignored := false
	for _, p := range m.patterns {
		if p.matches(rel) {
			ignored = !p.negate
		}
	}
	return ignored
}

func (p pattern) matches(rel string) bool {
	segs := strings.Split(rel, "/")
	// Directory patterns match any parent directory of the file.
	last := len(segs)
	if p.dirOnly {
		last = len(segs) - 1
	}
	for i := 1; i <= last; i++ {
		prefix := strings.Join(segs[:i], "/")
		if p.anchored {
			if ok, _ := doublestar.Match(p.glob, prefix); ok {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(p.glob, segs[i-1]); ok {
			return true
		}
	}
	return false
}
