package linesource

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/helloscan/helloscan/internal/rules"
)

// DefaultIgnoreDirs are skipped unless configuration says otherwise.
var DefaultIgnoreDirs = []string{
	".git", "__pycache__", ".svn", ".hg", ".idea",
	".vscode", "node_modules", ".tox", "dist", "build",
}

// Filter selects the files a scan considers. IgnoreDirs entries are directory
// names or doublestar globs matched against each path segment; Extensions
// are exact suffixes (empty = every file).
type Filter struct {
	IgnoreDirs []string
	Extensions []string
}

// WithExtensions returns a copy of f restricted to exts.
func (f Filter) WithExtensions(exts []string) Filter {
	f.Extensions = rules.NormalizeExtensions(exts)
	return f
}

// IgnoredDir reports whether a directory called name is skipped.
func (f Filter) IgnoredDir(name string) bool {
	for _, p := range f.IgnoreDirs {
		if p == name {
			return true
		}
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Keep reports whether the slash-separated relative path rel passes both the
// directory and the extension filter.
func (f Filter) Keep(rel string) bool {
	rel = strings.ReplaceAll(rel, "\\", "/")
	segs := strings.Split(rel, "/")
	for _, s := range segs[:len(segs)-1] {
		if s != "" && s != "." && f.IgnoredDir(s) {
			return false
		}
	}
	return rules.AcceptsPath(f.Extensions, rel)
}

// Inventory lists the regular files under root that pass f, as
// slash-separated paths relative to root, in lexical walk order.
func Inventory(ctx context.Context, root string, f Filter) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if p != root && f.IgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if f.Keep(rel) {
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}
