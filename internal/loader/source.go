package loader

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/rules/builtin"
	"github.com/helloscan/helloscan/internal/rules/declarative"
	"github.com/helloscan/helloscan/internal/rules/script"
)

// Source produces rule instances from one origin. Load may return rules
// together with an error describing entries it had to skip.
type Source interface {
	Name() string
	Load() ([]rules.Rule, error)
}

// Func adapts a function to Source.
type Func struct {
	Label string
	Fn    func() ([]rules.Rule, error)
}

func (f Func) Name() string                { return f.Label }
func (f Func) Load() ([]rules.Rule, error) { return f.Fn() }

// Builtin is the static list of compiled-in rules.
func Builtin() Source {
	return Func{Label: "builtin", Fn: func() ([]rules.Rule, error) { return builtin.All(), nil }}
}

type yamlFile string

func (p yamlFile) Name() string { return string(p) }

func (p yamlFile) Load() ([]rules.Rule, error) {
	return declarative.LoadFile(string(p))
}

type luaFile struct {
	path    string
	timeout time.Duration
}

func (p luaFile) Name() string { return p.path }

func (p luaFile) Load() ([]rules.Rule, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	return script.Load(string(b), p.path, p.timeout)
}

var packageEntries = []string{"rules.yaml", "rules.yml", "init.lua"}

// dirSources lists dir non-recursively and returns one source per rule
// module found: *.yaml, *.yml and *.lua files, and sub-directories holding
// rules.yaml, rules.yml or init.lua. Entries are visited in name order.
func dirSources(dir string, timeout time.Duration, log *zap.Logger) []Source {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("rules directory does not exist", zap.String("dir", dir))
		} else {
			log.Warn("cannot read rules directory", zap.String("dir", dir), zap.Error(err))
		}
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []Source
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if s := packageSource(p, timeout); s != nil {
				out = append(out, s)
			} else {
				log.Debug("ignoring directory without rules entry point", zap.String("dir", p))
			}
			continue
		}
		if s := fileSource(p, timeout); s != nil {
			out = append(out, s)
			continue
		}
		log.Debug("ignoring non-rule file", zap.String("file", p))
	}
	return out
}

func fileSource(p string, timeout time.Duration) Source {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return yamlFile(p)
	case ".lua":
		return luaFile{path: p, timeout: timeout}
	}
	return nil
}

func packageSource(dir string, timeout time.Duration) Source {
	for _, name := range packageEntries {
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return fileSource(p, timeout)
		}
	}
	return nil
}
