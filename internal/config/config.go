package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML configuration shape for helloscan. Pointer
// and nil-slice fields distinguish "absent" from an explicit zero value.
type FileConfig struct {
	Root            *string  `yaml:"root"`
	IgnoreDirs      []string `yaml:"ignore_dirs"`
	Extensions      []string `yaml:"extensions"`
	Include         *string  `yaml:"include"`
	Exclude         *string  `yaml:"exclude"`
	DefaultExcludes *bool    `yaml:"default_excludes"`
	Encoding        *string  `yaml:"encoding"`
	NoColor         *bool    `yaml:"no_color"`

	Rules  RulesConfig  `yaml:"rules"`
	Scan   ScanConfig   `yaml:"scan"`
	Output OutputConfig `yaml:"output"`
	Log    LogConfig    `yaml:"log"`
}

// RulesConfig selects and configures rules.
type RulesConfig struct {
	// Enabled lists rule IDs to run. Absent means every registered rule;
	// an explicit empty list means none.
	Enabled *[]string `yaml:"enabled"`
	// Dirs are external rule directories.
	Dirs []string `yaml:"dirs"`
	// Config maps a rule ID to the block passed to its Initialize.
	Config map[string]map[string]any `yaml:"config"`
}

// ScanConfig controls the line source and engine.
type ScanConfig struct {
	Workers      *int    `yaml:"workers"`
	ToolTimeout  *string `yaml:"tool_timeout"`
	WalkTimeout  *string `yaml:"walk_timeout"`
	Partial      *string `yaml:"partial"`
	DisableTools *bool   `yaml:"disable_tools"`
}

// OutputConfig controls persistence.
type OutputConfig struct {
	DBPath   *string `yaml:"db_path"`
	Baseline *string `yaml:"baseline"`
	FailOn   *string `yaml:"fail_on"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

// LocalNames are the repo-local config file names, in search order.
var LocalNames = []string{".helloscan.yml", ".helloscan.yaml", "helloscan.yml", "helloscan.yaml"}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(b []byte) (FileConfig, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}
	return cfg, nil
}

// LoadLocal searches for a repo-local config file in the given root.
// It supports .helloscan.yml/.yaml and helloscan.yml/.yaml.
func LoadLocal(repoRoot string) (FileConfig, error) {
	var cfg FileConfig
	for _, name := range LocalNames {
		p := filepath.Join(repoRoot, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return cfg, errors.New("no local config")
}

// GlobalPath returns the global config file location under the XDG base
// directory or ~/.config.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return "", errors.New("no config dir")
	}
	return filepath.Join(base, "helloscan", "config.yml"), nil
}

// LoadGlobal loads the global config file.
func LoadGlobal() (FileConfig, error) {
	var cfg FileConfig
	p, err := GlobalPath()
	if err != nil {
		return cfg, err
	}
	if _, err := os.Stat(p); err == nil {
		return LoadFile(p)
	}
	return cfg, errors.New("no global config")
}

// ParseDuration parses an optional duration. Absent or empty yields def;
// a bare "0" is accepted.
func ParseDuration(s *string, def time.Duration) (time.Duration, error) {
	if s == nil || *s == "" {
		return def, nil
	}
	if *s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", *s, err)
	}
	return d, nil
}

// RuleConfigs merges per-rule blocks; keys in local replace those in global
// one rule at a time.
func RuleConfigs(local, global FileConfig) map[string]map[string]any {
	out := map[string]map[string]any{}
	for id, c := range global.Rules.Config {
		out[id] = c
	}
	for id, c := range local.Rules.Config {
		out[id] = c
	}
	return out
}

// Starter is written by "helloscan config init".
const Starter = `# helloscan configuration
root: .
ignore_dirs: [.git, __pycache__, .svn, .hg, .idea, .vscode, node_modules, .tox, dist, build]
# extensions: [.py, .go]
encoding: utf-8
rules:
  # enabled: [builtin.todo, builtin.security]
  dirs: []
  config:
    builtin.keyword:
      keywords: [TODO, FIXME, BUG, HACK]
      case_sensitive: false
    builtin.large_file:
      max_lines: 1000
scan:
  workers: 1
  tool_timeout: 300s
  walk_timeout: 0s
  partial: keep
  disable_tools: false
output:
  db_path: ""
log:
  level: info
  format: console
`
