package helloscan

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/config"
	"github.com/helloscan/helloscan/internal/engine"
	"github.com/helloscan/helloscan/internal/ignore"
	"github.com/helloscan/helloscan/internal/linesource"
	"github.com/helloscan/helloscan/internal/loader"
	"github.com/helloscan/helloscan/internal/logging"
)

// settings is the merged view of CLI flags (highest precedence), the
// repo-local config and the global config.
type settings struct {
	root            string
	ignoreDirs      []string
	extensions      []string
	include         string
	exclude         string
	defaultExcludes bool
	encoding        string
	noColor         bool

	enabled    []string
	ruleDirs   []string
	ruleConfig map[string]map[string]any

	workers      int
	toolTimeout  time.Duration
	walkTimeout  time.Duration
	partial      engine.PartialPolicy
	disableTools bool

	dbPath   string
	baseline string
	failOn   string

	logLevel  string
	logFormat string
}

// loadConfigs returns the local and global config files. An explicit
// --config must load; the implicit ones are optional.
func loadConfigs(root string) (local, global config.FileConfig, err error) {
	if c, gerr := config.LoadGlobal(); gerr == nil {
		global = c
	}
	if flagConfig != "" {
		local, err = config.LoadFile(flagConfig)
		if err != nil {
			return local, global, fmt.Errorf("load config: %w", err)
		}
		return local, global, nil
	}
	if c, lerr := config.LoadLocal(root); lerr == nil {
		local = c
	}
	return local, global, nil
}

func resolveSettings(cmd *cobra.Command) (settings, error) {
	var s settings
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	root := flagPath
	lcfg, gcfg, err := loadConfigs(root)
	if err != nil {
		return s, err
	}
	if !changed("path") && flagConfig != "" && lcfg.Root != nil && *lcfg.Root != "" {
		root = *lcfg.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(filepath.Dir(flagConfig), root)
		}
	}
	if s.root, err = filepath.Abs(root); err != nil {
		return s, err
	}

	s.ignoreDirs = pickList(flagIgnoreDir, changed("ignore-dir"), lcfg.IgnoreDirs, gcfg.IgnoreDirs)
	s.extensions = pickList(flagExt, changed("ext"), lcfg.Extensions, gcfg.Extensions)
	s.include = pickString(flagInclude, lcfg.Include, gcfg.Include)
	s.exclude = pickString(flagExclude, lcfg.Exclude, gcfg.Exclude)
	s.defaultExcludes = flagDefaultExcludes
	if !changed("default-excludes") {
		s.defaultExcludes = pickBool(false, lcfg.DefaultExcludes, gcfg.DefaultExcludes)
	}
	s.encoding = pickString(flagEncoding, lcfg.Encoding, gcfg.Encoding)
	s.noColor = pickBool(flagNoColor, lcfg.NoColor, gcfg.NoColor)

	s.enabled = pickEnabled(flagEnable, changed("enable"), lcfg.Rules.Enabled, gcfg.Rules.Enabled)
	for _, d := range pickList(flagRulesDir, changed("rules-dir"), lcfg.Rules.Dirs, gcfg.Rules.Dirs) {
		if !filepath.IsAbs(d) {
			d = filepath.Join(s.root, d)
		}
		s.ruleDirs = append(s.ruleDirs, d)
	}
	s.ruleConfig = config.RuleConfigs(lcfg, gcfg)

	s.workers = pickInt(flagWorkers, lcfg.Scan.Workers, gcfg.Scan.Workers)
	if s.toolTimeout, err = pickDuration(flagTimeout, changed("timeout"), lcfg.Scan.ToolTimeout, gcfg.Scan.ToolTimeout, linesource.DefaultToolTimeout); err != nil {
		return s, err
	}
	if s.walkTimeout, err = pickDuration(flagWalkTimeout, changed("walk-timeout"), lcfg.Scan.WalkTimeout, gcfg.Scan.WalkTimeout, 0); err != nil {
		return s, err
	}
	if s.partial, err = engine.ParsePartialPolicy(pickString(flagPartial, lcfg.Scan.Partial, gcfg.Scan.Partial)); err != nil {
		return s, err
	}
	s.disableTools = pickBool(flagNoTools, lcfg.Scan.DisableTools, gcfg.Scan.DisableTools)

	s.dbPath = pickString(flagDB, lcfg.Output.DBPath, gcfg.Output.DBPath)
	s.baseline = pickString(flagBaseline, lcfg.Output.Baseline, gcfg.Output.Baseline)
	if s.baseline == "" {
		s.baseline = defaultBaselineFile
	}
	s.failOn = pickString(flagFailOn, lcfg.Output.FailOn, gcfg.Output.FailOn)

	s.logLevel = pickString(flagLogLevel, lcfg.Log.Level, gcfg.Log.Level)
	s.logFormat = pickString(flagLogFormat, lcfg.Log.Format, gcfg.Log.Format)
	return s, nil
}

func pickDuration(cli time.Duration, cliSet bool, local, global *string, def time.Duration) (time.Duration, error) {
	if cliSet {
		return cli, nil
	}
	if local != nil {
		return config.ParseDuration(local, def)
	}
	return config.ParseDuration(global, def)
}

// components are the collaborators of one scan, built from settings.
type components struct {
	log    *zap.Logger
	loader *loader.Loader
	lines  *linesource.Source
	ignore *ignore.Matcher
}

func (s settings) build() (*components, error) {
	log, err := logging.New(s.logLevel, s.logFormat)
	if err != nil {
		return nil, err
	}
	ls, err := linesource.New(linesource.Options{
		IgnoreDirs:   s.ignoreDirs,
		Encoding:     s.encoding,
		ToolTimeout:  s.toolTimeout,
		WalkTimeout:  s.walkTimeout,
		DisableTools: s.disableTools,
	}, log)
	if err != nil {
		return nil, err
	}
	ig, err := ignore.LoadRoot(s.root)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ignore.FileName, err)
	}
	ld := loader.New(loader.Options{
		Dirs:       s.ruleDirs,
		Enabled:    s.enabled,
		RuleConfig: s.ruleConfig,
	}, log)
	return &components{log: log, loader: ld, lines: ls, ignore: ig}, nil
}

func (c *components) engine(s settings, extra map[string]any) *engine.Engine {
	return engine.New(engine.Options{
		IgnoreDirs:      s.ignoreDirs,
		Extensions:      s.extensions,
		IncludeGlobs:    s.include,
		ExcludeGlobs:    s.exclude,
		DefaultExcludes: s.defaultExcludes,
		Ignore:          c.ignore,
		Encoding:        s.encoding,
		Workers:         s.workers,
		Partial:         s.partial,
		Config: map[string]any{
			"encoding":   s.encoding,
			"extensions": s.extensions,
			"partial":    string(s.partial),
		},
		Extra:  extra,
		Logger: c.log,
	}, c.loader, c.lines)
}

func (c *components) close() {
	if err := c.loader.Close(); err != nil {
		c.log.Warn("rule cleanup failed", zap.Error(err))
	}
	_ = c.log.Sync()
}
