// Package loader discovers rules, registers them and initializes the ones
// enabled by configuration.
//
// A rule moves through Unloaded → Discovered → Registered → Enabled or
// Disabled → Active or Inactive. Only Active rules are handed to the engine.
// Failures while loading, validating or initializing a rule are logged and
// the rule is skipped; they never abort loading of the others.
package loader

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/blang/semver/v4"
	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/logging"
	"github.com/helloscan/helloscan/internal/rules"
	"github.com/helloscan/helloscan/internal/rules/script"
)

// ErrInvalidRule marks a rule whose descriptor fails validation.
var ErrInvalidRule = errors.New("invalid rule")

// Options configures a Loader.
type Options struct {
	// Sources are consulted first, in order. Nil means Builtin only; pass an
	// empty non-nil slice to load nothing but Dirs.
	Sources []Source

	// Dirs are external rule directories, listed non-recursively.
	Dirs []string

	// Enabled lists the rule IDs to initialize. Nil enables every registered
	// rule; an empty non-nil slice enables none.
	Enabled []string

	// RuleConfig maps a rule ID to the configuration passed to Initialize.
	RuleConfig map[string]map[string]any

	// ScriptTimeout bounds each call into a Lua rule.
	ScriptTimeout time.Duration
}

type entry struct {
	rule   rules.Rule
	source string
	state  State
	reason string
}

// Loader owns the rule registry of one invocation.
type Loader struct {
	opts Options
	log  *zap.Logger
	reg  *rules.Registry

	mu        sync.Mutex
	entries   map[string]*entry
	instances []rules.Rule
	active    []rules.Rule
	loaded    bool
	closed    bool
}

// New returns a loader. log may be nil.
func New(opts Options, log *zap.Logger) *Loader {
	log = logging.OrNop(log)
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = script.DefaultCallTimeout
	}
	return &Loader{
		opts:    opts,
		log:     log.Named("loader"),
		reg:     rules.NewRegistry(log),
		entries: map[string]*entry{},
	}
}

// Registry returns the registry populated by Load.
func (l *Loader) Registry() *rules.Registry { return l.reg }

// Load runs discovery, registration and selective initialization. It is a
// no-op after the first call.
func (l *Loader) Load() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return
	}
	l.loaded = true
	l.discover()
	l.initialize()
}

func (l *Loader) sources() []Source {
	srcs := l.opts.Sources
	if srcs == nil {
		srcs = []Source{Builtin()}
	}
	srcs = append([]Source(nil), srcs...)
	for _, d := range l.opts.Dirs {
		srcs = append(srcs, dirSources(d, l.opts.ScriptTimeout, l.log)...)
	}
	return srcs
}

func (l *Loader) discover() {
	for _, src := range l.sources() {
		rs, err := loadSource(src)
		if err != nil {
			l.log.Warn("rule source reported errors", zap.String("source", src.Name()), zap.Error(err))
		}
		for _, r := range rs {
			l.instances = append(l.instances, r)
			info := r.Info()
			if err := Validate(info); err != nil {
				l.log.Warn("skipping rule", zap.String("source", src.Name()), zap.String("rule", info.ID), zap.Error(err))
				continue
			}
			l.entries[info.ID] = &entry{rule: r, source: src.Name(), state: Discovered}
			l.reg.Register(r)
			l.entries[info.ID].state = Registered
		}
	}
	l.log.Debug("rules discovered", zap.Int("registered", l.reg.Len()))
}

// loadSource isolates a panicking source from the rest of discovery.
func loadSource(src Source) (rs []rules.Rule, err error) {
	defer func() {
		if p := recover(); p != nil {
			rs, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return src.Load()
}

// Validate checks a rule descriptor: the ID must be non-empty and the
// version a semantic version.
func Validate(info rules.Info) error {
	if info.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if _, err := semver.ParseTolerant(info.Version); err != nil {
		return fmt.Errorf("%w: %s: version %q: %v", ErrInvalidRule, info.ID, info.Version, err)
	}
	return nil
}

func (l *Loader) isEnabled(id string) bool {
	if l.opts.Enabled == nil {
		return true
	}
	for _, e := range l.opts.Enabled {
		if e == id {
			return true
		}
	}
	return false
}

func (l *Loader) initialize() {
	for _, id := range l.opts.Enabled {
		if !l.reg.Has(id) {
			l.log.Warn("enabled rule is not registered", zap.String("rule", id))
		}
	}
	for _, r := range l.reg.All() {
		id := r.Info().ID
		e := l.entries[id]
		if !l.isEnabled(id) {
			e.state = Disabled
			l.deactivate(e, "not enabled")
			continue
		}
		e.state = Enabled
		if err := initRule(r, l.opts.RuleConfig[id]); err != nil {
			l.log.Warn("rule failed to initialize", zap.String("rule", id), zap.Error(err))
			l.deactivate(e, err.Error())
			continue
		}
		if p := r.Pattern(); p != "" {
			if _, err := regexp.Compile(p); err != nil {
				l.log.Warn("rule pattern does not compile", zap.String("rule", id), zap.String("pattern", p), zap.Error(err))
				l.deactivate(e, "invalid pattern: "+err.Error())
				continue
			}
		}
		e.state = Active
		l.active = append(l.active, r)
	}
	l.log.Info("rules loaded", zap.Int("registered", l.reg.Len()), zap.Int("active", len(l.active)))
}

func (l *Loader) deactivate(e *entry, reason string) {
	e.state = Inactive
	e.reason = reason
}

func initRule(r rules.Rule, cfg map[string]any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if cfg == nil {
		cfg = map[string]any{}
	}
	return r.Initialize(cfg)
}

// EnabledRules returns the Active rules in registration order.
func (l *Loader) EnabledRules() []rules.Rule {
	l.Load()
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]rules.Rule(nil), l.active...)
}

// State reports the lifecycle state of the rule with the given ID.
// Unknown IDs are Unloaded.
func (l *Loader) State(id string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok {
		return e.state
	}
	return Unloaded
}

// Statuses lists every registered rule in registration order.
func (l *Loader) Statuses() []Status {
	l.Load()
	l.mu.Lock()
	defer l.mu.Unlock()
	all := l.reg.All()
	out := make([]Status, 0, len(all))
	for _, r := range all {
		info := r.Info()
		e := l.entries[info.ID]
		out = append(out, Status{
			ID:         info.ID,
			Name:       info.Name,
			Version:    info.Version,
			Source:     e.source,
			Pattern:    r.Pattern(),
			Extensions: rules.NormalizeExtensions(r.Extensions()),
			Categories: info.Categories,
			State:      e.state,
			Reason:     e.reason,
		})
	}
	return out
}

// Close calls Cleanup once on every rule instance the loader created,
// including instances replaced in the registry. Errors are logged and joined.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	var errs []error
	for _, r := range l.instances {
		if err := cleanupRule(r); err != nil {
			l.log.Warn("rule cleanup failed", zap.String("rule", r.Info().ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", r.Info().ID, err))
		}
	}
	l.active = nil
	return errors.Join(errs...)
}

func cleanupRule(r rules.Rule) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Cleanup()
}
