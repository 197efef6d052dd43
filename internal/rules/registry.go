package rules

import (
	"sync"

	"go.uber.org/zap"

	"github.com/helloscan/helloscan/internal/logging"
)

// Registry is an insertion-ordered set of rules keyed by ID with a category
// index. It performs no validation of rule behaviour. Reads are safe for
// concurrent use; writes are expected to finish before a scan starts.
type Registry struct {
	mu         sync.RWMutex
	log        *zap.Logger
	byID       map[string]Rule
	order      []string
	categories map[string][]string
}

// NewRegistry returns an empty registry. log may be nil.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:        logging.OrNop(log),
		byID:       map[string]Rule{},
		categories: map[string][]string{},
	}
}

// Register adds r. A rule already registered under the same ID is replaced
// in place (last write wins) and a warning is logged. It always returns true.
func (reg *Registry) Register(r Rule) bool {
	info := r.Info()
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.byID[info.ID]; exists {
		reg.log.Warn("rule already registered, overwriting", zap.String("rule", info.ID))
		reg.dropFromCategories(info.ID)
	} else {
		reg.order = append(reg.order, info.ID)
	}
	reg.byID[info.ID] = r
	for _, c := range info.Categories {
		reg.addCategory(info.ID, c)
	}
	reg.log.Debug("rule registered", zap.String("rule", info.ID))
	return true
}

// Unregister removes the rule with the given ID from the registry and from
// every category. It reports whether the rule was present.
func (reg *Registry) Unregister(id string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.byID[id]; !ok {
		return false
	}
	delete(reg.byID, id)
	for i, v := range reg.order {
		if v == id {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
	reg.dropFromCategories(id)
	return true
}

// Get returns the rule registered under id.
func (reg *Registry) Get(id string) (Rule, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byID[id]
	return r, ok
}

// Has reports whether id is registered.
func (reg *Registry) Has(id string) bool {
	_, ok := reg.Get(id)
	return ok
}

// Len returns the number of registered rules.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.order)
}

// All returns every rule in registration order.
func (reg *Registry) All() []Rule {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]Rule, 0, len(reg.order))
	for _, id := range reg.order {
		out = append(out, reg.byID[id])
	}
	return out
}

// ByCategory returns the rules tagged with category, in tagging order.
func (reg *Registry) ByCategory(category string) []Rule {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := reg.categories[category]
	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		if r, ok := reg.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// AddToCategory tags a registered rule with an additional category.
// Unregistered rules are ignored.
func (reg *Registry) AddToCategory(r Rule, category string) {
	id := r.Info().ID
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.byID[id]; !ok {
		return
	}
	reg.addCategory(id, category)
}

func (reg *Registry) addCategory(id, category string) {
	if category == "" {
		return
	}
	for _, existing := range reg.categories[category] {
		if existing == id {
			return
		}
	}
	reg.categories[category] = append(reg.categories[category], id)
}

func (reg *Registry) dropFromCategories(id string) {
	for c, ids := range reg.categories {
		kept := ids[:0]
		for _, v := range ids {
			if v != id {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(reg.categories, c)
			continue
		}
		reg.categories[c] = kept
	}
}
