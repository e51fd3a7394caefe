package decisiontree

import (
	"fmt"
	"sync"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ErrTreeNotFound is returned when a tree id or mode has no registered
// match, mirroring config.ErrChainNotFound.
var ErrTreeNotFound = fmt.Errorf("decisiontree: not found")

// Registry is a RWMutex-guarded, defensively-copied tree set, modeled on
// config.ChainRegistry.
type Registry struct {
	mu    sync.RWMutex
	trees map[string]Tree
}

// NewRegistry builds a registry from a defensive copy of the given trees,
// keyed by ID.
func NewRegistry(trees []Tree) *Registry {
	r := &Registry{trees: make(map[string]Tree, len(trees))}
	for _, t := range trees {
		r.trees[t.ID] = t
	}
	return r
}

// LoadYAML parses a trees document of the shape `trees: [...]`.
func LoadYAML(data []byte) ([]Tree, error) {
	var doc struct {
		Trees []Tree `yaml:"trees"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decisiontree: parse yaml: %w", err)
	}
	return doc.Trees, nil
}

// Merge combines a built-in tree set with user overrides: entries are
// matched by ID; a user entry overrides the built-in entry of the same ID
// field-by-field (mergo, matching pattern.Merge/config.mergeChains), and
// user-only entries are added outright.
func Merge(builtin, user []Tree) ([]Tree, error) {
	merged := make(map[string]Tree, len(builtin))
	var order []string
	for _, t := range builtin {
		merged[t.ID] = t
		order = append(order, t.ID)
	}
	for _, u := range user {
		if base, ok := merged[u.ID]; ok {
			if err := mergo.Merge(&base, u, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("decisiontree: merge %q: %w", u.ID, err)
			}
			merged[u.ID] = base
			continue
		}
		merged[u.ID] = u
		order = append(order, u.ID)
	}

	out := make([]Tree, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out, nil
}

// Get returns one tree by ID.
func (r *Registry) Get(id string) (Tree, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trees[id]
	return t, ok
}

// GetByMode returns a registered tree that handles the given mode. Trees
// are held in a map, so when several handle the same mode which one is
// returned is not defined.
func (r *Registry) GetByMode(mode string) (Tree, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.trees {
		if t.handlesMode(mode) {
			return t, true
		}
	}
	return Tree{}, false
}

// All returns a defensive copy of every registered tree.
func (r *Registry) All() []Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tree, 0, len(r.trees))
	for _, t := range r.trees {
		out = append(out, t)
	}
	return out
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.trees[id]
	return ok
}

// Len reports the number of registered trees.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trees)
}
