// Package pattern implements the declarative rule library: domain patterns
// loaded from YAML, merged built-in ⊕ user (user overrides by id), and
// matched against accumulated evidence to seed hypotheses.
package pattern

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/fourkites/rca-engine/pkg/evidence"
)

// RequiredEvidence names one evidence requirement with its contribution
// weight, per §4.7.
type RequiredEvidence struct {
	Source  string `yaml:"source" json:"source"`
	Weight  int    `yaml:"weight" json:"weight"`
}

// Predicate is a conjunctive symptom predicate over evidence fields: match
// evidence from `Source` (empty = any source) whose finding contains
// `FindingContains` (case-insensitive), with the given `Supports` value
// (nil = either).
type Predicate struct {
	Source          string `yaml:"source,omitempty" json:"source,omitempty"`
	FindingContains string `yaml:"finding_contains,omitempty" json:"finding_contains,omitempty"`
	Supports        *bool  `yaml:"supports,omitempty" json:"supports,omitempty"`
}

func (p Predicate) matches(e evidence.Evidence) bool {
	if p.Source != "" && p.Source != e.Source {
		return false
	}
	if p.FindingContains != "" && !strings.Contains(strings.ToLower(e.Finding), strings.ToLower(p.FindingContains)) {
		return false
	}
	if p.Supports != nil && *p.Supports != e.Supports {
		return false
	}
	return true
}

// Pattern is one domain rule record (§4.7): id, category, symptom
// predicates (conjunctive), required evidence with weights, a resolution
// template, and a prior.
type Pattern struct {
	ID                string             `yaml:"id" json:"id"`
	Category          string             `yaml:"category" json:"category"`
	Predicates        []Predicate        `yaml:"predicates" json:"predicates"`
	RequiredEvidence  []RequiredEvidence `yaml:"required_evidence" json:"required_evidence"`
	ResolutionTemplate string            `yaml:"resolution_template" json:"resolution_template"`
	Prior             float64            `yaml:"prior" json:"prior"`
}

// matches reports, for the given evidence snapshot, whether every
// predicate is satisfied by at least one item and returns the set of
// sources that contributed a match (used for the "distinct sources"
// tie-break downstream in the hypothesis engine).
func (p Pattern) matches(snapshot []evidence.Evidence) (bool, []string) {
	if len(p.Predicates) == 0 {
		return false, nil
	}
	var sources []string
	for _, pred := range p.Predicates {
		satisfied := false
		for _, e := range snapshot {
			if pred.matches(e) {
				satisfied = true
				sources = append(sources, e.Source)
			}
		}
		if !satisfied {
			return false, nil
		}
	}
	return true, sources
}

// Registry is a RWMutex-guarded, defensively-copied pattern set, modeled on
// the teacher's config registries (chain/MCP-server registries).
type Registry struct {
	mu       sync.RWMutex
	patterns map[string]Pattern
}

// NewRegistry builds a registry from a defensive copy of the given patterns,
// keyed by ID.
func NewRegistry(patterns []Pattern) *Registry {
	r := &Registry{patterns: make(map[string]Pattern, len(patterns))}
	for _, p := range patterns {
		r.patterns[p.ID] = p
	}
	return r
}

// LoadYAML parses a patterns document of the shape `patterns: [...]`.
func LoadYAML(data []byte) ([]Pattern, error) {
	var doc struct {
		Patterns []Pattern `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pattern: parse yaml: %w", err)
	}
	return doc.Patterns, nil
}

// Merge combines a built-in pattern set with user overrides: entries are
// matched by ID; a user entry overrides the built-in entry of the same ID
// field-by-field (mergo, matching config.mergeAgents/mergeChains in the
// configuration loader), and user-only entries are added outright.
func Merge(builtin, user []Pattern) ([]Pattern, error) {
	merged := make(map[string]Pattern, len(builtin))
	var order []string
	for _, p := range builtin {
		merged[p.ID] = p
		order = append(order, p.ID)
	}
	for _, u := range user {
		if base, ok := merged[u.ID]; ok {
			if err := mergo.Merge(&base, u, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("pattern: merge %q: %w", u.ID, err)
			}
			merged[u.ID] = base
			continue
		}
		merged[u.ID] = u
		order = append(order, u.ID)
	}

	out := make([]Pattern, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out, nil
}

// Get returns one pattern by ID.
func (r *Registry) Get(id string) (Pattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patterns[id]
	return p, ok
}

// All returns a defensive copy of every registered pattern.
func (r *Registry) All() []Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Pattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		out = append(out, p)
	}
	return out
}

// Len reports the number of registered patterns.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}

// RequiredEvidenceFor returns the required_evidence entries of every
// registered pattern with the given category, heaviest weight first, deduped
// by source — the adapters whose evidence would most affect that category's
// hypothesis confidence (§4.6 "directing further queries").
func (r *Registry) RequiredEvidenceFor(category string) []RequiredEvidence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []RequiredEvidence
	for _, p := range r.patterns {
		if p.Category != category {
			continue
		}
		for _, req := range p.RequiredEvidence {
			if seen[req.Source] {
				continue
			}
			seen[req.Source] = true
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// Match is one pattern that fully matched the current evidence snapshot.
type Match struct {
	Pattern Pattern
	Sources []string
}

// MatchAll evaluates every registered pattern's predicates against the
// snapshot and returns every pattern whose predicates are all satisfied
// (§4.7 "on every evidence addition, unmatched patterns re-evaluate").
func (r *Registry) MatchAll(snapshot []evidence.Evidence) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Match
	for _, p := range r.patterns {
		if ok, sources := p.matches(snapshot); ok {
			out = append(out, Match{Pattern: p, Sources: sources})
		}
	}
	return out
}
