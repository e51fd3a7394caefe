// Package decisiontree implements the optional declarative branch evaluator
// (§4.9): for modes whose investigation protocol is highly deterministic,
// the engine can additionally walk a YAML decision tree in parallel with
// the generative hypothesis loop. Each node names an action (invoke one
// adapter with fixed parameters) and a list of decisions (predicate over
// the current evidence snapshot → next node, or a conclusion). A
// conclusion is a pre-weighted evidence item bound to a hypothesis
// category; it is reconciled at the hypothesis engine exactly like any
// other evidence and never short-circuits LLM-suggested hypotheses.
//
// Grounded on the teacher's pkg/config.ChainConfig/StageConfig: ordered
// YAML-defined stages validated and held in a registry. A decision tree
// generalizes "ordered stages of agents" to "nodes with an action and
// predicate-keyed transitions", reusing the same load/merge/registry idiom
// as the pattern library (pkg/pattern) and the chain configuration.
package decisiontree

import (
	"strings"

	"github.com/fourkites/rca-engine/pkg/evidence"
)

// Predicate is a symptom condition evaluated against the current evidence
// snapshot: match any item from Source (empty = any source) whose finding
// contains FindingContains (case-insensitive), with the given Supports
// value (nil = either). Mirrors pattern.Predicate's shape so the two
// libraries read the same way in YAML.
type Predicate struct {
	Source          string `yaml:"source,omitempty" json:"source,omitempty"`
	FindingContains string `yaml:"finding_contains,omitempty" json:"finding_contains,omitempty"`
	Supports        *bool  `yaml:"supports,omitempty" json:"supports,omitempty"`
}

// Matches reports whether any item in snapshot satisfies p.
func (p Predicate) Matches(snapshot []evidence.Evidence) bool {
	for _, e := range snapshot {
		if p.Source != "" && p.Source != e.Source {
			continue
		}
		if p.FindingContains != "" && !strings.Contains(strings.ToLower(e.Finding), strings.ToLower(p.FindingContains)) {
			continue
		}
		if p.Supports != nil && *p.Supports != e.Supports {
			continue
		}
		return true
	}
	return false
}

// Action invokes one adapter with fixed parameters when its node is
// reached (§4.9 "invoke adapter X with parameters Y").
type Action struct {
	Adapter string            `yaml:"adapter" json:"adapter"`
	Params  map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Conclusion is a terminal decision outcome: a pre-weighted evidence item
// bound to a hypothesis category (§4.9 "conclusion emits a pre-weighted
// evidence item"). Prior seeds the category's hypothesis if the pattern
// library has not already done so.
type Conclusion struct {
	Category         string  `yaml:"category" json:"category"`
	Finding          string  `yaml:"finding" json:"finding"`
	Weight           int     `yaml:"weight" json:"weight"`
	SourceConfidence float64 `yaml:"source_confidence" json:"source_confidence"`
	Prior            float64 `yaml:"prior" json:"prior"`
}

// Decision is one predicate-keyed transition out of a node: exactly one of
// NextNode or Conclusion is set once Predicate matches.
type Decision struct {
	Predicate  Predicate   `yaml:"predicate" json:"predicate"`
	NextNode   string      `yaml:"next_node,omitempty" json:"next_node,omitempty"`
	Conclusion *Conclusion `yaml:"conclusion,omitempty" json:"conclusion,omitempty"`
}

// Node is one step of the tree: an optional action to run on arrival, then
// decisions evaluated in order against the evidence snapshot produced so
// far (first match wins).
type Node struct {
	ID        string     `yaml:"id" json:"id"`
	Action    *Action    `yaml:"action,omitempty" json:"action,omitempty"`
	Decisions []Decision `yaml:"decisions" json:"decisions"`
}

// Tree is one declarative decision tree, scoped to the modes it applies to
// (§4.9 "e.g. the ocean mode's documented flowchart").
type Tree struct {
	ID    string          `yaml:"id" json:"id"`
	Modes []string        `yaml:"modes" json:"modes"`
	Root  string          `yaml:"root" json:"root"`
	Nodes map[string]Node `yaml:"nodes" json:"nodes"`
}

func (t Tree) handlesMode(mode string) bool {
	for _, m := range t.Modes {
		if m == mode {
			return true
		}
	}
	return false
}
