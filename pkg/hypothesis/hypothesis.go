// Package hypothesis implements the hypothesis lifecycle and the
// weighted-sum confidence scorer: maintaining a set of competing root-cause
// candidates, recomputing confidence as evidence arrives, and applying the
// promotion/elimination/tie-break rules.
package hypothesis

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/fourkites/rca-engine/pkg/evidence"
)

// State is the hypothesis lifecycle state.
type State string

const (
	StateActive     State = "active"
	StateConfirmed  State = "confirmed"
	StateEliminated State = "eliminated"
)

// UnknownCategory is the residual hypothesis emitted when every seeded
// hypothesis has been eliminated (§4.6 edge-case policy).
const UnknownCategory = "unknown"

// QueryRequest names an adapter whose evidence would most affect the
// confidence gap between the top two ranked hypotheses, and the category
// it was requested for (§4.6 "directing further queries").
type QueryRequest struct {
	Adapter  string
	Category string
}

// Hypothesis is a candidate root cause with a current confidence and a
// lifecycle state (§3).
type Hypothesis struct {
	ID               string    `json:"id"`
	Category         string    `json:"category"`
	Description      string    `json:"description"`
	Confidence       float64   `json:"confidence"`
	State            State     `json:"state"`
	EvidenceFor      []string  `json:"evidence_for"`
	EvidenceAgainst  []string  `json:"evidence_against"`
	Prior            float64   `json:"prior"`
	LastUpdated      time.Time `json:"last_updated"`
	distinctSources  int
}

// Config holds the scoring and lifecycle thresholds named in §4.6/§6.
type Config struct {
	Alpha                float64 // default 0.15
	Beta                 float64 // default 1.2
	AutoResolveThreshold float64 // default 0.80
	EliminationThreshold float64 // default 0.10
	TieBreakMargin       float64 // default 0.15
	TieBreakWindow       float64 // default 0.02 — "within 0.02" band for tie-break ordering
}

// DefaultConfig returns the defaults named in §4.6/§6.
func DefaultConfig() Config {
	return Config{
		Alpha:                0.15,
		Beta:                 1.2,
		AutoResolveThreshold: 0.80,
		EliminationThreshold: 0.10,
		TieBreakMargin:       0.15,
		TieBreakWindow:       0.02,
	}
}

// Engine maintains the set of active hypotheses for one investigation and
// recomputes confidence after each evidence addition.
type Engine struct {
	mu     sync.RWMutex
	cfg    Config
	byID   map[string]*Hypothesis
	order  []string // insertion order, for deterministic iteration
	nextID func() string
	seq    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides hypothesis ID minting, for deterministic tests
// and for replay (§8 replay determinism).
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.nextID = fn }
}

// New creates an Engine with the given scoring config.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:  cfg,
		byID: make(map[string]*Hypothesis),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.nextID == nil {
		e.nextID = func() string {
			e.seq++
			return fmt.Sprintf("hyp-%d", e.seq)
		}
	}
	return e
}

// Seed creates a new hypothesis with the given category, description and
// prior, unless one with the same category already exists — in which case
// this is a no-op and the existing hypothesis's ID is returned (§4.6/§4.7
// "de-duplicated by category + description similarity" / "merge supporting
// evidence").
func (e *Engine) Seed(category, description string, prior float64) *Hypothesis {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.order {
		if e.byID[id].Category == category {
			return e.byID[id].clone()
		}
	}

	h := &Hypothesis{
		ID:          e.nextID(),
		Category:    category,
		Description: description,
		Confidence:  prior,
		Prior:       prior,
		State:       StateActive,
		LastUpdated: time.Now().UTC(),
	}
	e.byID[h.ID] = h
	e.order = append(e.order, h.ID)
	return h.clone()
}

// SeedUnknown instantiates the residual "unknown" hypothesis per the
// all-eliminated edge case.
func (e *Engine) SeedUnknown() *Hypothesis {
	return e.Seed(UnknownCategory, "root cause could not be determined from available evidence", 0.3)
}

func (h *Hypothesis) clone() *Hypothesis {
	c := *h
	c.EvidenceFor = append([]string(nil), h.EvidenceFor...)
	c.EvidenceAgainst = append([]string(nil), h.EvidenceAgainst...)
	return &c
}

// Rescore recomputes every active/confirmed hypothesis's confidence from a
// point-in-time evidence snapshot (§5 "a recompute is atomic ... by taking
// a point-in-time snapshot"), then applies promotion/elimination rules.
// Hypotheses already StateEliminated are never revisited (anti-oscillation,
// §4.6).
func (e *Engine) Rescore(snapshot []evidence.Evidence) {
	e.mu.Lock()
	defer e.mu.Unlock()

	byHyp := make(map[string][]evidence.Evidence)
	for _, ev := range snapshot {
		if ev.HypothesisID == "" {
			continue
		}
		byHyp[ev.HypothesisID] = append(byHyp[ev.HypothesisID], ev)
	}

	for _, id := range e.order {
		h := e.byID[id]
		if h.State == StateEliminated {
			continue
		}

		items := byHyp[id]
		sFor, sAgainst := 0.0, 0.0
		var forIDs, againstIDs []string
		sources := make(map[string]struct{})
		for _, ev := range items {
			weighted := float64(ev.Weight) * ev.SourceConfidence
			sources[ev.Source] = struct{}{}
			if ev.Supports {
				sFor += weighted
				forIDs = append(forIDs, ev.ID)
			} else {
				sAgainst += weighted
				againstIDs = append(againstIDs, ev.ID)
			}
		}

		conf := h.Prior + e.cfg.Alpha*(sFor-e.cfg.Beta*sAgainst)/(1+sFor+sAgainst)
		h.Confidence = clip(conf, 0, 1)
		h.EvidenceFor = forIDs
		h.EvidenceAgainst = againstIDs
		h.distinctSources = len(sources)
		h.LastUpdated = time.Now().UTC()

		if h.Confidence <= e.cfg.EliminationThreshold {
			h.State = StateEliminated
		}
	}

	e.applyPromotion()
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// applyPromotion implements the confirm rule: the top hypothesis crosses
// the auto-resolve threshold AND leads the runner-up by tie_break_margin.
// Caller must hold e.mu.
func (e *Engine) applyPromotion() {
	ranked := e.rankedLocked()
	if len(ranked) == 0 {
		return
	}
	top := ranked[0]
	if top.State == StateEliminated {
		return
	}
	if top.Confidence < e.cfg.AutoResolveThreshold {
		return
	}
	runnerUp := 0.0
	if len(ranked) > 1 {
		runnerUp = ranked[1].Confidence
	}
	if top.Confidence-runnerUp >= e.cfg.TieBreakMargin {
		e.byID[top.ID].State = StateConfirmed
	}
}

// Ranked returns all non-eliminated hypotheses, most-favored first, per the
// §4.6 tie-break rule: confidence; within TieBreakWindow, more distinct
// sources; then higher prior; then lexicographic category.
func (e *Engine) Ranked() []*Hypothesis {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := e.rankedLocked()
	clones := make([]*Hypothesis, len(out))
	for i, h := range out {
		clones[i] = h.clone()
	}
	return clones
}

func (e *Engine) rankedLocked() []*Hypothesis {
	var all []*Hypothesis
	for _, id := range e.order {
		h := e.byID[id]
		if h.State == StateEliminated {
			continue
		}
		all = append(all, h)
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if math.Abs(a.Confidence-b.Confidence) > e.cfg.TieBreakWindow {
			return a.Confidence > b.Confidence
		}
		if a.distinctSources != b.distinctSources {
			return a.distinctSources > b.distinctSources
		}
		if a.Prior != b.Prior {
			return a.Prior > b.Prior
		}
		return a.Category < b.Category
	})
	return all
}

// TopTwo returns the category of the leading and runner-up ranked
// hypotheses (empty string for either slot once fewer than two remain
// active), the same ordering applyPromotion checks for the confirm rule —
// used by the investigation runner to direct further queries at the gap
// between them (§4.6).
func (e *Engine) TopTwo() (top, runnerUp string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ranked := e.rankedLocked()
	if len(ranked) > 0 {
		top = ranked[0].Category
	}
	if len(ranked) > 1 {
		runnerUp = ranked[1].Category
	}
	return top, runnerUp
}

// Confirmed returns the single confirmed hypothesis, if any.
func (e *Engine) Confirmed() (*Hypothesis, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, id := range e.order {
		if h := e.byID[id]; h.State == StateConfirmed {
			return h.clone(), true
		}
	}
	return nil, false
}

// AllEliminated reports whether every seeded hypothesis has been
// eliminated (triggers the residual-"unknown" edge case).
func (e *Engine) AllEliminated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.order) == 0 {
		return false
	}
	for _, id := range e.order {
		if e.byID[id].State != StateEliminated {
			return false
		}
	}
	return true
}

// Get returns one hypothesis by ID.
func (e *Engine) Get(id string) (*Hypothesis, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	return h.clone(), true
}
