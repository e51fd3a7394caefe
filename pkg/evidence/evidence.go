// Package evidence implements the append-only, per-investigation evidence
// log: immutable findings attributed to a data-source adapter, with
// structural de-duplication on (source, finding-hash, supports, weight,
// hypothesis binding).
package evidence

import (
	"encoding/json"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Evidence is a single, immutable, source-attributed finding.
type Evidence struct {
	ID               string          `json:"id"`
	Source           string          `json:"source"`
	Finding          string          `json:"finding"`
	Supports         bool            `json:"supports"`
	Weight           int             `json:"weight"`
	SourceConfidence float64         `json:"source_confidence"`
	Raw              json.RawMessage `json:"raw,omitempty"`
	Timestamp        time.Time       `json:"ts"`
	HypothesisID     string          `json:"hypothesis_id,omitempty"`
	AgentID          string          `json:"agent_id,omitempty"`

	// seq is a monotonic tiebreaker for stable ordering when two items
	// share a wall-clock timestamp. Not exposed on the wire.
	seq uint64
}

// FindingHash returns the stable de-duplication key described in §3/§4.5:
// a hash over (source, finding, supports, weight, hypothesis binding).
func FindingHash(source, finding string, supports bool, weight int, hypothesisID string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(finding))
	_, _ = h.Write([]byte{0})
	if supports {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(weight)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(hypothesisID))
	return strconv.FormatUint(h.Sum64(), 16)
}

// dedupKey identifies a structural duplicate per §4.5.
type dedupKey struct {
	source       string
	findingHash  string
	supports     bool
	weight       int
	hypothesisID string
}

// Store is the per-investigation append-only evidence log. It is safe for
// concurrent use; writers are serialized and readers observe a consistent
// point-in-time snapshot, matching §4.5 and §5's scoring-snapshot rule.
type Store struct {
	mu       sync.RWMutex
	items    []Evidence
	seen     map[dedupKey]struct{}
	nextSeq  uint64
	capacity int
	dropped  int

	idFn func() string
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides the maximum-evidence-items cap (§5 "maximum
// evidence items per investigation"). Zero means unbounded.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithIDGenerator overrides how evidence IDs are minted, for deterministic
// tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.idFn = fn }
}

// New creates an empty evidence store.
func New(opts ...Option) *Store {
	s := &Store{
		seen: make(map[dedupKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idFn == nil {
		s.idFn = func() string {
			return strconv.FormatUint(s.nextSeq+1, 36)
		}
	}
	return s
}

// AppendResult reports the outcome of an Append call.
type AppendResult struct {
	Evidence Evidence
	// Added is false when the item was a structural duplicate and was
	// coalesced instead of appended (§4.5, §8 "de-dup idempotence").
	Added bool
	// CapExceeded is true when the store is at capacity and the item
	// was dropped instead of appended (§5 resource caps).
	CapExceeded bool
}

// Append adds a new evidence item, computing its finding-hash and applying
// structural de-duplication. The caller supplies every field except ID,
// Timestamp and the internal sequence number.
func (s *Store) Append(e Evidence) AppendResult {
	return s.append(e, false)
}

// AppendUnbounded adds an item even if the store is already at capacity.
// Reserved for the single engine-generated warning evidence marking that
// the cap was reached (§5) — that warning must always get through, not be
// the next item silently dropped.
func (s *Store) AppendUnbounded(e Evidence) AppendResult {
	return s.append(e, true)
}

func (s *Store) append(e Evidence, bypassCap bool) AppendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	fh := FindingHash(e.Source, e.Finding, e.Supports, e.Weight, e.HypothesisID)
	key := dedupKey{source: e.Source, findingHash: fh, supports: e.Supports, weight: e.Weight, hypothesisID: e.HypothesisID}
	if _, dup := s.seen[key]; dup {
		return AppendResult{Added: false}
	}

	if !bypassCap && s.capacity > 0 && len(s.items) >= s.capacity {
		s.dropped++
		return AppendResult{CapExceeded: true}
	}

	s.nextSeq++
	e.ID = s.idFn()
	e.Timestamp = time.Now().UTC()
	e.seq = s.nextSeq

	s.seen[key] = struct{}{}
	s.items = append(s.items, e)
	return AppendResult{Evidence: e, Added: true}
}

// Snapshot returns a stable, time-and-seq ordered copy of all evidence. The
// hypothesis engine scores against snapshots, never the live slice.
func (s *Store) Snapshot() []Evidence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Evidence, len(s.items))
	copy(out, s.items)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// BySource returns a snapshot filtered to one adapter source.
func (s *Store) BySource(source string) []Evidence {
	var out []Evidence
	for _, e := range s.Snapshot() {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// ForHypothesis returns a snapshot filtered to one hypothesis binding.
func (s *Store) ForHypothesis(hypothesisID string) []Evidence {
	var out []Evidence
	for _, e := range s.Snapshot() {
		if e.HypothesisID == hypothesisID {
			out = append(out, e)
		}
	}
	return out
}

// Since returns items appended at or after t.
func (s *Store) Since(t time.Time) []Evidence {
	var out []Evidence
	for _, e := range s.Snapshot() {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of distinct evidence items currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Dropped returns how many items were rejected for exceeding capacity.
func (s *Store) Dropped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}
