// Package adapter defines the uniform data-source adapter contract (§4.4):
// identify itself, declare required inputs and dependencies, execute
// against a context and deadline, and report structured evidence through
// the shared error taxonomy.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fourkites/rca-engine/pkg/evidence"
)

// ErrorKind is the closed error taxonomy exposed to the scheduler (§4.4).
type ErrorKind string

const (
	// KindTransient is retried within budget.
	KindTransient ErrorKind = "transient"
	// KindAuth is not retried; surfaced as configuration evidence.
	KindAuth ErrorKind = "auth"
	// KindNotFound is a normal outcome producing positive evidence of absence.
	KindNotFound ErrorKind = "not-found"
	// KindMalformed surfaces the raw payload for audit.
	KindMalformed ErrorKind = "malformed"
	// KindDeadline is treated like a transient/timeout failure.
	KindDeadline ErrorKind = "deadline"
)

// Error is the typed error every adapter must return instead of an opaque
// error value, so the scheduler can apply the §4.4 taxonomy.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("adapter: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("adapter: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a taxonomy-tagged error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// AsAdapterError extracts the taxonomy kind from err, defaulting to
// KindTransient for an unrecognized error (conservative: retry rather than
// silently drop).
func AsAdapterError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindTransient, Message: "unclassified error", Cause: err}
}

// RetryPolicy is the retry budget + exponential backoff curve named in
// §4.4: `exponential(base_ms, max_ms)`.
type RetryPolicy struct {
	MaxAttempts int
	BaseMS      int
	MaxMS       int
}

// AuthMethod enumerates the recognized authentication schemes (§4.4).
type AuthMethod string

const (
	AuthHMACSHA1 AuthMethod = "hmac-sha1"
	AuthBasic    AuthMethod = "basic"
	AuthAPIKey   AuthMethod = "api-key"
	AuthIAM      AuthMethod = "iam"
)

// ChunkingPolicy governs how historical/date-ranged adapters window their
// queries (§4.4 "chunk days").
type ChunkingPolicy struct {
	WindowDays int
}

// Config is the recognized configuration record for one adapter instance
// (§4.4, §6 "per adapter").
type Config struct {
	Name              string
	Endpoint          string
	Auth              AuthMethod
	CredentialHandle  string
	Timeout           time.Duration
	RateLimitPerSec   float64
	Retry             RetryPolicy
	Chunking          ChunkingPolicy
	Enabled           bool
}

// Context is the per-task execution context an adapter receives: the
// identifier/mode state plus anything produced by adapters it depends on
// (§4.3 "context carried from earlier tasks").
type Context struct {
	InvestigationID string
	Identifiers     map[string]string
	Mode            string

	// Upstream holds raw payloads keyed by adapter name, populated from
	// dependencies' Execute results.
	Upstream map[string]json.RawMessage
}

// Finding is one piece of evidence an adapter produced, prior to the
// scheduler stamping investigation-wide bookkeeping (ID, timestamp).
type Finding struct {
	Finding          string
	Supports         bool
	Weight           int
	SourceConfidence float64
	HypothesisID     string
	Raw              json.RawMessage
}

// Result is what Execute returns: zero or more findings plus an optional
// structured payload for the evidence's raw field (§4.3 per-task contract).
type Result struct {
	Findings []Finding
	Raw      json.RawMessage
}

// Adapter is the uniform capability set every data source implements
// (§4.4, §6 "Adapter boundary").
type Adapter interface {
	Name() string
	RequiredIdentifiers() []string
	Dependencies() []string
	Execute(ctx context.Context, execCtx Context, deadline time.Time) (Result, error)
}

// ToEvidence converts adapter findings into evidence.Evidence values ready
// for the store, attaching the adapter's name as source.
func ToEvidence(name string, agentID string, result Result) []evidence.Evidence {
	out := make([]evidence.Evidence, 0, len(result.Findings))
	for _, f := range result.Findings {
		out = append(out, evidence.Evidence{
			Source:           name,
			Finding:          f.Finding,
			Supports:         f.Supports,
			Weight:           f.Weight,
			SourceConfidence: f.SourceConfidence,
			Raw:              f.Raw,
			HypothesisID:     f.HypothesisID,
			AgentID:          agentID,
		})
	}
	return out
}

// TimeoutEvidence builds the single weak-negative evidence item emitted on
// a per-task timeout (§4.3: "source=adapter-name, supports=false, weight=1,
// finding=timeout").
func TimeoutEvidence(name, agentID string) evidence.Evidence {
	return evidence.Evidence{
		Source:           name,
		Finding:          "timeout",
		Supports:         false,
		Weight:           1,
		SourceConfidence: 1.0,
		AgentID:          agentID,
	}
}

// Registry holds the enabled, configured adapter set for one engine
// instance. Modeled on the teacher's config registries: RWMutex-guarded
// map, defensive-copy construction.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry builds a registry from a defensive copy of the given
// adapters, keyed by name.
func NewRegistry(adapters []Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns one adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// All returns every registered adapter, order unspecified.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[name]
	return ok
}

// Len reports the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
