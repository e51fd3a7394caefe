// Package investigation implements the supervisor (§4.1): the single-owner
// state machine that drives one ticket from intake through evidence
// collection and hypothesis reasoning to a terminal outcome, fanning every
// state change out as a typed event.
//
// Grounded on the teacher's pkg/session/manager.go (in-memory registry
// behind a single mutex, one entry per live unit of work) and
// pkg/agent/orchestrator/runner.go (a single-owner lifecycle object
// advancing through phases on its own goroutine, with deadline and
// cancellation plumbing threaded through). All mutation of an
// Investigation happens on that investigation's own goroutine; every other
// accessor reads a defensively-copied Snapshot.
package investigation

import (
	"time"

	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/ticket"
)

// Phase is one state of the investigation lifecycle (§4.1 phase diagram).
type Phase string

const (
	PhaseIntake       Phase = "intake"
	PhaseCollecting   Phase = "collecting"
	PhaseReasoning    Phase = "reasoning"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseNeedsHuman   Phase = "needs_human"
	PhaseComplete     Phase = "complete"
	PhaseFailed       Phase = "failed"
)

// Status is the terminal outcome recorded on CompletePayload/Result.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusNeedsHuman Status = "needs_human"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Options configures one Start call (§4.1 "options enumerate").
type Options struct {
	MaxIterations        int
	OverallDeadline      time.Duration
	EnabledAdapters      []string
	Collaborative        bool
	AutoResolveThreshold float64
	EliminationThreshold float64
}

// DefaultOptions returns the §4.1/§6 documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxIterations:        5,
		OverallDeadline:      120 * time.Second,
		Collaborative:        false,
		AutoResolveThreshold: 0.80,
		EliminationThreshold: 0.10,
	}
}

// RecommendedAction is one line of the terminal root-cause recommendation.
type RecommendedAction struct {
	Priority    string
	Category    string
	Description string
}

// Result is the terminal outcome of an investigation: either a resolved
// root cause or a question for a human, depending on Status.
type Result struct {
	Status             Status
	Category           string
	Description        string
	Confidence         float64
	RecommendedActions []RecommendedAction
	Question           string
	MissingIdentifiers []string
}

// Heartbeat is the periodic progress snapshot named in §4.8.
type Heartbeat struct {
	Progress           float64
	CurrentActivity    string
	AgentsRunning      []string
	DataSourcesQueried int
	DataSourcesTotal   int
}

// Snapshot is a read-only, defensively-copied view of an investigation at
// one instant — the only way anything outside the owning goroutine
// observes investigation state (§3 "single-owner" invariant).
type Snapshot struct {
	ID            string
	Ticket        ticket.Ticket
	Identifiers   ticket.Identifiers
	Mode          string
	Phase         Phase
	Iteration     int
	MaxIterations int
	Hypotheses    []*hypothesis.Hypothesis
	EvidenceCount int
	Heartbeat     Heartbeat
	Result        *Result
	StartedAt     time.Time
	EndedAt       time.Time
	CancelReason  string
}
