package investigation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/decisiontree"
	"github.com/fourkites/rca-engine/pkg/extractor"
	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/llmclient"
	"github.com/fourkites/rca-engine/pkg/pattern"
	"github.com/fourkites/rca-engine/pkg/scheduler"
	"github.com/fourkites/rca-engine/pkg/stream"
	"github.com/fourkites/rca-engine/pkg/ticket"
)

// ErrUnknownInvestigation is returned when an operation names an
// investigation id the supervisor has no record of (§4.1 "unknown-
// investigation").
var ErrUnknownInvestigation = fmt.Errorf("investigation: unknown investigation")

// ErrInvalidPhase is returned by ProvideHumanInput when the investigation
// is not currently waiting in PhaseNeedsHuman (§4.1 "invalid-phase").
var ErrInvalidPhase = fmt.Errorf("investigation: invalid phase for this operation")

// Deps bundles every collaborator the supervisor wires into each
// investigation's run loop. One Deps is shared across all investigations
// run by one Supervisor.
type Deps struct {
	Extractor        *extractor.Extractor
	AdapterRegistry  *adapter.Registry
	SchedulerConfig  scheduler.Config
	HypothesisConfig hypothesis.Config
	Patterns         *pattern.Registry
	// DecisionTrees holds the optional declarative branch evaluators (§4.9).
	// When the extracted mode matches a registered tree, the run loop walks
	// it in parallel with the generative hypothesis loop; nil disables the
	// deterministic path entirely.
	DecisionTrees    *decisiontree.Registry
	LLM              llmclient.Client
	Bus              *stream.Bus

	// HeartbeatInterval defaults to 1s (§4.8 "periodic, default every 1s").
	HeartbeatInterval time.Duration

	// MaxEvidence caps the per-investigation evidence store (§5 resource
	// caps); zero means unbounded, matching evidence.WithCapacity.
	MaxEvidence int

	// IDGenerator mints investigation ids; defaults to a counter-backed
	// generator suitable for tests. Production callers should supply one
	// backed by github.com/google/uuid, matching the teacher's session-id
	// convention.
	IDGenerator func() string
}

// Supervisor owns the set of live investigations, exactly one goroutine
// per investigation (§4.1, §3 single-owner invariant).
type Supervisor struct {
	deps Deps

	mu    sync.RWMutex
	procs map[string]*process
	seq   int
}

// process is the supervisor-side handle to one running investigation: its
// command channels plus the last-published Snapshot, updated only by the
// investigation's own goroutine.
type process struct {
	mu       sync.RWMutex
	snapshot Snapshot

	humanInputCh chan string
	cancelCh     chan string
	doneCh       chan struct{}
}

func (p *process) get() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

func (p *process) set(s Snapshot) {
	p.mu.Lock()
	p.snapshot = s
	p.mu.Unlock()
}

// New builds a Supervisor around the given collaborators.
func New(deps Deps) *Supervisor {
	if deps.HeartbeatInterval <= 0 {
		deps.HeartbeatInterval = time.Second
	}
	s := &Supervisor{deps: deps, procs: make(map[string]*process)}
	if s.deps.IDGenerator == nil {
		s.deps.IDGenerator = func() string {
			s.seq++
			return fmt.Sprintf("inv-%d", s.seq)
		}
	}
	return s
}

// Start creates a new investigation, transitions it to PhaseIntake, and
// launches its run loop on a dedicated goroutine (§4.1 "Start(ticket,
// options) → (investigation_id, event_channel)"). The caller subscribes to
// the returned id's event stream via the shared Bus separately — Start
// itself returns as soon as the investigation object exists, matching the
// teacher's "create, then stream" split between session creation and
// WebSocket attach.
func (s *Supervisor) Start(ctx context.Context, t ticket.Ticket, opts Options) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	opts = withDefaults(opts)

	s.mu.Lock()
	id := s.deps.IDGenerator()
	p := &process{
		humanInputCh: make(chan string, 1),
		cancelCh:     make(chan string, 1),
		doneCh:       make(chan struct{}),
	}
	p.set(Snapshot{
		ID:            id,
		Ticket:        t,
		Phase:         PhaseIntake,
		MaxIterations: opts.MaxIterations,
		StartedAt:     time.Now().UTC(),
	})
	s.procs[id] = p
	s.mu.Unlock()

	s.deps.Bus.Open(id)

	runCtx, cancel := context.WithTimeout(ctx, opts.OverallDeadline)
	r := &runner{
		id:     id,
		deps:   s.deps,
		opts:   opts,
		ticket: t,
		proc:   p,
		ctx:    runCtx,
		cancel: cancel,
		engine: hypothesis.New(s.deps.HypothesisConfig),
	}
	go r.run()

	return id, nil
}

func withDefaults(o Options) Options {
	d := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.OverallDeadline <= 0 {
		o.OverallDeadline = d.OverallDeadline
	}
	if o.AutoResolveThreshold <= 0 {
		o.AutoResolveThreshold = d.AutoResolveThreshold
	}
	if o.EliminationThreshold <= 0 {
		o.EliminationThreshold = d.EliminationThreshold
	}
	return o
}

// Cancel requests cancellation of a live investigation (§4.1 "Cancel").
func (s *Supervisor) Cancel(investigationID, reason string) error {
	p, ok := s.lookup(investigationID)
	if !ok {
		return ErrUnknownInvestigation
	}
	select {
	case p.cancelCh <- reason:
	default:
	}
	return nil
}

// ProvideHumanInput unblocks an investigation parked in PhaseNeedsHuman
// (§4.1 "Provide-human-input").
func (s *Supervisor) ProvideHumanInput(investigationID, answer string) error {
	p, ok := s.lookup(investigationID)
	if !ok {
		return ErrUnknownInvestigation
	}
	if p.get().Phase != PhaseNeedsHuman {
		return ErrInvalidPhase
	}
	select {
	case p.humanInputCh <- answer:
		return nil
	default:
		return fmt.Errorf("investigation: human input already pending for %s", investigationID)
	}
}

// Get returns the current snapshot of a live or completed investigation.
func (s *Supervisor) Get(investigationID string) (Snapshot, bool) {
	p, ok := s.lookup(investigationID)
	if !ok {
		return Snapshot{}, false
	}
	return p.get(), true
}

// Wait blocks until the investigation reaches a terminal phase or ctx is
// done, for synchronous callers/tests.
func (s *Supervisor) Wait(ctx context.Context, investigationID string) error {
	p, ok := s.lookup(investigationID)
	if !ok {
		return ErrUnknownInvestigation
	}
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) lookup(id string) (*process, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.procs[id]
	return p, ok
}
