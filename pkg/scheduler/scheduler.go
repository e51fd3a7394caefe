// Package scheduler implements the agent scheduler & task executor (§4.3):
// reservation-based bounded-concurrency dispatch of adapter tasks, a
// dependency graph resolved by level (Kahn's algorithm), per-task
// deadlines, cooperative cancellation, and timeout-as-weak-negative-
// evidence semantics.
//
// Adapted directly from the teacher's SubAgentRunner: the same
// reservation/release dance around the concurrency check, a buffered
// results channel sized to the concurrency cap, and a non-blocking send on
// shutdown via a close signal.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/evidence"
)

// ErrMaxConcurrentTasks is returned by Dispatch when the concurrency cap is
// already saturated.
var ErrMaxConcurrentTasks = fmt.Errorf("scheduler: max concurrent tasks reached")

// ErrAdapterNotFound is returned when Dispatch names an unregistered
// adapter.
var ErrAdapterNotFound = fmt.Errorf("scheduler: adapter not found")

// TaskResult is what one dispatched task produced.
type TaskResult struct {
	AdapterName string
	Evidence    []evidence.Evidence
	Raw         []byte
	Err         error
	// DurationMS is the wall-clock time a.Execute took, for the
	// query_executed stream event (§6).
	DurationMS int
	// ResultCount is the number of findings the adapter returned; nil on
	// error, since there is no result to count.
	ResultCount *int
}

type taskExecution struct {
	name   string
	status string // "active" | "completed" | "failed" | "timed_out" | "cancelled"
	cancel context.CancelFunc
	done   chan struct{}
}

// Config holds the §5 concurrency/deadline defaults.
type Config struct {
	ConcurrencyLimit int           // default 8 (§4.3, §6 concurrent_tasks_per_investigation)
	TaskTimeout      time.Duration // default 15s (§4.3)
}

// DefaultConfig returns the §6 defaults.
func DefaultConfig() Config {
	return Config{ConcurrencyLimit: 8, TaskTimeout: 15 * time.Second}
}

// Scheduler dispatches adapter tasks for one investigation sweep.
type Scheduler struct {
	mu         sync.Mutex
	registry   *adapter.Registry
	cfg        Config
	parentCtx  context.Context

	executions map[string]*taskExecution
	reserved   int

	resultsCh chan TaskResult
	closeCh   chan struct{}
	pending   int32

	agentID func() string
}

// New builds a Scheduler bound to parentCtx (the investigation-level
// context sub-tasks are derived from — must outlive any single sweep).
func New(parentCtx context.Context, registry *adapter.Registry, cfg Config) *Scheduler {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 8
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 15 * time.Second
	}
	return &Scheduler{
		registry:   registry,
		cfg:        cfg,
		parentCtx:  parentCtx,
		executions: make(map[string]*taskExecution),
		resultsCh:  make(chan TaskResult, cfg.ConcurrencyLimit),
		closeCh:    make(chan struct{}),
		agentID:    func() string { return "" },
	}
}

// Dispatch admits and launches one adapter task. Returns immediately; the
// result arrives on the results channel (TryNext/WaitNext).
func (s *Scheduler) Dispatch(name string, execCtx adapter.Context) error {
	a, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAdapterNotFound, name)
	}

	s.mu.Lock()
	active := 0
	for _, e := range s.executions {
		if e.status == "active" {
			active++
		}
	}
	if active+s.reserved >= s.cfg.ConcurrencyLimit {
		s.mu.Unlock()
		return fmt.Errorf("%w: limit is %d", ErrMaxConcurrentTasks, s.cfg.ConcurrencyLimit)
	}
	s.reserved++
	s.mu.Unlock()

	release := true
	defer func() {
		if release {
			s.mu.Lock()
			s.reserved--
			s.mu.Unlock()
		}
	}()

	taskCtx, cancel := context.WithTimeout(s.parentCtx, s.cfg.TaskTimeout)
	exec := &taskExecution{name: name, status: "active", cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.executions[name] = exec
	s.reserved--
	release = false
	s.mu.Unlock()

	atomic.AddInt32(&s.pending, 1)
	go s.runTask(taskCtx, exec, a, execCtx)
	return nil
}

func (s *Scheduler) runTask(ctx context.Context, exec *taskExecution, a adapter.Adapter, execCtx adapter.Context) {
	defer exec.cancel()
	defer close(exec.done)

	deadline, _ := ctx.Deadline()
	started := time.Now()
	result, err := a.Execute(ctx, execCtx, deadline)
	durationMS := int(time.Since(started) / time.Millisecond)

	var evs []evidence.Evidence
	var status string
	var resultCount *int
	switch {
	case err == nil:
		status = "completed"
		evs = adapter.ToEvidence(a.Name(), s.agentID(), result)
		n := len(result.Findings)
		resultCount = &n
	case ctx.Err() == context.DeadlineExceeded:
		status = "timed_out"
		evs = []evidence.Evidence{adapter.TimeoutEvidence(a.Name(), s.agentID())}
	case ctx.Err() != nil:
		status = "cancelled"
	default:
		status = "failed"
		evs = []evidence.Evidence{adapter.TimeoutEvidence(a.Name(), s.agentID())}
		evs[0].Finding = err.Error()
	}

	s.mu.Lock()
	exec.status = status
	s.mu.Unlock()

	tr := TaskResult{AdapterName: a.Name(), Evidence: evs, Err: err, DurationMS: durationMS, ResultCount: resultCount}
	select {
	case s.resultsCh <- tr:
	case <-s.closeCh:
	}
}

// TryNext returns a completed task result without blocking.
func (s *Scheduler) TryNext() (TaskResult, bool) {
	select {
	case r := <-s.resultsCh:
		atomic.AddInt32(&s.pending, -1)
		return r, true
	default:
		return TaskResult{}, false
	}
}

// WaitNext blocks until a result is available or ctx is done.
func (s *Scheduler) WaitNext(ctx context.Context) (TaskResult, error) {
	select {
	case r := <-s.resultsCh:
		atomic.AddInt32(&s.pending, -1)
		return r, nil
	case <-ctx.Done():
		return TaskResult{}, ctx.Err()
	}
}

// HasPending reports whether any dispatched task result is still
// outstanding.
func (s *Scheduler) HasPending() bool {
	return atomic.LoadInt32(&s.pending) > 0
}

// CancelAll cancels every in-flight task and signals runTask goroutines to
// drop undelivered results.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closeCh:
	default:
		close(s.closeCh)
	}
	for _, exec := range s.executions {
		if exec.status == "active" && exec.cancel != nil {
			exec.cancel()
		}
	}
}

// WaitAll blocks until every dispatched task has finished or ctx is done.
func (s *Scheduler) WaitAll(ctx context.Context) {
	s.mu.Lock()
	execs := make([]*taskExecution, 0, len(s.executions))
	for _, e := range s.executions {
		execs = append(execs, e)
	}
	s.mu.Unlock()

	for _, e := range execs {
		select {
		case <-e.done:
		case <-ctx.Done():
			return
		}
	}
}

// Levels groups adapter names into dependency-ordered levels (Kahn's
// algorithm, §4.3 "Dependency graph"): level 0 has no unresolved
// dependencies, level 1 depends only on level-0 names, and so on. Adapters
// naming a dependency outside the given set are treated as having no
// unmet dependency (the named adapter isn't part of this sweep).
func Levels(adapters []adapter.Adapter) ([][]string, error) {
	byName := make(map[string]adapter.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}

	remaining := make(map[string][]string, len(adapters))
	for _, a := range adapters {
		var deps []string
		for _, d := range a.Dependencies() {
			if _, ok := byName[d]; ok {
				deps = append(deps, d)
			}
		}
		remaining[a.Name()] = deps
	}

	var levels [][]string
	resolved := make(map[string]bool, len(adapters))
	for len(resolved) < len(adapters) {
		var level []string
		for name, deps := range remaining {
			if resolved[name] {
				continue
			}
			ready := true
			for _, d := range deps {
				if !resolved[d] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("scheduler: dependency cycle detected among adapters")
		}
		for _, name := range level {
			resolved[name] = true
		}
		levels = append(levels, level)
	}
	return levels, nil
}
