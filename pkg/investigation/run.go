package investigation

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"time"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/decisiontree"
	"github.com/fourkites/rca-engine/pkg/evidence"
	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/llmclient"
	"github.com/fourkites/rca-engine/pkg/scheduler"
	"github.com/fourkites/rca-engine/pkg/stream"
	"github.com/fourkites/rca-engine/pkg/ticket"
)

// runner drives one investigation's phase state machine on its own
// goroutine (§4.1, §3 single-owner invariant). Every field below is
// touched only from run() and the goroutines it directly spawns
// (heartbeatLoop reads proc/evidenceStore through their own
// synchronization, never the runner's own fields).
type runner struct {
	id     string
	deps   Deps
	opts   Options
	ticket ticket.Ticket
	proc   *process
	ctx    context.Context
	cancel context.CancelFunc
	engine *hypothesis.Engine

	store       *evidence.Store
	identifiers ticket.Identifiers
	mode        string
	startedAt   time.Time

	lastPublished map[string]hypothesis.State
	dataSources   int

	// evidenceCapWarned is set once the store's max_evidence cap has been
	// hit, so the warning evidence item (§5) is added exactly once per
	// investigation rather than once per subsequent drop.
	evidenceCapWarned bool

	// pendingQueries narrows eligibleAdapters() on the iteration after the
	// one that produced it: the adapters whose evidence would most affect
	// the confidence gap between the top two ranked hypotheses (§4.6
	// "directing further queries"). Empty on the first iteration, since no
	// hypothesis has been scored yet.
	pendingQueries []hypothesis.QueryRequest

	// categoryToHypID maps a pattern/suggestion category (the identifier
	// adapters tag evidence.HypothesisID with, since an adapter runs
	// before any hypothesis exists to bind to) to the hypothesis engine's
	// own generated ID for that category, once seeded. rescore()
	// translates evidence through this map before handing it to the
	// engine, which keys evidence purely by hypothesis ID.
	categoryToHypID map[string]string

	// treeCh delivers the single outcome of the decision-tree walk started
	// for this investigation's mode, if any (§4.9). Read only by the main
	// goroutine via pollDecisionTree/runNeedsHumanLoop; written once by the
	// goroutine spawned in startDecisionTree, never by anything else.
	treeCh chan treeOutcome
}

// treeOutcome is what the decision-tree goroutine reports back to the
// owning goroutine once its walk ends.
type treeOutcome struct {
	conclusion *decisiontree.Conclusion
	err        error
}

func (r *runner) run() {
	var storeOpts []evidence.Option
	if r.deps.MaxEvidence > 0 {
		storeOpts = append(storeOpts, evidence.WithCapacity(r.deps.MaxEvidence))
	}
	r.store = evidence.New(storeOpts...)
	r.lastPublished = make(map[string]hypothesis.State)
	r.categoryToHypID = make(map[string]string)
	r.startedAt = time.Now().UTC()
	r.dataSources = len(r.deps.AdapterRegistry.All())

	hbDone := make(chan struct{})
	go r.heartbeatLoop(hbDone)
	defer close(hbDone)

	defer r.cancel()
	defer r.deps.Bus.Close(r.id)

	r.publish(stream.KindStarted, stream.StartedPayload{InvestigationID: r.id, Mode: "pending"})

	routedToHuman, err := r.intake()
	if err != nil {
		r.complete(StatusFailed, fmt.Sprintf("intake failed: %v", err))
		return
	}
	if routedToHuman {
		if r.runNeedsHumanLoop() {
			return
		}
		r.complete(StatusFailed, "investigation exhausted its iteration budget without resolving")
		return
	}

	r.startDecisionTree()

	for iteration := 1; iteration <= r.opts.MaxIterations; iteration++ {
		if done, status, reason := r.checkInterrupt(); done {
			r.complete(status, reason)
			return
		}
		r.pollDecisionTree()

		r.setPhase(PhaseCollecting, iteration)
		sched := scheduler.New(r.ctx, r.deps.AdapterRegistry, r.deps.SchedulerConfig)
		if err := r.collect(sched); err != nil {
			r.complete(StatusFailed, fmt.Sprintf("collection failed: %v", err))
			return
		}

		r.setPhase(PhaseReasoning, iteration)
		r.seedHypotheses()
		r.rescore()
		r.publishHypothesisChanges()

		if h, ok := r.engine.Confirmed(); ok {
			r.synthesize(h)
			return
		}

		if r.engine.AllEliminated() {
			unk := r.engine.SeedUnknown()
			r.categoryToHypID[unk.Category] = unk.ID
			r.rescore()
			r.publishHypothesisChanges()
			break
		}

		r.pendingQueries = r.directQueries()
	}

	if r.runNeedsHumanLoop() {
		return
	}
	r.complete(StatusFailed, "investigation exhausted its iteration budget without resolving")
}

// intake runs identifier extraction (§4.2) and seeds the investigation's
// frozen identifier set. A ticket with no derivable identifiers and no
// inferable mode routes straight to needs_human (§4.2 error conditions);
// routedToHuman tells the caller to skip collection/reasoning entirely and
// go straight to the needs-human wait loop.
func (r *runner) intake() (routedToHuman bool, err error) {
	r.setPhase(PhaseIntake, 0)

	res, err := r.deps.Extractor.Extract(r.ctx, &r.ticket)
	if err != nil {
		return true, nil
	}

	r.identifiers = res.Identifiers
	r.mode = res.Mode
	r.proc.mu.Lock()
	snap := r.proc.snapshot
	snap.Identifiers = r.identifiers.Clone()
	snap.Mode = r.mode
	r.proc.snapshot = snap
	r.proc.mu.Unlock()

	r.publish(stream.KindStarted, stream.StartedPayload{InvestigationID: r.id, Mode: r.mode})
	return false, nil
}

// collect dispatches every eligible adapter level-by-level (§4.3
// "dependency graph resolved by level") and drains results into the
// evidence store.
func (r *runner) collect(sched *scheduler.Scheduler) error {
	eligible := r.eligibleAdapters()
	if len(eligible) == 0 {
		return nil
	}

	levels, err := scheduler.Levels(eligible)
	if err != nil {
		return err
	}

	for _, level := range levels {
		dispatched := 0
		for _, name := range level {
			r.publish(stream.KindAgentStarted, stream.AgentStartedPayload{InvestigationID: r.id, Source: name})
			execCtx := adapter.Context{
				InvestigationID: r.id,
				Identifiers:     identifiersToStrings(r.identifiers),
				Mode:            r.mode,
			}
			if err := sched.Dispatch(name, execCtx); err != nil {
				r.publish(stream.KindAgentFinished, stream.AgentFinishedPayload{InvestigationID: r.id, Source: name, Status: "not_dispatched"})
				continue
			}
			dispatched++
		}

		for i := 0; i < dispatched; i++ {
			tr, err := sched.WaitNext(r.ctx)
			if err != nil {
				return err
			}
			status := "completed"
			if tr.Err != nil {
				status = "failed"
			}
			r.publish(stream.KindAgentFinished, stream.AgentFinishedPayload{InvestigationID: r.id, Source: tr.AdapterName, Status: status})
			queryExecuted := stream.QueryExecutedPayload{
				InvestigationID:  r.id,
				Source:           tr.AdapterName,
				QueryFingerprint: queryFingerprint(tr.AdapterName, identifiersToStrings(r.identifiers)),
				DurationMS:       tr.DurationMS,
				ResultCount:      tr.ResultCount,
			}
			if tr.Err != nil {
				queryExecuted.Error = tr.Err.Error()
			}
			r.publish(stream.KindQueryExecuted, queryExecuted)

			for _, ev := range tr.Evidence {
				added := r.appendEvidence(ev)
				if !added.Added {
					continue
				}
				r.publish(stream.KindEvidenceAdded, stream.EvidenceAddedPayload{
					InvestigationID:  r.id,
					EvidenceID:       added.Evidence.ID,
					Source:           added.Evidence.Source,
					Finding:          added.Evidence.Finding,
					Supports:         added.Evidence.Supports,
					Weight:           added.Evidence.Weight,
					SourceConfidence: added.Evidence.SourceConfidence,
					HypothesisID:     added.Evidence.HypothesisID,
					Timestamp:        added.Evidence.Timestamp.Format(time.RFC3339Nano),
				})
			}
		}
	}
	sched.WaitAll(r.ctx)
	return nil
}

// appendEvidence appends one evidence item, and on the first time the
// store's cap turns it away, adds a single high-visibility warning item
// instead of letting the drop pass unnoticed (§5 "additional items are
// dropped with a counter incremented and a warning evidence added"). The
// warning itself bypasses the cap via AppendUnbounded so it is never the
// item that gets dropped.
func (r *runner) appendEvidence(ev evidence.Evidence) evidence.AppendResult {
	added := r.store.Append(ev)
	if !added.CapExceeded || r.evidenceCapWarned {
		return added
	}
	r.evidenceCapWarned = true

	warn := r.store.AppendUnbounded(evidence.Evidence{
		Source:           "engine",
		Finding:          fmt.Sprintf("evidence cap of %d reached; further findings are being dropped", r.deps.MaxEvidence),
		Supports:         false,
		Weight:           0,
		SourceConfidence: 1.0,
	})
	if warn.Added {
		r.publish(stream.KindEvidenceAdded, stream.EvidenceAddedPayload{
			InvestigationID:  r.id,
			EvidenceID:       warn.Evidence.ID,
			Source:           warn.Evidence.Source,
			Finding:          warn.Evidence.Finding,
			Supports:         warn.Evidence.Supports,
			Weight:           warn.Evidence.Weight,
			SourceConfidence: warn.Evidence.SourceConfidence,
			Timestamp:        warn.Evidence.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return added
}

// eligibleAdapters returns the registered adapters whose required
// identifiers are all present and which pass the Options.EnabledAdapters
// allow-list, if one was given. On iterations after the first, it also
// narrows to pendingQueries's adapters when that narrowing leaves at least
// one adapter eligible (§4.6 "directing further queries"); otherwise it
// falls back to the unrestricted set rather than stalling the
// investigation on a narrowing that named nothing useful.
func (r *runner) eligibleAdapters() []adapter.Adapter {
	var allow map[string]bool
	if len(r.opts.EnabledAdapters) > 0 {
		allow = make(map[string]bool, len(r.opts.EnabledAdapters))
		for _, n := range r.opts.EnabledAdapters {
			allow[n] = true
		}
	}

	if len(r.pendingQueries) > 0 {
		restrict := make(map[string]bool, len(r.pendingQueries))
		for _, q := range r.pendingQueries {
			restrict[q.Adapter] = true
		}
		if narrowed := r.filterAdapters(allow, restrict); len(narrowed) > 0 {
			return narrowed
		}
	}
	return r.filterAdapters(allow, nil)
}

// filterAdapters returns every registered adapter passing both the
// allow-list (nil = no restriction) and the narrowing set (nil = no
// restriction) whose required identifiers are all present.
func (r *runner) filterAdapters(allow, restrict map[string]bool) []adapter.Adapter {
	var out []adapter.Adapter
	for _, a := range r.deps.AdapterRegistry.All() {
		if allow != nil && !allow[a.Name()] {
			continue
		}
		if restrict != nil && !restrict[a.Name()] {
			continue
		}
		ok := true
		for _, need := range a.RequiredIdentifiers() {
			if _, present := r.identifiers[need]; !present {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, a)
		}
	}
	return out
}

// directQueries computes which adapters' evidence would most affect the
// confidence gap between the top two ranked hypotheses, by consulting the
// required_evidence sources their matching patterns declare (§4.6
// "directing further queries"). Called once reasoning for an iteration
// completes without a promotion, so the result narrows the next
// iteration's collect() instead of re-dispatching every eligible adapter
// with identical, already-deduplicated evidence.
func (r *runner) directQueries() []hypothesis.QueryRequest {
	top, runnerUp := r.engine.TopTwo()

	seen := make(map[string]bool)
	var out []hypothesis.QueryRequest
	for _, category := range []string{top, runnerUp} {
		if category == "" {
			continue
		}
		for _, req := range r.deps.Patterns.RequiredEvidenceFor(category) {
			if seen[req.Source] {
				continue
			}
			seen[req.Source] = true
			out = append(out, hypothesis.QueryRequest{Adapter: req.Source, Category: category})
		}
	}
	return out
}

// seedHypotheses instantiates one hypothesis per fully-matched pattern
// (§4.7) plus any additional candidates the reasoner suggests (§4.6
// seeding source 2), de-duplicated by category.
func (r *runner) seedHypotheses() {
	snapshot := r.store.Snapshot()

	for _, m := range r.deps.Patterns.MatchAll(snapshot) {
		h := r.engine.Seed(m.Pattern.Category, m.Pattern.ResolutionTemplate, m.Pattern.Prior)
		r.categoryToHypID[m.Pattern.Category] = h.ID
	}

	if r.deps.LLM == nil {
		return
	}
	summaries := make([]llmclient.EvidenceSummary, 0, len(snapshot))
	for _, ev := range snapshot {
		summaries = append(summaries, llmclient.EvidenceSummary{
			Source: ev.Source, Finding: ev.Finding, Supports: ev.Supports, Weight: ev.Weight,
		})
	}
	suggestions, err := r.deps.LLM.SuggestHypotheses(r.ctx, summaries, 3)
	if err != nil {
		return
	}
	for _, s := range suggestions {
		prior := s.Prior
		if prior < 0.10 {
			prior = 0.10
		}
		if prior > 0.35 {
			prior = 0.35
		}
		h := r.engine.Seed(s.Category, s.Description, prior)
		r.categoryToHypID[s.Category] = h.ID
	}
}

// rescore recomputes hypothesis confidence from a fresh evidence snapshot,
// first translating each item's HypothesisID from the pattern/suggestion
// category an adapter tagged it with into the engine's own ID for that
// category (see categoryToHypID doc comment). Evidence bound to a category
// not yet seeded is left untranslated and simply ignored by Rescore — it
// will bind once the matching pattern fires in a later iteration.
func (r *runner) rescore() {
	snapshot := r.store.Snapshot()
	for i, ev := range snapshot {
		if id, ok := r.categoryToHypID[ev.HypothesisID]; ok {
			ev.HypothesisID = id
		}
		snapshot[i] = ev
	}
	r.engine.Rescore(snapshot)
}

// publishHypothesisChanges diffs the engine's current ranked set against
// what was last published and emits hypothesis_added/updated/eliminated
// accordingly (§4.8).
func (r *runner) publishHypothesisChanges() {
	seen := make(map[string]bool)
	for _, h := range r.engine.Ranked() {
		seen[h.ID] = true
		_, known := r.lastPublished[h.ID]
		kind := stream.KindHypothesisUpdated
		if !known {
			kind = stream.KindHypothesisAdded
		}
		r.publish(kind, stream.HypothesisUpdatedPayload{
			InvestigationID: r.id,
			HypothesisID:    h.ID,
			Category:        h.Category,
			Description:     h.Description,
			Confidence:      stream.RoundConfidence(h.Confidence),
			State:           string(h.State),
			EvidenceFor:     h.EvidenceFor,
			EvidenceAgainst: h.EvidenceAgainst,
		})
		r.lastPublished[h.ID] = h.State
	}
	for id, state := range r.lastPublished {
		if seen[id] || state == hypothesis.StateEliminated {
			continue
		}
		if h, ok := r.engine.Get(id); ok && h.State == hypothesis.StateEliminated {
			r.publish(stream.KindHypothesisEliminated, stream.HypothesisUpdatedPayload{
				InvestigationID: r.id,
				HypothesisID:    h.ID,
				Category:        h.Category,
				Description:     h.Description,
				Confidence:      stream.RoundConfidence(h.Confidence),
				State:           string(h.State),
			})
			r.lastPublished[id] = hypothesis.StateEliminated
		}
	}
}

// synthesize emits the terminal root-cause event for a confirmed
// hypothesis and completes the investigation successfully (§4.1
// synthesizing phase, §4.9 recommended actions).
func (r *runner) synthesize(h *hypothesis.Hypothesis) {
	r.setPhase(PhaseSynthesizing, 0)
	actions := recommendedActionsFor(h.Category)

	r.publish(stream.KindRootCause, stream.RootCausePayload{
		InvestigationID:    r.id,
		Category:           h.Category,
		Description:        h.Description,
		Confidence:         stream.RoundConfidence(h.Confidence),
		RecommendedActions: actions,
	})

	result := &Result{
		Status:      StatusSuccess,
		Category:    h.Category,
		Description: h.Description,
		Confidence:  h.Confidence,
	}
	for _, a := range actions {
		result.RecommendedActions = append(result.RecommendedActions, RecommendedAction(a))
	}
	r.finishWith(PhaseComplete, result)
	r.publish(stream.KindComplete, stream.CompletePayload{
		InvestigationID: r.id,
		Status:          string(StatusSuccess),
		DurationMS:      int(time.Since(r.startedAt) / time.Millisecond),
	})
}

// runNeedsHumanLoop parks the investigation in PhaseNeedsHuman until a
// human answers, the investigation is cancelled, or its deadline passes
// (§4.1 "Provide-human-input ... resumes at reasoning"). It returns true
// once the investigation has reached a terminal state.
func (r *runner) runNeedsHumanLoop() bool {
	ranked := r.engine.Ranked()
	summaries := make([]stream.HypothesisSummary, 0, len(ranked))
	for _, h := range ranked {
		summaries = append(summaries, stream.HypothesisSummary{ID: h.ID, Category: h.Category, Confidence: stream.RoundConfidence(h.Confidence)})
	}

	question := "Can you confirm the shipment identifier and describe what you observed, so we can continue the investigation?"
	var missing []string
	if len(r.identifiers) == 0 {
		question = "Which shipment identifier or tracking number is associated with this ticket?"
	} else {
		for _, fam := range []string{"container_number", "awb", "pro_number", "load_number"} {
			if _, ok := r.identifiers[fam]; !ok {
				missing = append(missing, fam)
			}
		}
	}

	r.enterNeedsHumanWithContext(question, missing, summaries)

	for {
		select {
		case answer := <-r.proc.humanInputCh:
			r.applyHumanInput(answer)
			r.setPhase(PhaseReasoning, 0)
			r.seedHypotheses()
			r.rescore()
			r.publishHypothesisChanges()
			if h, ok := r.engine.Confirmed(); ok {
				r.synthesize(h)
				return true
			}
			r.setPhase(PhaseNeedsHuman, 0)
			continue
		case outcome, ok := <-r.treeCh:
			if !ok {
				r.treeCh = nil
				continue
			}
			r.treeCh = nil
			if outcome.conclusion != nil {
				r.applyTreeConclusion(*outcome.conclusion)
				r.rescore()
				r.publishHypothesisChanges()
				if h, ok := r.engine.Confirmed(); ok {
					r.synthesize(h)
					return true
				}
			}
			continue
		case reason := <-r.proc.cancelCh:
			r.complete(StatusCancelled, reason)
			return true
		case <-r.ctx.Done():
			r.complete(StatusFailed, "deadline exceeded while waiting for human input")
			return true
		}
	}
}

// applyHumanInput treats an operator's answer as a single high-weight
// evidence item (source "human-input") rather than re-running extraction,
// preserving the §3 invariant that Identifiers are frozen after intake
// while still giving the answer causal effect on hypothesis confidence.
func (r *runner) applyHumanInput(answer string) {
	ev := evidence.Evidence{
		Source:           "human-input",
		Finding:          answer,
		Supports:         true,
		Weight:           5,
		SourceConfidence: 1.0,
	}
	// Bind the answer to the category of a pattern it matches on its own
	// (the lexically first, if several), so rescore() counts it toward that
	// hypothesis once the pattern has seeded it.
	for _, m := range r.deps.Patterns.MatchAll([]evidence.Evidence{ev}) {
		if ev.HypothesisID == "" || m.Pattern.Category < ev.HypothesisID {
			ev.HypothesisID = m.Pattern.Category
		}
	}
	added := r.appendEvidence(ev)
	if added.Added {
		r.publish(stream.KindEvidenceAdded, stream.EvidenceAddedPayload{
			InvestigationID:  r.id,
			EvidenceID:       added.Evidence.ID,
			Source:           added.Evidence.Source,
			Finding:          added.Evidence.Finding,
			Supports:         added.Evidence.Supports,
			Weight:           added.Evidence.Weight,
			SourceConfidence: added.Evidence.SourceConfidence,
			Timestamp:        added.Evidence.Timestamp.Format(time.RFC3339Nano),
		})
	}
}

// startDecisionTree looks up a tree for the investigation's extracted mode
// and, if one is registered, walks it on its own goroutine in parallel
// with the generative loop (§4.9). No-op if DecisionTrees is unset or no
// tree handles this mode.
func (r *runner) startDecisionTree() {
	if r.deps.DecisionTrees == nil {
		return
	}
	tree, ok := r.deps.DecisionTrees.GetByMode(r.mode)
	if !ok {
		return
	}

	ch := make(chan treeOutcome, 1)
	r.treeCh = ch
	walker := &decisiontree.Walker{
		Tree:     tree,
		Runner:   decisiontree.ActionRunnerFunc(r.runTreeAction),
		Snapshot: r.store.Snapshot,
	}
	go func() {
		conclusion, err := walker.Run(r.ctx)
		ch <- treeOutcome{conclusion: conclusion, err: err}
		close(ch)
	}()
}

// pollDecisionTree checks, without blocking, whether the decision-tree
// goroutine has delivered its outcome, applying any conclusion and
// triggering a rescore. Safe to call every iteration even with no tree
// running (treeCh is nil, the select falls through immediately).
func (r *runner) pollDecisionTree() {
	if r.treeCh == nil {
		return
	}
	select {
	case outcome := <-r.treeCh:
		r.treeCh = nil
		if outcome.conclusion != nil {
			r.applyTreeConclusion(*outcome.conclusion)
			r.rescore()
			r.publishHypothesisChanges()
		}
	default:
	}
}

// runTreeAction executes one decision-tree node's action by invoking the
// named adapter directly (the tree walks sequentially; it does not need
// the scheduler's bounded-concurrency dispatch) and appends any resulting
// findings to the shared evidence store, exactly like collect() does for
// the generative loop's adapters.
func (r *runner) runTreeAction(ctx context.Context, action decisiontree.Action) error {
	a, ok := r.deps.AdapterRegistry.Get(action.Adapter)
	if !ok {
		return fmt.Errorf("decision tree: adapter %q not registered", action.Adapter)
	}

	r.publish(stream.KindAgentStarted, stream.AgentStartedPayload{InvestigationID: r.id, Source: a.Name()})

	execCtx := adapter.Context{
		InvestigationID: r.id,
		Identifiers:     identifiersToStrings(r.identifiers),
		Mode:            r.mode,
	}
	for k, v := range action.Params {
		if execCtx.Identifiers == nil {
			execCtx.Identifiers = make(map[string]string, len(action.Params))
		}
		execCtx.Identifiers[k] = v
	}

	timeout := r.deps.SchedulerConfig.TaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	started := time.Now()
	result, err := a.Execute(ctx, execCtx, time.Now().Add(timeout))
	durationMS := int(time.Since(started) / time.Millisecond)

	status := "completed"
	if err != nil {
		status = "failed"
	}
	r.publish(stream.KindAgentFinished, stream.AgentFinishedPayload{InvestigationID: r.id, Source: a.Name(), Status: status})
	queryExecuted := stream.QueryExecutedPayload{
		InvestigationID:  r.id,
		Source:           a.Name(),
		QueryFingerprint: queryFingerprint(a.Name(), execCtx.Identifiers),
		DurationMS:       durationMS,
	}
	if err != nil {
		queryExecuted.Error = err.Error()
	} else {
		n := len(result.Findings)
		queryExecuted.ResultCount = &n
	}
	r.publish(stream.KindQueryExecuted, queryExecuted)
	if err != nil {
		return err
	}

	for _, ev := range adapter.ToEvidence(a.Name(), "", result) {
		added := r.appendEvidence(ev)
		if !added.Added {
			continue
		}
		r.publish(stream.KindEvidenceAdded, stream.EvidenceAddedPayload{
			InvestigationID:  r.id,
			EvidenceID:       added.Evidence.ID,
			Source:           added.Evidence.Source,
			Finding:          added.Evidence.Finding,
			Supports:         added.Evidence.Supports,
			Weight:           added.Evidence.Weight,
			SourceConfidence: added.Evidence.SourceConfidence,
			HypothesisID:     added.Evidence.HypothesisID,
			Timestamp:        added.Evidence.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return nil
}

// applyTreeConclusion appends a decision-tree conclusion as a pre-weighted
// evidence item and seeds its category's hypothesis if the pattern library
// has not already done so (§4.9 "reconciled at the hypothesis engine by
// treating tree conclusions as high-weight evidence; they never
// short-circuit LLM-suggested hypotheses" — seeding uses the same Seed
// path as any other candidate, so an existing LLM-suggested hypothesis for
// the same category is reused rather than replaced).
func (r *runner) applyTreeConclusion(c decisiontree.Conclusion) {
	added := r.appendEvidence(evidence.Evidence{
		Source:           "decision-tree",
		Finding:          c.Finding,
		Supports:         true,
		Weight:           c.Weight,
		SourceConfidence: c.SourceConfidence,
		HypothesisID:     c.Category,
	})
	if added.Added {
		r.publish(stream.KindEvidenceAdded, stream.EvidenceAddedPayload{
			InvestigationID:  r.id,
			EvidenceID:       added.Evidence.ID,
			Source:           added.Evidence.Source,
			Finding:          added.Evidence.Finding,
			Supports:         added.Evidence.Supports,
			Weight:           added.Evidence.Weight,
			SourceConfidence: added.Evidence.SourceConfidence,
			HypothesisID:     added.Evidence.HypothesisID,
			Timestamp:        added.Evidence.Timestamp.Format(time.RFC3339Nano),
		})
	}
	if _, seeded := r.categoryToHypID[c.Category]; !seeded {
		h := r.engine.Seed(c.Category, fmt.Sprintf("Decision tree concluded: %s", c.Finding), c.Prior)
		r.categoryToHypID[c.Category] = h.ID
	}
}

func (r *runner) enterNeedsHumanWithContext(question string, missing []string, hyps []stream.HypothesisSummary) {
	r.setPhase(PhaseNeedsHuman, 0)
	r.publish(stream.KindNeedsHuman, stream.NeedsHumanPayload{
		InvestigationID: r.id,
		Question:        question,
		Context: stream.NeedsHumanContext{
			Hypotheses:         hyps,
			MissingIdentifiers: missing,
		},
	})
	r.proc.mu.Lock()
	snap := r.proc.snapshot
	snap.Result = &Result{Status: StatusNeedsHuman, Question: question, MissingIdentifiers: missing}
	r.proc.snapshot = snap
	r.proc.mu.Unlock()
}

// checkInterrupt reports whether a cancel request or deadline has already
// fired, without blocking.
func (r *runner) checkInterrupt() (done bool, status Status, reason string) {
	select {
	case reason := <-r.proc.cancelCh:
		return true, StatusCancelled, reason
	case <-r.ctx.Done():
		return true, StatusFailed, "investigation deadline exceeded"
	default:
		return false, "", ""
	}
}

// complete transitions the investigation to its terminal phase and
// publishes the closing event (§4.1, §4.8). No further evidence_added,
// hypothesis_updated or query_executed events are published after this
// point (§8 "post-cancel silence").
func (r *runner) complete(status Status, reason string) {
	phase := PhaseComplete
	if status == StatusFailed {
		phase = PhaseFailed
	}
	result := &Result{Status: status, Description: reason}
	r.finishWith(phase, result)

	r.publish(stream.KindComplete, stream.CompletePayload{
		InvestigationID: r.id,
		Status:          string(status),
		DurationMS:      int(time.Since(r.startedAt) / time.Millisecond),
	})
}

func (r *runner) finishWith(phase Phase, result *Result) {
	r.proc.mu.Lock()
	snap := r.proc.snapshot
	snap.Phase = phase
	snap.Result = result
	snap.EndedAt = time.Now().UTC()
	if result != nil {
		snap.CancelReason = result.Description
	}
	r.proc.snapshot = snap
	r.proc.mu.Unlock()
	select {
	case <-r.proc.doneCh:
	default:
		close(r.proc.doneCh)
	}
}

func (r *runner) setPhase(phase Phase, iteration int) {
	r.proc.mu.Lock()
	snap := r.proc.snapshot
	snap.Phase = phase
	if iteration > 0 {
		snap.Iteration = iteration
	}
	snap.Hypotheses = r.engine.Ranked()
	snap.EvidenceCount = r.store.Len()
	r.proc.snapshot = snap
	r.proc.mu.Unlock()
}

// heartbeatLoop publishes the §4.8 heartbeat event on its own clock,
// independent of the phase loop, since only the supervisor knows
// progress/current-activity at any instant.
func (r *runner) heartbeatLoop(done <-chan struct{}) {
	interval := r.deps.HeartbeatInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := r.proc.get()
			progress := float64(snap.Iteration) / float64(maxInt(snap.MaxIterations, 1))
			hb := Heartbeat{
				Progress:           clip01(progress),
				CurrentActivity:    string(snap.Phase),
				DataSourcesQueried: snap.EvidenceCount,
				DataSourcesTotal:   r.dataSources,
			}
			r.proc.mu.Lock()
			s := r.proc.snapshot
			s.Heartbeat = hb
			r.proc.snapshot = s
			r.proc.mu.Unlock()

			r.publish(stream.KindHeartbeat, stream.HeartbeatPayload{
				InvestigationID:    r.id,
				Progress:           hb.Progress,
				CurrentActivity:    hb.CurrentActivity,
				DataSourcesQueried: hb.DataSourcesQueried,
				DataSourcesTotal:   hb.DataSourcesTotal,
			})
		case <-done:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *runner) publish(kind stream.Kind, body any) {
	e, err := stream.NewEvent(kind, body)
	if err != nil {
		return
	}
	_ = r.deps.Bus.Publish(r.id, e)
}

// queryFingerprint deterministically identifies one adapter dispatch by its
// name and the frozen identifier set it ran against (§6 "query_fingerprint"),
// so repeated dispatches of the same adapter against the same identifiers
// across iterations are recognizable as the same query.
func queryFingerprint(adapterName string, identifiers map[string]string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(adapterName))

	keys := make([]string, 0, len(identifiers))
	for k := range identifiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{'='})
		_, _ = h.Write([]byte(identifiers[k]))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func identifiersToStrings(ids ticket.Identifiers) map[string]string {
	out := make(map[string]string, len(ids))
	for k, v := range ids {
		out[k] = v.Value
	}
	return out
}

func recommendedActionsFor(category string) []stream.RecommendedAction {
	switch category {
	case "network_relationship_missing":
		return []stream.RecommendedAction{
			{Priority: "high", Category: "network_relationship_missing", Description: "Create the missing carrier-shipper network relationship and re-run tracking."},
		}
	case "jt_scraping_error":
		return []stream.RecommendedAction{
			{Priority: "medium", Category: "jt_scraping_error", Description: "Re-queue the scraping job for this carrier portal and monitor for repeat failures."},
		}
	case "eld_not_enabled":
		return []stream.RecommendedAction{
			{Priority: "high", Category: "eld_not_enabled", Description: "Confirm ELD integration is enabled for this carrier and driver."},
		}
	case "load_not_found":
		return []stream.RecommendedAction{
			{Priority: "high", Category: "load_not_found", Description: "Verify the load number with the shipper and re-submit tracking."},
		}
	case "carrier_api_down":
		return []stream.RecommendedAction{
			{Priority: "medium", Category: "carrier_api_down", Description: "Check carrier API status and retry once it recovers."},
		}
	case "callback_delivery_failed":
		return []stream.RecommendedAction{
			{Priority: "medium", Category: "callback_delivery_failed", Description: "Inspect callback delivery logs and confirm the subscriber endpoint is reachable."},
		}
	default:
		return []stream.RecommendedAction{
			{Priority: "low", Category: "unknown", Description: "Escalate to a human investigator; no automated root cause met the confidence threshold."},
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
