package investigation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/decisiontree"
	"github.com/fourkites/rca-engine/pkg/evidence"
	"github.com/fourkites/rca-engine/pkg/extractor"
	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/llmclient"
	"github.com/fourkites/rca-engine/pkg/pattern"
	"github.com/fourkites/rca-engine/pkg/scheduler"
	"github.com/fourkites/rca-engine/pkg/stream"
	"github.com/fourkites/rca-engine/pkg/ticket"
)

// fakeAdapter is a minimal adapter.Adapter double: it returns one
// pre-baked Result or taxonomy error, optionally after a delay, so tests
// can drive specific scheduler/evidence paths without a transport.
type fakeAdapter struct {
	name     string
	requires []string
	deps     []string
	result   adapter.Result
	err      error
	delay    time.Duration
}

func (f *fakeAdapter) Name() string                  { return f.name }
func (f *fakeAdapter) RequiredIdentifiers() []string { return f.requires }
func (f *fakeAdapter) Dependencies() []string        { return f.deps }

func (f *fakeAdapter) Execute(ctx context.Context, _ adapter.Context, _ time.Time) (adapter.Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return adapter.Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func testTicket(id string) ticket.Ticket {
	return ticket.Ticket{
		ID:      id,
		Subject: "shipment not updating",
		Body:    "Container MSCU1234567 has not shown any tracking events in 3 days.",
	}
}

func testDeps(adapters []adapter.Adapter, patterns []pattern.Pattern, llm llmclient.Client) Deps {
	return Deps{
		Extractor:         extractor.New(llm),
		AdapterRegistry:   adapter.NewRegistry(adapters),
		SchedulerConfig:   scheduler.Config{ConcurrencyLimit: 4, TaskTimeout: time.Second},
		HypothesisConfig:  hypothesis.DefaultConfig(),
		Patterns:          pattern.NewRegistry(patterns),
		LLM:               llm,
		Bus:               stream.NewBus(32, 100),
		HeartbeatInterval: 50 * time.Millisecond,
	}
}

func loadNotFoundPattern() pattern.Pattern {
	supports := true
	return pattern.Pattern{
		ID:       "load-not-found",
		Category: "load_not_found",
		Prior:    0.7,
		Predicates: []pattern.Predicate{
			{Source: "tracking-api", FindingContains: "not found", Supports: &supports},
		},
		RequiredEvidence:   []pattern.RequiredEvidence{{Source: "tracking-api", Weight: 10}},
		ResolutionTemplate: "The referenced load could not be found in the tracking system.",
	}
}

func TestSupervisorResolvesToConfirmedRootCause(t *testing.T) {
	trackingAPI := &fakeAdapter{
		name:     "tracking-api",
		requires: []string{"container_number"},
		result: adapter.Result{Findings: []adapter.Finding{{
			Finding:          "load not found",
			Supports:         true,
			Weight:           10,
			SourceConfidence: 1.0,
			HypothesisID:     "load_not_found",
		}}},
	}

	deps := testDeps([]adapter.Adapter{trackingAPI}, []pattern.Pattern{loadNotFoundPattern()}, &llmclient.StubClient{})
	sup := New(deps)

	tk := testTicket("tkt-1")
	id, err := sup.Start(context.Background(), tk, Options{MaxIterations: 3, OverallDeadline: 2 * time.Second})
	require.NoError(t, err)

	require.NoError(t, sup.Wait(context.Background(), id))

	snap, ok := sup.Get(id)
	require.True(t, ok)
	require.NotNil(t, snap.Result)
	assert.Equal(t, StatusSuccess, snap.Result.Status)
	assert.Equal(t, "load_not_found", snap.Result.Category)
	assert.GreaterOrEqual(t, snap.Result.Confidence, 0.80)
}

func TestSupervisorResolvesViaDecisionTreeConclusion(t *testing.T) {
	carrierAPI := &fakeAdapter{
		name: "carrier-api",
		result: adapter.Result{Findings: []adapter.Finding{{
			Finding: "carrier api reports down", Supports: true, Weight: 1, SourceConfidence: 1.0,
		}}},
	}

	supports := true
	tree := decisiontree.Tree{
		ID:    "ocean-flowchart",
		Modes: []string{"ocean"},
		Root:  "check-carrier",
		Nodes: map[string]decisiontree.Node{
			"check-carrier": {
				ID:     "check-carrier",
				Action: &decisiontree.Action{Adapter: "carrier-api"},
				Decisions: []decisiontree.Decision{{
					Predicate: decisiontree.Predicate{Source: "carrier-api", FindingContains: "down", Supports: &supports},
					Conclusion: &decisiontree.Conclusion{
						Category: "carrier_api_down", Finding: "carrier API confirmed down",
						Weight: 10, SourceConfidence: 1.0, Prior: 0.72,
					},
				}},
			},
		},
	}

	deps := testDeps([]adapter.Adapter{carrierAPI}, nil, &llmclient.StubClient{})
	deps.DecisionTrees = decisiontree.NewRegistry([]decisiontree.Tree{tree})
	sup := New(deps)

	tk := testTicket("tkt-tree")
	id, err := sup.Start(context.Background(), tk, Options{MaxIterations: 5, OverallDeadline: 3 * time.Second})
	require.NoError(t, err)
	require.NoError(t, sup.Wait(context.Background(), id))

	snap, ok := sup.Get(id)
	require.True(t, ok)
	require.NotNil(t, snap.Result)
	assert.Equal(t, StatusSuccess, snap.Result.Status)
	assert.Equal(t, "carrier_api_down", snap.Result.Category)
	assert.GreaterOrEqual(t, snap.Result.Confidence, 0.80)
}

func TestSupervisorRoutesMissingIdentifiersToNeedsHuman(t *testing.T) {
	deps := testDeps(nil, nil, &llmclient.StubClient{})
	sup := New(deps)

	tk := ticket.Ticket{ID: "tkt-2", Subject: "help", Body: "something is wrong"}
	id, err := sup.Start(context.Background(), tk, Options{MaxIterations: 2, OverallDeadline: time.Second})
	require.NoError(t, err)
	// needs_human is not terminal (the deadline later completes the run as
	// failed), so the parked snapshot is checked before the deadline.
	require.Eventually(t, func() bool {
		snap, ok := sup.Get(id)
		return ok && snap.Phase == PhaseNeedsHuman
	}, time.Second, 10*time.Millisecond)

	snap, ok := sup.Get(id)
	require.True(t, ok)
	require.NotNil(t, snap.Result)
	assert.Equal(t, StatusNeedsHuman, snap.Result.Status)
	assert.NotEmpty(t, snap.Result.Question)
}

func TestProvideHumanInputResumesAndCanConfirm(t *testing.T) {
	supports := true
	humanConfirmedPattern := pattern.Pattern{
		ID:                 "human-confirms-load-not-found",
		Category:           "load_not_found",
		Prior:              0.75,
		Predicates:         []pattern.Predicate{{FindingContains: "not found", Supports: &supports}},
		RequiredEvidence:   []pattern.RequiredEvidence{{Source: "human-input", Weight: 5}},
		ResolutionTemplate: "A human confirmed the load could not be found.",
	}

	deps := testDeps(nil, []pattern.Pattern{humanConfirmedPattern}, &llmclient.StubClient{})
	sup := New(deps)

	tk := ticket.Ticket{ID: "tkt-3", Subject: "help", Body: "no identifiers here"}
	id, err := sup.Start(context.Background(), tk, Options{MaxIterations: 1, OverallDeadline: 3 * time.Second})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, ok := sup.Get(id)
		return ok && snap.Phase == PhaseNeedsHuman
	}, time.Second, 10*time.Millisecond)

	err = sup.ProvideHumanInput(id, "the carrier confirmed the load was not found in their system")
	require.NoError(t, err)

	require.NoError(t, sup.Wait(context.Background(), id))
	snap, ok := sup.Get(id)
	require.True(t, ok)
	require.NotNil(t, snap.Result)
	assert.Equal(t, StatusSuccess, snap.Result.Status)
	assert.Equal(t, "load_not_found", snap.Result.Category)
}

func TestCancelStopsInvestigationAndSilencesFurtherEvents(t *testing.T) {
	slow := &fakeAdapter{name: "tracking-api", requires: nil, delay: 2 * time.Second}
	deps := testDeps([]adapter.Adapter{slow}, nil, &llmclient.StubClient{})
	sup := New(deps)

	tk := testTicket("tkt-4")
	id, err := sup.Start(context.Background(), tk, Options{MaxIterations: 3, OverallDeadline: 5 * time.Second})
	require.NoError(t, err)

	sub, err := deps.Bus.Subscribe(id, "test-subscriber")
	require.NoError(t, err)

	require.NoError(t, sup.Cancel(id, "customer withdrew the ticket"))
	require.NoError(t, sup.Wait(context.Background(), id))

	snap, ok := sup.Get(id)
	require.True(t, ok)
	require.NotNil(t, snap.Result)
	assert.Equal(t, StatusCancelled, snap.Result.Status)

	// Collect everything the subscriber saw and check that nothing arrived
	// after the terminal "complete" event — events published before
	// cancellation took effect (e.g. a timed-out in-flight task's
	// evidence) are expected and not at issue here.
	time.Sleep(50 * time.Millisecond)
	var kinds []stream.Kind
	for {
		select {
		case e, open := <-sub.Events():
			if !open {
				kinds = append(kinds, "__closed__")
				goto drained
			}
			kinds = append(kinds, e.Kind)
		default:
			goto drained
		}
	}
drained:
	completeAt := -1
	for i, k := range kinds {
		if k == stream.KindComplete {
			completeAt = i
			break
		}
	}
	require.GreaterOrEqual(t, completeAt, 0, "expected a complete event")
	for _, k := range kinds[completeAt+1:] {
		assert.NotEqual(t, stream.KindEvidenceAdded, k)
		assert.NotEqual(t, stream.KindHypothesisUpdated, k)
		assert.NotEqual(t, stream.KindQueryExecuted, k)
	}
}

func TestUnknownInvestigationOperationsError(t *testing.T) {
	deps := testDeps(nil, nil, &llmclient.StubClient{})
	sup := New(deps)

	_, ok := sup.Get("does-not-exist")
	assert.False(t, ok)

	err := sup.Cancel("does-not-exist", "reason")
	assert.ErrorIs(t, err, ErrUnknownInvestigation)

	err = sup.ProvideHumanInput("does-not-exist", "answer")
	assert.ErrorIs(t, err, ErrUnknownInvestigation)
}

func TestEvidenceDeduplicationAcrossRescores(t *testing.T) {
	store := evidence.New()
	e := evidence.Evidence{Source: "tracking-api", Finding: "load not found", Supports: true, Weight: 10, SourceConfidence: 1.0, HypothesisID: "load_not_found"}
	first := store.Append(e)
	second := store.Append(e)
	assert.True(t, first.Added)
	assert.False(t, second.Added)
	assert.Equal(t, 1, store.Len())
}
