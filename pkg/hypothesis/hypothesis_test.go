package hypothesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourkites/rca-engine/pkg/evidence"
)

func TestScoringDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	h := e.Seed("network_relationship_missing", "no relationship", 0.2)

	snap := []evidence.Evidence{
		{ID: "e1", Source: "network-relationship", Supports: true, Weight: 10, SourceConfidence: 1.0, HypothesisID: h.ID},
	}
	e.Rescore(snap)
	got, _ := e.Get(h.ID)

	// confidence(H) = clip(prior + alpha*(Sfor - beta*Sagainst)/(1+Sfor+Sagainst))
	// Sfor = 10*1.0 = 10, Sagainst = 0
	// conf = 0.2 + 0.15*(10)/(11) = 0.2 + 0.13636... = 0.33636...
	assert.InDelta(t, 0.33636, got.Confidence, 1e-4)

	// re-running with the same snapshot must reproduce the same number.
	e2 := New(cfg)
	h2 := e2.Seed("network_relationship_missing", "no relationship", 0.2)
	snap2 := []evidence.Evidence{
		{ID: "e1", Source: "network-relationship", Supports: true, Weight: 10, SourceConfidence: 1.0, HypothesisID: h2.ID},
	}
	e2.Rescore(snap2)
	got2, _ := e2.Get(h2.ID)
	assert.InDelta(t, got.Confidence, got2.Confidence, 1e-9)
}

func TestPromotionRequiresThresholdAndMargin(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	strong := e.Seed("load_not_found", "load not found", 0.7)
	weak := e.Seed("unknown", "unclear", 0.1)

	snap := []evidence.Evidence{
		{ID: "e1", Source: "tracking-api", Supports: true, Weight: 10, SourceConfidence: 1.0, HypothesisID: strong.ID},
		{ID: "e2", Source: "tracking-api", Supports: true, Weight: 10, SourceConfidence: 1.0, HypothesisID: strong.ID},
		{ID: "e3", Source: "tracking-api", Supports: true, Weight: 1, SourceConfidence: 0.2, HypothesisID: weak.ID},
	}
	e.Rescore(snap)

	confirmed, ok := e.Confirmed()
	require.True(t, ok)
	assert.Equal(t, "load_not_found", confirmed.Category)
	assert.GreaterOrEqual(t, confirmed.Confidence, cfg.AutoResolveThreshold)
}

func TestEliminationIsAntiOscillating(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	h := e.Seed("rpa_scraping_error", "scrape failing", 0.05)

	// heavy negative evidence pushes confidence to/below the elimination floor.
	snap := []evidence.Evidence{
		{ID: "e1", Source: "rpa-scraper", Supports: false, Weight: 10, SourceConfidence: 1.0, HypothesisID: h.ID},
	}
	e.Rescore(snap)
	got, _ := e.Get(h.ID)
	require.Equal(t, StateEliminated, got.State)

	// subsequent strong positive evidence must not resurrect it.
	snap2 := append(snap, evidence.Evidence{ID: "e2", Source: "rpa-scraper", Supports: true, Weight: 10, SourceConfidence: 1.0, HypothesisID: h.ID})
	e.Rescore(snap2)
	got2, _ := e.Get(h.ID)
	assert.Equal(t, StateEliminated, got2.State, "elimination must be sticky")
}

func TestSeedDeduplicatesByCategory(t *testing.T) {
	e := New(DefaultConfig())
	a := e.Seed("load_not_found", "first description", 0.3)
	b := e.Seed("load_not_found", "second description", 0.5)

	assert.Equal(t, a.ID, b.ID, "seeding the same category twice must return the existing hypothesis")
}

func TestAllEliminatedYieldsUnknownResidual(t *testing.T) {
	e := New(DefaultConfig())
	h := e.Seed("load_not_found", "desc", 0.05)
	e.Rescore([]evidence.Evidence{
		{ID: "e1", Source: "tracking-api", Supports: false, Weight: 10, SourceConfidence: 1.0, HypothesisID: h.ID},
	})

	require.True(t, e.AllEliminated())
	unknown := e.SeedUnknown()
	assert.Equal(t, UnknownCategory, unknown.Category)
	assert.InDelta(t, 0.3, unknown.Prior, 1e-9)
}

func TestTieBreakOrdering(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	a := e.Seed("aaa_category", "a", 0.3)
	b := e.Seed("bbb_category", "b", 0.5)

	// no evidence at all -> confidence == prior for each (0.3 and 0.5), and
	// neither has any contributing source.
	e.Rescore(nil)

	ranked := e.Ranked()
	require.Len(t, ranked, 2)
	// within TieBreakWindow of each other? |0.3-0.5| = 0.2 > 0.02, so plain
	// confidence ordering applies: b (0.5) ranks first.
	assert.Equal(t, b.ID, ranked[0].ID)
	assert.Equal(t, a.ID, ranked[1].ID)
}

func TestTopTwoTracksRankedOrder(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)

	top, runnerUp := e.TopTwo()
	assert.Empty(t, top)
	assert.Empty(t, runnerUp)

	e.Seed("aaa_category", "a", 0.3)
	e.Seed("bbb_category", "b", 0.5)
	e.Rescore(nil)

	top, runnerUp = e.TopTwo()
	assert.Equal(t, "bbb_category", top)
	assert.Equal(t, "aaa_category", runnerUp)
}
