package decisiontree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourkites/rca-engine/pkg/evidence"
)

func boolPtr(b bool) *bool { return &b }

func sampleTree() Tree {
	return Tree{
		ID:    "ocean-flowchart",
		Modes: []string{"ocean"},
		Root:  "check-carrier-api",
		Nodes: map[string]Node{
			"check-carrier-api": {
				ID:     "check-carrier-api",
				Action: &Action{Adapter: "carrier-api", Params: map[string]string{"leg": "ocean"}},
				Decisions: []Decision{
					{
						Predicate: Predicate{Source: "carrier-api", FindingContains: "down", Supports: boolPtr(true)},
						Conclusion: &Conclusion{
							Category: "carrier_api_down", Finding: "carrier API unreachable",
							Weight: 10, SourceConfidence: 1.0, Prior: 0.7,
						},
					},
					{
						Predicate: Predicate{Source: "carrier-api", FindingContains: "ok", Supports: boolPtr(true)},
						NextNode:  "check-jt",
					},
				},
			},
			"check-jt": {
				ID:     "check-jt",
				Action: &Action{Adapter: "jt-scraper"},
				Decisions: []Decision{
					{
						Predicate: Predicate{Source: "jt-scraper", FindingContains: "error", Supports: boolPtr(true)},
						Conclusion: &Conclusion{
							Category: "jt_scraping_error", Finding: "scraper failed",
							Weight: 8, SourceConfidence: 0.9, Prior: 0.6,
						},
					},
				},
			},
		},
	}
}

func TestWalkerFollowsTransitionToConclusion(t *testing.T) {
	tree := sampleTree()
	var ranActions []string
	store := []evidence.Evidence{}

	runner := ActionRunnerFunc(func(_ context.Context, action Action) error {
		ranActions = append(ranActions, action.Adapter)
		switch action.Adapter {
		case "carrier-api":
			store = append(store, evidence.Evidence{Source: "carrier-api", Finding: "api ok", Supports: true})
		case "jt-scraper":
			store = append(store, evidence.Evidence{Source: "jt-scraper", Finding: "scrape error", Supports: true})
		}
		return nil
	})

	w := &Walker{Tree: tree, Runner: runner, Snapshot: func() []evidence.Evidence { return store }}
	conclusion, err := w.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conclusion)
	assert.Equal(t, "jt_scraping_error", conclusion.Category)
	assert.Equal(t, []string{"carrier-api", "jt-scraper"}, ranActions)
}

func TestWalkerConcludesImmediatelyWhenFirstNodeMatches(t *testing.T) {
	tree := sampleTree()
	store := []evidence.Evidence{{Source: "carrier-api", Finding: "carrier down", Supports: true}}

	w := &Walker{
		Tree:     tree,
		Runner:   ActionRunnerFunc(func(context.Context, Action) error { return nil }),
		Snapshot: func() []evidence.Evidence { return store },
	}
	conclusion, err := w.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conclusion)
	assert.Equal(t, "carrier_api_down", conclusion.Category)
}

func TestWalkerReturnsNilWhenNoDecisionMatches(t *testing.T) {
	tree := sampleTree()
	w := &Walker{
		Tree:     tree,
		Runner:   ActionRunnerFunc(func(context.Context, Action) error { return nil }),
		Snapshot: func() []evidence.Evidence { return nil },
	}
	conclusion, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, conclusion)
}

func TestWalkerDetectsCycles(t *testing.T) {
	tree := Tree{
		ID:   "cyclic",
		Root: "a",
		Nodes: map[string]Node{
			"a": {ID: "a", Decisions: []Decision{{Predicate: Predicate{}, NextNode: "b"}}},
			"b": {ID: "b", Decisions: []Decision{{Predicate: Predicate{}, NextNode: "a"}}},
		},
	}
	w := &Walker{Tree: tree, Snapshot: func() []evidence.Evidence { return []evidence.Evidence{{Source: "x", Finding: "y"}} }}
	_, err := w.Run(context.Background())
	assert.Error(t, err)
}

func TestRegistryMergeOverridesByID(t *testing.T) {
	builtin := []Tree{sampleTree()}
	user := []Tree{{ID: "ocean-flowchart", Root: "check-jt"}}

	merged, err := Merge(builtin, user)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "check-jt", merged[0].Root)
	assert.Equal(t, []string{"ocean"}, merged[0].Modes)

	reg := NewRegistry(merged)
	assert.Equal(t, 1, reg.Len())
	tr, ok := reg.GetByMode("ocean")
	require.True(t, ok)
	assert.Equal(t, "ocean-flowchart", tr.ID)
}

func TestLoadYAMLParsesTreesDocument(t *testing.T) {
	doc := []byte(`
trees:
  - id: simple
    modes: [ocean]
    root: start
    nodes:
      start:
        decisions:
          - predicate:
              finding_contains: "down"
            conclusion:
              category: carrier_api_down
              finding: "carrier down"
              weight: 10
              source_confidence: 1.0
              prior: 0.7
`)
	trees, err := LoadYAML(doc)
	require.NoError(t, err)
	require.Len(t, trees, 1)
	assert.Equal(t, "simple", trees[0].ID)
	assert.Equal(t, "start", trees[0].Root)
}
