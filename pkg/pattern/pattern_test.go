package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourkites/rca-engine/pkg/evidence"
)

func boolPtr(b bool) *bool { return &b }

func TestLoadYAMLAndMerge(t *testing.T) {
	builtinYAML := []byte(`
patterns:
  - id: network_relationship_missing
    category: network_relationship_missing
    prior: 0.2
    resolution_template: "create the relationship"
    predicates:
      - source: network-relationship
        finding_contains: missing
`)
	userYAML := []byte(`
patterns:
  - id: network_relationship_missing
    prior: 0.35
  - id: custom_rule
    category: custom
    prior: 0.1
    predicates:
      - source: custom-source
`)

	builtin, err := LoadYAML(builtinYAML)
	require.NoError(t, err)
	user, err := LoadYAML(userYAML)
	require.NoError(t, err)

	merged, err := Merge(builtin, user)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	reg := NewRegistry(merged)
	p, ok := reg.Get("network_relationship_missing")
	require.True(t, ok)
	assert.Equal(t, 0.35, p.Prior, "user override must win")
	assert.Equal(t, "create the relationship", p.ResolutionTemplate, "unset user fields must not clobber the builtin")
}

func TestMatchAllRequiresEveryPredicate(t *testing.T) {
	p := Pattern{
		ID:       "network_relationship_missing",
		Category: "network_relationship_missing",
		Prior:    0.2,
		Predicates: []Predicate{
			{Source: "network-relationship", FindingContains: "missing", Supports: boolPtr(true)},
		},
	}
	reg := NewRegistry([]Pattern{p})

	noMatch := reg.MatchAll([]evidence.Evidence{
		{Source: "network-relationship", Finding: "relationship active", Supports: true},
	})
	assert.Empty(t, noMatch)

	match := reg.MatchAll([]evidence.Evidence{
		{Source: "network-relationship", Finding: "no active relationship missing", Supports: true},
	})
	require.Len(t, match, 1)
	assert.Equal(t, "network_relationship_missing", match[0].Pattern.Category)
}

func TestRequiredEvidenceForDedupesBySourceAndRanksByWeight(t *testing.T) {
	patterns := []Pattern{
		{
			ID: "p1", Category: "load_not_found",
			RequiredEvidence: []RequiredEvidence{{Source: "tracking-api", Weight: 5}},
		},
		{
			ID: "p2", Category: "load_not_found",
			RequiredEvidence: []RequiredEvidence{
				{Source: "tracking-api", Weight: 3},
				{Source: "historical-warehouse", Weight: 8},
			},
		},
		{
			ID: "p3", Category: "carrier_api_down",
			RequiredEvidence: []RequiredEvidence{{Source: "carrier-api", Weight: 10}},
		},
	}
	reg := NewRegistry(patterns)

	got := reg.RequiredEvidenceFor("load_not_found")
	require.Len(t, got, 2, "tracking-api must be deduped across p1/p2")
	assert.Equal(t, "historical-warehouse", got[0].Source, "heaviest weight first")
	assert.Equal(t, "tracking-api", got[1].Source)

	assert.Empty(t, reg.RequiredEvidenceFor("no_such_category"))
}

func TestRegistryIsDefensivelyCopied(t *testing.T) {
	patterns := []Pattern{{ID: "a", Category: "a"}}
	reg := NewRegistry(patterns)

	all := reg.All()
	all[0].Category = "mutated"

	got, _ := reg.Get("a")
	assert.Equal(t, "a", got.Category, "mutating All()'s result must not affect the registry")
}
