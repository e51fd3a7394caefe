package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendDedupIdempotence(t *testing.T) {
	s := New()

	e := Evidence{Source: "tracking-api", Finding: "load not found", Supports: true, Weight: 10, SourceConfidence: 1.0}
	r1 := s.Append(e)
	r2 := s.Append(e)

	require.True(t, r1.Added)
	require.False(t, r2.Added, "submitting the same evidence twice must not append twice")
	assert.Equal(t, 1, s.Len())
}

func TestAppendDistinguishesHypothesisBinding(t *testing.T) {
	s := New()
	base := Evidence{Source: "network-relationship", Finding: "no relationship", Supports: true, Weight: 10}

	a := base
	a.HypothesisID = "h1"
	b := base
	b.HypothesisID = "h2"

	s.Append(a)
	s.Append(b)

	assert.Equal(t, 2, s.Len())
}

func TestSnapshotIsOrderedAndStable(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.Append(Evidence{Source: "x", Finding: string(rune('a' + i)), Weight: 1})
	}

	snap1 := s.Snapshot()
	snap2 := s.Snapshot()
	require.Equal(t, len(snap1), len(snap2))
	for i := range snap1 {
		assert.Equal(t, snap1[i].ID, snap2[i].ID, "snapshot ordering must be stable across calls")
	}
}

func TestCapacityDropsExcessItems(t *testing.T) {
	s := New(WithCapacity(2))

	s.Append(Evidence{Source: "a", Finding: "1", Weight: 1})
	s.Append(Evidence{Source: "a", Finding: "2", Weight: 1})
	r := s.Append(Evidence{Source: "a", Finding: "3", Weight: 1})

	require.True(t, r.CapExceeded)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Dropped())
}

func TestAppendUnboundedBypassesCapacity(t *testing.T) {
	s := New(WithCapacity(1))

	s.Append(Evidence{Source: "a", Finding: "1", Weight: 1})
	dropped := s.Append(Evidence{Source: "a", Finding: "2", Weight: 1})
	require.True(t, dropped.CapExceeded)

	warn := s.AppendUnbounded(Evidence{Source: "engine", Finding: "cap reached", Weight: 0})
	require.True(t, warn.Added)
	assert.Equal(t, 2, s.Len())
}

func TestMonotoneEvidenceAcrossPrefixes(t *testing.T) {
	s := New()
	var prefixes [][]Evidence

	for i := 0; i < 4; i++ {
		s.Append(Evidence{Source: "a", Finding: string(rune('a' + i)), Weight: 1})
		prefixes = append(prefixes, s.Snapshot())
	}

	for i := 0; i < len(prefixes)-1; i++ {
		shorter, longer := prefixes[i], prefixes[i+1]
		require.LessOrEqual(t, len(shorter), len(longer))
		for j, e := range shorter {
			assert.Equal(t, e.ID, longer[j].ID)
		}
	}
}

func TestBySourceAndForHypothesisFilter(t *testing.T) {
	s := New()
	s.Append(Evidence{Source: "tracking-api", Finding: "f1", Weight: 1, HypothesisID: "h1"})
	s.Append(Evidence{Source: "network-relationship", Finding: "f2", Weight: 1, HypothesisID: "h2"})

	assert.Len(t, s.BySource("tracking-api"), 1)
	assert.Len(t, s.ForHypothesis("h2"), 1)
	assert.Len(t, s.ForHypothesis("missing"), 0)
}

func TestFindingHashStableAndDiscriminating(t *testing.T) {
	h1 := FindingHash("tracking-api", "load not found", true, 10, "")
	h2 := FindingHash("tracking-api", "load not found", true, 10, "")
	h3 := FindingHash("tracking-api", "load not found", false, 10, "")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
