package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortmatch/internal/cohort"
)

func poolRecords(ids ...string) []cohort.Record {
	out := make([]cohort.Record, len(ids))
	for i, id := range ids {
		out[i] = cohort.Record{ID: id, Fields: map[string]cohort.Value{}}
	}
	return out
}

func TestSample_DrawsDistinct(t *testing.T) {
	candidates := poolRecords("a", "b", "c", "d", "e", "f")
	rng := caseRNG(1, 1)

	got := sample(rng, candidates, 3)
	require.Len(t, got, 3)

	seen := map[string]bool{}
	for _, rec := range got {
		assert.False(t, seen[rec.ID], "duplicate draw %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestSample_ShortfallReturnsAll(t *testing.T) {
	candidates := poolRecords("a", "b")

	got := sample(caseRNG(1, 1), candidates, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestSample_EmptyCandidates(t *testing.T) {
	got := sample(caseRNG(1, 1), nil, 3)
	assert.Empty(t, got)
}

func TestSample_DoesNotMutateCandidates(t *testing.T) {
	candidates := poolRecords("a", "b", "c", "d")

	_ = sample(caseRNG(1, 7), candidates, 2)

	assert.Equal(t, []string{"a", "b", "c", "d"},
		[]string{candidates[0].ID, candidates[1].ID, candidates[2].ID, candidates[3].ID})
}

func TestCaseRNG_DeterministicPerCase(t *testing.T) {
	candidates := poolRecords("a", "b", "c", "d", "e", "f", "g", "h")

	first := sample(caseRNG(42, 3), candidates, 4)
	second := sample(caseRNG(42, 3), candidates, 4)
	assert.Equal(t, first, second, "same seed and ordinal draw identically")

	other := sample(caseRNG(42, 4), candidates, 4)
	assert.NotEqual(t, first, other, "different ordinals use independent streams")
}

func TestSample_RoughlyUniform(t *testing.T) {
	// Each of 4 candidates should be drawn in roughly half of many
	// 2-of-4 samples. Loose bounds; this guards against e.g. always
	// taking a prefix.
	candidates := poolRecords("a", "b", "c", "d")
	counts := map[string]int{}

	const trials = 2000
	for i := 0; i < trials; i++ {
		for _, rec := range sample(caseRNG(7, i), candidates, 2) {
			counts[rec.ID]++
		}
	}

	for _, id := range []string{"a", "b", "c", "d"} {
		frac := float64(counts[id]) / trials
		assert.InDelta(t, 0.5, frac, 0.1, "candidate %s drawn with frequency %f", id, frac)
	}
}
