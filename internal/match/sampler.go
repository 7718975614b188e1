package match

import (
	"math/rand/v2"

	"github.com/roach88/cohortmatch/internal/cohort"
)

// caseRNG derives the RNG for one case from the run seed and the case's
// ordinal. Seeding per case - not per worker - is what makes sampling
// outcomes independent of which worker timeline processes a case: for a
// fixed run seed the draw for case i is the same at any worker count.
func caseRNG(seed int64, ordinal int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(ordinal)))
}

// sample draws n distinct candidates uniformly at random without
// replacement, preserving no particular order. When fewer than n
// candidates exist it returns all of them; the caller reports the
// shortfall.
func sample(rng *rand.Rand, candidates []cohort.Record, n int) []cohort.Record {
	if len(candidates) <= n {
		out := make([]cohort.Record, len(candidates))
		copy(out, candidates)
		return out
	}

	// Partial Fisher-Yates: after i swaps the first i slots hold a
	// uniform without-replacement draw.
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}

	out := make([]cohort.Record, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[idx[i]]
	}
	return out
}
