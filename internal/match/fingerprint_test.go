package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/match"
	"github.com/pezzottify/catalog-engine/internal/model"
)

// TestCompareSymmetryAndLengthMonotonicity is invariant 8: permuting
// equal-duration swaps does not change matches; extending candidate length
// beyond min(n,m) with additional mismatching durations reduces score
// monotonically (max(n,m) grows while matches cannot).
func TestCompareSymmetryAndLengthMonotonicity(t *testing.T) {
	t.Parallel()

	uploaded := []int64{180000, 200000, 240000}
	candidate := match.Candidate{AlbumID: "a1", Durations: []int64{180100, 199900, 240050}}

	result := match.Compare(uploaded, candidate, match.DefaultTrackToleranceMs)
	assert.Equal(t, 3, result.Matches)
	assert.InDelta(t, 1.0, result.Score, 0.0001)

	swapped := match.Candidate{AlbumID: "a1", Durations: []int64{199900, 180100, 240050}}
	uploadedSwapped := []int64{200000, 180000, 240000}

	resultSwapped := match.Compare(uploadedSwapped, swapped, match.DefaultTrackToleranceMs)
	assert.Equal(t, result.Matches, resultSwapped.Matches)

	extended := match.Candidate{AlbumID: "a1", Durations: append(append([]int64{}, candidate.Durations...), 999999999)}
	resultExtended := match.Compare(uploaded, extended, match.DefaultTrackToleranceMs)

	assert.LessOrEqual(t, resultExtended.Score, result.Score)
}

// TestClassifySuccess is scenario E4's store-independent core: a close
// duration match with no competitive runner-up auto-matches.
func TestClassifySuccess(t *testing.T) {
	t.Parallel()

	uploaded := []int64{180000, 200000, 240000}

	results := match.CompareAll(uploaded, []match.Candidate{
		{AlbumID: "good-album", Durations: []int64{180100, 199800, 240200}},
		{AlbumID: "bad-album", Durations: []int64{100000, 100000, 100000}},
	}, match.DefaultTrackToleranceMs)

	best, ticket := match.Classify(results, match.DefaultClassifyOptions())

	require.Equal(t, "good-album", best.AlbumID)
	assert.Equal(t, model.TicketSuccess, ticket)
}

func TestClassifyReviewOnHighScore(t *testing.T) {
	t.Parallel()

	// 9 of 10 tracks match closely; the 10th is wildly off, pinning score at
	// exactly 0.9 — the spec's "Review if s* >= 0.9" branch.
	uploaded := make([]int64, 10)
	candidateDurations := make([]int64, 10)

	for i := range uploaded {
		uploaded[i] = int64(180000 + i*1000)
		candidateDurations[i] = uploaded[i] + 100
	}

	candidateDurations[9] = 1

	results := match.CompareAll(uploaded, []match.Candidate{
		{AlbumID: "close-album", Durations: candidateDurations},
	}, match.DefaultTrackToleranceMs)

	_, ticket := match.Classify(results, match.DefaultClassifyOptions())

	assert.Equal(t, model.TicketReview, ticket)
}

func TestClassifyFailureWithNoCandidates(t *testing.T) {
	t.Parallel()

	_, ticket := match.Classify(nil, match.DefaultClassifyOptions())
	assert.Equal(t, model.TicketFailure, ticket)
}

func TestClassifyTieBreaksByDeltaThenAlbumID(t *testing.T) {
	t.Parallel()

	results := []match.CompareResult{
		{AlbumID: "zzz", Matches: 2, Score: 0.5, DeltaMs: 100},
		{AlbumID: "aaa", Matches: 2, Score: 0.5, DeltaMs: 100},
	}

	best, _ := match.Classify(results, match.DefaultClassifyOptions())
	assert.Equal(t, "aaa", best.AlbumID)
}
