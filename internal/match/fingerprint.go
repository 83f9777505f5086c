package match

import (
	"sort"

	"github.com/pezzottify/catalog-engine/internal/model"
)

// Default thresholds per spec §4.1, overridable via ClassifyOptions.
const (
	DefaultTrackToleranceMs = 3000
	DefaultAutoMatchDeltaMs = 5000
	DefaultReviewScoreMin   = 0.6
	DefaultReviewGapMin     = 0.1
)

// Candidate is one catalog album's ordered track durations, supplied by the
// caller (derived from a tag-based catalog search); the matcher never
// searches for candidates itself.
type Candidate struct {
	AlbumID   string
	Durations []int64 // milliseconds, track order
}

// CompareResult is one candidate's score against the uploaded durations.
type CompareResult struct {
	AlbumID string
	Matches int
	Score   float64
	DeltaMs int64
}

// Compare counts positions i in [0, min(n,m)) where |u_i - c_i| <= tolMs,
// summing the deltas of matched positions, and scores matches/max(n,m).
func Compare(uploaded []int64, candidate Candidate, tolMs int64) CompareResult {
	n, m := len(uploaded), len(candidate.Durations)

	limit := n
	if m < limit {
		limit = m
	}

	var (
		matches int
		delta   int64
	)

	for i := range limit {
		d := uploaded[i] - candidate.Durations[i]
		if d < 0 {
			d = -d
		}

		if d <= tolMs {
			matches++
			delta += d
		}
	}

	maxLen := n
	if m > maxLen {
		maxLen = m
	}

	var score float64
	if maxLen > 0 {
		score = float64(matches) / float64(maxLen)
	}

	return CompareResult{AlbumID: candidate.AlbumID, Matches: matches, Score: score, DeltaMs: delta}
}

// CompareAll compares uploaded durations against every candidate, using the
// given per-track tolerance tolMs.
func CompareAll(uploaded []int64, candidates []Candidate, tolMs int64) []CompareResult {
	results := make([]CompareResult, len(candidates))
	for i, candidate := range candidates {
		results[i] = Compare(uploaded, candidate, tolMs)
	}

	return results
}

// ClassifyOptions parameterizes ticket classification thresholds.
type ClassifyOptions struct {
	AutoMatchDeltaMs int64   // Δ_auto: max total delta for an automatic Success.
	ReviewScoreMin   float64 // s_review: minimum score for a gap-triggered Review.
	ReviewGapMin     float64 // gap_min: minimum score gap between top-2 candidates to trigger Review.
}

// DefaultClassifyOptions returns the spec's default thresholds.
func DefaultClassifyOptions() ClassifyOptions {
	return ClassifyOptions{
		AutoMatchDeltaMs: DefaultAutoMatchDeltaMs,
		ReviewScoreMin:   DefaultReviewScoreMin,
		ReviewGapMin:     DefaultReviewGapMin,
	}
}

// Classify picks the best candidate (ties broken by smaller delta, then by
// lexicographically smaller album id) and returns its verdict: Success if
// score=1.0 and delta < Δ_auto; Review if score >= 0.9, or if the top-2 gap
// >= gap_min with score >= s_review; Failure otherwise.
func Classify(results []CompareResult, opts ClassifyOptions) (CompareResult, model.TicketType) {
	if len(results) == 0 {
		return CompareResult{}, model.TicketFailure
	}

	ordered := make([]CompareResult, len(results))
	copy(ordered, results)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}

		if ordered[i].DeltaMs != ordered[j].DeltaMs {
			return ordered[i].DeltaMs < ordered[j].DeltaMs
		}

		return ordered[i].AlbumID < ordered[j].AlbumID
	})

	best := ordered[0]

	switch {
	case best.Score >= 1.0 && best.DeltaMs < opts.AutoMatchDeltaMs:
		return best, model.TicketSuccess
	case best.Score >= 0.9:
		return best, model.TicketReview
	case len(ordered) > 1 && best.Score-ordered[1].Score >= opts.ReviewGapMin && best.Score >= opts.ReviewScoreMin:
		return best, model.TicketReview
	default:
		return best, model.TicketFailure
	}
}
