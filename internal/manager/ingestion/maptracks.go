package ingestion

import (
	"context"
	"fmt"
	"sort"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/match"
	"github.com/pezzottify/catalog-engine/internal/model"
)

// durationValidationToleranceMs is the spec §4.7 threshold above which a
// matched pair's duration disagreement triggers a human review.
const durationValidationToleranceMs = 10_000

// durationFallbackConfidenceMin is the blended-confidence floor a
// duration-fallback pairing must clear to be accepted.
const durationFallbackConfidenceMin = 0.3

var reviewOptionsDurationMismatch = []model.ReviewOption{ //nolint:gochecknoglobals // Fixed option set from spec §4.7.
	{ID: "continue", Label: "Continue", Description: "Accept the mapping despite the duration mismatch."},
	{ID: "no_match", Label: "Cancel", Description: "Abandon this upload."},
}

type trackAssignment struct {
	file       *model.IngestionFile
	track      catalog.Track
	confidence float64
}

// mapTracks runs the MapTracks stage: fetch the matched album's ordered
// tracks and pair every uploaded file to one via exact (disc,track_num)
// lookup, then fuzzy title matching, then duration-proximity fallback, in
// that order of preference. A second pass (after a duration-mismatch review
// resolves to "continue") skips the validation step to avoid looping.
func (m *Manager) mapTracks(ctx context.Context, job *model.IngestionJob) error {
	files, err := m.store.ListFilesByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	tracks, err := m.catalog.GetAlbumTracks(ctx, job.MatchedAlbumID)
	if err != nil {
		return fmt.Errorf("ingestion: fetch matched album tracks: %w", err)
	}

	assignments, unmatched := assignTracks(files, tracks)

	if len(assignments) == 0 {
		return m.fail(ctx, job, "no uploaded files could be matched to a catalog track")
	}

	for _, assignment := range assignments {
		assignment.file.MatchedTrackID = assignment.track.ID
		assignment.file.MatchConfidence = assignment.confidence

		if err := m.store.UpdateFile(ctx, assignment.file); err != nil {
			return err
		}
	}

	if err := m.store.AppendReasoning(ctx, job.ID, "map_tracks",
		fmt.Sprintf("%d files matched, %d unmatched", len(assignments), len(unmatched))); err != nil {
		return err
	}

	job.TracksMatched = int64(len(assignments))

	skipReview, err := m.hasResolvedDurationReview(ctx, job.ID)
	if err != nil {
		return err
	}

	if !skipReview {
		if mismatch := worstDurationMismatch(assignments); mismatch != nil {
			// The pairing above is already persisted; resolving this review
			// with "continue" only needs to flip the job's status, not
			// recompute the mapping (spec §4.7: "continue → skip directly
			// to Converting").
			return m.requireReview(ctx, job,
				fmt.Sprintf("Track %q's duration differs from the catalog by more than 10 seconds — continue anyway?",
					mismatch.track.Title),
				reviewOptionsDurationMismatch)
		}
	}

	job.Status = model.IngestionStatusConverting

	return m.store.UpdateJob(ctx, job)
}

// assignTracks runs the three-pass matching strategy of spec §4.7 and
// returns the accepted assignments plus any files left unmatched.
func assignTracks(files []*model.IngestionFile, tracks []catalog.Track) ([]trackAssignment, []*model.IngestionFile) {
	claimed := make(map[string]bool, len(tracks))
	var assignments []trackAssignment

	remaining := make([]*model.IngestionFile, 0, len(files))
	remaining = append(remaining, files...)

	remaining, assignments = exactMatchPass(remaining, tracks, claimed, assignments)
	remaining, assignments = fuzzyTitleMatchPass(remaining, tracks, claimed, assignments)
	remaining, assignments = durationFallbackPass(remaining, tracks, claimed, assignments)

	return assignments, remaining
}

func exactMatchPass(
	files []*model.IngestionFile, tracks []catalog.Track, claimed map[string]bool, assignments []trackAssignment,
) ([]*model.IngestionFile, []trackAssignment) {
	var stillUnmatched []*model.IngestionFile

	for _, file := range files {
		if file.Tags == nil || file.Tags.TrackNum == 0 {
			stillUnmatched = append(stillUnmatched, file)

			continue
		}

		matched := false

		for _, track := range tracks {
			if claimed[track.ID] {
				continue
			}

			if track.DiscNum == file.Tags.DiscNum && track.TrackNum == file.Tags.TrackNum {
				claimed[track.ID] = true
				assignments = append(assignments, trackAssignment{file: file, track: track, confidence: 1.0})
				matched = true

				break
			}
		}

		if !matched {
			stillUnmatched = append(stillUnmatched, file)
		}
	}

	return stillUnmatched, assignments
}

func fuzzyTitleMatchPass(
	files []*model.IngestionFile, tracks []catalog.Track, claimed map[string]bool, assignments []trackAssignment,
) ([]*model.IngestionFile, []trackAssignment) {
	var stillUnmatched []*model.IngestionFile

	for _, file := range files {
		if file.Tags == nil || file.Tags.Title == "" {
			stillUnmatched = append(stillUnmatched, file)

			continue
		}

		best, bestScore := bestUnclaimedTitleMatch(file.Tags.Title, tracks, claimed)

		if bestScore > 0.7 { //nolint:mnd // Fuzzy title threshold from spec §4.7.
			claimed[best.ID] = true
			assignments = append(assignments, trackAssignment{file: file, track: best, confidence: bestScore})

			continue
		}

		stillUnmatched = append(stillUnmatched, file)
	}

	return stillUnmatched, assignments
}

func bestUnclaimedTitleMatch(title string, tracks []catalog.Track, claimed map[string]bool) (catalog.Track, float64) {
	var (
		best      catalog.Track
		bestScore float64
	)

	for _, track := range tracks {
		if claimed[track.ID] {
			continue
		}

		if score := match.StringSimilarity(title, track.Title); score > bestScore {
			best, bestScore = track, score
		}
	}

	return best, bestScore
}

// durationFallbackCandidate is one unmatched (file, track) pair scored for
// the greedy ascending-delta assignment.
type durationFallbackCandidate struct {
	file       *model.IngestionFile
	track      catalog.Track
	deltaMs    int64
	confidence float64
}

func durationFallbackPass(
	files []*model.IngestionFile, tracks []catalog.Track, claimed map[string]bool, assignments []trackAssignment,
) ([]*model.IngestionFile, []trackAssignment) {
	var candidates []durationFallbackCandidate

	for _, file := range files {
		if file.Probed == nil {
			continue
		}

		for _, track := range tracks {
			if claimed[track.ID] {
				continue
			}

			deltaMs := file.Probed.DurationMs - track.DurationMs
			if deltaMs < 0 {
				deltaMs = -deltaMs
			}

			confidence := blendedDurationConfidence(deltaMs, file, track)

			candidates = append(candidates, durationFallbackCandidate{
				file: file, track: track, deltaMs: deltaMs, confidence: confidence,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].deltaMs < candidates[j].deltaMs })

	fileClaimed := make(map[string]bool, len(files))

	for _, candidate := range candidates {
		if claimed[candidate.track.ID] || fileClaimed[candidate.file.ID] {
			continue
		}

		if candidate.confidence <= durationFallbackConfidenceMin {
			continue
		}

		claimed[candidate.track.ID] = true
		fileClaimed[candidate.file.ID] = true
		assignments = append(assignments, trackAssignment{file: candidate.file, track: candidate.track, confidence: candidate.confidence})
	}

	var stillUnmatched []*model.IngestionFile

	for _, file := range files {
		if !fileClaimed[file.ID] {
			stillUnmatched = append(stillUnmatched, file)
		}
	}

	return stillUnmatched, assignments
}

// blendedDurationConfidence weights duration proximity (capped at 10s) 70%
// and name similarity 30%, per spec §4.7's fallback pairing formula.
func blendedDurationConfidence(deltaMs int64, file *model.IngestionFile, track catalog.Track) float64 {
	proximity := 1.0 - float64(deltaMs)/float64(durationValidationToleranceMs)
	if proximity < 0 {
		proximity = 0
	}

	nameSimilarity := 0.0

	if file.Tags != nil && file.Tags.Title != "" {
		nameSimilarity = match.StringSimilarity(file.Tags.Title, track.Title)
	}

	return 0.7*proximity + 0.3*nameSimilarity //nolint:mnd // Fixed blend weights from spec §4.7.
}

// worstDurationMismatch returns the first assignment whose duration
// disagreement exceeds the validation tolerance, or nil if all pairs agree.
func worstDurationMismatch(assignments []trackAssignment) *trackAssignment {
	for i, assignment := range assignments {
		if assignment.file.Probed == nil {
			continue
		}

		delta := assignment.file.Probed.DurationMs - assignment.track.DurationMs
		if delta < 0 {
			delta = -delta
		}

		if delta > durationValidationToleranceMs {
			return &assignments[i]
		}
	}

	return nil
}
