package ingestion

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/client/search"
	"github.com/pezzottify/catalog-engine/internal/logger"
	"github.com/pezzottify/catalog-engine/internal/match"
	"github.com/pezzottify/catalog-engine/internal/model"
)

// maxReviewCandidates bounds how many ranked candidates a general-path
// review offers a human, per spec §4.7 ("top 5 + None of these").
const maxReviewCandidates = 5

var reviewOptionsConfirmAlbum = []model.ReviewOption{ //nolint:gochecknoglobals // Fixed option set from spec §4.7.
	{ID: "confirm_this_album", Label: "Confirm", Description: "This is the correct album."},
	{ID: "reject", Label: "Reject", Description: "This is not the correct album."},
}

// identifyAlbum runs the IdentifyAlbum stage: aggregate the job's detected
// metadata, then either take the DownloadRequest fast path (album id
// already known) or the general search-and-score path.
func (m *Manager) identifyAlbum(ctx context.Context, job *model.IngestionJob) error {
	files, err := m.store.ListFilesByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	summary := aggregateMetadataSummary(files)
	job.DetectedArtist = summary.Artist
	job.DetectedAlbum = summary.Album
	job.DetectedYear = summary.Year

	if job.ContextKind == model.ContextDownloadRequest && job.QueueItemID != nil {
		return m.identifyFastPath(ctx, job, files, summary)
	}

	return m.identifyGeneralPath(ctx, job, files, summary)
}

// identifyFastPath handles spec §4.7 step 2: the album id is already known
// from the linked DownloadRequest queue item, so identification reduces to
// a single fingerprint compare against that one album's catalog durations.
func (m *Manager) identifyFastPath(
	ctx context.Context,
	job *model.IngestionJob,
	files []*model.IngestionFile,
	summary model.MetadataSummary,
) error {
	queueID, err := uuid.Parse(*job.QueueItemID)
	if err != nil {
		return fmt.Errorf("ingestion: parse linked queue item id: %w", err)
	}

	queueItem, err := m.queueStore.GetByID(ctx, queueID)
	if err != nil {
		return fmt.Errorf("ingestion: fetch linked queue item: %w", err)
	}

	albumID := queueItem.ContentID

	tracks, err := m.catalog.GetAlbumTracks(ctx, albumID)
	if err != nil {
		return fmt.Errorf("ingestion: fetch album tracks for fast-path identification: %w", err)
	}

	candidate := match.Candidate{AlbumID: albumID, Durations: trackDurations(tracks)}
	result := match.Compare(orderedUploadedDurations(files), candidate, match.DefaultTrackToleranceMs)

	// Recorded ahead of the review branches too: confirm_this_album/reject
	// need to know which album id a pending review refers to.
	job.MatchedAlbumID = albumID
	job.MatchScore = result.Score
	job.MatchDeltaMs = result.DeltaMs

	if err := m.store.AppendReasoning(ctx, job.ID, "identify_fast",
		fmt.Sprintf("album=%s score=%.2f delta_ms=%d", albumID, result.Score, result.DeltaMs)); err != nil {
		return err
	}

	switch {
	case result.Score >= 1.0 && result.DeltaMs < match.DefaultAutoMatchDeltaMs:
		return m.autoMatchAlbum(ctx, job, albumID, model.MatchSourceDownloadRequest, result.Score, result.DeltaMs)
	case result.Score >= 0.9: //nolint:mnd // Review threshold from spec §4.7.
		return m.requireReview(ctx, job,
			fmt.Sprintf("Is %q by %q the correct album for this upload?", summary.Album, summary.Artist),
			reviewOptionsConfirmAlbum)
	default:
		return m.requireReview(ctx, job,
			fmt.Sprintf("Low-confidence match (score %.2f) for %q by %q — confirm this is the correct album?",
				result.Score, summary.Album, summary.Artist),
			reviewOptionsConfirmAlbum)
	}
}

// identifyGeneralPath handles spec §4.7 steps 3-4: search for album
// candidates by tag-derived artist/album names, try fingerprint matching
// against them first, and fall back to weighted candidate scoring.
func (m *Manager) identifyGeneralPath(
	ctx context.Context,
	job *model.IngestionJob,
	files []*model.IngestionFile,
	summary model.MetadataSummary,
) error {
	hits, err := m.searchCandidateHits(ctx, summary)
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		return m.fail(ctx, job, "no album candidates found for detected metadata")
	}

	resolved := make([]*search.ResolvedAlbum, 0, len(hits))

	for _, hit := range hits {
		album, err := m.resolveAlbumCached(ctx, hit.AlbumID)
		if err != nil {
			logger.Warnf(ctx, "ingestion: resolve candidate album %s: %v", hit.AlbumID, err)

			continue
		}

		resolved = append(resolved, album)
	}

	if len(resolved) == 0 {
		return m.fail(ctx, job, "no album candidates could be resolved")
	}

	uploadedDurations := orderedUploadedDurations(files)

	fingerprintCandidates := make([]match.Candidate, len(resolved))
	for i, album := range resolved {
		fingerprintCandidates[i] = match.Candidate{AlbumID: album.AlbumID, Durations: resolvedDurations(album)}
	}

	fingerprintResults := match.CompareAll(uploadedDurations, fingerprintCandidates, match.DefaultTrackToleranceMs)
	best, ticket := match.Classify(fingerprintResults, match.DefaultClassifyOptions())

	if ticket == model.TicketSuccess {
		if err := m.store.AppendReasoning(ctx, job.ID, "identify_general",
			fmt.Sprintf("fingerprint success album=%s score=%.2f", best.AlbumID, best.Score)); err != nil {
			return err
		}

		return m.autoMatchAlbum(ctx, job, best.AlbumID, model.MatchSourceFingerprint, best.Score, best.DeltaMs)
	}

	return m.scoreAndDecide(ctx, job, resolved, summary, job.OriginalFilename)
}

// searchCandidateHits runs both the album-name and artist-name queries and
// deduplicates by album id, preserving first-seen order.
func (m *Manager) searchCandidateHits(ctx context.Context, summary model.MetadataSummary) ([]search.Hit, error) {
	seen := map[string]struct{}{}

	var hits []search.Hit

	add := func(found []search.Hit) {
		for _, hit := range found {
			if _, ok := seen[hit.AlbumID]; ok {
				continue
			}

			seen[hit.AlbumID] = struct{}{}

			hits = append(hits, hit)
		}
	}

	if summary.Album != "" {
		albumHits, err := m.search.SearchAlbums(ctx, summary.Album)
		if err != nil {
			return nil, fmt.Errorf("ingestion: search albums: %w", err)
		}

		add(albumHits)
	}

	if summary.Artist != "" {
		artistHits, err := m.search.SearchArtistAlbums(ctx, summary.Artist)
		if err != nil {
			return nil, fmt.Errorf("ingestion: search artist albums: %w", err)
		}

		add(artistHits)
	}

	return hits, nil
}

// resolveAlbumCached serves a resolved album from the LRU before hitting the
// search collaborator — a Collection upload's sibling album jobs routinely
// search overlapping artist names within the same session.
func (m *Manager) resolveAlbumCached(ctx context.Context, albumID string) (*search.ResolvedAlbum, error) {
	if cached, ok := m.resolvedCache.Get(albumID); ok {
		return cached, nil
	}

	resolved, err := m.search.ResolveAlbum(ctx, albumID)
	if err != nil {
		return nil, err
	}

	m.resolvedCache.Add(albumID, resolved)

	return resolved, nil
}

// scoreAndDecide runs the weighted candidate-scoring formula from spec
// §4.7 over every resolved candidate and either auto-matches the winner or
// raises a review with the top 5.
func (m *Manager) scoreAndDecide(
	ctx context.Context,
	job *model.IngestionJob,
	resolved []*search.ResolvedAlbum,
	summary model.MetadataSummary,
	sourceFilename string,
) error {
	candidates := make([]model.AlbumCandidate, len(resolved))
	for i, album := range resolved {
		candidates[i] = model.AlbumCandidate{
			AlbumID:     album.AlbumID,
			Artist:      album.Artist,
			Name:        album.Name,
			TrackTitles: resolvedTitles(album),
			TotalMs:     resolvedDurationSum(album),
		}
	}

	input := match.CandidateScoreInput{
		DetectedArtist:    summary.Artist,
		DetectedAlbum:     summary.Album,
		SourceFilename:    sourceFilename,
		HasSourceFilename: sourceFilename != "",
		UploadedTitles:    summary.TrackTitles,
		UploadedTotalMs:   summary.TotalMs,
	}

	ranked := match.RankCandidates(input, candidates)

	if err := m.store.AppendReasoning(ctx, job.ID, "identify_general",
		fmt.Sprintf("weighted scoring over %d candidates, top=%s (%.2f)",
			len(ranked), topCandidateID(ranked), topCandidateScore(ranked))); err != nil {
		return err
	}

	if len(ranked) > 0 && ranked[0].Score >= m.cfg.AutoMatchThreshold {
		return m.autoMatchAlbum(ctx, job, ranked[0].AlbumID, model.MatchSourceAgent, ranked[0].Score, 0)
	}

	top := ranked
	if len(top) > maxReviewCandidates {
		top = top[:maxReviewCandidates]
	}

	options := make([]model.ReviewOption, 0, len(top)+1)
	for _, candidate := range top {
		options = append(options, model.ReviewOption{
			ID:          "album:" + candidate.AlbumID,
			Label:       fmt.Sprintf("%s — %s", candidate.Artist, candidate.Name),
			Description: fmt.Sprintf("score %.2f", candidate.Score),
		})
	}

	options = append(options, model.ReviewOption{ID: "no_match", Label: "None of these", Description: "Reject all candidates."})

	job.TicketType = model.TicketReview

	candidateNames := make([]string, len(top))
	for i, candidate := range top {
		candidateNames[i] = candidate.Artist + " - " + candidate.Name
	}

	if job.UserID != "" {
		m.notifier.NotifyMatchFound(ctx, job.UserID, job.ID, job.TicketType.String(), candidateNames)
	}

	return m.requireReview(ctx, job, "Which album matches this upload?", options)
}

// autoMatchAlbum records a confident match and advances the job straight to
// MappingTracks, per spec §4.7's auto-match branches.
func (m *Manager) autoMatchAlbum(
	ctx context.Context,
	job *model.IngestionJob,
	albumID string,
	source model.MatchSource,
	score float64,
	deltaMs int64,
) error {
	job.MatchedAlbumID = albumID
	job.MatchConfidence = score
	job.MatchSource = source
	job.TicketType = model.TicketSuccess
	job.MatchScore = score
	job.MatchDeltaMs = deltaMs
	job.Status = model.IngestionStatusMappingTracks

	if job.UserID != "" {
		m.notifier.NotifyMatchFound(ctx, job.UserID, job.ID, job.TicketType.String(), []string{albumID})
	}

	return m.store.UpdateJob(ctx, job)
}

// aggregateMetadataSummary builds a job-level MetadataSummary from per-file
// tags: the most common non-empty tag value wins for artist/album/year,
// titles are ordered by track_num falling back to filename, and total
// duration sums whatever probe results are present.
func aggregateMetadataSummary(files []*model.IngestionFile) model.MetadataSummary {
	artistCounts := map[string]int{}
	albumCounts := map[string]int{}
	yearCounts := map[string]int{}

	var totalMs int64

	for _, file := range files {
		if file.Tags != nil {
			if file.Tags.Artist != "" {
				artistCounts[file.Tags.Artist]++
			}

			if file.Tags.Album != "" {
				albumCounts[file.Tags.Album]++
			}

			if file.Tags.Year != "" {
				yearCounts[file.Tags.Year]++
			}
		}

		if file.Probed != nil {
			totalMs += file.Probed.DurationMs
		}
	}

	return model.MetadataSummary{
		Artist:      mostCommon(artistCounts),
		Album:       mostCommon(albumCounts),
		Year:        mostCommon(yearCounts),
		TrackTitles: orderedTitles(files),
		TotalMs:     totalMs,
	}
}

func mostCommon(counts map[string]int) string {
	var (
		best      string
		bestCount int
	)

	for value, count := range counts {
		if count > bestCount || (count == bestCount && value < best) {
			best, bestCount = value, count
		}
	}

	return best
}

// orderedFiles sorts files by tag track_num when present, falling back to
// filename — the ordering spec §4.7 uses for both title aggregation and
// fast-path duration comparison.
func orderedFiles(files []*model.IngestionFile) []*model.IngestionFile {
	ordered := make([]*model.IngestionFile, len(files))
	copy(ordered, files)

	sort.SliceStable(ordered, func(i, j int) bool {
		ti, oki := trackNumOf(ordered[i])
		tj, okj := trackNumOf(ordered[j])

		if oki && okj && ti != tj {
			return ti < tj
		}

		if oki != okj {
			return oki
		}

		return ordered[i].Filename < ordered[j].Filename
	})

	return ordered
}

func trackNumOf(file *model.IngestionFile) (int64, bool) {
	if file.Tags == nil || file.Tags.TrackNum == 0 {
		return 0, false
	}

	return file.Tags.TrackNum, true
}

func orderedTitles(files []*model.IngestionFile) []string {
	ordered := orderedFiles(files)

	titles := make([]string, 0, len(ordered))

	for _, file := range ordered {
		if file.Tags != nil && file.Tags.Title != "" {
			titles = append(titles, file.Tags.Title)
		}
	}

	return titles
}

func orderedUploadedDurations(files []*model.IngestionFile) []int64 {
	ordered := orderedFiles(files)

	durations := make([]int64, len(ordered))
	for i, file := range ordered {
		if file.Probed != nil {
			durations[i] = file.Probed.DurationMs
		}
	}

	return durations
}

func trackDurations(tracks []catalog.Track) []int64 {
	durations := make([]int64, len(tracks))
	for i, track := range tracks {
		durations[i] = track.DurationMs
	}

	return durations
}

func resolvedDurations(album *search.ResolvedAlbum) []int64 {
	durations := make([]int64, len(album.Tracks))
	for i, track := range album.Tracks {
		durations[i] = track.DurationMs
	}

	return durations
}

func resolvedTitles(album *search.ResolvedAlbum) []string {
	titles := make([]string, len(album.Tracks))
	for i, track := range album.Tracks {
		titles[i] = track.Title
	}

	return titles
}

func resolvedDurationSum(album *search.ResolvedAlbum) int64 {
	var total int64
	for _, track := range album.Tracks {
		total += track.DurationMs
	}

	return total
}

func topCandidateID(ranked []model.AlbumCandidate) string {
	if len(ranked) == 0 {
		return ""
	}

	return ranked[0].AlbumID
}

func topCandidateScore(ranked []model.AlbumCandidate) float64 {
	if len(ranked) == 0 {
		return 0
	}

	return ranked[0].Score
}
