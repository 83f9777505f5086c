package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pezzottify/catalog-engine/internal/model"
)

// ErrNoUnresolvedReview is returned by ResolveReview when the job has no
// pending review to answer.
var ErrNoUnresolvedReview = errors.New("ingestion: no unresolved review for job")

const albumOptionPrefix = "album:"

// ResolveReview answers a job's pending ReviewItem and dispatches the job
// onward per spec §4.7's resolution table. The "continue",
// "confirm_this_album" and "album:<id>" branches record the
// duration-review-suppression marker; the other branches leave it untouched.
func (m *Manager) ResolveReview(ctx context.Context, jobID, userID, selected string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	review, err := m.store.GetUnresolvedReview(ctx, jobID)
	if err != nil {
		return err
	}

	if review == nil {
		return fmt.Errorf("%w: %s", ErrNoUnresolvedReview, jobID)
	}

	if err := m.store.ResolveReview(ctx, review.ID, userID, selected); err != nil {
		return err
	}

	switch {
	case selected == "no_match" || selected == "reject":
		return m.fail(ctx, job, "reviewer rejected the match")
	case selected == "continue":
		return m.resolveDurationContinue(ctx, job)
	case selected == "convert_low_bitrate":
		return m.resolveConvertLowBitrate(ctx, job)
	case selected == "retry":
		job.Status = model.IngestionStatusIdentifyingAlbum

		return m.store.UpdateJob(ctx, job)
	case selected == "confirm_this_album":
		return m.resolveConfirmAlbum(ctx, job)
	case strings.HasPrefix(selected, albumOptionPrefix):
		return m.resolveAlbumOption(ctx, job, strings.TrimPrefix(selected, albumOptionPrefix))
	default:
		return fmt.Errorf("ingestion: unrecognized review option %q", selected)
	}
}

// resolveDurationContinue handles the MapTracks duration-mismatch review.
// The track pairing was already persisted before the review was raised, so
// accepting the mismatch goes straight to Converting — spec §4.7: "continue
// → skip directly to Converting". The suppression marker is still recorded
// so any later re-run of MapTracks (e.g. after a "retry") won't ask again.
func (m *Manager) resolveDurationContinue(ctx context.Context, job *model.IngestionJob) error {
	if err := m.store.AppendReasoning(ctx, job.ID, durationReviewStage, durationReviewResolvedDetail); err != nil {
		return err
	}

	job.Status = model.IngestionStatusConverting

	return m.store.UpdateJob(ctx, job)
}

// resolveConvertLowBitrate promotes every file still pending low-bitrate
// confirmation to approved, then restarts identification.
func (m *Manager) resolveConvertLowBitrate(ctx context.Context, job *model.IngestionJob) error {
	files, err := m.store.ListFilesByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.ConversionReason != model.ConversionLowBitratePendingConfirmation {
			continue
		}

		file.ConversionReason = model.ConversionLowBitrateApproved

		if err := m.store.UpdateFile(ctx, file); err != nil {
			return err
		}
	}

	job.Status = model.IngestionStatusIdentifyingAlbum

	return m.store.UpdateJob(ctx, job)
}

// resolveConfirmAlbum accepts the fast-path candidate a human confirmed:
// job.MatchedAlbumID was set tentatively when the review was raised.
func (m *Manager) resolveConfirmAlbum(ctx context.Context, job *model.IngestionJob) error {
	job.MatchConfidence = 1.0
	job.MatchSource = model.MatchSourceHumanReview
	job.TicketType = model.TicketSuccess
	job.Status = model.IngestionStatusMappingTracks

	// A human already confirmed this album end-to-end; the mapping pass
	// that follows shouldn't re-litigate duration agreement.
	if err := m.store.AppendReasoning(ctx, job.ID, durationReviewStage, durationReviewResolvedDetail); err != nil {
		return err
	}

	return m.store.UpdateJob(ctx, job)
}

// resolveAlbumOption accepts a human-picked general-path candidate.
func (m *Manager) resolveAlbumOption(ctx context.Context, job *model.IngestionJob, albumID string) error {
	job.MatchedAlbumID = albumID
	job.MatchConfidence = 1.0
	job.MatchSource = model.MatchSourceHumanReview
	job.TicketType = model.TicketSuccess
	job.Status = model.IngestionStatusMappingTracks

	if err := m.store.AppendReasoning(ctx, job.ID, durationReviewStage, durationReviewResolvedDetail); err != nil {
		return err
	}

	return m.store.UpdateJob(ctx, job)
}
