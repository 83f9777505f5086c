package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pezzottify/catalog-engine/internal/logger"
	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/notify"
)

// fail centralizes the single-attempt-per-stage failure path of spec §4.7:
// unlike the download manager there is no retry/backoff — a stage either
// completes, moves the job to AwaitingReview, or fails the job outright.
// Every exit path cleans up the job's scratch directory and notifies the
// uploader; a linked DownloadRequest queue item is failed alongside it.
func (m *Manager) fail(ctx context.Context, job *model.IngestionJob, reason string) error {
	logger.Errorf(ctx, "ingestion: job %s failed: %s", job.ID, reason)

	now := m.clock()
	job.Status = model.IngestionStatusFailed
	job.ErrorMessage = reason
	job.Completed = &now

	if err := m.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	if err := m.store.AppendReasoning(ctx, job.ID, "failed", reason); err != nil {
		return err
	}

	if job.ContextKind == model.ContextDownloadRequest && job.QueueItemID != nil {
		if err := m.failLinkedQueueItem(ctx, *job.QueueItemID, reason); err != nil {
			return err
		}
	}

	if job.UserID != "" {
		m.notifier.NotifyFailed(ctx, job.UserID, job.ID, reason)
	}

	return m.filestore.CleanupJob(job.ID)
}

func (m *Manager) failLinkedQueueItem(ctx context.Context, queueItemID, reason string) error {
	id, err := uuid.Parse(queueItemID)
	if err != nil {
		return fmt.Errorf("ingestion: parse linked queue item id %s: %w", queueItemID, err)
	}

	return m.queueStore.MarkFailed(ctx, id, model.ErrorKindUnknown, reason)
}

// durationReviewStage tags the reasoning-log entry written when a
// duration-mismatch review is resolved with "continue" — its presence lets
// a re-run of MapTracks skip asking the same question twice (spec §4.7:
// "re-run suppresses duration review second time").
const durationReviewStage = "duration_review"

// durationReviewResolvedDetail is the fixed detail string written alongside
// durationReviewStage so hasResolvedDurationReview can recognize it.
const durationReviewResolvedDetail = "resolved_continue"

func (m *Manager) hasResolvedDurationReview(ctx context.Context, jobID string) (bool, error) {
	entries, err := m.store.GetReasoning(ctx, jobID)
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		if entry.Stage == durationReviewStage && entry.Detail == durationReviewResolvedDetail {
			return true, nil
		}
	}

	return false, nil
}

// requireReview transitions a job to AwaitingReview with a freshly created
// ReviewItem, after confirming no unresolved review already exists for it.
func (m *Manager) requireReview(
	ctx context.Context,
	job *model.IngestionJob,
	question string,
	options []model.ReviewOption,
) error {
	existing, err := m.store.GetUnresolvedReview(ctx, job.ID)
	if err != nil {
		return err
	}

	if existing != nil {
		return nil
	}

	review := &model.ReviewItem{
		ID:       uuid.NewString(),
		JobID:    job.ID,
		Question: question,
		Options:  options,
		Created:  m.clock(),
	}

	if err := m.store.CreateReview(ctx, review); err != nil {
		return err
	}

	job.Status = model.IngestionStatusAwaitingReview

	if err := m.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	if job.UserID != "" {
		m.notifier.NotifyReviewNeeded(ctx, job.UserID, job.ID, question, reviewOptionPayloads(options))
	}

	return nil
}

func reviewOptionPayloads(options []model.ReviewOption) []notify.ReviewOptionPayload {
	payloads := make([]notify.ReviewOptionPayload, len(options))
	for i, option := range options {
		payloads[i] = notify.ReviewOptionPayload{ID: option.ID, Label: option.Label, Description: option.Description}
	}

	return payloads
}
