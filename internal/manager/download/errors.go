package download

import (
	"context"
	"errors"

	"github.com/pezzottify/catalog-engine/internal/logger"
	"github.com/pezzottify/catalog-engine/internal/model"
)

// ErrRateLimited is returned by RequestAlbum when the user has exceeded
// their daily request cap or in-queue cap.
var ErrRateLimited = errors.New("download: user rate limit exceeded")

// ErrDuplicateRequest is returned by RequestAlbum when the album already has
// a non-terminal queue item.
var ErrDuplicateRequest = errors.New("download: album already in queue")

// ErrNotFailed is returned by RetryFailed when the target item is not
// currently in the Failed state.
var ErrNotFailed = errors.New("download: item is not in Failed status")

// errorContext carries the bookkeeping a failure handler needs without
// threading every field through each call site individually.
type errorContext struct {
	contentType model.ContentType
	contentID   string
	phase       string
}

// errorHandler centralizes logging and audit/activity recording for
// processing-loop failures, mirroring the teacher's phase-tagged
// handle-and-record idiom but driving the queue store's retry/fail
// transitions instead of in-memory counters.
type errorHandler struct {
	mgr *Manager
}

func newErrorHandler(mgr *Manager) *errorHandler {
	return &errorHandler{mgr: mgr}
}

// handle applies the retry policy to a processing failure: it logs unless
// the error is a plain context cancellation, then either schedules a retry
// or gives the item up as Failed. Only giving up records activity,
// decrements the owning user's queue footprint and notifies the requester.
func (h *errorHandler) handle(ctx context.Context, item *model.QueueItem, errCtx errorContext, cause error) error {
	if !errors.Is(cause, context.Canceled) {
		logger.Errorf(ctx, "download: %s failed for %s %s: %v",
			errCtx.phase, errCtx.contentType, errCtx.contentID, cause)
	}

	kind := classifyError(cause)

	if shouldRetry(item.MaxRetries, item.RetryCount, kind) {
		return h.scheduleRetry(ctx, item, kind, cause)
	}

	return h.giveUp(ctx, item, kind, cause)
}

func (h *errorHandler) scheduleRetry(ctx context.Context, item *model.QueueItem, kind model.ErrorKind, cause error) error {
	nextRetryAt := h.mgr.clock().Add(computeBackoff(h.mgr.cfg, item.RetryCount))

	if err := h.mgr.store.MarkRetryWaiting(ctx, item.ID, nextRetryAt, kind, cause.Error()); err != nil {
		return err
	}

	logger.Infof(ctx, "download: %s retry %d scheduled for %s at %s",
		item.ContentType, item.RetryCount+1, item.ID, nextRetryAt)

	return nil
}

func (h *errorHandler) giveUp(ctx context.Context, item *model.QueueItem, kind model.ErrorKind, cause error) error {
	if err := h.mgr.store.MarkFailed(ctx, item.ID, kind, cause.Error()); err != nil {
		return err
	}

	if err := h.mgr.store.RecordActivity(ctx, item.ContentType, 0, false); err != nil {
		return err
	}

	if err := h.mgr.store.DecrementUserQueue(ctx, item.RequestedByUserID); err != nil {
		return err
	}

	if item.RequestedByUserID != "" {
		h.mgr.notifier.NotifyFailed(ctx, item.RequestedByUserID, item.ID.String(), cause.Error())
	}

	return nil
}

// classifyError maps a processing-loop error to the queue error taxonomy
// (spec §7). Callers that already know the kind (e.g. a 4xx "not found"
// from the downloader) should wrap with a *permanentError instead of
// relying on this fallback classification.
func classifyError(err error) model.ErrorKind {
	var perm *permanentError
	if errors.As(err, &perm) {
		return model.ErrorKindPermanent
	}

	var store *storageError
	if errors.As(err, &store) {
		return model.ErrorKindStorage
	}

	return model.ErrorKindConnection
}

// permanentError marks a failure the downloader reports as missing or
// malformed content — never retried.
type permanentError struct {
	cause error
}

func (e *permanentError) Error() string { return e.cause.Error() }
func (e *permanentError) Unwrap() error { return e.cause }

func newPermanentError(err error) error {
	return &permanentError{cause: err}
}

// storageError marks a local I/O failure writing media or updating the queue.
type storageError struct {
	cause error
}

func (e *storageError) Error() string { return e.cause.Error() }
func (e *storageError) Unwrap() error { return e.cause }

func newStorageError(err error) error {
	return &storageError{cause: err}
}

// shouldRetry implements the spec §4.6 retry predicate.
func shouldRetry(maxRetries, retryCount int64, kind model.ErrorKind) bool {
	return retryCount < maxRetries && kind != model.ErrorKindPermanent
}
