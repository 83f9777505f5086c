// Package download implements the download queue processor (C6): the
// request/admin/processing surfaces described in spec §4.6, layered over
// the persistent queue store (C4), the external downloader client, the
// sharded file handler (C3), and the WebSocket notifier (C9).
package download

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/config"
	"github.com/pezzottify/catalog-engine/internal/filestore"
	"github.com/pezzottify/catalog-engine/internal/logger"
	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/notify"
	"github.com/pezzottify/catalog-engine/internal/store/queue"
)

// imageSizesWanted are the cover/portrait sizes the processing loop expands
// into AlbumImage/ArtistImage children; thumbnails are never fetched.
var imageSizesWanted = map[string]struct{}{ //nolint:gochecknoglobals // Fixed allowlist from spec §4.6.
	"medium": {},
	"large":  {},
}

// Manager is the download queue processor.
type Manager struct {
	store     *queue.Store
	catalog   catalog.Client
	filestore *filestore.Store
	notifier  *notify.Notifier
	cfg       *config.Config
	errors    *errorHandler

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New builds a Manager wired to the given collaborators.
func New(
	store *queue.Store,
	catalogClient catalog.Client,
	fileStore *filestore.Store,
	notifier *notify.Notifier,
	cfg *config.Config,
) *Manager {
	mgr := &Manager{
		store:     store,
		catalog:   catalogClient,
		filestore: fileStore,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
	mgr.errors = newErrorHandler(mgr)

	return mgr
}

func (m *Manager) clock() time.Time {
	return m.now()
}

// RequestResult is the synchronous reply to a user's album download request.
type RequestResult struct {
	RequestID     uuid.UUID
	Status        model.QueueStatus
	QueuePosition int64
}

// RequestAlbum runs the request path of spec §4.6: rate limit, duplicate
// guard, enqueue at User priority, admission bookkeeping.
func (m *Manager) RequestAlbum(ctx context.Context, userID, albumID, albumName, artistName string) (*RequestResult, error) {
	stats, err := m.store.GetUserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("download: check user limits: %w", err)
	}

	if stats.RequestsToday >= m.cfg.UserMaxRequestsPerDay || stats.InQueue >= m.cfg.UserMaxQueueSize {
		return nil, ErrRateLimited
	}

	inQueue, err := m.store.IsInActiveQueue(ctx, model.ContentTypeAlbum, albumID)
	if err != nil {
		return nil, fmt.Errorf("download: duplicate guard: %w", err)
	}

	if inQueue {
		return nil, ErrDuplicateRequest
	}

	now := m.clock()
	item := &model.QueueItem{
		ID:                uuid.New(),
		Status:            model.QueueStatusPending,
		Priority:          model.PriorityUser,
		ContentType:       model.ContentTypeAlbum,
		ContentID:         albumID,
		ContentName:       albumName,
		ArtistName:        artistName,
		RequestSource:     model.RequestSourceUser,
		RequestedByUserID: userID,
		Created:           now,
		MaxRetries:        m.cfg.MaxRetries,
	}

	if err := m.store.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("download: enqueue: %w", err)
	}

	if err := m.store.IncrementUserRequests(ctx, userID); err != nil {
		return nil, fmt.Errorf("download: increment user requests: %w", err)
	}

	position, err := m.store.CountEarlierPending(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("download: queue position: %w", err)
	}

	return &RequestResult{RequestID: item.ID, Status: model.QueueStatusPending, QueuePosition: position + 1}, nil
}

// CheckGlobalCapacity reports whether the hourly or daily completion cap has
// been reached, in which case the processing loop must idle this tick.
func (m *Manager) CheckGlobalCapacity(ctx context.Context) (bool, error) {
	hourly, err := m.store.GetHourlyCounts(ctx)
	if err != nil {
		return false, fmt.Errorf("download: hourly counts: %w", err)
	}

	if hourly.CompletedCount >= m.cfg.MaxAlbumsPerHour {
		return true, nil
	}

	daily, err := m.store.GetDailyCounts(ctx)
	if err != nil {
		return false, fmt.Errorf("download: daily counts: %w", err)
	}

	return daily.CompletedCount >= m.cfg.MaxAlbumsPerDay, nil
}

// ProcessNext runs one iteration of the processing loop: claims the highest
// priority Pending item (if any, and if under the global cap) and dispatches
// it by content type. It returns false when there was nothing to do this
// tick — at capacity, no pending item, or lost the claim race.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	atCapacity, err := m.CheckGlobalCapacity(ctx)
	if err != nil {
		return false, err
	}

	if atCapacity {
		return false, nil
	}

	item, err := m.store.GetNextPending(ctx)
	if err != nil {
		return false, fmt.Errorf("download: get next pending: %w", err)
	}

	if item == nil {
		return false, nil
	}

	claimed, err := m.store.ClaimForProcessing(ctx, item.ID)
	if err != nil {
		return false, fmt.Errorf("download: claim: %w", err)
	}

	if !claimed {
		return false, nil
	}

	if err := m.store.LogAudit(ctx, item.ID, model.AuditDownloadStarted, ""); err != nil {
		return false, err
	}

	started := m.clock()

	if err := m.dispatch(ctx, item, started); err != nil {
		return true, m.errors.handle(ctx, item, errorContext{
			contentType: item.ContentType,
			contentID:   item.ContentID,
			phase:       "dispatch",
		}, err)
	}

	return true, nil
}

func (m *Manager) dispatch(ctx context.Context, item *model.QueueItem, started time.Time) error {
	switch item.ContentType {
	case model.ContentTypeAlbum:
		return m.dispatchAlbum(ctx, item)
	case model.ContentTypeTrackAudio:
		return m.dispatchTrackAudio(ctx, item, started)
	case model.ContentTypeAlbumImage, model.ContentTypeArtistImage:
		return m.dispatchImage(ctx, item, started)
	default:
		return fmt.Errorf("download: unknown content type %s", item.ContentType)
	}
}

func (m *Manager) succeed(ctx context.Context, item *model.QueueItem, bytesDownloaded int64, started time.Time) error {
	duration := m.clock().Sub(started).Milliseconds()

	if err := m.store.MarkCompleted(ctx, item.ID, bytesDownloaded, duration); err != nil {
		return err
	}

	if err := m.store.RecordActivity(ctx, item.ContentType, bytesDownloaded, true); err != nil {
		return err
	}

	if err := m.store.DecrementUserQueue(ctx, item.RequestedByUserID); err != nil {
		return err
	}

	if item.ParentID != nil {
		if err := m.checkAndCompleteParent(ctx, *item.ParentID); err != nil {
			return err
		}
	}

	logger.Infof(ctx, "download: completed %s %s (%d bytes)", item.ContentType, item.ContentID, bytesDownloaded)

	return nil
}

// checkAndCompleteParent implements spec §4.6's parent aggregation: once a
// parent's children have all resolved, roll the parent itself to Completed
// or Failed and release the owning user's queue slot.
func (m *Manager) checkAndCompleteParent(ctx context.Context, parentID uuid.UUID) error {
	status, decided, err := m.store.CheckParentCompletion(ctx, parentID)
	if err != nil {
		return fmt.Errorf("download: check parent completion: %w", err)
	}

	if !decided {
		return nil
	}

	parent, err := m.store.GetByID(ctx, parentID)
	if err != nil {
		return fmt.Errorf("download: get parent: %w", err)
	}

	switch status {
	case model.QueueStatusCompleted:
		return m.completeParent(ctx, parent)
	case model.QueueStatusFailed:
		return m.failParent(ctx, parent)
	default:
		return nil
	}
}

func (m *Manager) completeParent(ctx context.Context, parent *model.QueueItem) error {
	total, err := m.store.SumChildrenBytes(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("download: sum children bytes: %w", err)
	}

	if err := m.store.MarkCompleted(ctx, parent.ID, total, 0); err != nil {
		return err
	}

	if err := m.store.DecrementUserQueue(ctx, parent.RequestedByUserID); err != nil {
		return err
	}

	if parent.RequestedByUserID != "" {
		m.notifier.NotifyDownloadCompleted(ctx, parent.RequestedByUserID, parent.ID.String(),
			parent.ContentName, parent.ArtistName, true)
	}

	return nil
}

func (m *Manager) failParent(ctx context.Context, parent *model.QueueItem) error {
	failed, total, err := m.store.ChildrenFailedCount(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("download: children failed count: %w", err)
	}

	message := fmt.Sprintf("%d/%d children failed", failed, total)

	if err := m.store.MarkFailed(ctx, parent.ID, model.ErrorKindUnknown, message); err != nil {
		return err
	}

	if err := m.store.DecrementUserQueue(ctx, parent.RequestedByUserID); err != nil {
		return err
	}

	if parent.RequestedByUserID != "" {
		m.notifier.NotifyFailed(ctx, parent.RequestedByUserID, parent.ID.String(), message)
	}

	return nil
}

// RetryFailed is the admin operation of the same name: it requires the
// target to be Failed, resets it to Pending with a fresh retry budget, and
// logs AdminRetry.
func (m *Manager) RetryFailed(ctx context.Context, requestID uuid.UUID) error {
	item, err := m.store.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	if item.Status != model.QueueStatusFailed {
		return ErrNotFailed
	}

	reset, err := m.store.ResetFailedToPending(ctx, requestID)
	if err != nil {
		return err
	}

	if !reset {
		return ErrNotFailed
	}

	return nil
}

// GetFailedItems is a read-only passthrough (spec §4.6 admin surface).
func (m *Manager) GetFailedItems(ctx context.Context) ([]*model.QueueItem, error) {
	return m.store.GetFailedItems(ctx)
}

// GetQueueStats is a read-only passthrough.
func (m *Manager) GetQueueStats(ctx context.Context) (queue.QueueStats, error) {
	return m.store.GetQueueStats(ctx)
}

// GetActivity is a read-only passthrough.
func (m *Manager) GetActivity(ctx context.Context, sinceHours int64) ([]queue.ActivityRecord, error) {
	return m.store.GetActivity(ctx, sinceHours)
}

// GetAuditEntries is a read-only passthrough.
func (m *Manager) GetAuditEntries(ctx context.Context, requestID uuid.UUID) ([]*model.AuditEntry, error) {
	return m.store.GetAuditEntries(ctx, requestID)
}
