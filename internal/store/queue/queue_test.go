package queue_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/store/queue"
)

func openTestStore(t *testing.T) *queue.Store {
	t.Helper()

	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "queue.db")

	store, err := queue.Open(ctx, path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newItem(contentType model.ContentType, contentID, userID string) *model.QueueItem {
	return &model.QueueItem{
		ID:                uuid.New(),
		Status:            model.QueueStatusPending,
		Priority:          model.PriorityUser,
		ContentType:       contentType,
		ContentID:         contentID,
		RequestSource:     model.RequestSourceUser,
		RequestedByUserID: userID,
		Created:           time.Now().UTC(),
		MaxRetries:        3,
	}
}

// TestClaimForProcessingMutualExclusion is invariant 2: across concurrent
// callers for the same id, at most one ClaimForProcessing returns true.
func TestClaimForProcessingMutualExclusion(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	item := newItem(model.ContentTypeTrackAudio, "track-1", "user-1")
	require.NoError(t, store.Enqueue(ctx, item))

	const callers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)

	wg.Add(callers)

	for range callers {
		go func() {
			defer wg.Done()

			ok, err := store.ClaimForProcessing(ctx, item.ID)
			require.NoError(t, err)

			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, claimed)
}

// TestIsInActiveQueueDuplicateGuard is invariant 3: IsInActiveQueue reports
// true once an item for the same content is non-terminal, guarding the
// download manager's request path against duplicate enqueues (E2).
func TestIsInActiveQueueDuplicateGuard(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	inQueue, err := store.IsInActiveQueue(ctx, model.ContentTypeAlbum, "album-1")
	require.NoError(t, err)
	assert.False(t, inQueue)

	item := newItem(model.ContentTypeAlbum, "album-1", "user-1")
	require.NoError(t, store.Enqueue(ctx, item))

	inQueue, err = store.IsInActiveQueue(ctx, model.ContentTypeAlbum, "album-1")
	require.NoError(t, err)
	assert.True(t, inQueue)

	require.NoError(t, store.MarkCompleted(ctx, item.ID, 1024, 500))

	inQueue, err = store.IsInActiveQueue(ctx, model.ContentTypeAlbum, "album-1")
	require.NoError(t, err)
	assert.False(t, inQueue, "a completed item no longer guards against re-enqueue")
}

// TestAuditTrailConsistency is invariant 1: a completed item's audit trail
// ends with DownloadCompleted, and each retry transition is preceded by
// RetryScheduled.
func TestAuditTrailConsistency(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	item := newItem(model.ContentTypeTrackAudio, "track-1", "user-1")
	require.NoError(t, store.Enqueue(ctx, item))

	ok, err := store.ClaimForProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.MarkRetryWaiting(ctx, item.ID, time.Now().Add(time.Minute), model.ErrorKindConnection, "timed out"))

	promoted, err := store.PromoteRetryToPending(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, promoted)

	ok, err = store.ClaimForProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.MarkCompleted(ctx, item.ID, 2048, 750))

	entries, err := store.GetAuditEntries(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, model.AuditRequestCreated, entries[0].Kind)
	assert.Equal(t, model.AuditRetryScheduled, entries[1].Kind)
	assert.Equal(t, model.AuditDownloadCompleted, entries[2].Kind)
}

// TestRetryBackoffSequence is scenario E3: a failing item transitions
// Pending -> InProgress -> RetryWaiting -> ... -> Failed on the retry_count-th
// give-up, with MaxRetries enforced by the caller (the download manager),
// not the store — the store only records whatever the caller decides.
func TestRetryBackoffSequence(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	item := newItem(model.ContentTypeTrackAudio, "track-1", "user-1")
	item.MaxRetries = 3
	require.NoError(t, store.Enqueue(ctx, item))

	backoff := time.Second

	for range 3 {
		ok, err := store.ClaimForProcessing(ctx, item.ID)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, store.MarkRetryWaiting(ctx, item.ID, time.Now().Add(backoff), model.ErrorKindConnection, "fail"))
		backoff *= 2

		promoted, err := store.PromoteRetryToPending(ctx, item.ID)
		require.NoError(t, err)
		require.True(t, promoted)
	}

	ok, err := store.ClaimForProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.MarkFailed(ctx, item.ID, model.ErrorKindConnection, "gave up"))

	final, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, final.Status)
	assert.Equal(t, int64(3), final.RetryCount)
}

// TestParentAggregationExactlyOnce is invariant 9: a parent transitions to
// Completed exactly once, evaluated only after the last child finishes.
func TestParentAggregationExactlyOnce(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	parent := newItem(model.ContentTypeAlbum, "album-1", "user-1")
	require.NoError(t, store.Enqueue(ctx, parent))

	children := make([]*model.QueueItem, 3)

	for i := range children {
		child := newItem(model.ContentTypeTrackAudio, "track", "user-1")
		child.ParentID = &parent.ID
		children[i] = child
		require.NoError(t, store.Enqueue(ctx, child))
	}

	for i, child := range children {
		status, done, err := store.CheckParentCompletion(ctx, parent.ID)
		require.NoError(t, err)
		assert.False(t, done, "not done until the last child completes")

		ok, err := store.ClaimForProcessing(ctx, child.ID)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, store.MarkCompleted(ctx, child.ID, 100, 10))

		status, done, err = store.CheckParentCompletion(ctx, parent.ID)
		require.NoError(t, err)

		if i == len(children)-1 {
			assert.True(t, done)
			assert.Equal(t, model.QueueStatusCompleted, status)
		} else {
			assert.False(t, done)
		}
	}

	bytes, err := store.SumChildrenBytes(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), bytes)
}

// TestUserRateLimitCounting is scenario E1: counting helpers the download
// manager uses to enforce user_max_requests_per_day.
func TestUserRateLimitCounting(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	const userID = "user-1"

	for range 2 {
		require.NoError(t, store.IncrementUserRequests(ctx, userID))
	}

	stats, err := store.GetUserStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.RequestsToday)
}

func TestReclaimStaleInProgress(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	item := newItem(model.ContentTypeTrackAudio, "track-1", "user-1")
	require.NoError(t, store.Enqueue(ctx, item))

	ok, err := store.ClaimForProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)

	reclaimed, err := store.ReclaimStaleInProgress(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	final, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, final.Status)
}
