package download_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/config"
	"github.com/pezzottify/catalog-engine/internal/filestore"
	"github.com/pezzottify/catalog-engine/internal/manager/download"
	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/notify"
	"github.com/pezzottify/catalog-engine/internal/store/queue"
)

func mustUUID() uuid.UUID {
	return uuid.New()
}

func fixedTime() time.Time {
	return time.Date(2026, time.July, 30, 12, 0, 0, 0, time.UTC)
}

// fakeCatalog is a hand-written test double for catalog.Client — the corpus
// favors real httptest servers over generated mocks, but the download
// manager's own unit tests need direct control over per-call errors that an
// httptest handler would make awkward to express.
type fakeCatalog struct {
	album       *catalog.Album
	tracks      []catalog.Track
	artist      *catalog.Artist
	audioBody   string
	audioMIME   string
	imageBody   string
	failTrackID string
}

func (f *fakeCatalog) GetAlbum(context.Context, string) (*catalog.Album, error) {
	return f.album, nil
}

func (f *fakeCatalog) GetAlbumTracks(context.Context, string) ([]catalog.Track, error) {
	return f.tracks, nil
}

func (f *fakeCatalog) GetArtist(context.Context, string) (*catalog.Artist, error) {
	return f.artist, nil
}

func (f *fakeCatalog) DownloadTrackAudio(_ context.Context, id string) (io.ReadCloser, string, error) {
	if id == f.failTrackID {
		return nil, "", errors.New("fake: downloader unavailable")
	}

	return io.NopCloser(strings.NewReader(f.audioBody)), f.audioMIME, nil
}

func (f *fakeCatalog) DownloadImage(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.imageBody)), nil
}

func (f *fakeCatalog) UpdateTrackAudioURI(context.Context, string, string) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxAlbumsPerHour:      1000,
		MaxAlbumsPerDay:       1000,
		UserMaxRequestsPerDay: 2,
		UserMaxQueueSize:      10,
		MaxRetries:            3,
		InitialBackoffSecs:    60,
		MaxBackoffSecs:        600,
		BackoffMultiplier:     2,
		ParsedInitialBackoff:  60 * time.Second,
		ParsedMaxBackoff:      600 * time.Second,
	}
}

func newManager(t *testing.T, cat catalog.Client) (*download.Manager, *queue.Store) {
	t.Helper()

	ctx := context.Background()

	store, err := queue.Open(ctx, filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fileStore := filestore.New(t.TempDir(), t.TempDir(), 0)
	notifier := notify.NewNotifier(notify.NewHub())

	return download.New(store, cat, fileStore, notifier, testConfig()), store
}

func TestRequestAlbumEnqueuesAndReturnsPosition(t *testing.T) {
	t.Parallel()

	mgr, _ := newManager(t, &fakeCatalog{})

	result, err := mgr.RequestAlbum(context.Background(), "user-1", "album-1", "Geogaddi", "Boards of Canada")
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, result.Status)
	assert.Equal(t, int64(1), result.QueuePosition)
}

func TestRequestAlbumRejectsDuplicate(t *testing.T) {
	t.Parallel()

	mgr, _ := newManager(t, &fakeCatalog{})

	_, err := mgr.RequestAlbum(context.Background(), "user-1", "album-1", "Geogaddi", "Boards of Canada")
	require.NoError(t, err)

	_, err = mgr.RequestAlbum(context.Background(), "user-2", "album-1", "Geogaddi", "Boards of Canada")
	require.ErrorIs(t, err, download.ErrDuplicateRequest)
}

func TestRequestAlbumRateLimited(t *testing.T) {
	t.Parallel()

	mgr, _ := newManager(t, &fakeCatalog{})
	ctx := context.Background()

	_, err := mgr.RequestAlbum(ctx, "user-1", "album-1", "A", "X")
	require.NoError(t, err)
	_, err = mgr.RequestAlbum(ctx, "user-1", "album-2", "B", "X")
	require.NoError(t, err)

	_, err = mgr.RequestAlbum(ctx, "user-1", "album-3", "C", "X")
	require.ErrorIs(t, err, download.ErrRateLimited)
}

func TestProcessNextDownloadsTrackAudio(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{audioBody: "fake flac bytes", audioMIME: "audio/flac"}
	mgr, store := newManager(t, cat)
	ctx := context.Background()

	item := &model.QueueItem{
		ID:                mustUUID(),
		Status:            model.QueueStatusPending,
		Priority:          model.PriorityUser,
		ContentType:       model.ContentTypeTrackAudio,
		ContentID:         "track-1",
		RequestedByUserID: "user-1",
		Created:           fixedTime(),
		MaxRetries:        3,
	}
	require.NoError(t, store.Enqueue(ctx, item))

	did, err := mgr.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, did)

	refreshed, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusCompleted, refreshed.Status)
	require.NotNil(t, refreshed.BytesDownloaded)
	assert.Equal(t, int64(len(cat.audioBody)), *refreshed.BytesDownloaded)
}

func TestProcessNextSchedulesRetryOnTransientFailure(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{failTrackID: "track-1"}
	mgr, store := newManager(t, cat)
	ctx := context.Background()

	item := &model.QueueItem{
		ID:                mustUUID(),
		Status:            model.QueueStatusPending,
		Priority:          model.PriorityUser,
		ContentType:       model.ContentTypeTrackAudio,
		ContentID:         "track-1",
		RequestedByUserID: "user-1",
		Created:           fixedTime(),
		MaxRetries:        3,
	}
	require.NoError(t, store.Enqueue(ctx, item))

	did, err := mgr.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, did)

	refreshed, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusRetryWaiting, refreshed.Status)
	assert.Equal(t, int64(1), refreshed.RetryCount)
}

func TestProcessNextGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{failTrackID: "track-1"}
	mgr, store := newManager(t, cat)
	ctx := context.Background()

	item := &model.QueueItem{
		ID:                mustUUID(),
		Status:            model.QueueStatusPending,
		Priority:          model.PriorityUser,
		ContentType:       model.ContentTypeTrackAudio,
		ContentID:         "track-1",
		RequestedByUserID: "user-1",
		Created:           fixedTime(),
		MaxRetries:        0,
	}
	require.NoError(t, store.Enqueue(ctx, item))

	did, err := mgr.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, did)

	refreshed, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, refreshed.Status)
}

func TestDispatchAlbumSpawnsChildrenAndDefersCompletion(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		album: &catalog.Album{
			ID:        "album-1",
			ArtistIDs: []string{"artist-1"},
			Covers:    []catalog.Cover{{ID: "cover-1", Size: "large"}, {ID: "cover-thumb", Size: "thumb"}},
		},
		tracks: []catalog.Track{{ID: "track-1", Title: "1969"}, {ID: "track-2", Title: "Gyroscope"}},
		artist: &catalog.Artist{ID: "artist-1", Name: "Boards of Canada"},
	}
	mgr, store := newManager(t, cat)
	ctx := context.Background()

	result, err := mgr.RequestAlbum(ctx, "user-1", "album-1", "Geogaddi", "Boards of Canada")
	require.NoError(t, err)

	did, err := mgr.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, did)

	parent, err := store.GetByID(ctx, result.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusInProgress, parent.Status, "album item defers completion to its children")

	progress, err := store.GetChildrenProgress(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), progress.Total, "2 tracks + 1 wanted cover, thumb excluded")
}

func TestRetryFailedRequiresFailedStatus(t *testing.T) {
	t.Parallel()

	mgr, store := newManager(t, &fakeCatalog{})
	ctx := context.Background()

	item := &model.QueueItem{
		ID:          mustUUID(),
		Status:      model.QueueStatusPending,
		Priority:    model.PriorityUser,
		ContentType: model.ContentTypeTrackAudio,
		ContentID:   "track-1",
		Created:     fixedTime(),
	}
	require.NoError(t, store.Enqueue(ctx, item))

	err := mgr.RetryFailed(ctx, item.ID)
	require.ErrorIs(t, err, download.ErrNotFailed)
}

func TestTrackAudioWrittenToShardedPath(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{audioBody: "abc", audioMIME: "audio/ogg"}

	ctx := context.Background()

	store, err := queue.Open(ctx, filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mediaRoot := t.TempDir()
	fileStore := filestore.New(t.TempDir(), mediaRoot, 0)
	notifier := notify.NewNotifier(notify.NewHub())
	mgr := download.New(store, cat, fileStore, notifier, testConfig())

	item := &model.QueueItem{
		ID:          mustUUID(),
		Status:      model.QueueStatusPending,
		Priority:    model.PriorityUser,
		ContentType: model.ContentTypeTrackAudio,
		ContentID:   "trackogg",
		Created:     fixedTime(),
		MaxRetries:  3,
	}
	require.NoError(t, store.Enqueue(ctx, item))

	_, err = mgr.ProcessNext(ctx)
	require.NoError(t, err)

	refreshed, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusCompleted, refreshed.Status)

	data, err := os.ReadFile(fileStore.ShardedPath("trackogg", "ogg"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}
