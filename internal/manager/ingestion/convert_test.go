package ingestion_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/model"
)

func TestAdvanceConvertCopiesNoConversionNeededFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	srcPath := filepath.Join(t.TempDir(), "01 track.flac")
	require.NoError(t, os.WriteFile(srcPath, []byte("fake flac bytes"), 0o600))

	job := &model.IngestionJob{
		ID: "job-1", SessionID: "sess-1", MatchedAlbumID: "album-1", TracksMatched: 1,
		Status: model.IngestionStatusConverting, Created: fixedTime(), Updated: fixedTime(),
	}
	require.NoError(t, h.store.CreateJob(ctx, job))

	file := &model.IngestionFile{
		ID: "file-1", JobID: job.ID, Filename: "01 track.flac", TempPath: srcPath,
		MatchedTrackID: "track-1", ConversionReason: model.ConversionNoneNeeded,
	}
	require.NoError(t, h.store.CreateFiles(ctx, []*model.IngestionFile{file}))

	h.catalog.album = &catalog.Album{ID: "album-1", ArtistIDs: []string{"artist-1"}}

	progressed, err := h.mgr.Advance(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, progressed)

	refreshed, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionStatusCompleted, refreshed.Status)
	assert.Equal(t, int64(1), refreshed.TracksConverted)

	refreshedFile, err := h.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, refreshedFile.Converted)
	assert.FileExists(t, refreshedFile.OutputPath)
	assert.Equal(t, refreshedFile.OutputPath, h.catalog.updatedURIs["track-1"])
	assert.Contains(t, h.search.availability, "album-1")
}

func TestAdvanceConvertTranscodesLowBitrateFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	srcPath := filepath.Join(t.TempDir(), "01 track.mp3")
	require.NoError(t, os.WriteFile(srcPath, []byte("fake mp3 bytes"), 0o600))

	job := &model.IngestionJob{
		ID: "job-1", SessionID: "sess-1", MatchedAlbumID: "album-1", TracksMatched: 1,
		Status: model.IngestionStatusConverting, Created: fixedTime(), Updated: fixedTime(),
	}
	require.NoError(t, h.store.CreateJob(ctx, job))

	file := &model.IngestionFile{
		ID: "file-1", JobID: job.ID, Filename: "01 track.mp3", TempPath: srcPath,
		MatchedTrackID: "track-1", ConversionReason: model.ConversionLowBitrateApproved,
	}
	require.NoError(t, h.store.CreateFiles(ctx, []*model.IngestionFile{file}))

	progressed, err := h.mgr.Advance(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, progressed)

	assert.Contains(t, h.prober.transcoded, srcPath)

	refreshedFile, err := h.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, refreshedFile.Converted)
	assert.Equal(t, ".ogg", filepath.Ext(refreshedFile.OutputPath))
}

func TestAdvanceConvertCompletesLinkedQueueItem(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	queueItem := &model.QueueItem{
		ID: uuid.New(), Status: model.QueueStatusInProgress, Priority: model.PriorityUser,
		ContentType: model.ContentTypeAlbum, ContentID: "album-1", RequestedByUserID: "user-1", Created: fixedTime(),
	}
	require.NoError(t, h.queueStore.Enqueue(ctx, queueItem))

	queueItemID := queueItem.ID.String()

	srcPath := filepath.Join(t.TempDir(), "01 track.flac")
	require.NoError(t, os.WriteFile(srcPath, []byte("fake flac bytes"), 0o600))

	job := &model.IngestionJob{
		ID: "job-1", SessionID: "sess-1", MatchedAlbumID: "album-1", TracksMatched: 1,
		ContextKind: model.ContextDownloadRequest, QueueItemID: &queueItemID,
		Status: model.IngestionStatusConverting, Created: fixedTime(), Updated: fixedTime(),
	}
	require.NoError(t, h.store.CreateJob(ctx, job))

	file := &model.IngestionFile{
		ID: "file-1", JobID: job.ID, Filename: "01 track.flac", TempPath: srcPath,
		MatchedTrackID: "track-1", ConversionReason: model.ConversionNoneNeeded,
	}
	require.NoError(t, h.store.CreateFiles(ctx, []*model.IngestionFile{file}))

	progressed, err := h.mgr.Advance(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, progressed)

	refreshedItem, err := h.queueStore.GetByID(ctx, queueItem.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusCompleted, refreshedItem.Status)
}
