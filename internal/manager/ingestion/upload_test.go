package ingestion_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/model"
)

func TestCreateUploadSingleTrack(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	jobs, err := h.mgr.CreateUpload(ctx, "user-1", "track.flac", strings.NewReader("fake flac bytes"), model.ContextManual, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, model.UploadTypeTrack, jobs[0].UploadType)
	assert.Equal(t, model.IngestionStatusPending, jobs[0].Status)

	files, err := h.store.ListFilesByJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.FileExists(t, files[0].TempPath)
}

func TestCreateUploadLinkedToDownloadRequestMarksQueueItemInProgress(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	queueItem := &model.QueueItem{
		ID: uuid.New(), Status: model.QueueStatusPending, Priority: model.PriorityUser,
		ContentType: model.ContentTypeAlbum, ContentID: "album-1", RequestedByUserID: "user-1", Created: fixedTime(),
	}
	require.NoError(t, h.queueStore.Enqueue(ctx, queueItem))

	queueItemID := queueItem.ID.String()

	jobs, err := h.mgr.CreateUpload(ctx, "user-1", "track.flac", strings.NewReader("fake flac bytes"), model.ContextDownloadRequest, &queueItemID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].QueueItemID)
	assert.Equal(t, queueItemID, *jobs[0].QueueItemID)

	refreshed, err := h.queueStore.GetByID(ctx, queueItem.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusInProgress, refreshed.Status)
}
