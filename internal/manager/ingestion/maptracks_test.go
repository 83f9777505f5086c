package ingestion_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/model"
)

func TestAdvanceMapTracksExactMatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	job := &model.IngestionJob{
		ID: "job-1", SessionID: "sess-1", MatchedAlbumID: "album-1",
		Status: model.IngestionStatusMappingTracks, Created: fixedTime(), Updated: fixedTime(),
	}
	require.NoError(t, h.store.CreateJob(ctx, job))

	file := &model.IngestionFile{
		ID: "file-1", JobID: job.ID, Filename: "01 track.flac",
		Probed: &model.ProbeResult{DurationMs: 180_000},
		Tags:   &model.FileTags{DiscNum: 1, TrackNum: 1},
	}
	require.NoError(t, h.store.CreateFiles(ctx, []*model.IngestionFile{file}))

	h.catalog.tracks = []catalog.Track{{ID: "track-1", DiscNum: 1, TrackNum: 1, DurationMs: 180_000, Title: "Ready Lets Go"}}

	progressed, err := h.mgr.Advance(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, progressed)

	refreshed, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionStatusConverting, refreshed.Status)
	assert.Equal(t, int64(1), refreshed.TracksMatched)

	refreshedFile, err := h.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "track-1", refreshedFile.MatchedTrackID)
	assert.InDelta(t, 1.0, refreshedFile.MatchConfidence, 0.001)
}

func TestAdvanceMapTracksDurationMismatchRaisesReview(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	job := &model.IngestionJob{
		ID: "job-1", SessionID: "sess-1", MatchedAlbumID: "album-1",
		Status: model.IngestionStatusMappingTracks, Created: fixedTime(), Updated: fixedTime(),
	}
	require.NoError(t, h.store.CreateJob(ctx, job))

	srcPath := filepath.Join(t.TempDir(), "01 track.flac")
	require.NoError(t, os.WriteFile(srcPath, []byte("fake flac bytes"), 0o600))

	file := &model.IngestionFile{
		ID: "file-1", JobID: job.ID, Filename: "01 track.flac", TempPath: srcPath,
		Probed: &model.ProbeResult{DurationMs: 120_000},
		Tags:   &model.FileTags{DiscNum: 1, TrackNum: 1},
	}
	require.NoError(t, h.store.CreateFiles(ctx, []*model.IngestionFile{file}))

	h.catalog.tracks = []catalog.Track{{ID: "track-1", DiscNum: 1, TrackNum: 1, DurationMs: 180_000, Title: "Ready Lets Go"}}

	progressed, err := h.mgr.Advance(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, progressed)

	refreshed, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionStatusAwaitingReview, refreshed.Status)

	// The pairing was already persisted before the review was raised: the
	// file is matched to track-1 even though the job is paused.
	refreshedFile, err := h.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "track-1", refreshedFile.MatchedTrackID)

	review, err := h.store.GetUnresolvedReview(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, review)

	require.NoError(t, h.mgr.ResolveReview(ctx, job.ID, "user-1", "continue"))

	refreshed, err = h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionStatusConverting, refreshed.Status, "continue skips straight to Converting, no re-mapping")

	progressed, err = h.mgr.Advance(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, progressed)

	refreshed, err = h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionStatusCompleted, refreshed.Status)
}

func TestAdvanceMapTracksZeroMatchesFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	job := &model.IngestionJob{
		ID: "job-1", SessionID: "sess-1", MatchedAlbumID: "album-1",
		Status: model.IngestionStatusMappingTracks, Created: fixedTime(), Updated: fixedTime(),
	}
	require.NoError(t, h.store.CreateJob(ctx, job))

	file := &model.IngestionFile{
		ID: "file-1", JobID: job.ID, Filename: "unrelated.flac",
	}
	require.NoError(t, h.store.CreateFiles(ctx, []*model.IngestionFile{file}))

	h.catalog.tracks = []catalog.Track{{ID: "track-1", DiscNum: 1, TrackNum: 1, DurationMs: 180_000, Title: "Ready Lets Go"}}

	progressed, err := h.mgr.Advance(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, progressed)

	refreshed, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionStatusFailed, refreshed.Status)
}
