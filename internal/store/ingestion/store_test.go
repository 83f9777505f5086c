package ingestion_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/store/ingestion"
)

func openTestStore(t *testing.T) *ingestion.Store {
	t.Helper()

	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "ingestion.db")

	store, err := ingestion.Open(ctx, path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newJob(userID string) *model.IngestionJob {
	now := time.Now().UTC()

	return &model.IngestionJob{
		ID:         uuid.NewString(),
		SessionID:  uuid.NewString(),
		UserID:     userID,
		UploadType: model.UploadTypeAlbum,
		Status:     model.IngestionStatusPending,
		Created:    now,
		Updated:    now,
	}
}

func TestJobCRUDRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	job := newJob("user-1")
	job.FileCount = 10

	require.NoError(t, store.CreateJob(ctx, job))

	fetched, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.UserID, fetched.UserID)
	assert.Equal(t, model.IngestionStatusPending, fetched.Status)
	assert.Equal(t, int64(10), fetched.FileCount)

	fetched.Status = model.IngestionStatusAnalyzing
	fetched.TracksMatched = 8
	fetched.TracksConverted = 6
	require.NoError(t, store.UpdateJob(ctx, fetched))

	reloaded, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionStatusAnalyzing, reloaded.Status)

	// Invariant 5: tracks_converted <= tracks_matched <= file_count.
	assert.LessOrEqual(t, reloaded.TracksConverted, reloaded.TracksMatched)
	assert.LessOrEqual(t, reloaded.TracksMatched, reloaded.FileCount)

	require.NoError(t, store.DeleteJob(ctx, job.ID))

	_, err = store.GetJob(ctx, job.ID)
	require.ErrorIs(t, err, ingestion.ErrNotFound)
}

func TestListJobsInSession(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	sessionID := uuid.NewString()

	jobA := newJob("user-1")
	jobA.SessionID = sessionID
	jobB := newJob("user-1")
	jobB.SessionID = sessionID

	require.NoError(t, store.CreateJob(ctx, jobA))
	require.NoError(t, store.CreateJob(ctx, jobB))

	jobs, err := store.ListJobsInSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestFileCRUDWithProbeAndTags(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	job := newJob("user-1")
	require.NoError(t, store.CreateJob(ctx, job))

	file := &model.IngestionFile{
		ID:       uuid.NewString(),
		JobID:    job.ID,
		Filename: "01 - Track.flac",
		Size:     1024,
		Probed: &model.ProbeResult{
			DurationMs: 180000,
			Codec:      "flac",
			Bitrate:    900,
			SampleRate: 44100,
		},
		Tags: &model.FileTags{
			Artist:   "Artist",
			Album:    "Album",
			Title:    "Track",
			TrackNum: 1,
		},
		ConversionReason: model.ConversionNoneNeeded,
	}

	require.NoError(t, store.CreateFile(ctx, file))

	fetched, err := store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.Probed)
	require.NotNil(t, fetched.Tags)
	assert.Equal(t, int64(180000), fetched.Probed.DurationMs)
	assert.Equal(t, "Artist", fetched.Tags.Artist)
	assert.Equal(t, model.ConversionNoneNeeded, fetched.ConversionReason)

	fetched.Converted = true
	fetched.OutputPath = "/media/audio/fi/le/file.ogg"
	require.NoError(t, store.UpdateFile(ctx, fetched))

	files, err := store.ListFilesByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].Converted)
}

func TestReviewCreateAndResolve(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	job := newJob("user-1")
	require.NoError(t, store.CreateJob(ctx, job))

	review := &model.ReviewItem{
		ID:       uuid.NewString(),
		JobID:    job.ID,
		Question: "Multiple low-bitrate files detected — convert anyway?",
		Options: []model.ReviewOption{
			{ID: "convert_low_bitrate", Label: "Convert"},
			{ID: "no_match", Label: "Abandon"},
		},
		Created: time.Now().UTC(),
	}

	require.NoError(t, store.CreateReview(ctx, review))

	unresolved, err := store.GetUnresolvedReview(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, unresolved)
	assert.Len(t, unresolved.Options, 2)

	require.NoError(t, store.ResolveReview(ctx, review.ID, "user-1", "convert_low_bitrate"))

	unresolved, err = store.GetUnresolvedReview(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, unresolved)

	resolved, err := store.GetReview(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, "convert_low_bitrate", resolved.SelectedOption)
	assert.NotNil(t, resolved.ResolvedAt)
}

func TestReasoningLogAppendOnly(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	job := newJob("user-1")
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, store.AppendReasoning(ctx, job.ID, "identify_album", "top candidate scored 0.91"))
	require.NoError(t, store.AppendReasoning(ctx, job.ID, "map_tracks", "matched 8/10 by exact disc/track"))

	entries, err := store.GetReasoning(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "identify_album", entries[0].Stage)
	assert.Equal(t, "map_tracks", entries[1].Stage)
}
