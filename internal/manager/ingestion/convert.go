package ingestion

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pezzottify/catalog-engine/internal/logger"
	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/probe"
)

// convertedExtension is the sharded output extension for any file that
// needed transcoding, per spec §4.7's "produce OGG Vorbis" instruction.
const convertedExtension = "ogg"

// convert runs the Convert stage: copy or transcode every matched file to
// its sharded output path, push the new audio_uri to the catalog, then —
// once every file is processed — recompute availability, complete any
// linked queue items, notify, and clean up the job's scratch directory.
func (m *Manager) convert(ctx context.Context, job *model.IngestionJob) error {
	files, err := m.store.ListFilesByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	var converted int64

	for _, file := range files {
		if file.MatchedTrackID == "" || file.Converted {
			continue
		}

		if err := m.convertFile(ctx, job, file); err != nil {
			return m.fail(ctx, job, fmt.Sprintf("converting %s: %v", file.Filename, err))
		}

		if err := m.store.UpdateFile(ctx, file); err != nil {
			return err
		}

		converted++

		if job.UserID != "" {
			percent := float64(converted) / float64(job.TracksMatched) * 100 //nolint:mnd // Percentage scale.
			m.notifier.NotifyProgress(ctx, job.UserID, job.ID, "convert", percent, int(converted))
		}
	}

	job.TracksConverted = converted

	return m.finishJob(ctx, job)
}

// convertFile copies a NoConversionNeeded file as-is or transcodes every
// other conversion reason to OGG Vorbis at the sharded output path, then
// pushes the new location to the catalog.
func (m *Manager) convertFile(ctx context.Context, job *model.IngestionJob, file *model.IngestionFile) error {
	ext := convertedExtension
	if file.ConversionReason == model.ConversionNoneNeeded {
		ext = strings.TrimPrefix(filepath.Ext(file.Filename), ".")
	}

	destPath, err := m.filestore.EnsureShardedDir(file.MatchedTrackID, ext)
	if err != nil {
		return fmt.Errorf("create sharded output dir: %w", err)
	}

	if file.ConversionReason == model.ConversionNoneNeeded {
		if err := copyFile(file.TempPath, destPath); err != nil {
			return fmt.Errorf("copy to output path: %w", err)
		}

		// The source container keeps its own codec; refresh its tags to the
		// catalog-resolved names rather than whatever the uploader's file
		// carried. Best-effort: a tag-write failure doesn't fail the job,
		// since the audio itself converted successfully.
		if err := probe.WriteTags(m.buildTagRequest(ctx, job, file, destPath)); err != nil {
			logErr(ctx, "write tags for %s: %v", destPath, err)
		}
	} else if err := m.prober.Transcode(ctx, file.TempPath, destPath, m.cfg.TargetBitrate); err != nil {
		return fmt.Errorf("transcode to output path: %w", err)
	}

	if err := m.catalog.UpdateTrackAudioURI(ctx, file.MatchedTrackID, destPath); err != nil {
		return fmt.Errorf("update catalog audio uri: %w", err)
	}

	file.OutputPath = destPath
	file.Converted = true

	return nil
}

// finishJob runs spec §4.7's Convert-stage completion steps: push album and
// artist availability to the search collaborator, complete the linked
// queue item (and any sibling pending duplicates targeting the same
// album), notify the uploader, and always clean up scratch regardless of
// how the rest of this function fares.
func (m *Manager) finishJob(ctx context.Context, job *model.IngestionJob) error {
	now := m.clock()
	job.Status = model.IngestionStatusCompleted
	job.Completed = &now

	if err := m.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	var artistIDs []string

	if job.MatchedAlbumID != "" {
		if album, err := m.catalog.GetAlbum(ctx, job.MatchedAlbumID); err == nil && album != nil {
			artistIDs = album.ArtistIDs
		}

		if err := m.search.PushAvailability(ctx, job.MatchedAlbumID, artistIDs); err != nil {
			logErr(ctx, "push availability for %s: %v", job.MatchedAlbumID, err)
		}
	}

	linkedItem, err := m.linkedQueueItem(ctx, job)
	if err != nil {
		logErr(ctx, "fetch linked queue item for job %s: %v", job.ID, err)
	}

	albumName, artistName := m.resolvedNames(ctx, job, linkedItem)

	if linkedItem != nil {
		if err := m.completeLinkedQueueItem(ctx, linkedItem, albumName, artistName); err != nil {
			logErr(ctx, "complete linked queue item for job %s: %v", job.ID, err)
		}
	}

	if job.UserID != "" {
		m.notifier.NotifyCompleted(ctx, job.UserID, job.ID, job.TracksConverted, albumName, artistName)
	}

	return m.filestore.CleanupJob(job.ID)
}

// linkedQueueItem fetches the DownloadRequest queue item a job is tied to,
// if any, so resolvedNames and completeLinkedQueueItem can share a single
// fetch instead of each re-parsing and re-querying the same id.
func (m *Manager) linkedQueueItem(ctx context.Context, job *model.IngestionJob) (*model.QueueItem, error) {
	if job.ContextKind != model.ContextDownloadRequest || job.QueueItemID == nil {
		return nil, nil
	}

	id, err := uuid.Parse(*job.QueueItemID)
	if err != nil {
		return nil, fmt.Errorf("parse linked queue item id: %w", err)
	}

	return m.queueStore.GetByID(ctx, id)
}

// buildTagRequest resolves the catalog-canonical metadata for a converted
// file: album/artist names in the same priority order finishJob uses for
// notifications, title/track/year from the probed source tags, and the
// album cover if one has already landed on disk (WriteTags tolerates a
// missing cover path silently).
func (m *Manager) buildTagRequest(ctx context.Context, job *model.IngestionJob, file *model.IngestionFile, destPath string) probe.WriteTagsRequest {
	linkedItem, err := m.linkedQueueItem(ctx, job)
	if err != nil {
		logErr(ctx, "fetch linked queue item for job %s: %v", job.ID, err)
	}

	album, artist := m.resolvedNames(ctx, job, linkedItem)

	req := probe.WriteTagsRequest{Path: destPath, Album: album, Artist: artist}

	if file.Tags != nil {
		req.Title = file.Tags.Title
		req.TrackNum = file.Tags.TrackNum
		req.TrackTotal = file.Tags.TrackTotal
		req.Year = file.Tags.Year
	}

	if job.MatchedAlbumID != "" {
		req.CoverPath = m.filestore.ImagePath(job.MatchedAlbumID)
	}

	return req
}

// resolvedNames picks the display album/artist names in spec §4.7's
// priority order: catalog-resolved, then download-request-captured, then
// detected-from-tags, then "Unknown". The tiers below are applied lowest to
// highest priority, each overwriting the previous one only when it has a
// non-empty name, so the last tier to fire wins. The "catalog" tier is the
// search collaborator's resolved album — the external downloader API's own
// Album shape (spec §6) carries no name field at all, only ids, so the
// canonical name has to come from wherever the matching pipeline already
// gets one.
func (m *Manager) resolvedNames(ctx context.Context, job *model.IngestionJob, linkedItem *model.QueueItem) (albumName, artistName string) {
	albumName = job.DetectedAlbum
	artistName = job.DetectedArtist

	if linkedItem != nil {
		if linkedItem.ContentName != "" {
			albumName = linkedItem.ContentName
		}

		if linkedItem.ArtistName != "" {
			artistName = linkedItem.ArtistName
		}
	}

	if job.MatchedAlbumID != "" {
		resolved, err := m.resolveAlbumCached(ctx, job.MatchedAlbumID)
		if err != nil {
			logErr(ctx, "resolve catalog name for album %s: %v", job.MatchedAlbumID, err)
		} else if resolved != nil {
			if resolved.Name != "" {
				albumName = resolved.Name
			}

			if resolved.Artist != "" {
				artistName = resolved.Artist
			}
		}
	}

	if albumName == "" {
		albumName = "Unknown"
	}

	if artistName == "" {
		artistName = "Unknown"
	}

	return albumName, artistName
}

// completeLinkedQueueItem marks the originating DownloadRequest queue item
// Completed and auto-completes any sibling Pending items targeting the
// same album, notifying every requester. albumName/artistName are already
// fully resolved by resolvedNames before this is called.
func (m *Manager) completeLinkedQueueItem(ctx context.Context, item *model.QueueItem, albumName, artistName string) error {
	if err := m.queueStore.MarkCompleted(ctx, item.ID, 0, 0); err != nil {
		return fmt.Errorf("mark linked queue item completed: %w", err)
	}

	m.notifier.NotifyDownloadCompleted(ctx, item.RequestedByUserID, item.ID.String(), albumName, artistName, false)

	duplicates, err := m.queueStore.FindPendingDuplicates(ctx, item.ContentType, item.ContentID, item.ID)
	if err != nil {
		return fmt.Errorf("find pending duplicates: %w", err)
	}

	for _, duplicate := range duplicates {
		if err := m.queueStore.MarkCompleted(ctx, duplicate.ID, 0, 0); err != nil {
			logErr(ctx, "mark duplicate queue item %s completed: %v", duplicate.ID, err)

			continue
		}

		m.notifier.NotifyDownloadCompleted(ctx, duplicate.RequestedByUserID, duplicate.ID.String(), albumName, artistName, false)
	}

	return nil
}

// copyFile copies srcPath to destPath, used for files whose bitrate already
// needs no conversion.
func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath) //nolint:gosec // srcPath is a previously-staged upload file.
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck // Read-only handle.

	dst, err := os.Create(destPath) //nolint:gosec // destPath is a sharded media-root path this process owns.
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()

	if copyErr != nil {
		return copyErr
	}

	return closeErr
}

// logErr logs a non-fatal error encountered after a job has already been
// marked Completed — these steps are best-effort per spec §4.7/§4.9.
func logErr(ctx context.Context, format string, args ...any) {
	logger.Errorf(ctx, "ingestion: "+format, args...)
}
