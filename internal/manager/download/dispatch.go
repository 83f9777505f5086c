package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pezzottify/catalog-engine/internal/constants"
	"github.com/pezzottify/catalog-engine/internal/model"
)

// dispatchAlbum fetches the album's track list and artists and spawns a
// TrackAudio child per track plus an AlbumImage/ArtistImage child per
// medium/large cover and portrait. The album item downloads zero bytes
// itself; its own completion is deferred to child aggregation.
func (m *Manager) dispatchAlbum(ctx context.Context, item *model.QueueItem) error {
	album, err := m.catalog.GetAlbum(ctx, item.ContentID)
	if err != nil {
		return fmt.Errorf("download: get album %s: %w", item.ContentID, err)
	}

	tracks, err := m.catalog.GetAlbumTracks(ctx, item.ContentID)
	if err != nil {
		return fmt.Errorf("download: get album tracks %s: %w", item.ContentID, err)
	}

	children := make([]*model.QueueItem, 0, len(tracks)+len(album.Covers)+len(album.ArtistIDs))

	for _, track := range tracks {
		children = append(children, m.newChild(item, model.ContentTypeTrackAudio, track.ID, track.Title, item.Priority))
	}

	for _, cover := range album.Covers {
		if _, wanted := imageSizesWanted[cover.Size]; !wanted {
			continue
		}

		children = append(children,
			m.newChild(item, model.ContentTypeAlbumImage, cover.ID, item.ContentName, model.PriorityExpansion))
	}

	for _, artistID := range album.ArtistIDs {
		artist, err := m.catalog.GetArtist(ctx, artistID)
		if err != nil {
			return fmt.Errorf("download: get artist %s: %w", artistID, err)
		}

		for _, portrait := range artist.Portraits {
			if _, wanted := imageSizesWanted[portrait.Size]; !wanted {
				continue
			}

			children = append(children,
				m.newChild(item, model.ContentTypeArtistImage, portrait.ID, artist.Name, model.PriorityExpansion))
		}
	}

	for _, child := range children {
		if err := m.store.Enqueue(ctx, child); err != nil {
			return fmt.Errorf("download: enqueue child %s: %w", child.ContentID, err)
		}
	}

	return m.store.LogAudit(ctx, item.ID, model.AuditChildrenCreated, fmt.Sprintf("%d children", len(children)))
}

func (m *Manager) newChild(
	parent *model.QueueItem,
	contentType model.ContentType,
	contentID, contentName string,
	priority model.Priority,
) *model.QueueItem {
	parentID := parent.ID

	return &model.QueueItem{
		ID:                uuid.New(),
		ParentID:          &parentID,
		Status:            model.QueueStatusPending,
		Priority:          priority,
		ContentType:       contentType,
		ContentID:         contentID,
		ContentName:       contentName,
		ArtistName:        parent.ArtistName,
		RequestSource:     model.RequestSourceExpansion,
		RequestedByUserID: parent.RequestedByUserID,
		Created:           m.clock(),
		MaxRetries:        m.cfg.MaxRetries,
	}
}

// extensionForContentType maps a downloader-reported MIME type to the
// canonical file extension table of spec §4.6.
func extensionForContentType(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "audio/flac":
		return "flac"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg", "audio/vorbis":
		return "ogg"
	case "audio/wav", "audio/wave":
		return "wav"
	case "audio/aac":
		return "aac"
	case "audio/mp4", "audio/m4a":
		return "m4a"
	default:
		return "flac"
	}
}

// dispatchTrackAudio fetches one track's audio bytes and writes them to the
// sharded canonical output path.
func (m *Manager) dispatchTrackAudio(ctx context.Context, item *model.QueueItem, started time.Time) error {
	body, mimeType, err := m.catalog.DownloadTrackAudio(ctx, item.ContentID)
	if err != nil {
		return fmt.Errorf("download: fetch track audio %s: %w", item.ContentID, err)
	}
	defer body.Close() //nolint:errcheck // Best-effort close after read completes or fails.

	ext := extensionForContentType(mimeType)

	destPath, err := m.filestore.EnsureShardedDir(item.ContentID, ext)
	if err != nil {
		return newStorageError(fmt.Errorf("download: sharded dir for track %s: %w", item.ContentID, err))
	}

	bytesWritten, err := writeStream(destPath, body)
	if err != nil {
		return newStorageError(fmt.Errorf("download: write track %s: %w", item.ContentID, err))
	}

	return m.succeed(ctx, item, bytesWritten, started)
}

// dispatchImage fetches one cover/portrait image and writes it to the flat
// image tree (unsharded, per spec §4.3's output path table).
func (m *Manager) dispatchImage(ctx context.Context, item *model.QueueItem, started time.Time) error {
	body, err := m.catalog.DownloadImage(ctx, item.ContentID)
	if err != nil {
		return fmt.Errorf("download: fetch image %s: %w", item.ContentID, err)
	}
	defer body.Close() //nolint:errcheck // Best-effort close after read completes or fails.

	imagesDir := filepath.Join(m.filestore.MediaRoot(), "images")
	if err := os.MkdirAll(imagesDir, constants.DefaultFolderPermissions); err != nil {
		return newStorageError(fmt.Errorf("download: create images dir: %w", err))
	}

	destPath := filepath.Join(imagesDir, item.ContentID+constants.ExtensionJPG)

	bytesWritten, err := writeStream(destPath, body)
	if err != nil {
		return newStorageError(fmt.Errorf("download: write image %s: %w", item.ContentID, err))
	}

	return m.succeed(ctx, item, bytesWritten, started)
}

func writeStream(destPath string, src io.Reader) (int64, error) {
	dest, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer dest.Close() //nolint:errcheck // Best-effort close; the file is already fully written by this point.

	written, err := io.Copy(dest, src)
	if err != nil {
		return written, err
	}

	return written, nil
}
