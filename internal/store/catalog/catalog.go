package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pezzottify/catalog-engine/internal/model"
)

// UpsertTrack records or updates a track's catalog metadata and audio_uri.
// The ingestion manager's Convert stage does not call it: converted files
// are reported through internal/client/catalog.Client.UpdateTrackAudioURI,
// the external-downloader counterpart of this local store.
func (s *Store) UpsertTrack(ctx context.Context, track model.CatalogTrack) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tracks (id, title, album_id, album_title, artist_name, audio_uri)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title=excluded.title, album_id=excluded.album_id,
				album_title=excluded.album_title, artist_name=excluded.artist_name,
				audio_uri=excluded.audio_uri`,
			track.ID, track.Title, track.AlbumID, track.AlbumTitle, track.ArtistName, track.AudioURI)
		if err != nil {
			return fmt.Errorf("catalog store: upsert track %s: %w", track.ID, err)
		}

		return nil
	})
}

// UpdateTrackAudioURI sets one track's audio_uri in this local store. The
// ingestion manager's Convert stage does not call it; it updates the
// external catalog through internal/client/catalog.Client instead.
func (s *Store) UpdateTrackAudioURI(ctx context.Context, trackID, audioURI string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE tracks SET audio_uri = ? WHERE id = ?`, audioURI, trackID)
		if err != nil {
			return fmt.Errorf("catalog store: update track audio uri %s: %w", trackID, err)
		}

		return nil
	})
}

// UpsertAlbumImage records or updates an album cover's catalog metadata.
func (s *Store) UpsertAlbumImage(ctx context.Context, image model.CatalogAlbumImage) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO album_images (id, album_id, album_title)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET album_id=excluded.album_id, album_title=excluded.album_title`,
			image.ID, image.AlbumID, image.AlbumTitle)
		if err != nil {
			return fmt.Errorf("catalog store: upsert album image %s: %w", image.ID, err)
		}

		return nil
	})
}

// UpsertArtistImage records or updates an artist portrait's catalog metadata.
func (s *Store) UpsertArtistImage(ctx context.Context, image model.CatalogArtistImage) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO artist_images (id, artist_id, artist_name)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET artist_id=excluded.artist_id, artist_name=excluded.artist_name`,
			image.ID, image.ArtistID, image.ArtistName)
		if err != nil {
			return fmt.Errorf("catalog store: upsert artist image %s: %w", image.ID, err)
		}

		return nil
	})
}

// ListTracks returns every track the local catalog knows about, for the
// watchdog's scan step 1 (spec §4.8).
func (s *Store) ListTracks(ctx context.Context) ([]model.CatalogTrack, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, album_id, album_title, artist_name, audio_uri FROM tracks`)
	if err != nil {
		return nil, fmt.Errorf("catalog store: list tracks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor.

	var tracks []model.CatalogTrack

	for rows.Next() {
		var t model.CatalogTrack
		if err := rows.Scan(&t.ID, &t.Title, &t.AlbumID, &t.AlbumTitle, &t.ArtistName, &t.AudioURI); err != nil {
			return nil, fmt.Errorf("catalog store: scan track: %w", err)
		}

		tracks = append(tracks, t)
	}

	return tracks, rows.Err()
}

// ListAlbumImages returns every album cover the local catalog knows about.
func (s *Store) ListAlbumImages(ctx context.Context) ([]model.CatalogAlbumImage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, album_id, album_title FROM album_images`)
	if err != nil {
		return nil, fmt.Errorf("catalog store: list album images: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor.

	var images []model.CatalogAlbumImage

	for rows.Next() {
		var img model.CatalogAlbumImage
		if err := rows.Scan(&img.ID, &img.AlbumID, &img.AlbumTitle); err != nil {
			return nil, fmt.Errorf("catalog store: scan album image: %w", err)
		}

		images = append(images, img)
	}

	return images, rows.Err()
}

// ListArtistImages returns every artist portrait the local catalog knows about.
func (s *Store) ListArtistImages(ctx context.Context) ([]model.CatalogArtistImage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, artist_id, artist_name FROM artist_images`)
	if err != nil {
		return nil, fmt.Errorf("catalog store: list artist images: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor.

	var images []model.CatalogArtistImage

	for rows.Next() {
		var img model.CatalogArtistImage
		if err := rows.Scan(&img.ID, &img.ArtistID, &img.ArtistName); err != nil {
			return nil, fmt.Errorf("catalog store: scan artist image: %w", err)
		}

		images = append(images, img)
	}

	return images, rows.Err()
}
