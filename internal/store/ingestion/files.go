package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pezzottify/catalog-engine/internal/model"
)

const fileColumns = `id, job_id, filename, size, temp_path, probed_duration_ms, probed_codec,
	probed_bitrate, probed_sample_rate, tag_artist, tag_album, tag_title, tag_track_num,
	tag_track_total, tag_disc_num, tag_year, matched_track_id, match_confidence, output_path,
	converted, conversion_reason, original_bitrate, error_message`

// CreateFile inserts a new ingestion file row.
func (s *Store) CreateFile(ctx context.Context, file *model.IngestionFile) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		return insertFile(ctx, tx, file)
	})
}

// CreateFiles inserts a batch of files for one job in a single transaction.
func (s *Store) CreateFiles(ctx context.Context, files []*model.IngestionFile) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, file := range files {
			if err := insertFile(ctx, tx, file); err != nil {
				return err
			}
		}

		return nil
	})
}

func insertFile(ctx context.Context, tx *sql.Tx, file *model.IngestionFile) error {
	probedDuration, probedCodec, probedBitrate, probedSampleRate := probeValues(file.Probed)
	tagArtist, tagAlbum, tagTitle, tagTrackNum, tagTrackTotal, tagDiscNum, tagYear := tagValues(file.Tags)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO ingestion_files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.JobID, file.Filename, file.Size, file.TempPath,
		probedDuration, probedCodec, probedBitrate, probedSampleRate,
		tagArtist, tagAlbum, tagTitle, tagTrackNum, tagTrackTotal, tagDiscNum, tagYear,
		file.MatchedTrackID, file.MatchConfidence, file.OutputPath,
		boolToInt(file.Converted), file.ConversionReason.String(), file.OriginalBitrate, file.ErrorMessage)
	if err != nil {
		return fmt.Errorf("ingestion store: insert file: %w", err)
	}

	return nil
}

// UpdateFile persists the full row for an existing file.
func (s *Store) UpdateFile(ctx context.Context, file *model.IngestionFile) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		probedDuration, probedCodec, probedBitrate, probedSampleRate := probeValues(file.Probed)
		tagArtist, tagAlbum, tagTitle, tagTrackNum, tagTrackTotal, tagDiscNum, tagYear := tagValues(file.Tags)

		_, err := tx.ExecContext(ctx, `
			UPDATE ingestion_files SET
				filename = ?, size = ?, temp_path = ?, probed_duration_ms = ?, probed_codec = ?,
				probed_bitrate = ?, probed_sample_rate = ?, tag_artist = ?, tag_album = ?, tag_title = ?,
				tag_track_num = ?, tag_track_total = ?, tag_disc_num = ?, tag_year = ?,
				matched_track_id = ?, match_confidence = ?, output_path = ?, converted = ?,
				conversion_reason = ?, original_bitrate = ?, error_message = ?
			WHERE id = ?`,
			file.Filename, file.Size, file.TempPath, probedDuration, probedCodec, probedBitrate,
			probedSampleRate, tagArtist, tagAlbum, tagTitle, tagTrackNum, tagTrackTotal, tagDiscNum,
			tagYear, file.MatchedTrackID, file.MatchConfidence, file.OutputPath,
			boolToInt(file.Converted), file.ConversionReason.String(), file.OriginalBitrate,
			file.ErrorMessage, file.ID)
		if err != nil {
			return fmt.Errorf("ingestion store: update file: %w", err)
		}

		return nil
	})
}

// DeleteFile removes a single file row.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ingestion_files WHERE id = ?`, id); err != nil {
			return fmt.Errorf("ingestion store: delete file: %w", err)
		}

		return nil
	})
}

// GetFile fetches a single file by id.
func (s *Store) GetFile(ctx context.Context, id string) (*model.IngestionFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM ingestion_files WHERE id = ?`, id)

	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("ingestion store: get file: %w", err)
	}

	return file, nil
}

// ListFilesByJob lists every file belonging to a job.
func (s *Store) ListFilesByJob(ctx context.Context, jobID string) ([]*model.IngestionFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM ingestion_files WHERE job_id = ? ORDER BY filename ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("ingestion store: list files by job: %w", err)
	}
	defer rows.Close()

	var files []*model.IngestionFile

	for rows.Next() {
		file, scanErr := scanFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("ingestion store: scan file: %w", scanErr)
		}

		files = append(files, file)
	}

	return files, rows.Err()
}

func probeValues(p *model.ProbeResult) (duration, codec, bitrate, sampleRate any) {
	if p == nil {
		return nil, nil, nil, nil
	}

	return p.DurationMs, p.Codec, p.Bitrate, p.SampleRate
}

func tagValues(t *model.FileTags) (artist, album, title, trackNum, trackTotal, discNum, year any) {
	if t == nil {
		return nil, nil, nil, nil, nil, nil, nil
	}

	return t.Artist, t.Album, t.Title, t.TrackNum, t.TrackTotal, t.DiscNum, t.Year
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

func scanFile(row rowScanner) (*model.IngestionFile, error) {
	var (
		file                          model.IngestionFile
		probedDuration, probedBitrate sql.NullInt64
		probedSampleRate              sql.NullInt64
		probedCodec                   sql.NullString
		tagArtist, tagAlbum, tagTitle sql.NullString
		tagTrackNum, tagTrackTotal    sql.NullInt64
		tagDiscNum                    sql.NullInt64
		tagYear                       sql.NullString
		converted                     int
		conversionReason              string
	)

	err := row.Scan(
		&file.ID, &file.JobID, &file.Filename, &file.Size, &file.TempPath,
		&probedDuration, &probedCodec, &probedBitrate, &probedSampleRate,
		&tagArtist, &tagAlbum, &tagTitle, &tagTrackNum, &tagTrackTotal, &tagDiscNum, &tagYear,
		&file.MatchedTrackID, &file.MatchConfidence, &file.OutputPath,
		&converted, &conversionReason, &file.OriginalBitrate, &file.ErrorMessage)
	if err != nil {
		return nil, err
	}

	if probedCodec.Valid {
		file.Probed = &model.ProbeResult{
			DurationMs: probedDuration.Int64,
			Codec:      probedCodec.String,
			Bitrate:    probedBitrate.Int64,
			SampleRate: probedSampleRate.Int64,
		}
	}

	if tagArtist.Valid || tagAlbum.Valid || tagTitle.Valid {
		file.Tags = &model.FileTags{
			Artist:     tagArtist.String,
			Album:      tagAlbum.String,
			Title:      tagTitle.String,
			TrackNum:   tagTrackNum.Int64,
			TrackTotal: tagTrackTotal.Int64,
			DiscNum:    tagDiscNum.Int64,
			Year:       tagYear.String,
		}
	}

	file.Converted = converted != 0
	file.ConversionReason = parseConversionReason(conversionReason)

	return &file, nil
}

func parseConversionReason(s string) model.ConversionReason {
	switch s {
	case "NoConversionNeeded":
		return model.ConversionNoneNeeded
	case "HighBitrate":
		return model.ConversionHighBitrate
	case "LowBitratePendingConfirmation":
		return model.ConversionLowBitratePendingConfirmation
	case "LowBitrateApproved":
		return model.ConversionLowBitrateApproved
	case "UndetectableBitrate":
		return model.ConversionUndetectableBitrate
	default:
		return model.ConversionUndetectableBitrate
	}
}
