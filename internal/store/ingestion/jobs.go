package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pezzottify/catalog-engine/internal/model"
)

const jobColumns = `id, session_id, user_id, original_filename, total_size, file_count, context_kind,
	queue_item_id, upload_type, status, detected_artist, detected_album, detected_year,
	matched_album_id, match_confidence, match_source, ticket_type, match_score, match_delta_ms,
	tracks_matched, tracks_converted, error_message, created_at, updated_at, completed_at`

// CreateJob inserts a new ingestion job.
func (s *Store) CreateJob(ctx context.Context, job *model.IngestionJob) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ingestion_jobs (`+jobColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.SessionID, job.UserID, job.OriginalFilename, job.TotalSize, job.FileCount,
			contextKindString(job.ContextKind), queueItemIDValue(job.QueueItemID), job.UploadType.String(),
			job.Status.String(), job.DetectedArtist, job.DetectedAlbum, job.DetectedYear,
			job.MatchedAlbumID, job.MatchConfidence, job.MatchSource.String(), job.TicketType.String(),
			job.MatchScore, job.MatchDeltaMs, job.TracksMatched, job.TracksConverted, job.ErrorMessage,
			job.Created, job.Updated, timeValue(job.Completed))
		if err != nil {
			return fmt.Errorf("ingestion store: create job: %w", err)
		}

		return nil
	})
}

// UpdateJob persists the full row for an existing job, bumping updated_at.
func (s *Store) UpdateJob(ctx context.Context, job *model.IngestionJob) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		job.Updated = time.Now().UTC()

		_, err := tx.ExecContext(ctx, `
			UPDATE ingestion_jobs SET
				session_id = ?, user_id = ?, original_filename = ?, total_size = ?, file_count = ?,
				context_kind = ?, queue_item_id = ?, upload_type = ?, status = ?, detected_artist = ?,
				detected_album = ?, detected_year = ?, matched_album_id = ?, match_confidence = ?,
				match_source = ?, ticket_type = ?, match_score = ?, match_delta_ms = ?, tracks_matched = ?,
				tracks_converted = ?, error_message = ?, updated_at = ?, completed_at = ?
			WHERE id = ?`,
			job.SessionID, job.UserID, job.OriginalFilename, job.TotalSize, job.FileCount,
			contextKindString(job.ContextKind), queueItemIDValue(job.QueueItemID), job.UploadType.String(),
			job.Status.String(), job.DetectedArtist, job.DetectedAlbum, job.DetectedYear,
			job.MatchedAlbumID, job.MatchConfidence, job.MatchSource.String(), job.TicketType.String(),
			job.MatchScore, job.MatchDeltaMs, job.TracksMatched, job.TracksConverted, job.ErrorMessage,
			job.Updated, timeValue(job.Completed), job.ID)
		if err != nil {
			return fmt.Errorf("ingestion store: update job: %w", err)
		}

		return nil
	})
}

// DeleteJob removes a job and its files/reviews/reasoning log entries.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM ingestion_files WHERE job_id = ?`,
			`DELETE FROM review_items WHERE job_id = ?`,
			`DELETE FROM reasoning_log WHERE job_id = ?`,
			`DELETE FROM ingestion_jobs WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("ingestion store: delete job: %w", err)
			}
		}

		return nil
	})
}

// DeleteJobsOlderThan removes every job in a terminal state (Completed or
// Failed) whose updated_at is older than cutoff, along with its
// files/reviews/reasoning log entries, per spec §4.10's cleanup job. It
// returns the number of jobs removed.
func (s *Store) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []string

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM ingestion_jobs WHERE status IN (?, ?) AND updated_at < ?`,
		model.IngestionStatusCompleted.String(), model.IngestionStatusFailed.String(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("ingestion store: list stale jobs: %w", err)
	}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // Error path; closed immediately below.

			return 0, fmt.Errorf("ingestion store: scan stale job id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck,sqlclosecheck // Error path; closed immediately below.

		return 0, err
	}

	rows.Close() //nolint:errcheck // Read-only cursor, already drained.

	for _, id := range ids {
		if err := s.DeleteJob(ctx, id); err != nil {
			return 0, err
		}
	}

	return int64(len(ids)), nil
}

// GetJob fetches a single job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*model.IngestionJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("ingestion store: get job: %w", err)
	}

	return job, nil
}

// ListJobsByUser lists a user's jobs, newest first.
func (s *Store) ListJobsByUser(ctx context.Context, userID string) ([]*model.IngestionJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ingestion store: list jobs by user: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListJobsByStatus lists all jobs in a given status.
func (s *Store) ListJobsByStatus(ctx context.Context, status model.IngestionStatus) ([]*model.IngestionJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE status = ? ORDER BY created_at ASC`, status.String())
	if err != nil {
		return nil, fmt.Errorf("ingestion store: list jobs by status: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListJobsInSession lists every job sharing a session_id (a Collection
// upload's sibling albums), ordered by creation — a supplemented feature for
// reporting collection-wide progress to a single uploader.
func (s *Store) ListJobsInSession(ctx context.Context, sessionID string) ([]*model.IngestionJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ingestion store: list jobs in session: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// GetJobByQueueItemID finds the job linked to a DownloadRequest-context queue item, if any.
func (s *Store) GetJobByQueueItemID(ctx context.Context, queueItemID string) (*model.IngestionJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE queue_item_id = ?`, queueItemID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("ingestion store: get job by queue item id: %w", err)
	}

	return job, nil
}

func contextKindString(k model.IngestionContextKind) string {
	if k == model.ContextDownloadRequest {
		return "DownloadRequest"
	}

	return "Manual"
}

func parseContextKind(s string) model.IngestionContextKind {
	if s == "DownloadRequest" {
		return model.ContextDownloadRequest
	}

	return model.ContextManual
}

func queueItemIDValue(id *string) any {
	if id == nil {
		return nil
	}

	return *id
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}

	return *t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.IngestionJob, error) {
	var (
		job                             model.IngestionJob
		contextKind, uploadType, status string
		matchSource, ticketType         string
		queueItemID                     sql.NullString
		completed                       sql.NullTime
	)

	err := row.Scan(
		&job.ID, &job.SessionID, &job.UserID, &job.OriginalFilename, &job.TotalSize, &job.FileCount,
		&contextKind, &queueItemID, &uploadType, &status, &job.DetectedArtist, &job.DetectedAlbum,
		&job.DetectedYear, &job.MatchedAlbumID, &job.MatchConfidence, &matchSource, &ticketType,
		&job.MatchScore, &job.MatchDeltaMs, &job.TracksMatched, &job.TracksConverted, &job.ErrorMessage,
		&job.Created, &job.Updated, &completed)
	if err != nil {
		return nil, err
	}

	job.ContextKind = parseContextKind(contextKind)
	job.UploadType = model.ParseUploadType(uploadType)
	job.Status = model.ParseIngestionStatus(status)
	job.MatchSource = parseMatchSource(matchSource)
	job.TicketType = parseTicketType(ticketType)

	if queueItemID.Valid {
		job.QueueItemID = &queueItemID.String
	}

	if completed.Valid {
		job.Completed = &completed.Time
	}

	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*model.IngestionJob, error) {
	var jobs []*model.IngestionJob

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func parseMatchSource(s string) model.MatchSource {
	switch s {
	case "Fingerprint":
		return model.MatchSourceFingerprint
	case "Agent":
		return model.MatchSourceAgent
	case "HumanReview":
		return model.MatchSourceHumanReview
	case "DownloadRequest":
		return model.MatchSourceDownloadRequest
	default:
		return model.MatchSourceFingerprint
	}
}

func parseTicketType(s string) model.TicketType {
	switch s {
	case "Success":
		return model.TicketSuccess
	case "Review":
		return model.TicketReview
	case "Failure":
		return model.TicketFailure
	default:
		return model.TicketFailure
	}
}
