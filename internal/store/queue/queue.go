package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pezzottify/catalog-engine/internal/model"
)

const itemColumns = `id, parent_id, status, priority, content_type, content_id, content_name,
	artist_name, request_source, requested_by_user_id, created_at, started_at, completed_at,
	last_attempt_at, next_retry_at, retry_count, max_retries, error_kind, error_message,
	bytes_downloaded, processing_duration_ms`

// Enqueue appends item. Parents must be enqueued before children; the caller
// is responsible for ordering the calls (spec §4.4).
func (s *Store) Enqueue(ctx context.Context, item *model.QueueItem) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := insertItem(ctx, tx, item); err != nil {
			return err
		}

		return writeAudit(ctx, tx, item.ID, model.AuditRequestCreated, "")
	})
}

func insertItem(ctx context.Context, tx *sql.Tx, item *model.QueueItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO queue_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), parentIDValue(item.ParentID), item.Status.String(), item.Priority.String(),
		item.ContentType.String(), item.ContentID, item.ContentName, item.ArtistName,
		item.RequestSource.String(), item.RequestedByUserID, item.Created,
		timeValue(item.Started), timeValue(item.Completed), timeValue(item.LastAttempt),
		timeValue(item.NextRetry), item.RetryCount, item.MaxRetries, errorKindValue(item.ErrorKind),
		item.ErrorMessage, int64Value(item.BytesDownloaded), item.ProcessingDuration)
	if err != nil {
		return fmt.Errorf("queue store: enqueue: %w", err)
	}

	return nil
}

// GetNextPending returns the Pending item with highest priority (User <
// Expansion < Background, User highest), ties broken by earliest created.
func (s *Store) GetNextPending(ctx context.Context) (*model.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM queue_items
		WHERE status = ?
		ORDER BY
			CASE priority WHEN 'User' THEN 0 WHEN 'Expansion' THEN 1 ELSE 2 END,
			created_at ASC
		LIMIT 1`, model.QueueStatusPending.String())

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // "none pending" is not an error condition.
	}

	if err != nil {
		return nil, fmt.Errorf("queue store: get next pending: %w", err)
	}

	return item, nil
}

// ClaimForProcessing atomically transitions Pending to InProgress, stamping
// started and last_attempt. Returns false if the item was not Pending (lost
// the race to another worker, or does not exist).
func (s *Store) ClaimForProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	var claimed bool

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		res, err := tx.ExecContext(ctx, `
			UPDATE queue_items
			SET status = ?, started_at = ?, last_attempt_at = ?
			WHERE id = ? AND status = ?`,
			model.QueueStatusInProgress.String(), now, now, id.String(), model.QueueStatusPending.String())
		if err != nil {
			return fmt.Errorf("queue store: claim: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("queue store: claim rows affected: %w", err)
		}

		claimed = affected == 1

		return nil
	})

	return claimed, err
}

// MarkCompleted transitions an item to Completed and writes DownloadCompleted.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, bytesDownloaded, durationMs int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE queue_items
			SET status = ?, completed_at = ?, bytes_downloaded = ?, processing_duration_ms = ?
			WHERE id = ?`,
			model.QueueStatusCompleted.String(), time.Now().UTC(), bytesDownloaded, durationMs, id.String())
		if err != nil {
			return fmt.Errorf("queue store: mark completed: %w", err)
		}

		return writeAudit(ctx, tx, id, model.AuditDownloadCompleted, "")
	})
}

// MarkRetryWaiting transitions an item to RetryWaiting with the given backoff deadline.
func (s *Store) MarkRetryWaiting(
	ctx context.Context,
	id uuid.UUID,
	nextRetryAt time.Time,
	errKind model.ErrorKind,
	errMsg string,
) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE queue_items
			SET status = ?, next_retry_at = ?, retry_count = retry_count + 1,
				error_kind = ?, error_message = ?
			WHERE id = ?`,
			model.QueueStatusRetryWaiting.String(), nextRetryAt, errKind.String(), errMsg, id.String())
		if err != nil {
			return fmt.Errorf("queue store: mark retry waiting: %w", err)
		}

		return writeAudit(ctx, tx, id, model.AuditRetryScheduled, errMsg)
	})
}

// MarkFailed transitions an item to Failed (terminal) and writes DownloadFailed.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errKind model.ErrorKind, errMsg string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE queue_items
			SET status = ?, error_kind = ?, error_message = ?
			WHERE id = ?`,
			model.QueueStatusFailed.String(), errKind.String(), errMsg, id.String())
		if err != nil {
			return fmt.Errorf("queue store: mark failed: %w", err)
		}

		return writeAudit(ctx, tx, id, model.AuditDownloadFailed, errMsg)
	})
}

// GetRetryReady returns RetryWaiting rows whose next_retry_at has elapsed.
func (s *Store) GetRetryReady(ctx context.Context) ([]*model.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM queue_items
		WHERE status = ? AND next_retry_at <= ?
		ORDER BY created_at ASC`,
		model.QueueStatusRetryWaiting.String(), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("queue store: get retry ready: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// PromoteRetryToPending is the compare-and-set for retry-ready items: RetryWaiting → Pending.
func (s *Store) PromoteRetryToPending(ctx context.Context, id uuid.UUID) (bool, error) {
	var promoted bool

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE queue_items SET status = ?, next_retry_at = NULL
			WHERE id = ? AND status = ?`,
			model.QueueStatusPending.String(), id.String(), model.QueueStatusRetryWaiting.String())
		if err != nil {
			return fmt.Errorf("queue store: promote retry: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("queue store: promote retry rows affected: %w", err)
		}

		promoted = affected == 1

		return nil
	})

	return promoted, err
}

// ResetFailedToPending is the admin-retry compare-and-set: Failed → Pending,
// clearing the error fields and resetting retry_count (Open Question
// decision: admin retry gives the item a fresh retry budget).
func (s *Store) ResetFailedToPending(ctx context.Context, id uuid.UUID) (bool, error) {
	var reset bool

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE queue_items
			SET status = ?, retry_count = 0, error_kind = NULL, error_message = ''
			WHERE id = ? AND status = ?`,
			model.QueueStatusPending.String(), id.String(), model.QueueStatusFailed.String())
		if err != nil {
			return fmt.Errorf("queue store: reset failed to pending: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("queue store: reset failed rows affected: %w", err)
		}

		reset = affected == 1
		if !reset {
			return nil
		}

		return writeAudit(ctx, tx, id, model.AuditAdminRetry, "")
	})

	return reset, err
}

// ReclaimStaleInProgress moves InProgress items whose last_attempt predates
// the staleness threshold back to Pending — a supplemented watchdog-adjacent
// repair for workers that crashed mid-download without marking an outcome.
func (s *Store) ReclaimStaleInProgress(ctx context.Context, staleThreshold time.Duration) (int64, error) {
	var affected int64

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		cutoff := time.Now().UTC().Add(-staleThreshold)

		res, err := tx.ExecContext(ctx, `
			UPDATE queue_items
			SET status = ?
			WHERE status = ? AND last_attempt_at <= ?`,
			model.QueueStatusPending.String(), model.QueueStatusInProgress.String(), cutoff)
		if err != nil {
			return fmt.Errorf("queue store: reclaim stale: %w", err)
		}

		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("queue store: reclaim stale rows affected: %w", err)
		}

		return nil
	})

	return affected, err
}

// CheckParentCompletion returns (status, true) when every child is
// Completed (→ Completed) or any child Failed with none InProgress
// (→ Failed); (_, false) otherwise, meaning no decision yet.
func (s *Store) CheckParentCompletion(ctx context.Context, parentID uuid.UUID) (model.QueueStatus, bool, error) {
	progress, err := s.GetChildrenProgress(ctx, parentID)
	if err != nil {
		return 0, false, err
	}

	switch {
	case progress.Total > 0 && progress.Completed == progress.Total:
		return model.QueueStatusCompleted, true, nil
	case progress.Failed > 0 && progress.InProgress == 0:
		return model.QueueStatusFailed, true, nil
	default:
		return 0, false, nil
	}
}

// GetChildrenProgress summarizes a parent's children by status.
func (s *Store) GetChildrenProgress(ctx context.Context, parentID uuid.UUID) (model.ChildrenProgress, error) {
	var progress model.ChildrenProgress

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END)
		FROM queue_items WHERE parent_id = ?`,
		model.QueueStatusCompleted.String(), model.QueueStatusFailed.String(),
		model.QueueStatusInProgress.String(), parentID.String())

	var completed, failed, inProgress sql.NullInt64
	if err := row.Scan(&progress.Total, &completed, &failed, &inProgress); err != nil {
		return progress, fmt.Errorf("queue store: children progress: %w", err)
	}

	progress.Completed = completed.Int64
	progress.Failed = failed.Int64
	progress.InProgress = inProgress.Int64

	return progress, nil
}

// SumChildrenBytes sums bytes_downloaded across a parent's children, used by
// check_and_complete_parent to roll up the parent's own byte count.
func (s *Store) SumChildrenBytes(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var total sql.NullInt64

	row := s.db.QueryRowContext(ctx,
		`SELECT SUM(bytes_downloaded) FROM queue_items WHERE parent_id = ?`, parentID.String())
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("queue store: sum children bytes: %w", err)
	}

	return total.Int64, nil
}

// ChildrenFailedCount reports how many of a parent's children are Failed, for
// the aggregate "{failed}/{total} children failed" message.
func (s *Store) ChildrenFailedCount(ctx context.Context, parentID uuid.UUID) (failed, total int64, err error) {
	progress, err := s.GetChildrenProgress(ctx, parentID)
	if err != nil {
		return 0, 0, err
	}

	return progress.Failed, progress.Total, nil
}

// GetHourlyCounts returns the number of downloads completed in the last hour.
func (s *Store) GetHourlyCounts(ctx context.Context) (model.HourlyDailyCounts, error) {
	return s.countCompletionsSince(ctx, time.Now().UTC().Add(-time.Hour))
}

// GetDailyCounts returns the number of downloads completed in the last 24h.
func (s *Store) GetDailyCounts(ctx context.Context) (model.HourlyDailyCounts, error) {
	return s.countCompletionsSince(ctx, time.Now().UTC().Add(-24*time.Hour))
}

func (s *Store) countCompletionsSince(ctx context.Context, since time.Time) (model.HourlyDailyCounts, error) {
	var counts model.HourlyDailyCounts

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completion_activity WHERE created_at >= ?`, since)
	if err := row.Scan(&counts.CompletedCount); err != nil {
		return counts, fmt.Errorf("queue store: count completions: %w", err)
	}

	return counts, nil
}

// GetUserStats reports a user's request count today and items currently in their queue.
func (s *Store) GetUserStats(ctx context.Context, userID string) (model.UserStats, error) {
	var stats model.UserStats

	since := time.Now().UTC().Add(-24 * time.Hour)

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_activity WHERE user_id = ? AND created_at >= ?`, userID, since)
	if err := row.Scan(&stats.RequestsToday); err != nil {
		return stats, fmt.Errorf("queue store: user requests today: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_items
		WHERE requested_by_user_id = ? AND status IN (?, ?, ?)`,
		userID, model.QueueStatusPending.String(), model.QueueStatusInProgress.String(),
		model.QueueStatusRetryWaiting.String())
	if err := row.Scan(&stats.InQueue); err != nil {
		return stats, fmt.Errorf("queue store: user in queue: %w", err)
	}

	return stats, nil
}

// IncrementUserRequests records a request-path admission for rate limiting.
func (s *Store) IncrementUserRequests(ctx context.Context, userID string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_activity (user_id, content_type, bytes, success, created_at)
			VALUES (?, ?, 0, 1, ?)`, userID, model.ContentTypeAlbum.String(), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("queue store: increment user requests: %w", err)
		}

		return nil
	})
}

// DecrementUserQueue is a no-op on the counting model used here: in_queue is
// derived live from queue_items status in GetUserStats, so completion/failure
// of an item decrements it automatically. Kept to satisfy the spec's named
// contract surface for callers that invoke it unconditionally.
func (s *Store) DecrementUserQueue(context.Context, string) error {
	return nil
}

// RecordActivity records a download outcome for rate-limit and stats queries.
func (s *Store) RecordActivity(ctx context.Context, contentType model.ContentType, bytes int64, success bool) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		successVal := 0
		if success {
			successVal = 1
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_activity (user_id, content_type, bytes, success, created_at)
			VALUES ('', ?, ?, ?, ?)`, contentType.String(), bytes, successVal, now)
		if err != nil {
			return fmt.Errorf("queue store: record activity: %w", err)
		}

		if success {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO completion_activity (content_type, created_at) VALUES (?, ?)`,
				contentType.String(), now)
			if err != nil {
				return fmt.Errorf("queue store: record completion: %w", err)
			}
		}

		return nil
	})
}

// LogAudit appends a standalone audit entry that does not accompany a status
// transition, e.g. DownloadStarted or ChildrenCreated.
func (s *Store) LogAudit(ctx context.Context, id uuid.UUID, kind model.AuditEventKind, detail string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		return writeAudit(ctx, tx, id, kind, detail)
	})
}

// MarkLinkedInProgress transitions a Pending item straight to InProgress
// without going through ClaimForProcessing — used by the ingestion manager
// when a manual upload matches a DownloadRequest-context queue item, to
// prevent the download processing loop from redundantly re-downloading it.
func (s *Store) MarkLinkedInProgress(ctx context.Context, id uuid.UUID) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		_, err := tx.ExecContext(ctx, `
			UPDATE queue_items SET status = ?, started_at = ?, last_attempt_at = ?
			WHERE id = ?`,
			model.QueueStatusInProgress.String(), now, now, id.String())
		if err != nil {
			return fmt.Errorf("queue store: mark linked in progress: %w", err)
		}

		return nil
	})
}

// FindPendingDuplicates returns every other Pending item for the same
// content type and id (excluding excludeID) — the ingestion manager uses
// this to auto-complete sibling requests for an album an upload has just
// finished converting.
func (s *Store) FindPendingDuplicates(
	ctx context.Context,
	contentType model.ContentType,
	contentID string,
	excludeID uuid.UUID,
) ([]*model.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM queue_items
		WHERE content_type = ? AND content_id = ? AND status = ? AND id != ?
		ORDER BY created_at ASC`,
		contentType.String(), contentID, model.QueueStatusPending.String(), excludeID.String())
	if err != nil {
		return nil, fmt.Errorf("queue store: find pending duplicates: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// IsInActiveQueue reports whether a non-terminal item already exists for the
// given content type and id, used by the request path's duplicate guard.
func (s *Store) IsInActiveQueue(ctx context.Context, contentType model.ContentType, contentID string) (bool, error) {
	var count int64

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_items
		WHERE content_type = ? AND content_id = ? AND status IN (?, ?, ?)`,
		contentType.String(), contentID,
		model.QueueStatusPending.String(), model.QueueStatusInProgress.String(),
		model.QueueStatusRetryWaiting.String())
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("queue store: is in active queue: %w", err)
	}

	return count > 0, nil
}

// ExistsForContent reports whether any item at all — regardless of status —
// already exists for the given content type and id. Unlike IsInActiveQueue
// (which only looks at non-terminal statuses, for C6's request-path
// duplicate guard), this also counts Completed and Failed rows, for C8's
// "skip if already queued in any status" dedup.
func (s *Store) ExistsForContent(ctx context.Context, contentType model.ContentType, contentID string) (bool, error) {
	var count int64

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE content_type = ? AND content_id = ?`,
		contentType.String(), contentID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("queue store: exists for content: %w", err)
	}

	return count > 0, nil
}

// CountEarlierPending counts Pending items created strictly before the given
// time, used to compute a freshly-enqueued item's queue_position.
func (s *Store) CountEarlierPending(ctx context.Context, before time.Time) (int64, error) {
	var count int64

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE status = ? AND created_at < ?`,
		model.QueueStatusPending.String(), before)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("queue store: count earlier pending: %w", err)
	}

	return count, nil
}

// GetByID fetches a single item by id.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*model.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id.String())

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("queue store: get by id: %w", err)
	}

	return item, nil
}

// GetFailedItems lists all Failed items, newest first.
func (s *Store) GetFailedItems(ctx context.Context) ([]*model.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE status = ? ORDER BY created_at DESC`,
		model.QueueStatusFailed.String())
	if err != nil {
		return nil, fmt.Errorf("queue store: get failed items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// QueueStats is a count-by-status snapshot for get_queue_stats.
type QueueStats struct {
	Pending      int64
	InProgress   int64
	RetryWaiting int64
	Completed    int64
	Failed       int64
}

// GetQueueStats reports the count of items in each status.
func (s *Store) GetQueueStats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("queue store: get queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)

		if err = rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("queue store: scan queue stats: %w", err)
		}

		switch model.ParseQueueStatus(status) {
		case model.QueueStatusPending:
			stats.Pending = count
		case model.QueueStatusInProgress:
			stats.InProgress = count
		case model.QueueStatusRetryWaiting:
			stats.RetryWaiting = count
		case model.QueueStatusCompleted:
			stats.Completed = count
		case model.QueueStatusFailed:
			stats.Failed = count
		}
	}

	return stats, rows.Err()
}

// ActivityRecord is one raw activity row, as returned by GetActivity.
type ActivityRecord struct {
	ContentType model.ContentType
	Bytes       int64
	Success     bool
	CreatedAt   time.Time
}

// GetActivity returns activity recorded since the given number of hours ago.
func (s *Store) GetActivity(ctx context.Context, sinceHours int64) ([]ActivityRecord, error) {
	since := time.Now().UTC().Add(-time.Duration(sinceHours) * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT content_type, bytes, success, created_at FROM user_activity
		WHERE created_at >= ? ORDER BY created_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("queue store: get activity: %w", err)
	}
	defer rows.Close()

	var records []ActivityRecord

	for rows.Next() {
		var (
			contentType string
			rec         ActivityRecord
			success     int
		)

		if err = rows.Scan(&contentType, &rec.Bytes, &success, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("queue store: scan activity: %w", err)
		}

		rec.ContentType = model.ParseContentType(contentType)
		rec.Success = success != 0
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetAuditEntries returns the audit trail for one queue item, oldest first.
func (s *Store) GetAuditEntries(ctx context.Context, queueItemID uuid.UUID) ([]*model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue_item_id, kind, detail, created_at FROM audit_entries
		WHERE queue_item_id = ? ORDER BY created_at ASC`, queueItemID.String())
	if err != nil {
		return nil, fmt.Errorf("queue store: get audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry

	for rows.Next() {
		var (
			entry       model.AuditEntry
			queueItemID string
			kind        string
		)

		if err = rows.Scan(&entry.ID, &queueItemID, &kind, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("queue store: scan audit entry: %w", err)
		}

		entry.QueueItemID, err = uuid.Parse(queueItemID)
		if err != nil {
			return nil, fmt.Errorf("queue store: parse audit queue item id: %w", err)
		}

		entry.Kind = model.AuditEventKind(kind)
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// DeleteAuditEntriesOlderThan removes every audit entry older than cutoff,
// per spec §4.10's cleanup job and spec §6's audit_retention_days key. It
// returns the number of rows removed.
func (s *Store) DeleteAuditEntriesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM audit_entries WHERE created_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("queue store: delete old audit entries: %w", err)
		}

		removed, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("queue store: count deleted audit entries: %w", err)
		}

		return nil
	})

	return removed, err
}

func writeAudit(ctx context.Context, tx *sql.Tx, queueItemID uuid.UUID, kind model.AuditEventKind, detail string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries (queue_item_id, kind, detail, created_at) VALUES (?, ?, ?, ?)`,
		queueItemID.String(), string(kind), detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("queue store: write audit: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.QueueItem, error) {
	var (
		item                                              model.QueueItem
		idStr, parentIDStr, status, priority, contentType string
		requestSource                                     string
		started, completed, lastAttempt, nextRetry        sql.NullTime
		errorKindStr                                      sql.NullString
		bytesDownloaded                                   sql.NullInt64
	)

	err := row.Scan(
		&idStr, &parentIDStr, &status, &priority, &contentType, &item.ContentID, &item.ContentName,
		&item.ArtistName, &requestSource, &item.RequestedByUserID, &item.Created, &started, &completed,
		&lastAttempt, &nextRetry, &item.RetryCount, &item.MaxRetries, &errorKindStr, &item.ErrorMessage,
		&bytesDownloaded, &item.ProcessingDuration)
	if err != nil {
		return nil, err
	}

	item.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}

	if parentIDStr != "" {
		parsed, parseErr := uuid.Parse(parentIDStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse parent id: %w", parseErr)
		}

		item.ParentID = &parsed
	}

	item.Status = model.ParseQueueStatus(status)
	item.Priority = model.ParsePriority(priority)
	item.ContentType = model.ParseContentType(contentType)
	item.RequestSource = model.ParseRequestSource(requestSource)
	item.Started = nullTimeValue(started)
	item.Completed = nullTimeValue(completed)
	item.LastAttempt = nullTimeValue(lastAttempt)
	item.NextRetry = nullTimeValue(nextRetry)

	if errorKindStr.Valid {
		kind := model.ParseErrorKind(errorKindStr.String)
		item.ErrorKind = &kind
	}

	if bytesDownloaded.Valid {
		item.BytesDownloaded = &bytesDownloaded.Int64
	}

	return &item, nil
}

func scanItems(rows *sql.Rows) ([]*model.QueueItem, error) {
	var items []*model.QueueItem

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("queue store: scan item: %w", err)
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

func parentIDValue(id *uuid.UUID) any {
	if id == nil {
		return ""
	}

	return id.String()
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}

	return *t
}

func int64Value(v *int64) any {
	if v == nil {
		return nil
	}

	return *v
}

func errorKindValue(k *model.ErrorKind) any {
	if k == nil {
		return nil
	}

	return k.String()
}

func nullTimeValue(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}

	t := nt.Time

	return &t
}
