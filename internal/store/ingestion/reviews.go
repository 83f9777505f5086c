package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pezzottify/catalog-engine/internal/model"
)

// CreateReview inserts a new unresolved review item. The store does not
// enforce the "at most one unresolved review per job" invariant; the
// ingestion manager checks GetUnresolvedReview before creating one.
func (s *Store) CreateReview(ctx context.Context, review *model.ReviewItem) error {
	optionsJSON, err := json.Marshal(review.Options)
	if err != nil {
		return fmt.Errorf("ingestion store: marshal review options: %w", err)
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO review_items (id, job_id, question, options_json, created_at, resolved_at, resolved_by, selected_option)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			review.ID, review.JobID, review.Question, string(optionsJSON), review.Created,
			timeValue(review.ResolvedAt), review.ResolvedBy, review.SelectedOption)
		if execErr != nil {
			return fmt.Errorf("ingestion store: create review: %w", execErr)
		}

		return nil
	})
}

// ResolveReview stamps a review as resolved with the chosen option.
func (s *Store) ResolveReview(ctx context.Context, id, resolvedBy, selectedOption string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE review_items SET resolved_at = ?, resolved_by = ?, selected_option = ?
			WHERE id = ?`, time.Now().UTC(), resolvedBy, selectedOption, id)
		if err != nil {
			return fmt.Errorf("ingestion store: resolve review: %w", err)
		}

		return nil
	})
}

// GetReview fetches a single review by id.
func (s *Store) GetReview(ctx context.Context, id string) (*model.ReviewItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, question, options_json, created_at, resolved_at, resolved_by, selected_option
		FROM review_items WHERE id = ?`, id)

	review, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("ingestion store: get review: %w", err)
	}

	return review, nil
}

// GetUnresolvedReview returns the one unresolved review for a job, if any.
func (s *Store) GetUnresolvedReview(ctx context.Context, jobID string) (*model.ReviewItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, question, options_json, created_at, resolved_at, resolved_by, selected_option
		FROM review_items WHERE job_id = ? AND resolved_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, jobID)

	review, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // "no unresolved review" is not an error condition.
	}

	if err != nil {
		return nil, fmt.Errorf("ingestion store: get unresolved review: %w", err)
	}

	return review, nil
}

func scanReview(row rowScanner) (*model.ReviewItem, error) {
	var (
		review      model.ReviewItem
		optionsJSON string
		resolvedAt  sql.NullTime
	)

	err := row.Scan(&review.ID, &review.JobID, &review.Question, &optionsJSON, &review.Created,
		&resolvedAt, &review.ResolvedBy, &review.SelectedOption)
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(optionsJSON), &review.Options); err != nil {
		return nil, fmt.Errorf("unmarshal review options: %w", err)
	}

	if resolvedAt.Valid {
		review.ResolvedAt = &resolvedAt.Time
	}

	return &review, nil
}

// AppendReasoning records one line of the human-readable decision trail for
// a job (e.g. why a candidate scored the way it did), surfaced to reviewers
// alongside an AwaitingReview item.
func (s *Store) AppendReasoning(ctx context.Context, jobID, stage, detail string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reasoning_log (job_id, stage, detail, created_at) VALUES (?, ?, ?, ?)`,
			jobID, stage, detail, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("ingestion store: append reasoning: %w", err)
		}

		return nil
	})
}

// ReasoningEntry is one line of a job's decision trail.
type ReasoningEntry struct {
	Stage     string
	Detail    string
	CreatedAt time.Time
}

// GetReasoning returns a job's full decision trail, oldest first.
func (s *Store) GetReasoning(ctx context.Context, jobID string) ([]ReasoningEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, detail, created_at FROM reasoning_log
		WHERE job_id = ? ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("ingestion store: get reasoning: %w", err)
	}
	defer rows.Close()

	var entries []ReasoningEntry

	for rows.Next() {
		var entry ReasoningEntry
		if err = rows.Scan(&entry.Stage, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("ingestion store: scan reasoning: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
