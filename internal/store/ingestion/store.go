// Package ingestion implements the persistent store for ingestion jobs,
// files and reviews (C5): analogous single-writer sqlite design to
// internal/store/queue, scoped to the ingestion side of the data model.
package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3" //nolint:revive // blank import registers the sqlite3 driver.

	"github.com/pezzottify/catalog-engine/internal/logger"
)

// Store is the single-writer ingestion store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// ErrNewerSchema is returned when the database's user_version is newer than this build supports.
var ErrNewerSchema = errors.New("ingestion store: database schema is newer than this build supports")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("ingestion store: not found")

const schemaVersion = 1

type migration struct {
	version int
	stmts   []string
}

//nolint:gochecknoglobals // Ordered, append-only migration ledger.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE ingestion_jobs (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				original_filename TEXT NOT NULL DEFAULT '',
				total_size INTEGER NOT NULL DEFAULT 0,
				file_count INTEGER NOT NULL DEFAULT 0,
				context_kind TEXT NOT NULL,
				queue_item_id TEXT,
				upload_type TEXT NOT NULL,
				status TEXT NOT NULL,
				detected_artist TEXT NOT NULL DEFAULT '',
				detected_album TEXT NOT NULL DEFAULT '',
				detected_year TEXT NOT NULL DEFAULT '',
				matched_album_id TEXT NOT NULL DEFAULT '',
				match_confidence REAL NOT NULL DEFAULT 0,
				match_source TEXT NOT NULL DEFAULT '',
				ticket_type TEXT NOT NULL DEFAULT '',
				match_score REAL NOT NULL DEFAULT 0,
				match_delta_ms INTEGER NOT NULL DEFAULT 0,
				tracks_matched INTEGER NOT NULL DEFAULT 0,
				tracks_converted INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				completed_at DATETIME
			)`,
			`CREATE INDEX idx_ingestion_jobs_session ON ingestion_jobs(session_id)`,
			`CREATE INDEX idx_ingestion_jobs_user ON ingestion_jobs(user_id)`,
			`CREATE INDEX idx_ingestion_jobs_status ON ingestion_jobs(status)`,
			`CREATE INDEX idx_ingestion_jobs_queue_item ON ingestion_jobs(queue_item_id)`,
			`CREATE TABLE ingestion_files (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL,
				filename TEXT NOT NULL,
				size INTEGER NOT NULL DEFAULT 0,
				temp_path TEXT NOT NULL DEFAULT '',
				probed_duration_ms INTEGER,
				probed_codec TEXT,
				probed_bitrate INTEGER,
				probed_sample_rate INTEGER,
				tag_artist TEXT,
				tag_album TEXT,
				tag_title TEXT,
				tag_track_num INTEGER,
				tag_track_total INTEGER,
				tag_disc_num INTEGER,
				tag_year TEXT,
				matched_track_id TEXT NOT NULL DEFAULT '',
				match_confidence REAL NOT NULL DEFAULT 0,
				output_path TEXT NOT NULL DEFAULT '',
				converted INTEGER NOT NULL DEFAULT 0,
				conversion_reason TEXT NOT NULL DEFAULT '',
				original_bitrate INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX idx_ingestion_files_job ON ingestion_files(job_id)`,
			`CREATE TABLE review_items (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL,
				question TEXT NOT NULL,
				options_json TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				resolved_at DATETIME,
				resolved_by TEXT NOT NULL DEFAULT '',
				selected_option TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX idx_review_items_job ON review_items(job_id)`,
			`CREATE TABLE reasoning_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_id TEXT NOT NULL,
				stage TEXT NOT NULL,
				detail TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_reasoning_log_job ON reasoning_log(job_id)`,
		},
	},
}

// Open opens (creating if absent) the sqlite database at path, enables WAL,
// and migrates the schema forward.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ingestion store: open: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err = migrate(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("ingestion store: read user_version: %w", err)
	}

	if current > schemaVersion {
		return fmt.Errorf("%w: on-disk=%d, supported=%d", ErrNewerSchema, current, schemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("ingestion store: begin migration %d: %w", m.version, err)
		}

		for _, stmt := range m.stmts {
			if _, err = tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()

				return fmt.Errorf("ingestion store: apply migration %d: %w", m.version, err)
			}
		}

		if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("ingestion store: stamp migration %d: %w", m.version, err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("ingestion store: commit migration %d: %w", m.version, err)
		}

		logger.Infof(ctx, "ingestion store: applied migration %d", m.version)
	}

	return nil
}

func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ingestion store: begin tx: %w", err)
	}

	if err = fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ingestion store: commit tx: %w", err)
	}

	return nil
}
