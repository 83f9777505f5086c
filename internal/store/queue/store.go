// Package queue implements the persistent download queue and audit log (C4):
// a single-writer sqlite-backed store with WAL read concurrency, mirroring
// the single-writer-mutex pattern used throughout the corpus for embedded
// relational stores.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3" //nolint:revive // blank import registers the sqlite3 driver.

	"github.com/pezzottify/catalog-engine/internal/logger"
)

// Store is the single-writer download queue store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// ErrNewerSchema is returned when the database's user_version is newer than
// this binary knows how to handle.
var ErrNewerSchema = errors.New("queue store: database schema is newer than this build supports")

// ErrAlreadyClaimed describes an item that is already claimed or not Pending.
// ClaimForProcessing does not return it: it reports a lost race as false with
// a nil error.
var ErrAlreadyClaimed = errors.New("queue store: item already claimed or not pending")

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("queue store: item not found")

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
			`CREATE TABLE queue_items (
				id TEXT PRIMARY KEY,
				parent_id TEXT,
				status TEXT NOT NULL,
				priority TEXT NOT NULL,
				content_type TEXT NOT NULL,
				content_id TEXT NOT NULL,
				content_name TEXT NOT NULL DEFAULT '',
				artist_name TEXT NOT NULL DEFAULT '',
				request_source TEXT NOT NULL,
				requested_by_user_id TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				started_at DATETIME,
				completed_at DATETIME,
				last_attempt_at DATETIME,
				next_retry_at DATETIME,
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 0,
				error_kind TEXT,
				error_message TEXT NOT NULL DEFAULT '',
				bytes_downloaded INTEGER,
				processing_duration_ms INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX idx_queue_items_status_priority_created
				ON queue_items(status, priority, created_at)`,
			`CREATE INDEX idx_queue_items_parent_id ON queue_items(parent_id)`,
			`CREATE INDEX idx_queue_items_content ON queue_items(content_type, content_id)`,
			`CREATE TABLE audit_entries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				queue_item_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				detail TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_audit_entries_queue_item_id ON audit_entries(queue_item_id)`,
			`CREATE INDEX idx_audit_entries_created_at ON audit_entries(created_at)`,
			`CREATE TABLE user_activity (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				content_type TEXT NOT NULL,
				bytes INTEGER NOT NULL DEFAULT 0,
				success INTEGER NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_user_activity_user_created ON user_activity(user_id, created_at)`,
			`CREATE TABLE completion_activity (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content_type TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_completion_activity_created ON completion_activity(created_at)`,
		},
	},
}

// Open opens (creating if absent) the sqlite database at path, enables WAL,
// and migrates the schema forward. It fails fatally (returns an error,
// never silently downgrades) if the on-disk schema is newer than this
// build's migration ledger.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("queue store: open: %w", err)
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
		return fmt.Errorf("queue store: read user_version: %w", err)
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
			return fmt.Errorf("queue store: begin migration %d: %w", m.version, err)
		}

		for _, stmt := range m.stmts {
			if _, err = tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()

				return fmt.Errorf("queue store: apply migration %d: %w", m.version, err)
			}
		}

		if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("queue store: stamp migration %d: %w", m.version, err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("queue store: commit migration %d: %w", m.version, err)
		}

		logger.Infof(ctx, "queue store: applied migration %d", m.version)
	}

	return nil
}

// withWriteTx runs fn inside the single writer mutex and a transaction,
// committing on success and rolling back on error. Mirrors the
// transaction-per-mutating-call contract from spec §4.4.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("queue store: begin tx: %w", err)
	}

	if err = fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("queue store: commit tx: %w", err)
	}

	return nil
}
