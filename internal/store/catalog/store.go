// Package catalog implements the local read-side catalog store: the
// authoritative list of tracks, album images and artist images the missing-
// files watchdog (C8) scans for absent media on disk. This is distinct from
// internal/client/catalog, which is the external downloader API consumed by
// the download manager — this store is the engine's own record of what the
// catalog should contain, read by the watchdog. No ingestion or download
// path writes to it; its rows come only from direct calls to the Upsert
// methods.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3" //nolint:revive // blank import registers the sqlite3 driver.

	"github.com/pezzottify/catalog-engine/internal/logger"
)

// Store is the single-writer local catalog store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// ErrNewerSchema is returned when the database's user_version is newer than this build supports.
var ErrNewerSchema = errors.New("catalog store: database schema is newer than this build supports")

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
			`CREATE TABLE tracks (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				album_id TEXT NOT NULL DEFAULT '',
				album_title TEXT NOT NULL DEFAULT '',
				artist_name TEXT NOT NULL DEFAULT '',
				audio_uri TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX idx_tracks_album ON tracks(album_id)`,
			`CREATE TABLE album_images (
				id TEXT PRIMARY KEY,
				album_id TEXT NOT NULL DEFAULT '',
				album_title TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE artist_images (
				id TEXT PRIMARY KEY,
				artist_id TEXT NOT NULL DEFAULT '',
				artist_name TEXT NOT NULL DEFAULT ''
			)`,
		},
	},
}

// Open opens (creating if absent) the sqlite database at path, enables WAL,
// and migrates the schema forward.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog store: open: %w", err)
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
		return fmt.Errorf("catalog store: read user_version: %w", err)
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
			return fmt.Errorf("catalog store: begin migration %d: %w", m.version, err)
		}

		for _, stmt := range m.stmts {
			if _, err = tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()

				return fmt.Errorf("catalog store: apply migration %d: %w", m.version, err)
			}
		}

		if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("catalog store: stamp migration %d: %w", m.version, err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("catalog store: commit migration %d: %w", m.version, err)
		}

		logger.Infof(ctx, "catalog store: applied migration %d", m.version)
	}

	return nil
}

func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog store: begin tx: %w", err)
	}

	if err = fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("catalog store: commit tx: %w", err)
	}

	return nil
}
