// Copyright 2026 PageDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"pagedb/internal/util"
)

// Default busy_timeout in milliseconds.
const defaultBusyTimeout = 30000

const storeSchema = `
-- One row per attempted checkpoint
CREATE TABLE IF NOT EXISTS checkpoints (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    sync_cycle INTEGER NOT NULL,
    checkpoint_cycle INTEGER NOT NULL,
    files_synced INTEGER NOT NULL DEFAULT 0,
    longest_sync_micros INTEGER NOT NULL DEFAULT 0,
    total_sync_micros INTEGER NOT NULL DEFAULT 0,
    unlinks_processed INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK (status IN ('complete', 'failed')),
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_started ON checkpoints(started_at DESC);
`

// Store is the SQLite-backed checkpoint metadata database.
type Store struct {
	path string
	db   *sql.DB
	bun  *bun.DB
}

// execPragma runs a PRAGMA statement using Query (not Exec) because libsql
// returns rows for PRAGMA statements.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	rows.Close()
	return nil
}

// applyPragmas sets essential PRAGMAs after opening a libsql connection.
// libsql ignores DSN-based _pragma=value parameters, so all PRAGMAs must be
// set explicitly after the connection is opened.
func applyPragmas(db *sql.DB) error {
	// Busy timeout first, so journal_mode=WAL below waits for locks instead
	// of failing immediately with "database is locked".
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeout)); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous=NORMAL: %w", err)
	}
	return nil
}

// OpenStore opens the checkpoint metadata database at path, creating it and
// its schema on first use.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("libsql", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	// Execute schema statements individually for libsql compatibility.
	if err := execStatements(db, storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		path: path,
		db:   db,
		bun:  bun.NewDB(db, sqlitedialect.New()),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// RecordCheckpoint inserts one checkpoint record. Retries transient
// "database is locked" errors, which can occur when CLI inspection and the
// checkpointer have the store open at the same time.
func (s *Store) RecordCheckpoint(ctx context.Context, rec *CheckpointModel) error {
	return util.Retry(ctx, func() error {
		_, err := s.bun.NewInsert().Model(rec).Exec(ctx)
		return err
	}, util.DatabaseRetryOptions(ctx)...)
}

// ListCheckpoints returns the most recent checkpoint records, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, limit int) ([]CheckpointModel, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []CheckpointModel
	err := s.bun.NewSelect().
		Model(&recs).
		Order("started_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// LastCheckpoint returns the most recent checkpoint record, or nil if none
// has been taken yet.
func (s *Store) LastCheckpoint(ctx context.Context) (*CheckpointModel, error) {
	var rec CheckpointModel
	err := s.bun.NewSelect().
		Model(&rec).
		Order("started_at DESC").
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
