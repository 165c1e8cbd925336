// Package storage persists verification runs in SQLite so a run's
// accumulated issues survive between invocations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// RunStore implements service.RunStorage over a local SQLite database.
type RunStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open opens (creating if needed) the run database at the given path.
func Open(dbPath string) (*RunStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path must not be empty")
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &RunStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// migrate creates the schema; every statement is idempotent.
func (s *RunStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL,
			language TEXT NOT NULL,
			created_at TEXT NOT NULL,
			passed INTEGER NOT NULL DEFAULT 0,
			attention INTEGER NOT NULL DEFAULT 0,
			auto_reviewed INTEGER NOT NULL DEFAULT 0,
			total_unreviewed INTEGER NOT NULL DEFAULT 0,
			skipped_unchanged INTEGER NOT NULL DEFAULT 0,
			has_more INTEGER NOT NULL DEFAULT 0,
			next_offset INTEGER NOT NULL DEFAULT 0,
			include_reviewed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS run_issues (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			key TEXT NOT NULL,
			source TEXT NOT NULL,
			translation TEXT NOT NULL,
			issues TEXT NOT NULL,
			suggested_fix TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_file_language
			ON runs(file_id, language, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate run storage: %w", err)
		}
	}
	return nil
}
