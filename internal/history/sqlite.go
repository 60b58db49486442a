// Package history persists a local journal of deployment runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record describes one deployment run.
type Record struct {
	ID        int64
	DeployID  string
	Folder    string
	Revision  string
	Outcome   string // success|warning|failed
	Bytes     int64
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Store is a SQLite-backed deployment journal.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the journal at dbPath.
// Use ":memory:" for an in-memory journal.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		deploy_id TEXT NOT NULL,
		folder TEXT NOT NULL,
		revision TEXT,
		outcome TEXT NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_deploy_id ON deployments(deploy_id);
	CREATE INDEX IF NOT EXISTS idx_started_at ON deployments(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records a finished deployment run.
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO deployments (deploy_id, folder, revision, outcome, bytes, error, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.DeployID, rec.Folder, rec.Revision, rec.Outcome, rec.Bytes, rec.Error,
		rec.StartedAt.Unix(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// Recent returns the most recent deployment runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, deploy_id, folder, revision, outcome, bytes, error, started_at, duration_ms FROM deployments ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var revision, errText sql.NullString
		var started, durationMS int64
		if err := rows.Scan(&rec.ID, &rec.DeployID, &rec.Folder, &revision, &rec.Outcome, &rec.Bytes, &errText, &started, &durationMS); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		rec.Revision = revision.String
		rec.Error = errText.String
		rec.StartedAt = time.Unix(started, 0)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
