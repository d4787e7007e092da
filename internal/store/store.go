// Package store is the durable record store backed by SQLite. It keeps leads,
// resolved companies and contacts, outreach records, dedup state, the run
// ledger and source cursors.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// ErrNotFound is returned by single-row lookups.
var ErrNotFound = errors.New("not found")

// Store handles all database operations.
type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) the database at path and migrates the schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// single writer: every write is serialized on one connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping fails with lead.ErrFatal when the database cannot be reached.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store unreachable: %v: %w", err, lead.ErrFatal)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store unreachable: %v: %w", err, lead.ErrFatal)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	PRAGMA busy_timeout = 5000;
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		posted_at INTEGER NOT NULL,
		observed_at INTEGER NOT NULL,
		source_url TEXT,
		author_handle TEXT,
		author_name TEXT,
		author_company TEXT,
		profile_url TEXT,
		accepted BOOLEAN NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		signals TEXT,
		rejection_reason TEXT,
		kind TEXT,
		company_name TEXT,
		company_key TEXT,
		role TEXT,
		domain_hint TEXT,
		fingerprint TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS companies (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		domain TEXT,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contacts (
		company_key TEXT NOT NULL,
		full_name TEXT NOT NULL,
		title TEXT,
		discovery TEXT NOT NULL,
		profile_url TEXT,
		emails TEXT,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (company_key, full_name)
	);

	CREATE TABLE IF NOT EXISTS outreach (
		id TEXT PRIMARY KEY,
		post_ref TEXT NOT NULL UNIQUE,
		company_key TEXT NOT NULL,
		status TEXT NOT NULL,
		record TEXT NOT NULL,
		sent_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fingerprints (
		fingerprint TEXT PRIMARY KEY,
		company_key TEXT,
		recorded_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS company_windows (
		company_key TEXT PRIMARY KEY,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger (
		item_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT,
		company_key TEXT,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT,
		at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS source_cursors (
		source TEXT PRIMARY KEY,
		since INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_outreach_status ON outreach(status);
	CREATE INDEX IF NOT EXISTS idx_outreach_company_sent ON outreach(company_key, sent_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_state ON ledger(state);
	CREATE INDEX IF NOT EXISTS idx_ledger_events_item ON ledger_events(item_id);
	CREATE INDEX IF NOT EXISTS idx_windows_seen ON company_windows(last_seen_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
