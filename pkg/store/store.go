// Package store persists projects, scans, result sets and scan logs in
// SQLite.
//
// The database runs in WAL mode so readers never wait on the scan writer.
// A completed scan's license and security results are written in the same
// transaction that flips the scan to completed; readers either see the whole
// result set or the previous latest completed scan.
//
// Times are stored as unix milliseconds.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
)

// Store is a SQLite-backed repository. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// dsn builds the connection string. Pragmas are applied per connection by
// the driver, so every pooled connection gets the busy timeout and foreign
// keys. Write transactions take the lock up front.
func dsn(path string) string {
	return path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetClock replaces the time source. Tests use it to place scans and
// projects in specific months.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	git_url TEXT NOT NULL,
	package_manager TEXT NOT NULL,
	output_format TEXT NOT NULL DEFAULT '',
	deployment_type TEXT NOT NULL DEFAULT '',
	development_type TEXT NOT NULL DEFAULT 'organization',
	user_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	branch TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	error_code TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_scans_active
	ON scans(project_id) WHERE state IN ('pending', 'running');
CREATE INDEX IF NOT EXISTS idx_scans_project_state
	ON scans(project_id, state, completed_at);

CREATE TABLE IF NOT EXISTS license_scan_results (
	id TEXT PRIMARY KEY,
	scan_id TEXT NOT NULL UNIQUE REFERENCES scans(id) ON DELETE CASCADE,
	started_at INTEGER NOT NULL,
	completed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS security_scan_results (
	id TEXT PRIMARY KEY,
	scan_id TEXT NOT NULL UNIQUE REFERENCES scans(id) ON DELETE CASCADE,
	started_at INTEGER NOT NULL,
	completed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS license_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	result_id TEXT NOT NULL REFERENCES license_scan_results(id) ON DELETE CASCADE,
	display_identifier TEXT NOT NULL,
	license TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_license_items_result ON license_items(result_id);

CREATE TABLE IF NOT EXISTS security_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	result_id TEXT NOT NULL REFERENCES security_scan_results(id) ON DELETE CASCADE,
	display_identifier TEXT NOT NULL,
	severity INTEGER NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	vulnerability_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_security_items_result ON security_items(result_id);

CREATE TABLE IF NOT EXISTS scan_logs (
	scan_id TEXT PRIMARY KEY REFERENCES scans(id) ON DELETE CASCADE,
	data BLOB NOT NULL,
	size INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
`

// =============================================================================
// Helpers
// =============================================================================

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func notFound(kind string, id any) error {
	return bErrors.New(bErrors.ErrCodeNotFound, "%s %v not found", kind, id)
}

// withTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
