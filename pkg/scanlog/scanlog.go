// Package scanlog persists the captured fetcher output of each scan.
//
// Two backends exist: [SQLite] keeps logs in the main database next to the
// scan rows, [Mongo] moves them to a MongoDB collection so large logs do not
// grow the SQLite file.
package scanlog

import (
	"context"
	"fmt"

	"github.com/Tim-sandbox/barista/pkg/config"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// MaxSize bounds a stored log. Longer logs keep their tail, which is where
// toolchain errors end up.
const MaxSize = 4 << 20

const truncatedMarker = "[... log truncated ...]\n"

// Store saves and loads scan logs.
type Store interface {
	// Put stores the log of scanID, replacing an earlier one.
	Put(ctx context.Context, scanID, text string) error

	// Get returns the log of scanID or a NOT_FOUND error.
	Get(ctx context.Context, scanID string) (*model.ScanLog, error)

	// Close releases backend resources.
	Close() error
}

// Truncate keeps the last MaxSize bytes of text.
func Truncate(text string) string {
	if len(text) <= MaxSize {
		return text
	}
	return truncatedMarker + text[len(text)-MaxSize+len(truncatedMarker):]
}

// Open returns the backend selected by cfg. The SQLite backend shares db.
func Open(ctx context.Context, cfg config.ScanLog, db *store.Store) (Store, error) {
	switch cfg.Backend {
	case "", config.ScanLogSQLite:
		return NewSQLite(db), nil
	case config.ScanLogMongo:
		m, err := NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("scanlog: unknown backend %q", cfg.Backend)
	}
}

// SQLite stores logs in the barista database.
type SQLite struct {
	db *store.Store
}

// NewSQLite returns a backend writing to db.
func NewSQLite(db *store.Store) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Put(ctx context.Context, scanID, text string) error {
	return s.db.PutScanLog(ctx, scanID, Truncate(text))
}

func (s *SQLite) Get(ctx context.Context, scanID string) (*model.ScanLog, error) {
	return s.db.GetScanLog(ctx, scanID)
}

// Close is a no-op; the database is owned by the caller.
func (s *SQLite) Close() error { return nil }
