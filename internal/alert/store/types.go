package store

import (
	"context"
	"time"

	"alertd/internal/alert"
)

// Config selects and configures a backend.
//
// Driver values:
//   - "dir": one file per alert id under Path (default)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists tracked alerts keyed by id. It is driven from a single task
// and need not be fast.
type Store interface {
	// Save writes or replaces the entry for rec.ID.
	Save(ctx context.Context, rec alert.Record) error
	// Erase removes the entry for id. A missing entry wraps alert.ErrUnknownID.
	Erase(ctx context.Context, id string) error
	// ScanAll returns every readable entry. Unparseable entries are listed in
	// Malformed and never abort the scan.
	ScanAll(ctx context.Context) (ScanResult, error)
	Close() error
}

// Persisted is the minimal form kept across a power cycle.
type Persisted struct {
	ID          string
	ScheduledAt time.Time
	Kind        alert.Kind
	Source      string
}

type ScanResult struct {
	Records []Persisted
	// ids of entries that failed to parse
	Malformed []string
}
