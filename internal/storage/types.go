package storage

import (
	"context"
	"errors"
	"time"

	"stockalert/internal/alert"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrMissingDSN    = errors.New("storage dsn is required")
	ErrClosed        = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file; DSN is the file path
//   - "postgres": PostgreSQL connection string
//   - "mongo": MongoDB URI; Database names the database
type Config struct {
	Driver      string
	DSN         string
	Database    string        // mongo only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the per-run session over the data store.
type Store interface {
	alert.Source
	// ListRecipients returns active recipients that carry a preference record.
	// Recipients whose email alerts are disabled are still returned.
	ListRecipients(ctx context.Context) ([]alert.Recipient, error)
	Close() error
}

// Opener acquires a Store for the duration of one run.
type Opener interface {
	Open(ctx context.Context) (Store, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Store, error)

func (f OpenerFunc) Open(ctx context.Context) (Store, error) { return f(ctx) }
