package storage

import (
	"context"
	"fmt"
	"strings"

	logx "stockalert/pkg/logx"
)

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, ErrMissingDSN
	}

	switch driver := normalizeDriver(cfg.Driver); driver {
	case "sqlite":
		return openSQLite(ctx, cfg, log)
	case "postgres":
		return openPostgres(ctx, cfg, log)
	case "mongo":
		return openMongo(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// NewOpener returns an Opener that opens a fresh session from cfg on every call.
func NewOpener(cfg Config, log logx.Logger) Opener {
	return OpenerFunc(func(ctx context.Context) (Store, error) {
		return Open(ctx, cfg, log)
	})
}

func normalizeDriver(s string) string {
	switch d := strings.ToLower(strings.TrimSpace(s)); d {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "mongo", "mongodb":
		return "mongo"
	default:
		return d
	}
}

// Drivers lists the accepted driver names.
func Drivers() []string { return []string{"sqlite", "postgres", "mongo"} }

// ValidDriver reports whether s names a supported driver.
func ValidDriver(s string) bool {
	switch normalizeDriver(s) {
	case "sqlite", "postgres", "mongo":
		return true
	}
	return false
}
