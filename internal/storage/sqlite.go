package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"stockalert/internal/alert"
	logx "stockalert/pkg/logx"
)

// Times are stored as unix milliseconds.

//go:embed schema.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// openSQLite bootstraps the schema only when it creates the database file.
// An existing database belongs to the inventory application and is opened
// with query_only set.
func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := cfg.DSN
	fresh := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fresh = true
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))

	st := &sqliteStore{db: db, log: log}
	if fresh {
		if err := st.bootstrap(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		log.Info("sqlite store created", logx.String("path", path))
	} else if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite query_only: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path), logx.Bool("fresh", fresh))
	return st, nil
}

func (s *sqliteStore) bootstrap(ctx context.Context) error {
	_, _ = s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListRecipients(ctx context.Context) ([]alert.Recipient, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.active,
		       p.email_alerts_enabled, p.low_stock_alerts_enabled,
		       p.expiry_alerts_enabled, p.sales_summary_enabled
		FROM users u
		JOIN notification_preferences p ON p.user_id = u.id
		WHERE u.active = 1
		ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alert.Recipient
	for rows.Next() {
		var (
			r alert.Recipient
			p alert.Preferences
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Active,
			&p.EmailAlertsEnabled, &p.LowStockAlertsEnabled,
			&p.ExpiryAlertsEnabled, &p.SalesSummaryEnabled); err != nil {
			return nil, err
		}
		r.Preferences = &p
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) LowStockItems(ctx context.Context, below, limit int) ([]alert.InventoryItem, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, quantity, expiry_at, active FROM inventory_items
		WHERE active = 1 AND quantity < ?
		ORDER BY quantity ASC, name ASC
		LIMIT ?`, below, sqliteLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanSQLiteItems(rows)
}

func (s *sqliteStore) ExpiringItems(ctx context.Context, from, to time.Time, limit int) ([]alert.InventoryItem, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, quantity, expiry_at, active FROM inventory_items
		WHERE active = 1 AND expiry_at IS NOT NULL AND expiry_at > ? AND expiry_at < ?
		ORDER BY expiry_at ASC, name ASC
		LIMIT ?`, from.UnixMilli(), to.UnixMilli(), sqliteLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanSQLiteItems(rows)
}

func (s *sqliteStore) CountTransactionsSince(ctx context.Context, since time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE created_at >= ?`, since.UnixMilli()).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func scanSQLiteItems(rows *sql.Rows) ([]alert.InventoryItem, error) {
	defer rows.Close()
	var out []alert.InventoryItem
	for rows.Next() {
		var (
			it     alert.InventoryItem
			expiry sql.NullInt64
		)
		if err := rows.Scan(&it.Name, &it.Quantity, &expiry, &it.Active); err != nil {
			return nil, err
		}
		if expiry.Valid {
			it.ExpiryDate = time.UnixMilli(expiry.Int64).UTC()
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// LIMIT -1 is unbounded in SQLite.
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
