package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockalert/internal/alert"
	logx "stockalert/pkg/logx"
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pcfg.MaxConns = 4
	pcfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Debug("postgres store opened", logx.String("host", pcfg.ConnConfig.Host))
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) ListRecipients(ctx context.Context) ([]alert.Recipient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id::text, u.name, u.email, u.active,
		       p.email_alerts_enabled, p.low_stock_alerts_enabled,
		       p.expiry_alerts_enabled, p.sales_summary_enabled
		FROM users u
		JOIN notification_preferences p ON p.user_id = u.id
		WHERE u.active
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

func (s *postgresStore) LowStockItems(ctx context.Context, below, limit int) ([]alert.InventoryItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, quantity, expiry_date, active FROM inventory_items
		WHERE active AND quantity < $1
		ORDER BY quantity ASC, name ASC
		LIMIT $2`, below, pgLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanPostgresItems(rows)
}

func (s *postgresStore) ExpiringItems(ctx context.Context, from, to time.Time, limit int) ([]alert.InventoryItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, quantity, expiry_date, active FROM inventory_items
		WHERE active AND expiry_date > $1 AND expiry_date < $2
		ORDER BY expiry_date ASC, name ASC
		LIMIT $3`, from, to, pgLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanPostgresItems(rows)
}

func (s *postgresStore) CountTransactionsSince(ctx context.Context, since time.Time) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE created_at >= $1`, since).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return int(n), err
}

func scanPostgresItems(rows pgx.Rows) ([]alert.InventoryItem, error) {
	defer rows.Close()
	var out []alert.InventoryItem
	for rows.Next() {
		var (
			it     alert.InventoryItem
			expiry *time.Time
		)
		if err := rows.Scan(&it.Name, &it.Quantity, &expiry, &it.Active); err != nil {
			return nil, err
		}
		if expiry != nil {
			it.ExpiryDate = *expiry
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// LIMIT NULL is unbounded in PostgreSQL.
func pgLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
