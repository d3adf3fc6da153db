// Package storage is the read-only data access layer for the notification run.
//
// It supports:
//   - sqlite (modernc.org/sqlite); a new file gets the schema, an existing one is opened query-only
//   - postgres (pgx connection pool)
//   - mongo (official v2 driver)
//
// Every driver implements Store, which is alert.Source plus the recipient query.
package storage
