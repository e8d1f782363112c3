// Package store is the durable persistence layer: one relational schema
// served by sqlite (modernc) or Postgres (pgx), selected by DSN. Queries are
// written with ?-placeholders and rebound for Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// timeFormat is how timestamps are stored: RFC3339Nano UTC strings, portable
// across both drivers.
const timeFormat = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SQLStore wraps the database handle.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// DriverFor picks the sql driver for a DSN: postgres URLs go to pgx,
// anything else is a sqlite path.
func DriverFor(dsn string) (driver, normalized string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx", dsn
	}
	if dsn == "" {
		dsn = "data/aistaff.db"
	}
	return "sqlite", dsn
}

// Open connects and pings the database.
func Open(dsn string) (*SQLStore, error) {
	driver, normalized := DriverFor(dsn)
	db, err := sql.Open(driver, normalized)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" {
		// sqlite allows one writer; serialize through the pool.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLStore{db: db, postgres: driver == "pgx"}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// DB exposes the handle for the migrate command.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Postgres reports whether the store runs on Postgres.
func (s *SQLStore) Postgres() bool { return s.postgres }

// rebind converts ?-placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// tx runs fn inside a transaction with ?-rebinding helpers.
func (s *SQLStore) tx(ctx context.Context, fn func(tx *sqlTx) error) error {
	raw, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	t := &sqlTx{raw: raw, store: s}
	if err := fn(t); err != nil {
		raw.Rollback()
		return err
	}
	if err := raw.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqlTx struct {
	raw   *sql.Tx
	store *SQLStore
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.raw.ExecContext(ctx, t.store.rebind(query), args...)
}

func (t *sqlTx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.raw.QueryRowContext(ctx, t.store.rebind(query), args...)
}
