// Package store persists complaint and enquiry records in Postgres. The
// table carries a unique constraint on session_ref; together with the
// advisory lock taken in InsertRecord it is the database half of the
// at-most-one-record guarantee.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the records table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS support_records (
			id             UUID PRIMARY KEY,
			record_number  TEXT NOT NULL UNIQUE,
			record_type    TEXT NOT NULL,
			session_ref    TEXT NOT NULL UNIQUE,
			intent         TEXT NOT NULL,
			customer_ref   TEXT NOT NULL,
			customer_name  TEXT NOT NULL DEFAULT '',
			details        TEXT NOT NULL DEFAULT '',
			priority       TEXT NOT NULL DEFAULT 'normal',
			resolution_due TIMESTAMPTZ NOT NULL,
			source         TEXT NOT NULL DEFAULT 'sahayak',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
