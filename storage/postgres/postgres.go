// Package postgres implements storage.Snapshotter backed by PostgreSQL.
//
// The snapshots table is keyed by a fixed snapshot id so a single row holds
// the whole registry; every save is an upsert of that row.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/assettag/storage"
)

const snapshotID = "registry"

// Store implements storage.Snapshotter backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Snapshotter = (*Store)(nil)

// New returns a Store backed by the given pgx connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewFromDSN creates a connection pool from a DSN string, ensures the
// schema exists, and returns a new Store.
func NewFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return New(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM snapshots WHERE id = $1`, snapshotID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, data, saved_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (id)
		 DO UPDATE SET data = EXCLUDED.data, saved_at = EXCLUDED.saved_at`,
		snapshotID, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}
