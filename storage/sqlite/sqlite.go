// Package sqlite provides a storage.Snapshotter backed by a local SQLite
// database using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/jmcleod/assettag/storage"
)

const snapshotID = "registry"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id       TEXT PRIMARY KEY,
		data     BLOB NOT NULL,
		saved_at TEXT NOT NULL
	)`,
}

// Store implements storage.Snapshotter using a SQLite database.
type Store struct {
	db *sql.DB
}

var _ storage.Snapshotter = (*Store)(nil)

// Open opens (or creates) a SQLite database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite handles one writer at a time.

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE id = ?`, snapshotID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, data, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		snapshotID, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}
