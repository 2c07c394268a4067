// Package file provides a storage.Snapshotter that keeps the registry
// snapshot in a single JSON file.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmcleod/assettag/storage"
)

// DefaultName is the snapshot file name used inside the data directory.
const DefaultName = "assets.json"

// Store implements storage.Snapshotter on the local filesystem. Saves
// write a temporary file in the same directory and rename it over the
// target so readers never observe a partially written snapshot.
type Store struct {
	mu   sync.Mutex
	path string
}

var _ storage.Snapshotter = (*Store)(nil)

// New returns a Store for the snapshot at path. The parent directory is
// created if needed.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".assets-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("setting snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }
