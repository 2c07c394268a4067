// Package memory provides a thread-safe in-memory storage.Snapshotter.
package memory

import (
	"context"
	"sync"

	"github.com/jmcleod/assettag/storage"
)

// Store is a thread-safe in-memory implementation of storage.Snapshotter.
// Suitable for testing, demos, and deployments that accept losing the
// registry on restart.
type Store struct {
	mu      sync.RWMutex
	data    []byte
	saves   int
	failErr error
}

var _ storage.Snapshotter = (*Store)(nil)

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{}
}

// NewWithData creates a Store pre-loaded with a snapshot.
func NewWithData(data []byte) *Store {
	return &Store{data: append([]byte(nil), data...)}
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

func (s *Store) Close() error { return nil }

// FailSaves makes every subsequent Save return err. A nil err restores
// normal behaviour.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// Saves returns the number of successful saves.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
