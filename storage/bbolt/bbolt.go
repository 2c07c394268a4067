// Package bbolt provides a BBolt-backed storage.Snapshotter.
package bbolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/assettag/storage"
)

var (
	snapshotBucket = []byte("snapshots")
	registryKey    = []byte("registry")
)

// Store implements storage.Snapshotter backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Snapshotter = (*Store)(nil)

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewFromFile opens a BBolt database at the given path and returns a new Store.
func NewFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		if b == nil {
			return storage.ErrNotFound
		}
		v := b.Get(registryKey)
		if v == nil {
			return storage.ErrNotFound
		}
		// v is only valid for the life of the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(snapshotBucket)
		if err != nil {
			return err
		}
		return b.Put(registryKey, data)
	})
}
