// Package storage defines the durable snapshot contract for the asset
// registry. Backends persist an opaque, already-serialized snapshot; the
// registry owns the encoding.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no snapshot has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

// Snapshotter loads and saves the full registry snapshot.
type Snapshotter interface {
	// Load returns the most recently saved snapshot, or ErrNotFound.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the stored snapshot with data.
	Save(ctx context.Context, data []byte) error
	// Close releases any underlying resources.
	Close() error
}
