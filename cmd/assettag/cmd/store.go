package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcleod/assettag/config"
	"github.com/jmcleod/assettag/storage"
	bboltstorage "github.com/jmcleod/assettag/storage/bbolt"
	filestorage "github.com/jmcleod/assettag/storage/file"
	"github.com/jmcleod/assettag/storage/memory"
	"github.com/jmcleod/assettag/storage/postgres"
	"github.com/jmcleod/assettag/storage/sqlite"
)

// openStore opens the snapshot backend selected by cfg.StorageDriver.
func openStore(ctx context.Context, cfg config.Config) (storage.Snapshotter, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return postgres.NewFromDSN(ctx, cfg.PostgresDSN)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	switch cfg.StorageDriver {
	case config.DriverFile, "":
		return filestorage.New(filepath.Join(cfg.DataDir, "assets.json"))
	case config.DriverBolt:
		return bboltstorage.NewFromFile(filepath.Join(cfg.DataDir, "assets.db"), nil)
	case config.DriverSQLite:
		return sqlite.Open(ctx, filepath.Join(cfg.DataDir, "assets.sqlite"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
