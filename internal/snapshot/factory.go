package snapshot

import (
	"context"
	"errors"
	"fmt"

	"csync/internal/config"
	"csync/internal/csync"
)

// ErrNoSnapshot is returned by Get when the instance has no snapshot.
var ErrNoSnapshot = errors.New("no snapshot stored")

// NewStoreFromConfig creates a snapshot store based on the config type. An
// empty type disables snapshots and returns a nil store. With encrypt set
// the store is wrapped in an AgeSealer.
func NewStoreFromConfig(ctx context.Context, cfg config.SnapshotConfig) (csync.SnapshotStore, error) {
	var store csync.SnapshotStore
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		store = NewMemoryStore()
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem snapshot store requires fs_root to be set")
		}
		fsStore, err := NewFileSystemStore(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		store = fsStore
	case "s3":
		s3Store, err := NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		return nil, fmt.Errorf("unknown snapshot type: %s", cfg.Type)
	}

	if cfg.Encrypt {
		store = NewAgeSealer(store, cfg.PublicKeyPath, cfg.PrivateKeyPath)
	}
	return store, nil
}
