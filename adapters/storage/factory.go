package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/Skryldev/photo-compressor/config"
	"github.com/Skryldev/photo-compressor/core"
)

// FromConfig builds the adapter selected by cfg.Storage. It returns nil for
// StorageNone.
func FromConfig(ctx context.Context, cfg config.Config) (core.StorageAdapter, error) {
	switch cfg.Storage {
	case config.StorageNone, "":
		return nil, nil
	case config.StorageLocal:
		return NewLocal(cfg.Local.RootDir, os.FileMode(cfg.Local.Permissions))
	case config.StorageS3:
		client, err := NewAWSClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3(client, cfg.S3.Bucket)
	}
	return nil, fmt.Errorf("storage: unknown backend %q", cfg.Storage)
}
