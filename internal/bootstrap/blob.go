package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cipherstudio/sandbox-backend/config"
	"github.com/cipherstudio/sandbox-backend/internal/blobstore"
)

// OpenBlobStore builds the configured backend once at start-up. Every call
// through the returned store carries cfg.Timeout. The close func releases
// backend clients.
func OpenBlobStore(ctx context.Context, cfg config.StorageConfig) (blobstore.Store, func() error, error) {
	noop := func() error { return nil }

	var (
		store   blobstore.Store
		closeFn = noop
	)
	switch cfg.Driver {
	case "memory":
		slog.Warn("using in-memory blob store; saved files are lost on restart")
		store = blobstore.NewMemory()
	case "s3":
		s3, err := blobstore.NewS3(ctx, blobstore.S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			PathStyle:       cfg.PathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, noop, err
		}
		store = s3
	case "gcs":
		gcs, err := blobstore.NewGCS(ctx, blobstore.GCSOptions{
			Bucket:          cfg.Bucket,
			CredentialsPath: cfg.GCSCredentialsPath,
		})
		if err != nil {
			return nil, noop, err
		}
		store, closeFn = gcs, gcs.Close
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	slog.Info("blob store ready", "driver", cfg.Driver, "bucket", cfg.Bucket, "timeout", cfg.Timeout)
	return blobstore.WithTimeout(store, cfg.Timeout), closeFn, nil
}
