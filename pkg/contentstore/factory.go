package contentstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Mindburn-Labs/custody/pkg/resiliency"
)

// PrimaryType selects the distributed backend.
type PrimaryType string

const (
	PrimaryNone PrimaryType = "none"
	PrimaryS3   PrimaryType = "s3"
	PrimaryGCS  PrimaryType = "gcs"
)

// Config describes a Store deployment.
type Config struct {
	Primary PrimaryType
	DataDir string // fallback blobs live in <DataDir>/content
	S3      S3Config
	GCS     GCSConfig
}

// Open builds a Store from cfg. The primary is wrapped in a circuit breaker.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default().With("component", "contentstore")
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	fallback, err := NewFileBackend(filepath.Join(dataDir, "content"))
	if err != nil {
		return nil, err
	}

	var primary Backend
	switch cfg.Primary {
	case "", PrimaryNone:
	case PrimaryS3:
		primary, err = NewS3Backend(ctx, cfg.S3)
	case PrimaryGCS:
		primary, err = newGCSBackend(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported content primary: %s", cfg.Primary)
	}
	if err != nil {
		return nil, err
	}

	opts := []Option{WithLogger(logger)}
	if primary != nil {
		opts = append(opts,
			WithPrimary(primary),
			WithPrimaryBreaker(resiliency.NewCircuitBreaker("content-"+primary.Name(), 5, 30*time.Second)),
		)
	}
	return New(fallback, opts...)
}
