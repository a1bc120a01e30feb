//go:build gcp

package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSConfig holds configuration for GCSBackend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSBackend stores blobs in a Cloud Storage bucket keyed by content address.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBackend creates a client using application default credentials.
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs backend requires a bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSBackend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *GCSBackend) Name() string { return "gcs" }

func (b *GCSBackend) Put(ctx context.Context, data []byte) (string, error) {
	pointer := PointerFor(data)
	key, err := objectKey(b.prefix, pointer)
	if err != nil {
		return "", err
	}

	obj := b.client.Bucket(b.bucket).Object(key)
	if _, err := obj.Attrs(ctx); err == nil {
		return pointer, nil
	}

	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return pointer, nil
}

func (b *GCSBackend) Get(ctx context.Context, pointer string) ([]byte, error) {
	key, err := objectKey(b.prefix, pointer)
	if err != nil {
		return nil, err
	}

	reader, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, pointer)
		}
		return nil, fmt.Errorf("gcs get failed for %s: %w", pointer, err)
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

func (b *GCSBackend) Exists(ctx context.Context, pointer string) (bool, error) {
	key, err := objectKey(b.prefix, pointer)
	if err != nil {
		return false, err
	}
	_, err = b.client.Bucket(b.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

func (b *GCSBackend) Ping(ctx context.Context) error {
	if _, err := b.client.Bucket(b.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket attrs failed: %w", err)
	}
	return nil
}

// Close releases the GCS client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
