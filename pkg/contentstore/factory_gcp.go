//go:build gcp

package contentstore

import "context"

func newGCSBackend(ctx context.Context, cfg GCSConfig) (Backend, error) {
	return NewGCSBackend(ctx, cfg)
}
