//go:build !gcp

package contentstore

import (
	"context"
	"errors"
)

// GCSConfig holds configuration for the GCS backend, available with -tags gcp.
type GCSConfig struct {
	Bucket string
	Prefix string
}

func newGCSBackend(context.Context, GCSConfig) (Backend, error) {
	return nil, errors.New("GCS storage is not enabled in this build (use -tags gcp)")
}
