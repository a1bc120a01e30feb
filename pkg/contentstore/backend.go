// Package contentstore persists encrypted blobs by content address.
//
// A Store pairs an optional primary backend (S3 or GCS) with a local fallback.
// Writes go to the primary first; if it fails, the blob lands on the fallback
// under the SHA-256 of the ciphertext, so every pointer stays content-derived.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/custody/pkg/guard"
)

// ErrBlobNotFound is returned by a Backend that does not hold a pointer.
var ErrBlobNotFound = errors.New("contentstore: blob not found")

// Backend is one place blobs can live.
type Backend interface {
	// Name identifies the backend in logs and health reports.
	Name() string
	// Put stores data and returns its pointer. Storing identical bytes twice yields the same pointer.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the blob or ErrBlobNotFound.
	Get(ctx context.Context, pointer string) ([]byte, error)
	// Exists reports whether the backend holds pointer.
	Exists(ctx context.Context, pointer string) (bool, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// PointerFor returns the content address of data, the guard content hash of
// the ciphertext.
func PointerFor(data []byte) string {
	return guard.ComputeContentHash(data)
}

// parsePointer validates a content address and returns its hex part.
func parsePointer(pointer string) (string, error) {
	if !guard.ValidHash(pointer) {
		return "", fmt.Errorf("invalid pointer: %q", pointer)
	}
	return strings.TrimPrefix(pointer, guard.HashPrefix), nil
}

// objectKey maps a pointer to a blob object name under prefix.
func objectKey(prefix, pointer string) (string, error) {
	raw, err := parsePointer(pointer)
	if err != nil {
		return "", err
	}
	return prefix + raw + ".blob", nil
}
