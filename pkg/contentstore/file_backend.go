package contentstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps blobs as <hex>.blob files in a directory.
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to ensure content dir: %w", err)
	}
	return &FileBackend{baseDir: baseDir}, nil
}

func (b *FileBackend) Name() string { return "file" }

func (b *FileBackend) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pointer := PointerFor(data)
	path, err := b.path(pointer)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return pointer, nil
	}

	tmp, err := os.CreateTemp(b.baseDir, ".blob-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return pointer, nil
}

func (b *FileBackend) Get(ctx context.Context, pointer string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.path(pointer)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	data, err := os.ReadFile(path) //nolint:gosec // pointer validated as hex
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, pointer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (b *FileBackend) Exists(ctx context.Context, pointer string) (bool, error) {
	path, err := b.path(pointer)
	if err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Ping verifies the directory is still writable.
func (b *FileBackend) Ping(ctx context.Context) error {
	f, err := os.CreateTemp(b.baseDir, ".ping-*")
	if err != nil {
		return fmt.Errorf("content dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (b *FileBackend) path(pointer string) (string, error) {
	name, err := objectKey("", pointer)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.baseDir, name), nil
}
