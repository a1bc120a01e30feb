package contentstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend holds blobs in memory. Failures can be injected to exercise fallback paths.
type MemoryBackend struct {
	name  string
	mu    sync.RWMutex
	blobs map[string][]byte
	fail  error
	puts  int
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend(name string) *MemoryBackend {
	if name == "" {
		name = "memory"
	}
	return &MemoryBackend{name: name, blobs: make(map[string][]byte)}
}

// SetFailure makes every call return err until cleared with nil.
func (b *MemoryBackend) SetFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

// Corrupt replaces the bytes stored under pointer.
func (b *MemoryBackend) Corrupt(pointer string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[pointer] = append([]byte(nil), data...)
}

// Remove drops a blob.
func (b *MemoryBackend) Remove(pointer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, pointer)
}

// Len returns the number of distinct blobs held.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}

// Puts returns how many Put calls reached the backend.
func (b *MemoryBackend) Puts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.puts
}

func (b *MemoryBackend) Name() string { return b.name }

func (b *MemoryBackend) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return "", b.fail
	}
	b.puts++
	pointer := PointerFor(data)
	if _, ok := b.blobs[pointer]; !ok {
		b.blobs[pointer] = append([]byte(nil), data...)
	}
	return pointer, nil
}

func (b *MemoryBackend) Get(ctx context.Context, pointer string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.fail != nil {
		return nil, b.fail
	}
	data, ok := b.blobs[pointer]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, pointer)
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) Exists(ctx context.Context, pointer string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.fail != nil {
		return false, b.fail
	}
	_, ok := b.blobs[pointer]
	return ok, nil
}

func (b *MemoryBackend) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fail
}
