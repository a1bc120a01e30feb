package contentstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileBackend_PutGet(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	ctx := context.Background()

	ptr, err := b.Put(ctx, []byte("sealed bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(ptr, "sha256:") {
		t.Errorf("pointer %q lacks sha256 prefix", ptr)
	}

	again, err := b.Put(ctx, []byte("sealed bytes"))
	if err != nil || again != ptr {
		t.Fatalf("second Put = %q, %v; want %q", again, err, ptr)
	}

	data, err := b.Get(ctx, ptr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "sealed bytes" {
		t.Errorf("Get = %q", data)
	}

	ok, err := b.Exists(ctx, ptr)
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected exactly one blob file, found %d", len(entries))
	}
	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestFileBackend_Missing(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "content"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	ctx := context.Background()

	_, err = b.Get(ctx, PointerFor([]byte("absent")))
	if !isNotFound(err) {
		t.Errorf("Get absent: err = %v, want ErrBlobNotFound", err)
	}

	ok, err := b.Exists(ctx, PointerFor([]byte("absent")))
	if err != nil || ok {
		t.Errorf("Exists absent = %v, %v", ok, err)
	}
}

func TestFileBackend_RejectsBadPointers(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	for _, ptr := range []string{"", "md5:abc", "sha256:../../etc/passwd", "sha256:zz"} {
		if _, err := b.Get(context.Background(), ptr); err == nil || isNotFound(err) {
			t.Errorf("Get(%q) err = %v, want a format error", ptr, err)
		}
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrBlobNotFound)
}
