package contentstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

func TestOpen_LocalOnly(t *testing.T) {
	s, err := Open(context.Background(), Config{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)

	ptr, prov, err := s.Put(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, contracts.ProvenanceFallback, prov)
	assert.Equal(t, PointerFor([]byte("x")), ptr)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{DataDir: t.TempDir(), Primary: PrimaryS3}, nil)
	assert.ErrorContains(t, err, "bucket")

	_, err = Open(ctx, Config{DataDir: t.TempDir(), Primary: "ipfs"}, nil)
	assert.ErrorContains(t, err, "unsupported")
}
