package guard

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeystore_LoadAndRefuseOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "custody.keys")

	require.NoError(t, GenerateKeystore(path, ""))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	ks, err := FileSecrets{Path: path}.LoadKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", ks.ActiveID)
	require.NoError(t, ks.Validate())

	assert.Error(t, GenerateKeystore(path, "k2"), "existing keystore must not be replaced")
}

func TestFileSecrets_Errors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := FileSecrets{Path: filepath.Join(dir, "missing")}.LoadKeys(ctx)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"active_key":"k1","keys":{"k1":"%%%"}}`), 0600))
	_, err = FileSecrets{Path: bad}.LoadKeys(ctx)
	assert.Error(t, err)
}

func TestEnvSecrets(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("CUSTODY_MASTER_KEY", base64.StdEncoding.EncodeToString(key))
	t.Setenv("CUSTODY_MASTER_KEY_ID", "prod-2026")

	ks, err := EnvSecrets{}.LoadKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "prod-2026", ks.ActiveID)
	assert.Equal(t, key, ks.Keys["prod-2026"])

	g, err := New(context.Background(), EnvSecrets{})
	require.NoError(t, err)
	assert.Equal(t, "prod-2026", g.ActiveKeyID())
}

func TestEnvSecrets_Unset(t *testing.T) {
	t.Setenv("CUSTODY_MASTER_KEY", "")
	_, err := EnvSecrets{}.LoadKeys(context.Background())
	assert.Error(t, err)
}
