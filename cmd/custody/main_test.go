package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/custody/pkg/catalog"
	"github.com/Mindburn-Labs/custody/pkg/config"
	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

// liteEnv points every setting at a fresh data directory with a local ledger.
func liteEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for k, v := range map[string]string{
		"DATA_DIR":               dir,
		"DATABASE_URL":           "",
		"CUSTODY_PROFILE":        "",
		"CUSTODY_KEYSTORE":       "",
		"SECRET_SOURCE":          "file",
		"CONTENT_PRIMARY":        "none",
		"LEDGER_DRIVER":          "local",
		"LEDGER_CONFIRMATIONS":   "0",
		"LEDGER_CONFIRM_TIMEOUT": "2s",
		"LEDGER_RETRY_BASE":      "10ms",
		"REDIS_ADDR":             "",
		"OTEL_ENABLED":           "false",
		"LOG_LEVEL":              "ERROR",
	} {
		t.Setenv(k, v)
	}
	return dir
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestKeygen_RefusesOverwrite(t *testing.T) {
	dir := liteEnv(t)

	code, out, _ := run("keygen")
	require.Equal(t, 0, code)
	assert.Contains(t, out, filepath.Join(dir, "keystore.json"))

	code, _, errOut := run("keygen")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")
}

func TestKeygen_Env(t *testing.T) {
	liteEnv(t)
	code, out, _ := run("keygen", "--env", "--key-id", "k7")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "CUSTODY_MASTER_KEY=")
	assert.Contains(t, out, "CUSTODY_MASTER_KEY_ID=k7")
}

func TestHealth_LiteMode(t *testing.T) {
	liteEnv(t)
	code, _, _ := run("keygen")
	require.Equal(t, 0, code)

	code, out, errOut := run("health")
	require.Equal(t, 0, code, errOut)
	var report catalog.HealthReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, catalog.StatusHealthy, report.Status)
	assert.Equal(t, "ok", report.Components["database"])
	assert.Equal(t, "ok", report.Components["ledger"])
	assert.Equal(t, "ok", report.Components["content.fallback:file"])
}

func TestHealth_MissingKeystore(t *testing.T) {
	liteEnv(t)
	code, _, errOut := run("health")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "custody keygen")
}

func TestUnknownProfileFails(t *testing.T) {
	liteEnv(t)
	code, _, errOut := run("health", "--profile", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "load profile")
}

func TestRestart_ResumesAnchoring(t *testing.T) {
	liteEnv(t)
	code, _, _ := run("keygen")
	require.Equal(t, 0, code)
	ctx := context.Background()

	cfg := config.Load()
	profile := config.DefaultProfile()

	// First boot: the upload is queued but the worker never runs.
	var logs bytes.Buffer
	first, err := openApp(ctx, cfg, profile, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	rec, err := first.catalog.Upload(ctx, "alice", []byte("echocardiogram"), catalog.UploadRequest{FileName: "echo.pdf"})
	require.NoError(t, err)
	first.Close()
	assert.Contains(t, logs.String(), "pending=1")

	second, err := openApp(ctx, cfg, profile, quietLogger())
	require.NoError(t, err)
	defer second.Close()

	got, err := second.catalog.Get(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, contracts.StateStored, got.State)

	second.startAnchoring(ctx)
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, second.worker.Wait(waitCtx))

	got, err = second.catalog.Get(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, contracts.StateAnchored, got.State)

	res, err := second.catalog.Verify(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.True(t, res.OnChain)
	assert.True(t, res.HashMatches)

	out, err := second.catalog.Download(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "echocardiogram", string(out.Data))
	second.Close()

	code, stdout, errOut := run("audit", "verify", rec.ID, "missing-record")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "OK   "+rec.ID)
	assert.Contains(t, stdout, "FAIL missing-record")
	assert.Contains(t, errOut, "1 of 2")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
