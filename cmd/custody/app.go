package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq" // Postgres Driver
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/custody/pkg/access"
	"github.com/Mindburn-Labs/custody/pkg/anchor"
	"github.com/Mindburn-Labs/custody/pkg/audit"
	"github.com/Mindburn-Labs/custody/pkg/cache"
	"github.com/Mindburn-Labs/custody/pkg/catalog"
	"github.com/Mindburn-Labs/custody/pkg/config"
	"github.com/Mindburn-Labs/custody/pkg/contentstore"
	"github.com/Mindburn-Labs/custody/pkg/guard"
	"github.com/Mindburn-Labs/custody/pkg/observability"
	"github.com/Mindburn-Labs/custody/pkg/resiliency"
	"github.com/Mindburn-Labs/custody/pkg/store"
)

const ledgerSigningPurpose = "custody-ledger-signing"

// app is a fully wired custody node.
type app struct {
	cfg       *config.Config
	profile   *config.Profile
	logger    *slog.Logger
	catalog   *catalog.Catalog
	worker    *anchor.Worker
	telemetry *observability.Provider
	closers   []func() error
}

// openApp wires every component from cfg. Anchoring stays idle until startAnchoring.
func openApp(ctx context.Context, cfg *config.Config, profile *config.Profile, logger *slog.Logger) (a *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a = &app{cfg: cfg, profile: profile, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	records, err := a.openDatabase(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := secretProvider(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	keys, err := provider.LoadKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	suite, err := guard.ParseSuite(cfg.Secrets.CipherSuite)
	if err != nil {
		return nil, err
	}
	g, err := guard.New(ctx, guard.StaticSecrets(keys), guard.WithSuite(suite))
	if err != nil {
		return nil, fmt.Errorf("init guard: %w", err)
	}

	content, err := contentstore.Open(ctx, cfg.Content, logger.With("component", "contentstore"))
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}

	client, err := a.openLedger()
	if err != nil {
		return nil, err
	}
	seed, err := guard.DeriveKey(keys.Keys[keys.ActiveID], ledgerSigningPurpose, keys.ActiveID, 32)
	if err != nil {
		return nil, fmt.Errorf("derive ledger signing key: %w", err)
	}
	signer, err := anchor.NewSignerFromSeed(seed, "ledger-"+keys.ActiveID)
	if err != nil {
		return nil, err
	}
	anchorer := anchor.New(client, signer, anchor.WithLogger(logger.With("component", "anchor")))

	a.telemetry, err = observability.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.telemetry.Shutdown(shutdownCtx)
	})

	admission, err := catalog.NewAdmission(profile.Admission)
	if err != nil {
		return nil, err
	}
	opts := []catalog.Option{
		catalog.WithLogger(logger.With("component", "catalog")),
		catalog.WithAdmission(admission),
		catalog.WithTelemetry(a.telemetry),
	}
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, profile.CacheTTL)
		a.closers = append(a.closers, rc.Close)
		opts = append(opts, catalog.WithCache(rc), catalog.WithHealthCheck("cache", rc.Ping))
	}

	a.catalog, err = catalog.New(catalog.Deps{
		Records: records,
		Content: content,
		Cipher:  g,
		Access:  access.NewController(records, records, access.WithLogger(logger.With("component", "access"))),
		Audit:   audit.NewLog(records, nil),
		Ledger:  anchorer,
	}, opts...)
	if err != nil {
		return nil, err
	}

	a.worker = anchor.NewWorker(anchorer, a.catalog, cfg.Ledger.Worker, logger.With("component", "anchor-worker"))
	a.catalog.SetScheduler(a.worker)
	logger.InfoContext(ctx, "custody node ready",
		"ledger", cfg.Ledger.Driver, "content_primary", cfg.Content.Primary,
		"cipher", suite.String(), "signing_key", signer.PublicKey())
	return a, nil
}

// openDatabase selects SQLite lite mode when DATABASE_URL is unset and Postgres otherwise.
func (a *app) openDatabase(ctx context.Context) (*store.SQLStore, error) {
	var (
		db      *sql.DB
		dialect store.Dialect
		err     error
	)
	if a.cfg.DatabaseURL == "" {
		if err := os.MkdirAll(a.cfg.DataDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		path := a.cfg.SQLitePath()
		a.logger.InfoContext(ctx, "lite mode: using sqlite", "path", path)
		db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// One connection keeps writers from contending for the file lock.
		db.SetMaxOpenConns(1)
		dialect = store.DialectSQLite
	} else {
		db, err = sql.Open("postgres", a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		dialect = store.DialectPostgres
	}
	a.closers = append(a.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("DB ping failed: %w", err)
	}
	s := store.NewSQLStore(db, dialect)
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (a *app) openLedger() (anchor.Client, error) {
	switch a.cfg.Ledger.Driver {
	case config.LedgerMemory:
		a.logger.Warn("memory ledger: anchors do not survive a restart")
		return anchor.NewMemoryClient(), nil
	case config.LedgerHTTP:
		breaker := resiliency.NewCircuitBreaker("ledger", 5, 30*time.Second)
		return anchor.NewHTTPClient(a.cfg.Ledger.URL, a.cfg.Ledger.Timeout, breaker)
	default:
		c, err := anchor.OpenChainClient(filepath.Join(a.cfg.DataDir, "ledger"), a.cfg.Ledger.Confirmations)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	}
}

func secretProvider(cfg config.SecretsConfig) (guard.SecretProvider, error) {
	switch cfg.Source {
	case config.SecretsEnv:
		return guard.EnvSecrets{}, nil
	case config.SecretsFile:
		if _, err := os.Stat(cfg.KeystorePath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("keystore %s not found; run `custody keygen` first", cfg.KeystorePath)
		}
		return guard.FileSecrets{Path: cfg.KeystorePath}, nil
	default:
		return nil, fmt.Errorf("unknown secret source %q", cfg.Source)
	}
}

// startAnchoring launches the worker pool and re-enqueues unfinished anchoring.
func (a *app) startAnchoring(ctx context.Context) {
	a.worker.Start(ctx)
	n, err := a.catalog.ResumeAnchoring(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "resume anchoring failed", "error", err)
		return
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "resumed anchoring", "records", n)
	}
}

// Close stops background work and releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.worker != nil {
		if n := a.worker.Pending(); n > 0 {
			a.logger.Info("stopping anchor worker, queued records resume on next start", "pending", n)
		}
		a.worker.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
