// Package config loads custody server settings from the environment and an
// optional YAML deployment profile.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/custody/pkg/anchor"
	"github.com/Mindburn-Labs/custody/pkg/contentstore"
	"github.com/Mindburn-Labs/custody/pkg/observability"
	"github.com/Mindburn-Labs/custody/pkg/retry"
)

// Ledger drivers.
const (
	LedgerMemory = "memory"
	LedgerLocal  = "local"
	LedgerHTTP   = "http"
)

// Secret sources.
const (
	SecretsEnv  = "env"
	SecretsFile = "file"
)

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string // empty selects SQLite under DataDir
	DataDir     string
	ProfilePath string

	Content   contentstore.Config
	Ledger    LedgerConfig
	Secrets   SecretsConfig
	Redis     RedisConfig
	Telemetry *observability.Config
	RateLimit RateLimitConfig
}

// LedgerConfig selects the ledger client and bounds background anchoring.
type LedgerConfig struct {
	Driver        string
	URL           string
	Timeout       time.Duration
	Confirmations uint64 // local driver only
	Worker        anchor.WorkerConfig
}

// SecretsConfig selects where master keys come from.
type SecretsConfig struct {
	Source       string
	KeystorePath string
	CipherSuite  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig bounds API requests per principal. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load loads configuration from environment variables.
func Load() *Config {
	dataDir := env("DATA_DIR", "data")

	telemetry := observability.DefaultConfig()
	telemetry.Enabled = envBool("OTEL_ENABLED", false)
	telemetry.OTLPEndpoint = env("OTEL_EXPORTER_OTLP_ENDPOINT", telemetry.OTLPEndpoint)
	telemetry.Insecure = envBool("OTEL_INSECURE", true)
	telemetry.Environment = env("OTEL_ENVIRONMENT", telemetry.Environment)
	telemetry.SampleRate = envFloat("OTEL_SAMPLE_RATE", telemetry.SampleRate)

	def := anchor.DefaultWorkerConfig
	policy := retry.DefaultLedgerPolicy
	policy.MaxAttempts = envInt("LEDGER_MAX_ATTEMPTS", policy.MaxAttempts)
	policy.Base = envDuration("LEDGER_RETRY_BASE", policy.Base)
	policy.Max = envDuration("LEDGER_RETRY_MAX", policy.Max)

	return &Config{
		Port:        env("PORT", "8080"),
		LogLevel:    strings.ToUpper(env("LOG_LEVEL", "INFO")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DataDir:     dataDir,
		ProfilePath: os.Getenv("CUSTODY_PROFILE"),
		Content: contentstore.Config{
			Primary: contentstore.PrimaryType(strings.ToLower(env("CONTENT_PRIMARY", string(contentstore.PrimaryNone)))),
			DataDir: dataDir,
			S3: contentstore.S3Config{
				Bucket:   os.Getenv("CONTENT_S3_BUCKET"),
				Region:   env("CONTENT_S3_REGION", "us-east-1"),
				Endpoint: os.Getenv("CONTENT_S3_ENDPOINT"),
				Prefix:   os.Getenv("CONTENT_S3_PREFIX"),
			},
			GCS: contentstore.GCSConfig{
				Bucket: os.Getenv("CONTENT_GCS_BUCKET"),
				Prefix: os.Getenv("CONTENT_GCS_PREFIX"),
			},
		},
		Ledger: LedgerConfig{
			Driver:        strings.ToLower(env("LEDGER_DRIVER", LedgerLocal)),
			URL:           os.Getenv("LEDGER_URL"),
			Timeout:       envDuration("LEDGER_TIMEOUT", 10*time.Second),
			Confirmations: uint64(envInt("LEDGER_CONFIRMATIONS", 0)),
			Worker: anchor.WorkerConfig{
				Workers:        envInt("LEDGER_WORKERS", def.Workers),
				QueueSize:      envInt("LEDGER_QUEUE_SIZE", def.QueueSize),
				Policy:         policy,
				ConfirmTimeout: envDuration("LEDGER_CONFIRM_TIMEOUT", def.ConfirmTimeout),
				SubmitRate:     rate.Limit(envFloat("LEDGER_SUBMIT_RATE", float64(def.SubmitRate))),
				SubmitBurst:    envInt("LEDGER_SUBMIT_BURST", def.SubmitBurst),
			},
		},
		Secrets: SecretsConfig{
			Source:       strings.ToLower(env("SECRET_SOURCE", SecretsFile)),
			KeystorePath: env("CUSTODY_KEYSTORE", filepath.Join(dataDir, "keystore.json")),
			CipherSuite:  env("CUSTODY_CIPHER", "aes-256-gcm"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		Telemetry: telemetry,
		RateLimit: RateLimitConfig{
			RPS:   envFloat("RATE_LIMIT_RPS", 20),
			Burst: envInt("RATE_LIMIT_BURST", 40),
		},
	}
}

// Validate rejects unknown drivers and incomplete driver settings.
func (c *Config) Validate() error {
	switch c.Ledger.Driver {
	case LedgerMemory, LedgerLocal:
	case LedgerHTTP:
		if c.Ledger.URL == "" {
			return fmt.Errorf("config: LEDGER_URL is required for the http ledger driver")
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_DRIVER %q", c.Ledger.Driver)
	}
	switch c.Secrets.Source {
	case SecretsEnv, SecretsFile:
	default:
		return fmt.Errorf("config: unknown SECRET_SOURCE %q", c.Secrets.Source)
	}
	switch c.Content.Primary {
	case contentstore.PrimaryNone, contentstore.PrimaryGCS:
	case contentstore.PrimaryS3:
		if c.Content.S3.Bucket == "" {
			return fmt.Errorf("config: CONTENT_S3_BUCKET is required for the s3 primary")
		}
	default:
		return fmt.Errorf("config: unknown CONTENT_PRIMARY %q", c.Content.Primary)
	}
	return nil
}

// SQLitePath is the lite-mode database file used when DatabaseURL is empty.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "custody.db")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
