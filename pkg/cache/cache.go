// Package cache holds read-through caching for record metadata.
// A cache miss or a cache failure is never an error for callers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

// DefaultTTL bounds how long a cached record may be served.
const DefaultTTL = time.Hour

// RecordCache caches record metadata by ID.
type RecordCache interface {
	Get(ctx context.Context, id string) (contracts.Record, bool)
	Set(ctx context.Context, r contracts.Record)
	Invalidate(ctx context.Context, id string)
}

// Nop never caches.
type Nop struct{}

func (Nop) Get(context.Context, string) (contracts.Record, bool) { return contracts.Record{}, false }
func (Nop) Set(context.Context, contracts.Record) {}
func (Nop) Invalidate(context.Context, string) {}

// RedisCache stores JSON-encoded records under "record:<id>".
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects lazily to addr.
func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, ttl: ttl, logger: slog.Default().With("component", "cache")}
}

func recordKey(id string) string {
	return fmt.Sprintf("record:%s", id)
}

func (c *RedisCache) Get(ctx context.Context, id string) (contracts.Record, bool) {
	raw, err := c.client.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "cache read failed", "record_id", id, "error", err)
		}
		return contracts.Record{}, false
	}
	var r contracts.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		c.logger.WarnContext(ctx, "cache entry undecodable", "record_id", id, "error", err)
		c.Invalidate(ctx, id)
		return contracts.Record{}, false
	}
	return r, true
}

func (c *RedisCache) Set(ctx context.Context, r contracts.Record) {
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, recordKey(r.ID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "record_id", r.ID, "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, recordKey(id)).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed", "record_id", id, "error", err)
	}
}

// Ping reports whether Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
