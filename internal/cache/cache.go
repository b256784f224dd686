// Package cache keeps rendered thread pages in Redis. Every thread owns a
// version counter; bumping it orphans all cached pages of that thread, which
// then expire on their TTL.
package cache

import (
	"CommentThreads/internal/config"
	"context"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"time"
)

// Nop never hits and never stores.
type Nop struct{}

func (Nop) Get(context.Context, string, string) ([]byte, int64, bool) { return nil, -1, false }
func (Nop) Set(context.Context, string, string, int64, []byte)        {}
func (Nop) Invalidate(context.Context, string)                         {}

type RedisThreadCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewRedis(ctx context.Context, cfg config.CacheConfig, log *zap.Logger) (*RedisThreadCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisThreadCache{rdb: rdb, ttl: ttl, log: log.Named("cache")}, nil
}

func versionKey(thread string) string {
	return "comments:thread:" + thread + ":ver"
}

func pageKey(thread string, version int64, key string) string {
	return fmt.Sprintf("comments:thread:%s:%d:%s", thread, version, key)
}

func (c *RedisThreadCache) version(ctx context.Context, thread string) (int64, error) {
	v, err := c.rdb.Get(ctx, versionKey(thread)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get returns the cached page together with the thread version it looked
// under. Callers pass that version back to Set so a page read before an
// invalidation is never stored under the newer version. Any Redis failure is
// a miss with a negative version.
func (c *RedisThreadCache) Get(ctx context.Context, thread, key string) ([]byte, int64, bool) {
	ver, err := c.version(ctx, thread)
	if err != nil {
		c.log.Warn("Failed to read thread version", zap.String("thread", thread), zap.Error(err))
		return nil, -1, false
	}
	val, err := c.rdb.Get(ctx, pageKey(thread, ver, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Failed to read cached page", zap.String("thread", thread), zap.Error(err))
		}
		return nil, ver, false
	}
	return val, ver, true
}

// Set stores val under the given thread version. A stale version leaves an
// orphaned key that nobody reads and that expires on its TTL.
func (c *RedisThreadCache) Set(ctx context.Context, thread, key string, version int64, val []byte) {
	if version < 0 {
		return
	}
	if err := c.rdb.Set(ctx, pageKey(thread, version, key), val, c.ttl).Err(); err != nil {
		c.log.Warn("Failed to cache page", zap.String("thread", thread), zap.Error(err))
	}
}

func (c *RedisThreadCache) Invalidate(ctx context.Context, thread string) {
	if err := c.rdb.Incr(ctx, versionKey(thread)).Err(); err != nil {
		c.log.Error("Failed to invalidate thread cache", zap.String("thread", thread), zap.Error(err))
	}
}

func (c *RedisThreadCache) Close() error {
	return c.rdb.Close()
}
