// Package cache holds the display cache for live profiles.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"thoth/internal/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores values by key. Get returns nil, nil on a miss.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (*T, error)
	Set(ctx context.Context, key string, value *T, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache keeps JSON-encoded values under prefix:key.
type RedisCache[T any] struct {
	rc     *redis.Client
	prefix string
}

func NewRedisCache[T any](rc *redis.Client, prefix string) *RedisCache[T] {
	return &RedisCache[T]{rc: rc, prefix: prefix}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rc, nil
}

func (c *RedisCache[T]) key(k string) string {
	return c.prefix + ":" + k
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (*T, error) {
	if c.rc == nil {
		return nil, nil
	}
	raw, err := c.rc.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		// A value we cannot read is as good as a miss.
		utils.Logger.Warn("dropping undecodable cache entry", zap.String("key", c.key(key)), zap.Error(err))
		_ = c.rc.Del(ctx, c.key(key)).Err()
		return nil, nil
	}
	return &v, nil
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, value *T, ttl time.Duration) error {
	if c.rc == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := c.rc.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (c *RedisCache[T]) Delete(ctx context.Context, key string) error {
	if c.rc == nil {
		return nil
	}
	if err := c.rc.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

type memoryEntry[T any] struct {
	value   T
	expires time.Time
}

// MemoryCache is a process-local Cache holding shallow copies of values.
type MemoryCache[T any] struct {
	mu      sync.Mutex
	entries map[string]memoryEntry[T]
	now     func() time.Time
}

func NewMemoryCache[T any]() *MemoryCache[T] {
	return &MemoryCache[T]{entries: make(map[string]memoryEntry[T]), now: time.Now}
}

func (c *MemoryCache[T]) Get(ctx context.Context, key string) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, nil
	}
	v := e.value
	return &v, nil
}

func (c *MemoryCache[T]) Set(ctx context.Context, key string, value *T, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry[T]{value: *value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache[T]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
