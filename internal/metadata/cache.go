package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// SearchCacheTTL is how long search and recommendation results are reused.
const SearchCacheTTL = 24 * time.Hour

// Cache stores JSON-encodable values under string keys.
type Cache interface {
	// Get decodes the cached value into dest and reports whether it existed.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("metadata: connecting to Redis at %s: %w", addr, err)
	}
	return client, nil
}

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "maratonei:"}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("metadata: cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("metadata: decoding cached %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("metadata: encoding %s for cache: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("metadata: cache set %s: %w", key, err)
	}
	return nil
}

// NoopCache never stores anything. It is used when Redis is not configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, any) (bool, error)         { return false, nil }
func (NoopCache) Set(context.Context, string, any, time.Duration) error { return nil }

// NewCache connects to Redis when addr is set and otherwise returns a
// NoopCache. A Redis that cannot be reached at startup is logged and
// skipped so search still works without it.
func NewCache(ctx context.Context, addr, password string, db int, logger *slog.Logger) (Cache, func() error) {
	if addr == "" {
		logger.Info("REDIS_ADDR not set; search cache disabled")
		return NoopCache{}, func() error { return nil }
	}
	client, err := NewRedisClient(ctx, addr, password, db)
	if err != nil {
		logger.Warn("search cache disabled", slog.String("error", err.Error()))
		return NoopCache{}, func() error { return nil }
	}
	logger.Info("connected to Redis", slog.String("addr", addr))
	return NewRedisCache(client), client.Close
}

// CacheKey builds a key from a kind and a free-text part, normalizing case
// and inner whitespace so "Dark " and "dark" share an entry.
func CacheKey(kind, text string) string {
	return kind + ":" + strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
