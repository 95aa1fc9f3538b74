package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"watchlist-service/internal/cache"
)

var (
	_ ResponseCache = (*MemoryCache)(nil)
	_ ResponseCache = (*RedisCache)(nil)
)

// MemoryCache keeps bodies in process memory.
type MemoryCache struct {
	entries *cache.TTL[string, []byte]
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: cache.NewTTL[string, []byte](time.Minute)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	body, ok := m.entries.Get(key)
	return body, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	m.entries.PutTTL(key, body, ttl)
	return nil
}

// RedisCache shares bodies between processes. Expiry is left to Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "watchlist:http:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return body, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, body, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
