package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

// redisKeyPrefix namespaces response-cache entries so a shared Redis
// can carry other data.
const redisKeyPrefix = "zanmi:resp:"

// RedisStore is the shared response cache for deployments where
// several processes should see the same cached responses. Entries
// carry their own expiry like the in-process stores; the Redis key TTL
// is set to the same value so the server reclaims them on its own.
type RedisStore struct {
	rdb   *redis.Client
	clock func() time.Time
}

// NewRedisStore wraps an existing Redis client. A nil clock defaults
// to time.Now.
func NewRedisStore(rdb *redis.Client, clock func() time.Time) *RedisStore {
	if clock == nil {
		clock = time.Now
	}
	return &RedisStore{rdb: rdb, clock: clock}
}

func (s *RedisStore) key(key string) string {
	return redisKeyPrefix + key
}

// GetFromCache returns the entry for key, (nil, nil) when absent or
// expired.
func (s *RedisStore) GetFromCache(ctx context.Context, key string) (*domain.CachedEntry, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache read failed: %w", err)
	}

	var entry domain.CachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		_ = s.rdb.Del(ctx, s.key(key)).Err()
		return nil, nil
	}
	if !entry.Usable(s.clock()) {
		_ = s.rdb.Del(ctx, s.key(key)).Err()
		return nil, nil
	}
	return &entry, nil
}

// SaveToCache stores data under key for ttl.
func (s *RedisStore) SaveToCache(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	entry := domain.CachedEntry{
		Data:      data,
		ExpiresAt: s.clock().Add(ttl),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// ClearCache drops every namespaced entry.
func (s *RedisStore) ClearCache(ctx context.Context) error {
	return s.deleteMatching(ctx, redisKeyPrefix+"*")
}

// ClearCacheCategory drops every entry whose key starts with prefix.
func (s *RedisStore) ClearCacheCategory(ctx context.Context, prefix string) error {
	return s.deleteMatching(ctx, redisKeyPrefix+prefix+"*")
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) error {
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}
