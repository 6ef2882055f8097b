package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

// BigCacheStore is the default in-process response cache for
// long-lived consumers. Entries carry their own expiry and are checked
// lazily on read; the backend's life window only acts as an upper
// bound for memory reclamation.
type BigCacheStore struct {
	cache *bigcache.BigCache
	clock func() time.Time
}

// NewBigCacheStore creates a store whose backend evicts entries after
// maxTTL regardless of their own expiry. A nil clock defaults to
// time.Now.
func NewBigCacheStore(ctx context.Context, maxTTL time.Duration, clock func() time.Time) (*BigCacheStore, error) {
	if clock == nil {
		clock = time.Now
	}
	backend, err := bigcache.New(ctx, bigcache.DefaultConfig(maxTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache backend: %w", err)
	}
	return &BigCacheStore{cache: backend, clock: clock}, nil
}

// GetFromCache returns the entry for key, (nil, nil) when absent or
// expired.
func (s *BigCacheStore) GetFromCache(ctx context.Context, key string) (*domain.CachedEntry, error) {
	raw, err := s.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache read failed: %w", err)
	}

	var entry domain.CachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry reads as a miss.
		_ = s.cache.Delete(key)
		return nil, nil
	}
	if !entry.Usable(s.clock()) {
		_ = s.cache.Delete(key)
		return nil, nil
	}
	return &entry, nil
}

// SaveToCache stores data under key for ttl.
func (s *BigCacheStore) SaveToCache(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	entry := domain.CachedEntry{
		Data:      data,
		ExpiresAt: s.clock().Add(ttl),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := s.cache.Set(key, raw); err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// ClearCache drops every entry.
func (s *BigCacheStore) ClearCache(ctx context.Context) error {
	if err := s.cache.Reset(); err != nil {
		return fmt.Errorf("cache reset failed: %w", err)
	}
	return nil
}

// ClearCacheCategory drops every entry whose key starts with prefix.
func (s *BigCacheStore) ClearCacheCategory(ctx context.Context, prefix string) error {
	it := s.cache.Iterator()
	var keys []string
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.Key(), prefix) {
			keys = append(keys, info.Key())
		}
	}
	for _, key := range keys {
		if err := s.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return fmt.Errorf("cache delete failed: %w", err)
		}
	}
	return nil
}

// Close releases the backend.
func (s *BigCacheStore) Close() error {
	return s.cache.Close()
}
