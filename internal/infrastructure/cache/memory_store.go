package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

// MemoryStore is a map-backed ResponseCacheStore. It is the default
// for short-lived processes and the workhorse for tests; longer-lived
// consumers plug in the bigcache or Redis store instead.
type MemoryStore struct {
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]domain.CachedEntry
}

// NewMemoryStore creates an empty store. A nil clock defaults to
// time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		clock:   clock,
		entries: make(map[string]domain.CachedEntry),
	}
}

// GetFromCache returns the entry for key, or (nil, nil) when absent or
// expired. Expired entries are pruned on read.
func (s *MemoryStore) GetFromCache(ctx context.Context, key string) (*domain.CachedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !entry.Usable(s.clock()) {
		delete(s.entries, key)
		return nil, nil
	}
	out := entry
	return &out, nil
}

// SaveToCache stores data under key for ttl.
func (s *MemoryStore) SaveToCache(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = domain.CachedEntry{
		Data:      append([]byte(nil), data...),
		ExpiresAt: s.clock().Add(ttl),
	}
	return nil
}

// ClearCache drops every entry.
func (s *MemoryStore) ClearCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]domain.CachedEntry)
	return nil
}

// ClearCacheCategory drops every entry whose key starts with prefix.
func (s *MemoryStore) ClearCacheCategory(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

// Len reports the live entry count, for diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
