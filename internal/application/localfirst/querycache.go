package localfirst

import "sync"

// QueryCache is the in-memory keyed query store the readers and the
// payment mutator share. It carries the last published value per key,
// a stale mark set by invalidation, and per-key subscribers that get a
// non-blocking nudge whenever the key changes.
//
// Concurrent background syncs racing on the same key settle
// last-write-wins; there is no merge.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*queryEntry
}

type queryEntry struct {
	value   any
	present bool
	stale   bool
	subs    map[int]chan struct{}
	nextSub int
}

// NewQueryCache creates an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[string]*queryEntry)}
}

func (c *QueryCache) entry(key string) *queryEntry {
	e, ok := c.entries[key]
	if !ok {
		e = &queryEntry{subs: make(map[int]chan struct{})}
		c.entries[key] = e
	}
	return e
}

// Get returns the value for key when one is present and not marked
// stale. A stale entry reads as a miss so the caller goes back to its
// source of truth.
func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.present || e.stale {
		return nil, false
	}
	return e.value, true
}

// Peek returns the value regardless of staleness, with the stale mark.
// The payment mutator uses it to snapshot a value it is about to
// overwrite.
func (c *QueryCache) Peek(key string) (value any, present bool, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.present {
		return nil, false, false
	}
	return e.value, true, e.stale
}

// Set publishes a value for key, clears any stale mark, and notifies
// subscribers.
func (c *QueryCache) Set(key string, value any) {
	c.mu.Lock()
	e := c.entry(key)
	e.value = value
	e.present = true
	e.stale = false
	c.notifyLocked(e)
	c.mu.Unlock()
}

// Invalidate marks the key stale so the next read bypasses the
// instant-serve path, and notifies subscribers. The last value stays
// readable via Peek.
func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
		c.notifyLocked(e)
	}
	c.mu.Unlock()
}

// Subscribe registers interest in a key. The returned channel receives
// a signal (coalesced, never blocking the publisher) after every Set or
// Invalidate. The unsubscribe func must be called to release the
// subscription.
func (c *QueryCache) Subscribe(key string) (<-chan struct{}, func()) {
	c.mu.Lock()
	e := c.entry(key)
	id := e.nextSub
	e.nextSub++
	ch := make(chan struct{}, 1)
	e.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(e.subs, id)
		c.mu.Unlock()
	}
}

func (c *QueryCache) notifyLocked(e *queryEntry) {
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
