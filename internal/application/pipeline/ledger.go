package pipeline

import (
	"context"
	"sync"
	"time"
)

// RateLimitLedger tracks per-path retry-not-before timestamps learned
// from 429 responses. A path with a future timestamp makes subsequent
// calls to that exact path wait until it passes; other paths are
// unaffected. Entries are removed once their timestamp has passed.
type RateLimitLedger struct {
	mu        sync.Mutex
	notBefore map[string]time.Time
	clock     func() time.Time
}

// NewRateLimitLedger creates an empty ledger. A nil clock defaults to
// time.Now.
func NewRateLimitLedger(clock func() time.Time) *RateLimitLedger {
	if clock == nil {
		clock = time.Now
	}
	return &RateLimitLedger{
		notBefore: make(map[string]time.Time),
		clock:     clock,
	}
}

// Set records that the path must not be retried before t.
func (l *RateLimitLedger) Set(path string, t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notBefore[path] = t
}

// RetryAt returns the pending retry-not-before timestamp for a path,
// pruning it when already passed.
func (l *RateLimitLedger) RetryAt(path string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.notBefore[path]
	if !ok {
		return time.Time{}, false
	}
	if !l.clock().Before(t) {
		delete(l.notBefore, path)
		return time.Time{}, false
	}
	return t, true
}

// Wait suspends the caller until the path's retry-not-before timestamp
// has passed, then removes the entry. Paths without an entry return
// immediately.
func (l *RateLimitLedger) Wait(ctx context.Context, path string) error {
	t, ok := l.RetryAt(path)
	if !ok {
		return nil
	}
	delay := t.Sub(l.clock())
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	l.mu.Lock()
	delete(l.notBefore, path)
	l.mu.Unlock()
	return nil
}

// Snapshot returns the currently pending entries.
func (l *RateLimitLedger) Snapshot() map[string]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]time.Time, len(l.notBefore))
	now := l.clock()
	for path, t := range l.notBefore {
		if now.Before(t) {
			out[path] = t
		}
	}
	return out
}
