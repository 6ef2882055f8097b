package domain

import "time"

// CachedEntry is one stored response: the raw body plus the absolute
// moment it stops being usable. Expiry is lazy — it is checked on read,
// and an expired entry is treated exactly like an absent one.
type CachedEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Usable reports whether the entry may still be served at the given
// instant.
func (e *CachedEntry) Usable(now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}
