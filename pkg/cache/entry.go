package cache

import (
	"time"

	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
)

// Entry is a cached aggregation result.
type Entry struct {
	// Key is the namespaced cache key
	Key string `json:"key"`

	// Items is the aggregated, sorted result. Never nil.
	Items []gamepass.Item `json:"items"`

	// StoredAt is when the entry was written
	StoredAt time.Time `json:"stored_at"`
}

// IsExpired reports whether the entry is stale at now. An entry is valid
// while now - StoredAt < ttl.
func (e *Entry) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) >= ttl
}

// TTL returns the time left before the entry expires.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time, ttl time.Duration) time.Duration {
	left := ttl - now.Sub(e.StoredAt)
	if left < 0 {
		return 0
	}
	return left
}

// clone returns a deep copy so callers never share the stored slice.
func (e *Entry) clone() *Entry {
	items := make([]gamepass.Item, len(e.Items))
	copy(items, e.Items)
	return &Entry{Key: e.Key, Items: items, StoredAt: e.StoredAt}
}
