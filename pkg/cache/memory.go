package cache

import (
	"context"
	"sync"
	"time"

	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
	"github.com/rs/zerolog/log"
)

const backendMemory = "memory"

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-process store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("cache ttl must be positive")
	}
	return &MemoryStore{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// TTL returns the configured time-to-live.
func (m *MemoryStore) TTL() time.Duration {
	return m.ttl
}

// Get returns the live entry for key. Expired entries are removed on read.
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	now := m.now()
	m.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(backendMemory).Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired(now, m.ttl) {
		m.mu.Lock()
		// Only drop the entry we looked at; a concurrent Set may have replaced it.
		if current, ok := m.entries[key]; ok && current == entry {
			delete(m.entries, key)
			CacheEvictions.WithLabelValues(backendMemory).Inc()
			CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
		}
		m.mu.Unlock()
		CacheMisses.WithLabelValues(backendMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(backendMemory).Inc()
	return entry.clone(), nil
}

// Set stores items under key with the current timestamp.
func (m *MemoryStore) Set(_ context.Context, key string, items []gamepass.Item) error {
	stored := make([]gamepass.Item, len(items))
	copy(stored, items)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &Entry{Key: key, Items: stored, StoredAt: m.now()}
	CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
	return nil
}

// Delete removes the entry for key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, entry := range m.entries {
		if entry.IsExpired(now, m.ttl) {
			delete(m.entries, key)
			removed++
		}
	}

	if removed > 0 {
		CacheEvictions.WithLabelValues(backendMemory).Add(float64(removed))
	}
	CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 {
				log.Debug().
					Str("component", "cache").
					Int("removed", removed).
					Msg("Swept expired cache entries")
			}
		}
	}
}
