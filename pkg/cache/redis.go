package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// RedisStore keeps entries in Redis so instances can share results.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration

	mu  sync.RWMutex
	now func() time.Time
}

// NewRedisStore creates a Redis-backed store with the given TTL.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		panic("cache ttl must be positive")
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (r *RedisStore) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *RedisStore) clock() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now()
}

// TTL returns the configured time-to-live.
func (r *RedisStore) TTL() time.Duration {
	return r.ttl
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

// Get retrieves the entry for key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (r *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(backendRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Items == nil {
		entry.Items = []gamepass.Item{}
	}

	// Redis expiry has second granularity on some servers; the stored
	// timestamp is authoritative.
	if entry.IsExpired(r.clock(), r.ttl) {
		_ = r.Delete(ctx, key)
		CacheEvictions.WithLabelValues(backendRedis).Inc()
		CacheMisses.WithLabelValues(backendRedis).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(backendRedis).Inc()
	return &entry, nil
}

// Set stores items under key. The Redis key expires with the entry.
func (r *RedisStore) Set(ctx context.Context, key string, items []gamepass.Item) error {
	if items == nil {
		items = []gamepass.Item{}
	}

	entry := Entry{Key: key, Items: items, StoredAt: r.clock()}
	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.redis.Set(ctx, key, data, r.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes the entry for key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, key).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
