package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore persists the throttle state.
type StateStore interface {
	Load(ctx context.Context) (*ThrottleState, error)
	Save(ctx context.Context, state *ThrottleState) error
}

// MemoryStateStore keeps the state in process memory.
type MemoryStateStore struct {
	mu    sync.RWMutex
	state ThrottleState
	set   bool
}

// NewMemoryStateStore creates an empty in-process state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Load returns a copy of the stored state, or UnknownState.
func (m *MemoryStateStore) Load(_ context.Context) (*ThrottleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return UnknownState(), nil
	}
	s := m.state
	return &s, nil
}

// Save replaces the stored state.
func (m *MemoryStateStore) Save(_ context.Context, state *ThrottleState) error {
	if state == nil {
		return fmt.Errorf("throttle state cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = *state
	m.set = true
	return nil
}

// RedisStateStore shares the throttle state between proxy instances.
type RedisStateStore struct {
	redis *redis.Client
}

// NewRedisStateStore creates a Redis-backed state store.
func NewRedisStateStore(redisClient *redis.Client) *RedisStateStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStateStore{redis: redisClient}
}

// Load retrieves the state from Redis.
// Returns UnknownState if nothing was stored yet.
func (r *RedisStateStore) Load(ctx context.Context) (*ThrottleState, error) {
	remaining, err := r.redis.Get(ctx, RedisKeyRemaining).Int()
	if errors.Is(err, redis.Nil) {
		return UnknownState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := r.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := r.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return &ThrottleState{
		Remaining:  remaining,
		ResetAt:    time.UnixMilli(resetTimestamp),
		LastUpdate: lastUpdate,
	}, nil
}

// Save stores the state atomically. Keys expire once the window is over.
func (r *RedisStateStore) Save(ctx context.Context, state *ThrottleState) error {
	if state == nil {
		return fmt.Errorf("throttle state cannot be nil")
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	ttl := time.Until(state.ResetAt)
	if ttl < time.Second {
		ttl = time.Second
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.UnixMilli(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}
	return nil
}
