package cache

import (
	"context"
	"errors"

	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
)

var (
	// ErrCacheMiss indicates the requested key was not found or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a key to result store with a fixed TTL per entry.
type Store interface {
	// Get returns the live entry for key or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores items under key, replacing any existing entry.
	Set(ctx context.Context, key string, items []gamepass.Item) error

	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error
}
