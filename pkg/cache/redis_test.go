package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis starts an in-memory Redis server for the test.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil, time.Minute)
}

func TestRedisStore_SetAndGet(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, 2*time.Minute)
	ctx := context.Background()

	items := []gamepass.Item{
		{ID: 3, Name: "Cheap", Price: 20, CreatorID: 9},
		{ID: 1, Name: "Pricey", Price: 100, CreatorID: 9},
	}
	if err := store.Set(ctx, "gp:7", items); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if ttl := mr.TTL("gp:7"); ttl != 2*time.Minute {
		t.Errorf("redis TTL = %v, want 2m", ttl)
	}

	entry, err := store.Get(ctx, "gp:7")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entry.Items) != 2 || entry.Items[0] != items[0] || entry.Items[1] != items[1] {
		t.Errorf("Items = %+v, want %+v", entry.Items, items)
	}
}

func TestRedisStore_Get_CacheMiss(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)

	_, err := store.Get(context.Background(), "gp:404")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestRedisStore_TTLBoundary(t *testing.T) {
	_, client := setupTestRedis(t)
	clock := newFakeClock()
	ttl := 120 * time.Second
	store := NewRedisStore(client, ttl)
	store.SetClock(clock.Now)
	ctx := context.Background()

	if err := store.Set(ctx, "gp:1", []gamepass.Item{{ID: 1, Price: 5}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clock.Advance(ttl - time.Millisecond)
	if _, err := store.Get(ctx, "gp:1"); err != nil {
		t.Fatalf("Get at T+TTL-ε failed: %v", err)
	}

	clock.Advance(2 * time.Millisecond)
	if _, err := store.Get(ctx, "gp:1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get at T+TTL+ε = %v, want ErrCacheMiss", err)
	}
}

func TestRedisStore_KeyExpiresInRedis(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	_ = store.Set(ctx, "gp:1", nil)
	mr.FastForward(61 * time.Second)

	if _, err := store.Get(ctx, "gp:1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after redis expiry, got %v", err)
	}
}

func TestRedisStore_EmptyResultIsCached(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	if err := store.Set(ctx, "gp:1", nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := store.Get(ctx, "gp:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Items == nil || len(entry.Items) != 0 {
		t.Errorf("Items = %#v, want empty non-nil slice", entry.Items)
	}
}

func TestRedisStore_InvalidEntry(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)

	if err := mr.Set("gp:1", "not json"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err := store.Get(context.Background(), "gp:1")
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	_ = store.Set(ctx, "gp:1", nil)
	if err := store.Delete(ctx, "gp:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("gp:1") {
		t.Error("key still exists after Delete")
	}
}

func TestRedisStore_Ping(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("Ping should fail after server closed")
	}
}

func TestRedisStore_SetClockConcurrentWithLookups(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	clock := newFakeClock()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.SetClock(clock.Now)
		}()
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "gp:1", []gamepass.Item{{ID: 1, Price: 5}})
			_, _ = store.Get(ctx, "gp:1")
		}()
	}
	wg.Wait()
}

func TestRedisStore_KeepsItemShape(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	items := []gamepass.Item{
		{ID: 1, Name: "Scraped", Unpriced: true},
		{ID: 2, Name: "No creator", Price: 10},
	}
	if err := store.Set(ctx, "gp:1", items); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := store.Get(ctx, "gp:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entry.Items) != len(items) {
		t.Fatalf("Items = %+v, want %+v", entry.Items, items)
	}
	for i := range items {
		if entry.Items[i] != items[i] {
			t.Errorf("Items[%d] = %+v, want %+v", i, entry.Items[i], items[i])
		}
	}
}
