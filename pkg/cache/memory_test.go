package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewMemoryStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewMemoryStore should panic with zero ttl")
		}
	}()
	NewMemoryStore(0)
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	items := []gamepass.Item{{ID: 1, Name: "VIP", Price: 10}}

	if err := store.Set(ctx, "gp:1", items); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := store.Get(ctx, "gp:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Key != "gp:1" {
		t.Errorf("Key = %q, want gp:1", entry.Key)
	}
	if len(entry.Items) != 1 || entry.Items[0] != items[0] {
		t.Errorf("Items = %+v, want %+v", entry.Items, items)
	}
}

func TestMemoryStore_Get_CacheMiss(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	_, err := store.Get(context.Background(), "gp:404")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryStore_TTLBoundary(t *testing.T) {
	clock := newFakeClock()
	ttl := 120 * time.Second
	store := NewMemoryStore(ttl)
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
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after lazy expiry", store.Len())
	}
}

func TestMemoryStore_EmptyResultIsCached(t *testing.T) {
	store := NewMemoryStore(time.Minute)
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

func TestMemoryStore_SetReplaces(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Minute)
	store.SetClock(clock.Now)
	ctx := context.Background()

	_ = store.Set(ctx, "gp:1", []gamepass.Item{{ID: 1}})
	clock.Advance(50 * time.Second)
	_ = store.Set(ctx, "gp:1", []gamepass.Item{{ID: 2}})
	clock.Advance(50 * time.Second)

	entry, err := store.Get(ctx, "gp:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Items[0].ID != 2 {
		t.Errorf("Items[0].ID = %d, want 2", entry.Items[0].ID)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	items := []gamepass.Item{{ID: 1, Name: "VIP"}}

	_ = store.Set(ctx, "gp:1", items)
	items[0].Name = "mutated"

	entry, _ := store.Get(ctx, "gp:1")
	entry.Items[0].Name = "also mutated"

	again, _ := store.Get(ctx, "gp:1")
	if again.Items[0].Name != "VIP" {
		t.Errorf("Name = %q, want VIP", again.Items[0].Name)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	_ = store.Set(ctx, "gp:1", []gamepass.Item{{ID: 1}})
	if err := store.Delete(ctx, "gp:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(ctx, "gp:1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Minute)
	store.SetClock(clock.Now)
	ctx := context.Background()

	_ = store.Set(ctx, "gp:old", nil)
	clock.Advance(40 * time.Second)
	_ = store.Set(ctx, "gp:new", nil)
	clock.Advance(30 * time.Second)

	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if _, err := store.Get(ctx, "gp:new"); err != nil {
		t.Errorf("live entry was swept: %v", err)
	}
}

func TestMemoryStore_RunStopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Minute)
	store.SetClock(clock.Now)
	_ = store.Set(context.Background(), "gp:1", nil)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("background sweep did not remove the expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key(PrefixUser, string(rune('a'+i%5)))
			_ = store.Set(ctx, key, []gamepass.Item{{ID: int64(i)}})
			_, _ = store.Get(ctx, key)
			store.Sweep()
		}(i)
	}
	wg.Wait()

	if store.Len() != 5 {
		t.Errorf("Len() = %d, want 5", store.Len())
	}
}
