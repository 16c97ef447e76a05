// Package cache stores aggregation results with a fixed time-to-live.
//
// Two Store implementations share the same contract:
//
//   - MemoryStore keeps entries in process memory. Expiry is checked on every
//     read and a background sweep removes entries nobody reads again.
//   - RedisStore keeps entries in Redis with a key TTL, so instances behind a
//     load balancer can share results.
//
// A read never returns an entry whose age is TTL or more. A write replaces
// any live entry for the same key.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(2 * time.Minute)
//	go store.Run(ctx, time.Minute)
//
//	key := cache.Key(cache.PrefixUser, "123")
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// aggregate, then store.Set(ctx, key, items)
//	}
//
// # Keys
//
// Keys are namespaced by subject kind:
//
//   - gp:<userId>   user aggregation
//   - gpp:<placeId> single place
//
// # Metrics
//
//   - gamepass_cache_hits_total{backend}
//   - gamepass_cache_misses_total{backend}
//   - gamepass_cache_entries{backend}
//   - gamepass_cache_evictions_total{backend}
//   - gamepass_cache_errors_total{operation}
package cache
