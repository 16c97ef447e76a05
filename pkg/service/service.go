// Package service serves game pass listings from the result cache, running
// the aggregator on a miss.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/caesar700/roblox-donation-proxy/pkg/cache"
	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamepass_lookups_total",
		Help: "Total game pass lookups by kind and result (hit, miss, error)",
	}, []string{"kind", "result"})

	coalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamepass_coalesced_requests_total",
		Help: "Total lookups that shared an in-flight aggregation",
	}, []string{"kind"})
)

// ErrInvalidSubject indicates a subject id that is not a decimal integer literal.
var ErrInvalidSubject = errors.New("invalid subject id")

var subjectPattern = regexp.MustCompile(`^\d+$`)

// ValidateSubject reports ErrInvalidSubject unless id is one or more
// decimal digits.
func ValidateSubject(id string) error {
	if !subjectPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, id)
	}
	return nil
}

// DefaultTimeout bounds one aggregation across all of its pages.
const DefaultTimeout = 45 * time.Second

// Aggregator produces game pass listings.
type Aggregator interface {
	Aggregate(ctx context.Context, userID string) ([]gamepass.Item, error)
	AggregatePlace(ctx context.Context, placeID string) ([]gamepass.Item, error)
}

// Result is a lookup result.
type Result struct {
	// Items is sorted ascending by price. Never nil.
	Items []gamepass.Item

	// Cached is true when Items came from the cache.
	Cached bool
}

// Config holds service configuration.
type Config struct {
	// Timeout is the overall deadline of one aggregation.
	Timeout time.Duration
}

// GamePassService coordinates the cache and the aggregator.
// Concurrent misses for the same key share one aggregation.
type GamePassService struct {
	aggregator Aggregator
	store      cache.Store
	group      singleflight.Group
	timeout    time.Duration
	logger     zerolog.Logger
}

// New creates a service. The store is owned by the caller.
func New(aggregator Aggregator, store cache.Store, cfg Config) (*GamePassService, error) {
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &GamePassService{
		aggregator: aggregator,
		store:      store,
		timeout:    cfg.Timeout,
		logger:     log.With().Str("component", "service").Logger(),
	}, nil
}

// UserPasses returns the game passes of every game owned by userID.
func (s *GamePassService) UserPasses(ctx context.Context, userID string) (Result, error) {
	if err := ValidateSubject(userID); err != nil {
		return Result{}, err
	}
	return s.lookup(ctx, "user", cache.Key(cache.PrefixUser, userID), func(ctx context.Context) ([]gamepass.Item, error) {
		return s.aggregator.Aggregate(ctx, userID)
	})
}

// PlacePasses returns the game passes of one place.
func (s *GamePassService) PlacePasses(ctx context.Context, placeID string) (Result, error) {
	if err := ValidateSubject(placeID); err != nil {
		return Result{}, err
	}
	return s.lookup(ctx, "place", cache.Key(cache.PrefixPlace, placeID), func(ctx context.Context) ([]gamepass.Item, error) {
		return s.aggregator.AggregatePlace(ctx, placeID)
	})
}

// lookup serves key from the cache or runs aggregate once for all
// concurrent callers. Failures are never cached.
func (s *GamePassService) lookup(ctx context.Context, kind, key string,
	aggregate func(context.Context) ([]gamepass.Item, error)) (Result, error) {

	entry, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		lookupsTotal.WithLabelValues(kind, "hit").Inc()
		return Result{Items: entry.Items, Cached: true}, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		// A broken cache degrades to uncached reads.
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// The flight outlives any single caller; it is bounded by its own deadline.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		start := time.Now()
		items, err := aggregate(flightCtx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []gamepass.Item{}
		}

		if err := s.store.Set(flightCtx, key, items); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}

		s.logger.Debug().
			Str("key", key).
			Int("items", len(items)).
			Dur("duration", time.Since(start)).
			Msg("Aggregated and cached")
		return items, nil
	})

	select {
	case <-ctx.Done():
		lookupsTotal.WithLabelValues(kind, "error").Inc()
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			coalescedTotal.WithLabelValues(kind).Inc()
		}
		if res.Err != nil {
			lookupsTotal.WithLabelValues(kind, "error").Inc()
			s.logger.Error().Err(res.Err).Str("key", key).Msg("Aggregation failed")
			return Result{}, res.Err
		}
		lookupsTotal.WithLabelValues(kind, "miss").Inc()
		return Result{Items: res.Val.([]gamepass.Item), Cached: false}, nil
	}
}
