// Package aggregate fans a user's games out into their game passes and
// merges the result into one deduplicated, price-sorted list.
package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
	"github.com/caesar700/roblox-donation-proxy/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	aggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gamepass_aggregation_duration_seconds",
		Help:    "Aggregation duration in seconds by kind and outcome",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind", "outcome"})

	collectionsPerAggregation = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gamepass_collections_per_aggregation",
		Help:    "Number of collections fanned out per aggregation",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	})

	duplicatesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamepass_duplicates_dropped_total",
		Help: "Total game passes dropped because their id was already seen",
	})

	collectionsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamepass_collections_skipped_total",
		Help: "Total collections skipped after a failure under the lenient policy",
	})
)

// Config holds aggregator configuration.
type Config struct {
	// Endpoints are the upstream base URLs.
	Endpoints Endpoints

	// PassSource selects the structured API or the HTML partial.
	PassSource PassSource

	// Policy applies to every page and every collection.
	Policy pagination.ErrorPolicy

	// MaxPages bounds each walk.
	MaxPages int

	// GamesPageSize is the page size of the user games listing.
	GamesPageSize int

	// PassesPageSize is the page size of the passes listing.
	PassesPageSize int

	// MaxConcurrency bounds parallel collection fetches. 1 is sequential.
	MaxConcurrency int
}

// DefaultConfig returns the configuration matching the upstream limits.
func DefaultConfig() Config {
	return Config{
		Endpoints:      DefaultEndpoints(),
		PassSource:     SourceJSON,
		Policy:         pagination.PolicyStrict,
		MaxPages:       pagination.DefaultMaxPages,
		GamesPageSize:  50,
		PassesPageSize: 100,
		MaxConcurrency: 4,
	}
}

// Aggregator composes the games and passes fetchers.
type Aggregator struct {
	getter pagination.Getter
	games  *pagination.Fetcher[gamepass.Collection]
	passes *pagination.Fetcher[gamepass.RawPass]
	config Config
	logger zerolog.Logger
}

// New creates an aggregator reading through getter.
func New(getter pagination.Getter, cfg Config) (*Aggregator, error) {
	if getter == nil {
		return nil, fmt.Errorf("getter is required")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = pagination.DefaultMaxPages
	}
	if cfg.Policy == "" {
		cfg.Policy = pagination.PolicyStrict
	}
	if cfg.PassSource == "" {
		cfg.PassSource = SourceJSON
	}

	games := pagination.NewFetcher("user-games", getter, cfg.Endpoints.UserGamesURL(),
		pagination.JSONGamesParser(), pagination.Config{
			PageSize:         cfg.GamesPageSize,
			MaxPages:         cfg.MaxPages,
			Mode:             pagination.ModeCursor,
			Policy:           cfg.Policy,
			RequireFirstPage: true,
		})

	var passes *pagination.Fetcher[gamepass.RawPass]
	switch cfg.PassSource {
	case SourceJSON:
		passes = pagination.NewFetcher("game-passes", getter, cfg.Endpoints.GamePassesURL(),
			pagination.JSONPassesParser(), pagination.Config{
				PageSize: cfg.PassesPageSize,
				MaxPages: cfg.MaxPages,
				Mode:     pagination.ModeCursor,
				Policy:   cfg.Policy,
			})
	case SourceHTML:
		passes = pagination.NewFetcher("legacy-passes", getter, cfg.Endpoints.LegacyPassesURL(),
			pagination.HTMLPassesParser(), pagination.Config{
				PageSize: cfg.PassesPageSize,
				MaxPages: cfg.MaxPages,
				Mode:     pagination.ModeOffset,
				Policy:   cfg.Policy,
			})
	default:
		return nil, fmt.Errorf("unknown pass source %q", cfg.PassSource)
	}

	return &Aggregator{
		getter: getter,
		games:  games,
		passes: passes,
		config: cfg,
		logger: log.With().Str("component", "aggregator").Logger(),
	}, nil
}

// Aggregate returns every retained game pass of the user's games, first
// occurrence per id, sorted ascending by price. Output does not depend on
// MaxConcurrency.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) ([]gamepass.Item, error) {
	start := time.Now()

	// Step 1: enumerate the user's games
	collections, err := pagination.Collect(a.games.Fetch(ctx, userID))
	if err != nil {
		aggregationDuration.WithLabelValues("user", "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("list games of user %s: %w", userID, err)
	}

	keys := a.passKeys(collections)
	collectionsPerAggregation.Observe(float64(len(keys)))

	// Step 2: fan out over the games
	perCollection, err := a.fanOut(ctx, keys)
	if err != nil {
		aggregationDuration.WithLabelValues("user", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	// Step 3 + 4: merge first-seen wins, then sort
	items := merge(perCollection)

	aggregationDuration.WithLabelValues("user", "ok").Observe(time.Since(start).Seconds())
	a.logger.Info().
		Str("user_id", userID).
		Int("collections", len(keys)).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Aggregation complete")

	return items, nil
}

// AggregatePlace returns the retained game passes of a single place.
// The structured source resolves the place to its universe first; a place
// without a universe yields an empty result.
func (a *Aggregator) AggregatePlace(ctx context.Context, placeID string) ([]gamepass.Item, error) {
	start := time.Now()

	key := placeID
	if a.config.PassSource == SourceJSON {
		universeID, err := a.resolveUniverse(ctx, placeID)
		if err != nil {
			aggregationDuration.WithLabelValues("place", "error").Observe(time.Since(start).Seconds())
			return nil, err
		}
		if universeID == 0 {
			aggregationDuration.WithLabelValues("place", "ok").Observe(time.Since(start).Seconds())
			return []gamepass.Item{}, nil
		}
		key = strconv.FormatInt(universeID, 10)
	}

	passes, err := a.fetchPasses(ctx, key)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("fetch passes of place %s: %w", placeID, ctx.Err())
	}
	if err != nil {
		aggregationDuration.WithLabelValues("place", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	items := merge([][]gamepass.Item{passes})
	aggregationDuration.WithLabelValues("place", "ok").Observe(time.Since(start).Seconds())
	return items, nil
}

// resolveUniverse looks up the universe of a place.
func (a *Aggregator) resolveUniverse(ctx context.Context, placeID string) (int64, error) {
	body, err := a.getter.GetBody(ctx, a.config.Endpoints.PlaceUniverseURL(placeID))
	if err != nil {
		return 0, fmt.Errorf("resolve universe of place %s: %w", placeID, err)
	}
	universeID, err := pagination.ParseUniverseID(body)
	if err != nil {
		return 0, &pagination.ParseError{Resource: "place-universe", URL: a.config.Endpoints.PlaceUniverseURL(placeID), Err: err}
	}
	return universeID, nil
}

// passKeys picks the fan-out key of every collection for the configured
// source, dropping zeros and repeats while keeping order.
func (a *Aggregator) passKeys(collections []gamepass.Collection) []string {
	seen := make(map[int64]struct{}, len(collections))
	keys := make([]string, 0, len(collections))
	for _, c := range collections {
		id := c.ID
		if a.config.PassSource == SourceHTML {
			id = c.RootPlaceID
		}
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, strconv.FormatInt(id, 10))
	}
	return keys
}

// fetchPasses walks one collection and normalizes every record.
func (a *Aggregator) fetchPasses(ctx context.Context, key string) ([]gamepass.Item, error) {
	var items []gamepass.Item
	for raw, err := range a.passes.Fetch(ctx, key) {
		if err != nil {
			return nil, err
		}
		if item, ok := gamepass.Normalize(raw); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// fanOut fetches the passes of every key using a bounded worker pool.
// Results are indexed like keys. Under the strict policy the first failure
// cancels the remaining work.
func (a *Aggregator) fanOut(ctx context.Context, keys []string) ([][]gamepass.Item, error) {
	results := make([][]gamepass.Item, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := a.config.MaxConcurrency
	if workers > len(keys) {
		workers = len(keys)
	}

	queue := make(chan int)
	errs := make(chan error, workers)

	go func() {
		defer close(queue)
		for i := range keys {
			select {
			case queue <- i:
			case <-fanCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go a.worker(fanCtx, cancel, keys, queue, results, errs, &wg, w)
	}
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Deadline or cancellation; partial results are never returned.
		return nil, fmt.Errorf("fan out: %w", err)
	}
	return results, nil
}

// worker processes collection indexes from the queue.
func (a *Aggregator) worker(ctx context.Context, cancel context.CancelFunc, keys []string, queue <-chan int,
	results [][]gamepass.Item, errs chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for idx := range queue {
		items, err := a.fetchPasses(ctx, keys[idx])
		if err != nil {
			if a.config.Policy == pagination.PolicyLenient {
				collectionsSkippedTotal.Inc()
				a.logger.Warn().
					Err(err).
					Str("collection", keys[idx]).
					Msg("Collection fetch failed - skipping")
				continue
			}

			// Non-blocking error send
			select {
			case errs <- err:
			default:
			}
			cancel()
			return
		}

		results[idx] = items
		processed++
	}

	if processed > 0 {
		a.logger.Debug().
			Int("worker_id", workerID).
			Int("collections_processed", processed).
			Msg("Worker completed")
	}
}

// merge flattens per-collection results in collection order, keeping the
// first occurrence of every id, then sorts by price.
func merge(perCollection [][]gamepass.Item) []gamepass.Item {
	seen := make(map[int64]struct{})
	items := make([]gamepass.Item, 0)
	total := 0
	for _, passes := range perCollection {
		total += len(passes)
		items = gamepass.Dedup(items, seen, passes)
	}
	if dropped := total - len(items); dropped > 0 {
		duplicatesDroppedTotal.Add(float64(dropped))
	}
	gamepass.SortByPrice(items)
	return items
}
