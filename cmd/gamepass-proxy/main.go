package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/caesar700/roblox-donation-proxy/internal/config"
	"github.com/caesar700/roblox-donation-proxy/internal/server"
	"github.com/caesar700/roblox-donation-proxy/pkg/aggregate"
	"github.com/caesar700/roblox-donation-proxy/pkg/cache"
	"github.com/caesar700/roblox-donation-proxy/pkg/client"
	"github.com/caesar700/roblox-donation-proxy/pkg/logging"
	"github.com/caesar700/roblox-donation-proxy/pkg/ratelimit"
	"github.com/caesar700/roblox-donation-proxy/pkg/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// app holds the wired components.
type app struct {
	handler http.Handler
	memory  *cache.MemoryStore
	client  *client.Client
	redis   *redis.Client
}

// close releases the upstream client and the Redis connection.
func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

// build wires the components described by cfg. redisClient is used when
// the Redis backend is configured; nil connects to cfg.RedisURL.
func build(ctx context.Context, cfg config.Config, redisClient *redis.Client) (*app, error) {
	a := &app{}

	throttleStore := ratelimit.StateStore(ratelimit.NewMemoryStateStore())
	var store cache.Store
	var ready server.Pinger

	switch cfg.CacheBackend {
	case config.BackendRedis:
		if redisClient == nil {
			opts, err := redisOptions(cfg.RedisURL)
			if err != nil {
				return nil, err
			}
			redisClient = redis.NewClient(opts)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisURL, err)
		}
		log.Info().Str("redis_url", cfg.RedisURL).Msg("Connected to Redis")

		a.redis = redisClient
		redisStore := cache.NewRedisStore(redisClient, cfg.CacheTTL)
		store = redisStore
		ready = redisStore
		throttleStore = ratelimit.NewRedisStateStore(redisClient)
	default:
		a.memory = cache.NewMemoryStore(cfg.CacheTTL)
		store = a.memory
	}

	clientCfg := cfg.Client()
	clientCfg.Throttle = ratelimit.NewTracker(throttleStore, logging.NewLogger("throttle"))
	upstream, err := client.New(clientCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create upstream client: %w", err)
	}
	a.client = upstream

	agg, err := aggregate.New(upstream, cfg.Aggregate())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create aggregator: %w", err)
	}

	svc, err := service.New(agg, store, service.Config{Timeout: cfg.AggregateTimeout})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create service: %w", err)
	}

	a.handler = server.New(svc, ready).Handler()
	return a, nil
}

// redisOptions accepts a redis:// URL or a bare host:port.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg config.Config) error {
	a, err := build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if a.memory != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.memory.Run(ctx, cfg.CacheSweepInterval)
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AggregateTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("cache_backend", cfg.CacheBackend).
			Str("pass_source", cfg.PassSource).
			Str("error_policy", cfg.ErrorPolicy).
			Dur("cache_ttl", cfg.CacheTTL).
			Msg("Starting game pass proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var listenErr error
	select {
	case listenErr = <-errCh:
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown incomplete")
	}

	cancel()
	wg.Wait()
	if listenErr != nil {
		return fmt.Errorf("listen: %w", listenErr)
	}
	log.Info().Msg("Graceful shutdown complete")
	return nil
}
