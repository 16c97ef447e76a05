// Package config loads the proxy configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/caesar700/roblox-donation-proxy/pkg/aggregate"
	"github.com/caesar700/roblox-donation-proxy/pkg/client"
	"github.com/caesar700/roblox-donation-proxy/pkg/logging"
	"github.com/caesar700/roblox-donation-proxy/pkg/pagination"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the process configuration.
type Config struct {
	Port      int    `env:"PORT" envDefault:"3000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
	UserAgent string `env:"USER_AGENT" envDefault:"roblox-donation-proxy/1.0"`

	CacheTTL           time.Duration `env:"CACHE_TTL" envDefault:"120s"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"60s"`
	CacheBackend       string        `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisURL           string        `env:"REDIS_URL" envDefault:"localhost:6379"`

	UpstreamGamesURL string `env:"UPSTREAM_GAMES_URL" envDefault:"https://games.roproxy.com"`
	UpstreamWWWURL   string `env:"UPSTREAM_WWW_URL" envDefault:"https://www.roproxy.com"`
	UpstreamAPIsURL  string `env:"UPSTREAM_APIS_URL" envDefault:"https://apis.roproxy.com"`

	PassSource        string `env:"PASS_SOURCE" envDefault:"json"`
	ErrorPolicy       string `env:"ERROR_POLICY" envDefault:"strict"`
	MaxPages          int    `env:"MAX_PAGES" envDefault:"5"`
	GamesPageSize     int    `env:"GAMES_PAGE_SIZE" envDefault:"50"`
	PassesPageSize    int    `env:"PASSES_PAGE_SIZE"`
	FanoutConcurrency int    `env:"FANOUT_CONCURRENCY" envDefault:"4"`

	UpstreamTimeout     time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	AggregateTimeout    time.Duration `env:"AGGREGATE_TIMEOUT" envDefault:"45s"`
	RetryMaxAttempts    int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialBackoff time.Duration `env:"RETRY_INITIAL_BACKOFF" envDefault:"500ms"`
}

// Load reads an optional .env file and parses the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return Parse()
}

// Parse loads configuration from environment variables and validates it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("USER_AGENT is required"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL))
	}
	if c.CacheBackend != BackendMemory && c.CacheBackend != BackendRedis {
		errs = append(errs, fmt.Errorf("CACHE_BACKEND %q is not memory or redis", c.CacheBackend))
	}
	if _, err := aggregate.ParsePassSource(c.PassSource); err != nil {
		errs = append(errs, fmt.Errorf("PASS_SOURCE: %w", err))
	}
	if _, err := pagination.ParseErrorPolicy(c.ErrorPolicy); err != nil {
		errs = append(errs, fmt.Errorf("ERROR_POLICY: %w", err))
	}
	if c.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PAGES must be positive, got %d", c.MaxPages))
	}
	if c.GamesPageSize <= 0 || c.PassesPageSize < 0 {
		errs = append(errs, errors.New("page sizes must be positive"))
	}
	if c.FanoutConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("FANOUT_CONCURRENCY must be positive, got %d", c.FanoutConcurrency))
	}
	if c.UpstreamTimeout <= 0 || c.AggregateTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.RetryMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", c.RetryMaxAttempts))
	}

	return errors.Join(errs...)
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Aggregate returns the aggregator configuration. An unset passes page
// size follows the source: 100 for the structured API, 50 for the partial.
func (c Config) Aggregate() aggregate.Config {
	source, _ := aggregate.ParsePassSource(c.PassSource)
	policy, _ := pagination.ParseErrorPolicy(c.ErrorPolicy)

	passesPageSize := c.PassesPageSize
	if passesPageSize == 0 {
		passesPageSize = 100
		if source == aggregate.SourceHTML {
			passesPageSize = 50
		}
	}

	return aggregate.Config{
		Endpoints: aggregate.Endpoints{
			Games: c.UpstreamGamesURL,
			WWW:   c.UpstreamWWWURL,
			APIs:  c.UpstreamAPIsURL,
		},
		PassSource:     source,
		Policy:         policy,
		MaxPages:       c.MaxPages,
		GamesPageSize:  c.GamesPageSize,
		PassesPageSize: passesPageSize,
		MaxConcurrency: c.FanoutConcurrency,
	}
}

// Client returns the upstream client configuration without a throttle
// tracker; the caller attaches one.
func (c Config) Client() client.Config {
	cfg := client.DefaultConfig(c.UserAgent)
	cfg.Timeout = c.UpstreamTimeout
	cfg.Retry.MaxAttempts = c.RetryMaxAttempts
	cfg.Retry.InitialBackoff = c.RetryInitialBackoff
	if cfg.Retry.MaxBackoff < c.RetryInitialBackoff {
		cfg.Retry.MaxBackoff = c.RetryInitialBackoff
	}
	return cfg
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
