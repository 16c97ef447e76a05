// Package client provides the upstream HTTP client with throttle gating,
// retries and error classification.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/caesar700/roblox-donation-proxy/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream client operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamepass_upstream_requests_total",
		Help: "Total upstream requests by host and status",
	}, []string{"host", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gamepass_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by host",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"host"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamepass_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// maxBodyBytes caps how much of an upstream body is read.
const maxBodyBytes = 8 << 20

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (except 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and active cooldowns.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client performs GET requests against the upstream platform.
type Client struct {
	httpClient *http.Client
	throttle   *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single upstream call.
	Timeout time.Duration

	// Retry controls backoff for transient failures.
	Retry RetryConfig

	// Throttle gates requests while the upstream is cooling down.
	// Optional: an in-memory tracker is used when nil.
	Throttle *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   10 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "upstream-client").Logger()

	throttle := cfg.Throttle
	if throttle == nil {
		throttle = ratelimit.NewTracker(ratelimit.NewMemoryStateStore(), logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		throttle: throttle,
		config:   cfg,
		logger:   logger,
	}, nil
}

// GetBody performs a GET request and returns the response body.
// A non-success status becomes an *UpstreamError carrying a short excerpt of
// the body. Server errors, 429s and network failures are retried; requests
// blocked by an active cooldown fail with ErrThrottled at once.
func (c *Client) GetBody(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	var errClass ErrorClass

	err := retryWithBackoff(ctx, c.config.Retry, func() error {
		var attemptErr error
		body, errClass, attemptErr = c.do(ctx, rawURL)
		return attemptErr
	}, func() ErrorClass {
		return errClass
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// do executes a single attempt.
func (c *Client) do(ctx context.Context, rawURL string) ([]byte, ErrorClass, error) {
	allowed, err := c.throttle.ShouldAllowRequest(ctx)
	if err != nil {
		// An unreadable throttle state does not block the upstream.
		c.logger.Warn().Err(err).Str("url", rawURL).Msg("Throttle check failed - sending request")
		allowed = true
	}
	if !allowed {
		// Not retried: the cooldown outlasts any backoff.
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, "", &UpstreamError{
			URL:        rawURL,
			ErrorClass: ErrorClassRateLimit,
			Err:        ErrThrottled,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json, text/html")

	host := req.URL.Host
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().Str("url", rawURL).Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classifyNetworkError(ctx)
		if class != "" {
			upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		}
		upstreamRequestsTotal.WithLabelValues(host, "network_error").Inc()
		c.logger.Error().Err(err).Str("url", rawURL).Msg("Upstream request failed")
		return nil, class, &UpstreamError{URL: rawURL, ErrorClass: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	if err := c.throttle.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update throttle state from headers")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	upstreamRequestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		c.logger.Error().Err(err).Str("url", rawURL).Msg("Reading upstream body failed")
		return nil, ErrorClassNetwork, &UpstreamError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")
		return nil, class, &UpstreamError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Excerpt:    truncate(body),
		}
	}

	return body, "", nil
}

// classifyStatus categorizes a non-success status code.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// classifyNetworkError returns ErrorClassNetwork unless the caller's context
// ended, which is not worth retrying.
func classifyNetworkError(ctx context.Context) ErrorClass {
	if ctx.Err() != nil {
		return ""
	}
	return ErrorClassNetwork
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
