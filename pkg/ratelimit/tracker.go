package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	upstreamQuotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gamepass_upstream_quota_remaining",
		Help: "Last reported upstream request quota remaining",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamepass_rate_limit_blocks_total",
		Help: "Total number of upstream requests blocked during a cooldown",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamepass_rate_limit_throttles_total",
		Help: "Total number of upstream requests delayed because quota was low",
	})
)

// Header names reported by the upstream.
const (
	HeaderRemaining  = "X-Ratelimit-Remaining"
	HeaderReset      = "X-Ratelimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Tracker records upstream throttling and gates requests.
type Tracker struct {
	store         StateStore
	logger        zerolog.Logger
	throttleDelay time.Duration
	now           func() time.Time
}

// NewTracker creates a tracker backed by the given state store.
func NewTracker(store StateStore, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &Tracker{
		store:         store,
		logger:        logger,
		throttleDelay: 250 * time.Millisecond,
		now:           time.Now,
	}
}

// SetThrottleDelay sets how long a request waits when quota is low.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// SetClock overrides the time source (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// State returns the current throttle state.
func (t *Tracker) State(ctx context.Context) (*ThrottleState, error) {
	return t.store.Load(ctx)
}

// UpdateFromResponse records the throttle signals of an upstream response.
// A 429 starts a cooldown of Retry-After seconds (DefaultRetryAfter if the
// header is missing). Otherwise the quota headers are recorded if present.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) error {
	now := t.now()

	if statusCode == http.StatusTooManyRequests {
		wait := parseSeconds(headers.Get(HeaderRetryAfter), DefaultRetryAfter)
		state := &ThrottleState{
			Remaining:  0,
			ResetAt:    now.Add(wait),
			LastUpdate: now,
		}
		if err := t.store.Save(ctx, state); err != nil {
			return err
		}
		upstreamQuotaRemaining.Set(0)
		t.logger.Warn().
			Dur("retry_after", wait).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limited - cooling down")
		return nil
	}

	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(strings.TrimSpace(remainStr))
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}
	resetSeconds, err := strconv.Atoi(strings.TrimSpace(resetStr))
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	state := &ThrottleState{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	upstreamQuotaRemaining.Set(float64(remain))

	if state.NeedsThrottling(now) || state.NeedsBlock(now) {
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Upstream quota low")
	} else {
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Upstream quota updated")
	}
	return nil
}

// ShouldAllowRequest reports whether a request may be sent now.
// Returns false during a cooldown. In the warning band it waits
// throttleDelay (or until ctx is done) before allowing the request.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("get throttle state: %w", err)
	}

	now := t.now()

	if state.NeedsBlock(now) {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset(now)).
			Msg("Upstream cooldown active - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling(now) && t.throttleDelay > 0 {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Upstream quota low - throttling request")
		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// parseSeconds parses a delay in whole seconds, falling back to def.
func parseSeconds(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
