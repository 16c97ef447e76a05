// Package ratelimit tracks upstream throttling signals and gates requests.
// It watches 429 responses (Retry-After) and the x-ratelimit-remaining /
// x-ratelimit-reset headers so the proxy stops hammering the upstream while
// it is cooling down.
package ratelimit

import (
	"time"
)

// Redis keys for throttle state storage.
const (
	RedisKeyRemaining      = "gp:throttle:remaining"
	RedisKeyResetTimestamp = "gp:throttle:reset_timestamp"
	RedisKeyLastUpdate     = "gp:throttle:last_update"
)

// Thresholds for throttle decisions.
const (
	// RemainingThresholdCritical blocks requests while remaining quota is
	// below this value and the reset time has not passed.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning delays requests while remaining quota is
	// below this value.
	RemainingThresholdWarning = 5

	// DefaultRetryAfter is the cooldown applied to a 429 without a usable
	// Retry-After header.
	DefaultRetryAfter = 5 * time.Second
)

// ThrottleState is the last observed upstream quota.
type ThrottleState struct {
	// Remaining is the request quota left in the current window.
	// -1 means the upstream never reported one.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// UnknownState is the state used before the upstream reported anything.
func UnknownState() *ThrottleState {
	return &ThrottleState{Remaining: -1}
}

// IsStale returns true if the state is older than maxAge.
func (s *ThrottleState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// active reports whether the state still describes the current window.
func (s *ThrottleState) active(now time.Time) bool {
	return s.Remaining >= 0 && now.Before(s.ResetAt)
}

// NeedsBlock returns true if requests must not be sent until ResetAt.
func (s *ThrottleState) NeedsBlock(now time.Time) bool {
	return s.active(now) && s.Remaining < RemainingThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *ThrottleState) NeedsThrottling(now time.Time) bool {
	return s.active(now) && s.Remaining < RemainingThresholdWarning && !s.NeedsBlock(now)
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *ThrottleState) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
