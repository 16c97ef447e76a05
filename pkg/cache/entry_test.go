package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	storedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ttl := 2 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "just written", now: storedAt, want: false},
		{name: "just before ttl", now: storedAt.Add(ttl - time.Nanosecond), want: false},
		{name: "exactly ttl", now: storedAt.Add(ttl), want: true},
		{name: "after ttl", now: storedAt.Add(ttl + time.Second), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{StoredAt: storedAt}
			if got := entry.IsExpired(tt.now, ttl); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	storedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{StoredAt: storedAt}

	if got := entry.TTL(storedAt.Add(30*time.Second), time.Minute); got != 30*time.Second {
		t.Errorf("TTL() = %v, want 30s", got)
	}
	if got := entry.TTL(storedAt.Add(time.Hour), time.Minute); got != 0 {
		t.Errorf("TTL() = %v, want 0 for expired entry", got)
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		prefix  Prefix
		subject string
		want    string
	}{
		{PrefixUser, "123", "gp:123"},
		{PrefixPlace, "456", "gpp:456"},
	}

	for _, tt := range tests {
		if got := Key(tt.prefix, tt.subject); got != tt.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tt.prefix, tt.subject, got, tt.want)
		}
	}

	if Key(PrefixUser, "1") == Key(PrefixPlace, "1") {
		t.Error("user and place keys must not collide")
	}
}
