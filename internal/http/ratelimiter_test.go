package httpapi

import (
	"testing"
	"time"
)

func TestSlidingWindowLimiter(t *testing.T) {
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 2, func() time.Time { return now })

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatal("expected first two calls to be allowed")
	}
	if limiter.Allow() {
		t.Fatal("expected third call to be denied")
	}

	now = now.Add(30 * time.Second)
	if limiter.Allow() {
		t.Fatal("expected call within window to still be denied")
	}

	now = now.Add(31 * time.Second)
	if !limiter.Allow() {
		t.Fatal("expected limiter to permit call after window passes")
	}
}

func TestSlidingWindowLimiterDisabled(t *testing.T) {
	if !NewSlidingWindowLimiter(0, 0, nil).Allow() {
		t.Fatal("limiter with zero configuration should allow")
	}
}

func TestSlidingWindowLimiterRetryAfter(t *testing.T) {
	now := time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 1, func() time.Time { return now })

	if got := limiter.RetryAfter(); got != 0 {
		t.Fatalf("expected no wait before the first call, got %v", got)
	}
	limiter.Allow()
	now = now.Add(20 * time.Second)
	if got := limiter.RetryAfter(); got != 40*time.Second {
		t.Fatalf("expected 40s wait, got %v", got)
	}
}
