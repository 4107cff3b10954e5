package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) RateLimiter {
	t.Helper()

	mr := miniredis.RunT(t)
	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), limit, window, false)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}
	t.Cleanup(func() { limiter.Close() })
	return limiter
}

func TestRedisRateLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "203.0.113.7")
		if err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
		if !allowed {
			t.Errorf("Allow() request %d = false, want true", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("Allow() over-limit error = %v", err)
	}
	if allowed {
		t.Error("Allow() request 4 = true, want false")
	}
}

func TestRedisRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if allowed, _ := limiter.Allow(ctx, "ip-a"); !allowed {
		t.Error("Allow(ip-a) first = false, want true")
	}
	if allowed, _ := limiter.Allow(ctx, "ip-a"); allowed {
		t.Error("Allow(ip-a) second = true, want false")
	}
	if allowed, _ := limiter.Allow(ctx, "ip-b"); !allowed {
		t.Error("Allow(ip-b) = false, want true (independent key)")
	}
}

func TestRedisRateLimiter_WindowSlides(t *testing.T) {
	limiter := newTestLimiter(t, 1, 100*time.Millisecond)
	ctx := context.Background()

	if allowed, _ := limiter.Allow(ctx, "ip-c"); !allowed {
		t.Fatal("Allow() first = false, want true")
	}
	if allowed, _ := limiter.Allow(ctx, "ip-c"); allowed {
		t.Fatal("Allow() within window = true, want false")
	}

	time.Sleep(150 * time.Millisecond)

	allowed, err := limiter.Allow(ctx, "ip-c")
	if err != nil {
		t.Fatalf("Allow() after window error = %v", err)
	}
	if !allowed {
		t.Error("Allow() after window = false, want true")
	}
}

func TestNewRedisRateLimiter_Disabled(t *testing.T) {
	limiter, err := NewRedisRateLimiter("", 1, time.Minute, true)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(context.Background(), "any")
		if err != nil || !allowed {
			t.Errorf("disabled limiter Allow() = (%v, %v), want (true, nil)", allowed, err)
		}
	}
}

func TestNewRedisRateLimiter_InvalidURL(t *testing.T) {
	if _, err := NewRedisRateLimiter("not-a-valid-url", 1, time.Minute, false); err == nil {
		t.Error("NewRedisRateLimiter() with invalid URL should return error")
	}
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	allowed, err := limiter.Allow(context.Background(), "key")
	if err != nil || !allowed {
		t.Errorf("Allow() = (%v, %v), want (true, nil)", allowed, err)
	}
	if err := limiter.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
