package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestRedisLimiter needs a Redis on localhost:6379 and skips otherwise.
func TestRedisLimiter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	limiter, err := DialRedis(ctx, "localhost:6379", Policy{Burst: 1, RefillPerSecond: 1})
	if err != nil {
		t.Skip("skipping redis limiter test: redis not available")
	}
	defer limiter.Close()

	key := "test-" + uuid.NewString()

	allowed, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected a fresh bucket to allow")
	}

	allowed, err = limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Errorf("expected the second immediate request to be limited")
	}

	time.Sleep(1100 * time.Millisecond)
	allowed, err = limiter.Allow(context.Background(), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected allow after refill")
	}
}
