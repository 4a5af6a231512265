package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/skinvault/escrow/internal/platform/kv"
	"github.com/skinvault/escrow/pkg/logger"
)

func TestAcquireAllowsWithinCapacity(t *testing.T) {
	store := kv.NewMemory()
	lim := New(store, Config{Capacity: 2, Window: time.Minute, FallbackBurst: 1}, logger.NewDefault("ratelimit-test"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := lim.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := lim.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
}

func TestWindowKeyBucketsByFloorDivision(t *testing.T) {
	lim := &Limiter{cfg: Config{Window: 60 * time.Second}}
	t1 := time.Unix(119, 0)
	t2 := time.Unix(120, 0)

	if lim.windowKey(t1) == lim.windowKey(t2) {
		t.Fatalf("expected distinct windows to bucket separately")
	}
}

func TestAcquireReturnsErrorOnCancelledContextDuringWait(t *testing.T) {
	store := kv.NewMemory()
	lim := New(store, Config{Capacity: 1, Window: time.Hour, FallbackBurst: 1}, logger.NewDefault("ratelimit-test"))

	ctx, cancel := context.WithCancel(context.Background())
	if err := lim.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	cancel()

	if err := lim.Acquire(ctx); err == nil {
		t.Fatalf("expected cancelled context to surface an error once budget is exhausted")
	}
}
