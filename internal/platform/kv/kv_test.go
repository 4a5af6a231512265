package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "v" {
		t.Fatalf("expected v, got %q", v)
	}
}

func TestMemoryGetExpired(t *testing.T) {
	m := NewMemory()
	fixed := time.Now()
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	_ = m.Set(ctx, "k", "v", time.Millisecond)
	m.now = func() time.Time { return fixed.Add(time.Second) }

	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySetNXRaces(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	won, err := m.SetNX(ctx, "lock", "a", time.Minute)
	if err != nil || !won {
		t.Fatalf("expected first SetNX to win, got won=%v err=%v", won, err)
	}
	won, err = m.SetNX(ctx, "lock", "b", time.Minute)
	if err != nil || won {
		t.Fatalf("expected second SetNX to lose, got won=%v err=%v", won, err)
	}
}

func TestMemoryIncrSetsTTLOnlyOnFirstWrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	n, err := m.Incr(ctx, "counter", time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("expected 1, got n=%d err=%v", n, err)
	}
	if _, ok := m.expires["counter"]; !ok {
		t.Fatalf("expected TTL set on first increment")
	}

	n, err = m.Incr(ctx, "counter", time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("expected 2, got n=%d err=%v", n, err)
	}
}

func TestMemoryIncrAfterExpiryResets(t *testing.T) {
	m := NewMemory()
	fixed := time.Now()
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, _ = m.Incr(ctx, "counter", time.Millisecond)
	m.now = func() time.Time { return fixed.Add(time.Second) }

	n, err := m.Incr(ctx, "counter", time.Millisecond)
	if err != nil || n != 1 {
		t.Fatalf("expected counter to reset to 1 after expiry, got n=%d err=%v", n, err)
	}
}
