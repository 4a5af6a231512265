// Package ratelimit implements the global Steam-call budget (C4): a
// window-counter shared across every process via the KV store, so the
// whole bot fleet — not just one process — respects a single ceiling on
// calls per window, falling back to a local limiter when the KV store
// is unreachable.
//
// Adapted from infrastructure/ratelimit/ratelimit.go, swapping its
// single-process token bucket for a KV-backed counter and keeping the
// same x/time/rate fallback for the degraded path.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/skinvault/escrow/internal/platform/kv"
	"github.com/skinvault/escrow/pkg/logger"
)

// Config configures the global limiter. Defaults match spec.md §4.1:
// 20 calls per 60s window.
type Config struct {
	Capacity     int64
	Window       time.Duration
	FallbackBurst int
}

// DefaultConfig returns the spec's default Steam call budget.
func DefaultConfig() Config {
	return Config{Capacity: 20, Window: 60 * time.Second, FallbackBurst: 5}
}

// Limiter enforces the global Steam API call budget.
type Limiter struct {
	cfg      Config
	store    kv.Store
	fallback *rate.Limiter
	log      *logger.Logger
}

// New creates a Limiter backed by store, with a local fallback limiter
// sized so it can't exceed the same steady-state rate.
func New(store kv.Store, cfg Config, log *logger.Logger) *Limiter {
	perSecond := rate.Limit(float64(cfg.Capacity) / cfg.Window.Seconds())
	return &Limiter{
		cfg:      cfg,
		store:    store,
		fallback: rate.NewLimiter(perSecond, cfg.FallbackBurst),
		log:      log,
	}
}

// Acquire blocks the caller until a slot in the current window is
// available, or returns an error if ctx is done first. On KV failure it
// falls back to the in-process limiter for a 5s grace window rather than
// deadlocking every bot on a single Redis hiccup.
func (l *Limiter) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err := l.tryKV(ctx)
		if err == nil {
			if ok {
				return nil
			}
			if err := l.sleepForNextWindow(ctx); err != nil {
				return err
			}
			continue
		}

		if time.Now().After(deadline) {
			l.log.WithError(err).Warn("ratelimit: kv unavailable past grace window, using local fallback")
		}
		return l.fallback.Wait(ctx)
	}
}

// tryKV increments the current window's counter and reports whether this
// call is within budget.
func (l *Limiter) tryKV(ctx context.Context) (bool, error) {
	key := l.windowKey(time.Now())
	n, err := l.store.Incr(ctx, key, 2*l.cfg.Window)
	if err != nil {
		return false, err
	}
	return n <= l.cfg.Capacity, nil
}

// windowKey buckets "now" into a fixed-size window per spec.md §4.1:
// "steam:ratelimit:<floor(now/window)>".
func (l *Limiter) windowKey(now time.Time) string {
	bucket := now.Unix() / int64(l.cfg.Window.Seconds())
	return fmt.Sprintf("steam:ratelimit:%d", bucket)
}

func (l *Limiter) sleepForNextWindow(ctx context.Context) error {
	now := time.Now()
	windowStart := now.Truncate(l.cfg.Window)
	next := windowStart.Add(l.cfg.Window)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(next.Sub(now)):
		return nil
	}
}
