// Package kv implements the ephemeral KV store (C3): bot sessions,
// rate-limit counters, idempotency keys, and notification drain cursors.
// Everything here is reconstructible from the SQL store or from external
// calls (spec.md §5's shared-resource policy) — losing it causes
// re-work, never data loss.
//
// Adapted from infrastructure/cache/cache.go's in-memory TTL cache,
// generalized to a real external store (go-redis, declared but never
// wired in the teacher's go.mod) so state survives process restarts.
package kv

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the KV contract used by the rate limiter, bot fleet manager,
// idempotency key cache, and notification queue.
type Store interface {
	// Get returns the stored value for key.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key with the given TTL (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value under key only if it doesn't already exist,
	// returning whether this call won the race (used for idempotency keys).
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr atomically increments the integer counter at key, returning the
	// new value. If this is the first increment (new key), the caller
	// supplies the TTL to apply.
	Incr(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error)
	// Delete removes a key.
	Delete(ctx context.Context, key string) error
}

// Redis is a Store backed by go-redis/v8.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed Store.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

// Incr atomically increments key. The TTL is applied with NX semantics
// (only the increment that creates the key sets it) per spec.md §4.1:
// "the first increment sets a 2×window TTL".
func (r *Redis) Incr(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttlIfNew > 0 {
		r.client.Expire(ctx, key, ttlIfNew)
	}
	return n, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Memory is an in-process Store used for tests and as a degraded fallback.
type Memory struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return "", ErrNotFound
	}
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.expiredLocked(key) {
		if _, ok := m.values[key]; ok {
			return false, nil
		}
	}
	m.values[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}
	return true, nil
}

func (m *Memory) Incr(_ context.Context, key string, ttlIfNew time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	isNew := m.expiredLocked(key)
	if isNew {
		delete(m.values, key)
	}
	var n int64
	if v, ok := m.values[key]; ok {
		var err error
		n, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
	} else {
		isNew = true
	}
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	if isNew && ttlIfNew > 0 {
		m.expires[key] = m.now().Add(ttlIfNew)
	}
	return n, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.expires, key)
	return nil
}

func (m *Memory) expired(key string) bool {
	exp, ok := m.expires[key]
	if !ok {
		return false
	}
	return m.now().After(exp)
}

func (m *Memory) expiredLocked(key string) bool {
	if m.expired(key) {
		delete(m.values, key)
		delete(m.expires, key)
		return true
	}
	return false
}
