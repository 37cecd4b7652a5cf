// Package ratelimit caps the number of inbound tool calls per identity
// per sliding window. Distinct from the outbound per-host pacing in
// internal/fetch's Backoff policy — this package throttles callers at
// the RPC/HTTP boundary instead. Grounded on app/rate_limit.py's
// RateLimiter/_Bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/FranksOps/gofr-dig/internal/logging"
)

const anonymousIdentity = "__anonymous__"

// Result carries the information returned alongside an allow/deny
// decision, surfaced on RATE_LIMIT_EXCEEDED responses.
type Result struct {
	Allowed      bool
	Remaining    int
	Limit        int
	ResetSeconds int
}

// Backend is the sliding-window counter a Limiter delegates to. The
// default is an in-process bucket map; a Redis-backed Backend lets
// multiple server replicas share one limit.
type Backend interface {
	// Record prunes timestamps before cutoff and reports how many
	// remain within the window for key, then records now as a new call
	// if fewer than maxCalls remain.
	Record(ctx context.Context, key string, now, cutoff time.Time, maxCalls int) (count int, oldest time.Time, hasOldest bool, err error)
}

// Limiter is a sliding-window rate limiter keyed by caller identity.
type Limiter struct {
	backend  Backend
	maxCalls int
	window   time.Duration
}

// New builds a Limiter. maxCalls and window come from GOFR_DIG_RATE_LIMIT_CALLS
// / GOFR_DIG_RATE_LIMIT_WINDOW (via internal/config) by convention, not
// read directly here.
func New(backend Backend, maxCalls int, window time.Duration) *Limiter {
	if maxCalls <= 0 {
		maxCalls = 60
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Limiter{backend: backend, maxCalls: maxCalls, window: window}
}

// Check reports whether a call from identity (empty meaning anonymous)
// is allowed under the current window, recording the call if so.
func (l *Limiter) Check(ctx context.Context, identity string) (Result, error) {
	key := identity
	if key == "" {
		key = anonymousIdentity
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	count, oldest, hasOldest, err := l.backend.Record(ctx, key, now, cutoff, l.maxCalls)
	if err != nil {
		return Result{}, err
	}

	resetSeconds := 0
	if hasOldest {
		resetSeconds = int(oldest.Sub(cutoff).Seconds()) + 1
	}

	remaining := l.maxCalls - count
	if remaining < 0 {
		remaining = 0
	}
	allowed := count <= l.maxCalls

	if !allowed {
		logging.Base().Warn("rate limit exceeded", "identity", key, "limit", l.maxCalls, "window_seconds", int(l.window.Seconds()))
	}

	return Result{Allowed: allowed, Remaining: remaining, Limit: l.maxCalls, ResetSeconds: resetSeconds}, nil
}

// memoryBucket is one identity's timestamp list.
type memoryBucket struct {
	timestamps []time.Time
}

// MemoryBackend is the default process-local Backend.
type MemoryBackend struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

// NewMemoryBackend builds an empty in-process Backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{buckets: make(map[string]*memoryBucket)}
}

// Record implements Backend.
func (m *MemoryBackend) Record(ctx context.Context, key string, now, cutoff time.Time, maxCalls int) (int, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if !ok {
		bucket = &memoryBucket{}
		m.buckets[key] = bucket
	}

	kept := bucket.timestamps[:0]
	for _, ts := range bucket.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	bucket.timestamps = kept

	if len(bucket.timestamps) >= maxCalls {
		var oldest time.Time
		hasOldest := len(bucket.timestamps) > 0
		if hasOldest {
			oldest = bucket.timestamps[0]
		}
		return len(bucket.timestamps) + 1, oldest, hasOldest, nil
	}

	bucket.timestamps = append(bucket.timestamps, now)
	var oldest time.Time
	hasOldest := len(bucket.timestamps) > 0
	if hasOldest {
		oldest = bucket.timestamps[0]
	}
	return len(bucket.timestamps), oldest, hasOldest, nil
}
