// Package backoff computes exponential-backoff-with-jitter delays for the
// fetch engine's retry loop, per §4.D. Grounded in the shape of
// rohmanhakim-docs-crawler's retrier/backoff helpers (base, max, jitter),
// reimplemented locally since that package is not published as an
// importable module outside its own repo.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy holds the defaults named in §4.D: max_retries=3, base_delay=1s,
// max_delay=30s.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns the standard retry defaults.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Delay computes delay = min(max_delay, base_delay * 2^attempt + jitter),
// jitter ~ U(0, base_delay). attempt is zero-based (first retry is 0).
func (p Policy) Delay(attempt int, rng *rand.Rand) time.Duration {
	exp := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	jitter := rng.Float64() * float64(p.BaseDelay)
	delay := time.Duration(exp + jitter)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// RetryAfterDelay honors an explicit Retry-After value (seconds), capped
// at MaxDelay, taking precedence over the computed backoff.
func (p Policy) RetryAfterDelay(seconds int) time.Duration {
	d := time.Duration(seconds) * time.Second
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RetryableStatus reports whether an HTTP status code should trigger a
// retry per §4.D (429, 500, 502, 503, 504).
func RetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
