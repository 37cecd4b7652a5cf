package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestCheck_AllowsUpToLimitThenDenies(t *testing.T) {
	limiter := New(NewMemoryBackend(), 2, time.Minute)
	ctx := context.Background()

	first, err := limiter.Check(ctx, "apac")
	if err != nil || !first.Allowed {
		t.Fatalf("expected first call allowed, got %+v err=%v", first, err)
	}
	second, err := limiter.Check(ctx, "apac")
	if err != nil || !second.Allowed {
		t.Fatalf("expected second call allowed, got %+v err=%v", second, err)
	}
	third, err := limiter.Check(ctx, "apac")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if third.Allowed {
		t.Errorf("expected third call over limit to be denied")
	}
	if third.Remaining != 0 {
		t.Errorf("expected 0 remaining when denied, got %d", third.Remaining)
	}
}

func TestCheck_AnonymousCallerSharesAnonymousBucket(t *testing.T) {
	limiter := New(NewMemoryBackend(), 1, time.Minute)
	ctx := context.Background()

	first, err := limiter.Check(ctx, "")
	if err != nil || !first.Allowed {
		t.Fatalf("expected first anonymous call allowed, got %+v err=%v", first, err)
	}
	second, err := limiter.Check(ctx, "")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if second.Allowed {
		t.Errorf("expected second anonymous call to share the same bucket and be denied")
	}
}

func TestCheck_DistinctIdentitiesHaveIndependentBuckets(t *testing.T) {
	limiter := New(NewMemoryBackend(), 1, time.Minute)
	ctx := context.Background()

	if r, err := limiter.Check(ctx, "apac"); err != nil || !r.Allowed {
		t.Fatalf("expected apac call allowed, got %+v err=%v", r, err)
	}
	if r, err := limiter.Check(ctx, "emea"); err != nil || !r.Allowed {
		t.Errorf("expected emea call to have its own bucket and be allowed, got %+v err=%v", r, err)
	}
}

func TestNew_NonPositiveDefaultsAreApplied(t *testing.T) {
	limiter := New(NewMemoryBackend(), 0, 0)
	if limiter.maxCalls != 60 {
		t.Errorf("expected default max calls 60, got %d", limiter.maxCalls)
	}
	if limiter.window != 60*time.Second {
		t.Errorf("expected default window 60s, got %v", limiter.window)
	}
}
