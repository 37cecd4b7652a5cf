package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FranksOps/gofr-dig/internal/antidetect"
	"github.com/FranksOps/gofr-dig/internal/apperr"
	"github.com/FranksOps/gofr-dig/internal/backoff"
	"github.com/FranksOps/gofr-dig/internal/fingerprint"
	"github.com/FranksOps/gofr-dig/internal/urlvalidate"
)

func newTestFetcher(t *testing.T, cfg Config) *Fetcher {
	t.Helper()
	if cfg.Validator == nil {
		cfg.Validator = urlvalidate.New(true)
	}
	if cfg.AntiDetect == nil {
		cfg.AntiDetect = antidetect.NewManager(1)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return f
}

func TestFetch_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("expected User-Agent header, got none")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{Timeout: 5 * time.Second})

	res := f.Fetch(context.Background(), ts.URL, Options{})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", res.Status)
	}
	if string(res.Body) != "ok" {
		t.Errorf("expected body 'ok', got %q", res.Body)
	}
	if res.Duration == 0 {
		t.Errorf("expected non-zero duration")
	}
}

func TestFetch_SSRFBlocked(t *testing.T) {
	f := newTestFetcher(t, Config{Validator: urlvalidate.New(false)})

	res := f.Fetch(context.Background(), "http://127.0.0.1:1/x", Options{})
	if res.Err == nil {
		t.Fatalf("expected SSRF_BLOCKED error")
	}
	appErr, ok := apperr.As(res.Err)
	if !ok || appErr.Code != apperr.CodeSSRFBlocked {
		t.Errorf("expected CodeSSRFBlocked, got %v", res.Err)
	}
}

func TestFetch_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("recovered"))
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{
		Backoff: backoff.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
	})

	res := f.Fetch(context.Background(), ts.URL, Options{})
	if res.Err != nil {
		t.Fatalf("unexpected error after retry: %v", res.Err)
	}
	if res.RetryCount != 1 {
		t.Errorf("expected 1 retry, got %d", res.RetryCount)
	}
	if string(res.Body) != "recovered" {
		t.Errorf("expected recovered body, got %q", res.Body)
	}
}

func TestFetch_404NoRetry(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{})
	res := f.Fetch(context.Background(), ts.URL, Options{})

	if calls != 1 {
		t.Errorf("expected exactly 1 call for a 404, got %d", calls)
	}
	appErr, ok := apperr.As(res.Err)
	if !ok || appErr.Code != apperr.CodeURLNotFound {
		t.Errorf("expected CodeURLNotFound, got %v", res.Err)
	}
}

func TestFetch_RateLimitedFlagLatchesOn429(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{
		Backoff: backoff.Policy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	res := f.Fetch(context.Background(), ts.URL, Options{})

	if !res.RateLimited {
		t.Errorf("expected RateLimited to latch true on 429")
	}
}

func TestFetch_RespectsPerHostPacing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{RateLimitDelay: 50 * time.Millisecond})

	start := time.Now()
	f.Fetch(context.Background(), ts.URL, Options{})
	f.Fetch(context.Background(), ts.URL, Options{})
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Errorf("expected second fetch to wait for per-host pacing, elapsed=%v", elapsed)
	}
}

func TestFetchRobotsTxt(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{})
	status, body, err := f.FetchRobotsTxt(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	if body == "" {
		t.Errorf("expected non-empty robots body")
	}
}
