// Package fetch implements the single-URL fetch operation of §4.D: URL
// validation, per-host pacing, anti-detection header composition, and
// retrying GETs with exponential backoff. Grounded on app/scraping/fetcher.py,
// built around a validator/antidetect/backoff stack rather than a
// proxy-pool and bot-detection-bypass pipeline.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/FranksOps/gofr-dig/internal/antidetect"
	"github.com/FranksOps/gofr-dig/internal/apperr"
	"github.com/FranksOps/gofr-dig/internal/backoff"
	"github.com/FranksOps/gofr-dig/internal/fingerprint"
	"github.com/FranksOps/gofr-dig/internal/metrics"
	"github.com/FranksOps/gofr-dig/internal/urlvalidate"
)

const maxRedirects = 10

// Result is the outcome of a single fetch, successful or not.
type Result struct {
	URL         string
	FinalURL    string
	Status      int
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
	RetryCount  int
	RateLimited bool
	Err         error
}

// Config configures a Fetcher.
type Config struct {
	Timeout        time.Duration
	RateLimitDelay time.Duration
	AntiDetect     *antidetect.Manager
	Validator      *urlvalidate.Validator
	Backoff        backoff.Policy
	Fingerprint    fingerprint.Profile
}

// Fetcher performs single-URL fetches honoring §4.D's sequence. One
// Fetcher is shared process-wide so per-host pacing state is global, per
// §5's ordering guarantees.
type Fetcher struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	lastSeen map[string]time.Time

	jitterMu sync.Mutex
	jitter   *rand.Rand
}

// New constructs a Fetcher. A nil cfg.Validator becomes a strict
// validator (private addresses blocked); a nil cfg.AntiDetect becomes a
// default Manager.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Validator == nil {
		cfg.Validator = urlvalidate.New(false)
	}
	if cfg.AntiDetect == nil {
		cfg.AntiDetect = antidetect.NewManager(1)
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.DefaultPolicy()
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = cfg.AntiDetect.TLSFingerprint()
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, http.ProxyFromEnvironment)
	if err != nil {
		return nil, fmt.Errorf("fetch: failed to build transport: %w", err)
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("fetch: stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		cfg:      cfg,
		client:   client,
		lastSeen: map[string]time.Time{},
		jitter:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Options overrides per-call behavior named by the fetch(...) signature in
// §4.D.
type Options struct {
	RotateUA        bool
	ExtraHeaders    map[string]string
	TimeoutOverride time.Duration
}

// Fetch runs the full validate/pace/fetch/retry sequence for targetURL,
// then records the outcome to the process-wide Prometheus metrics.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, opts Options) *Result {
	result := f.fetch(ctx, targetURL, opts)
	metrics.RecordFetch(hostOf(targetURL), result.Status, result.Err, result.Duration, len(result.Body), result.RateLimited)
	return result
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func (f *Fetcher) fetch(ctx context.Context, targetURL string, opts Options) *Result {
	start := time.Now()

	vr, err := f.cfg.Validator.Validate(ctx, targetURL)
	if err != nil {
		return &Result{URL: targetURL, Status: 0, Duration: time.Since(start), Err: err}
	}

	f.pace(ctx, vr.Host)

	timeout := f.cfg.Timeout
	if opts.TimeoutOverride > 0 {
		timeout = opts.TimeoutOverride
	}

	headers := f.cfg.AntiDetect.Headers(opts.RotateUA)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}

	result := &Result{URL: targetURL}

	for attempt := 0; ; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		req, rerr := http.NewRequestWithContext(reqCtx, http.MethodGet, targetURL, nil)
		if rerr != nil {
			cancel()
			result.Err = apperr.Wrap(apperr.CodeFetchError, "failed to build request", rerr, nil)
			result.Duration = time.Since(start)
			return result
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, derr := f.client.Do(req)
		if derr != nil {
			cancel()
			result.RetryCount = attempt
			if attempt < f.cfg.Backoff.MaxRetries {
				if f.sleep(ctx, f.cfg.Backoff.Delay(attempt, f.rng())) {
					continue
				}
			}
			result.Err = classifyTransportErr(derr)
			result.Duration = time.Since(start)
			return result
		}

		body, berr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if berr != nil {
			result.RetryCount = attempt
			result.Err = apperr.Wrap(apperr.CodeConnectionError, "failed to read response body", berr, nil)
			result.Duration = time.Since(start)
			return result
		}

		result.Status = resp.StatusCode
		result.Headers = resp.Header
		result.Body = body
		if resp.Request != nil && resp.Request.URL != nil {
			result.FinalURL = resp.Request.URL.String()
		}
		result.RetryCount = attempt

		if resp.StatusCode == http.StatusTooManyRequests {
			result.RateLimited = true
		}

		if backoff.RetryableStatus(resp.StatusCode) && attempt < f.cfg.Backoff.MaxRetries {
			if f.sleep(ctx, f.retryDelay(resp, attempt)) {
				continue
			}
		}

		if resp.StatusCode >= 400 {
			result.Err = statusToError(resp.StatusCode)
		}

		result.Duration = time.Since(start)
		return result
	}
}

// FetchRobotsTxt implements the robots.Fetcher interface so the robots
// checker can reuse this Fetcher's transport, pacing, and headers.
func (f *Fetcher) FetchRobotsTxt(ctx context.Context, robotsURL string) (int, string, error) {
	r := f.Fetch(ctx, robotsURL, Options{ExtraHeaders: antidetect.MinimalHeaders()})
	if r.Err != nil {
		return r.Status, "", r.Err
	}
	return r.Status, string(r.Body), nil
}

func (f *Fetcher) pace(ctx context.Context, host string) {
	if f.cfg.RateLimitDelay <= 0 {
		return
	}
	f.mu.Lock()
	last, ok := f.lastSeen[host]
	now := time.Now()
	var wait time.Duration
	if ok {
		earliest := last.Add(f.cfg.RateLimitDelay)
		if earliest.After(now) {
			wait = earliest.Sub(now)
		}
	}
	f.lastSeen[host] = now.Add(wait)
	f.mu.Unlock()

	if wait > 0 {
		f.sleep(ctx, wait)
	}
}

func (f *Fetcher) retryDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, ok := parseRetryAfterSeconds(ra); ok {
			return f.cfg.Backoff.RetryAfterDelay(secs)
		}
	}
	return f.cfg.Backoff.Delay(attempt, f.rng())
}

// rng returns a fresh jitter source seeded from the Fetcher's shared one
// under a lock. math/rand.Rand is not itself safe for concurrent use.
func (f *Fetcher) rng() *rand.Rand {
	f.jitterMu.Lock()
	defer f.jitterMu.Unlock()
	return rand.New(rand.NewSource(f.jitter.Int63()))
}

func statusToError(status int) error {
	switch {
	case status == http.StatusNotFound:
		return apperr.New(apperr.CodeURLNotFound, "page not found", map[string]any{"status": status})
	case status == http.StatusTooManyRequests:
		return apperr.New(apperr.CodeRateLimited, "rate limited by origin", map[string]any{"status": status})
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return apperr.New(apperr.CodeAccessDenied, "access denied by origin", map[string]any{"status": status})
	case status >= 500:
		return apperr.New(apperr.CodeFetchError, "origin server error", map[string]any{"status": status})
	case status >= 400:
		return apperr.New(apperr.CodeFetchError, "fetch failed", map[string]any{"status": status})
	}
	return nil
}

func classifyTransportErr(err error) error {
	type timeouter interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return apperr.Wrap(apperr.CodeTimeoutError, "request timed out", err, nil)
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return apperr.Wrap(apperr.CodeConnectionError, "connection failed", err, nil)
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func parseRetryAfterSeconds(v string) (int, bool) {
	var secs int
	n, err := fmt.Sscanf(v, "%d", &secs)
	if err != nil || n != 1 || secs < 0 {
		return 0, false
	}
	return secs, true
}
