package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FranksOps/gofr-dig/internal/logging"
)

const (
	maxRetries       = 3
	backoffBase      = 1.0
	backoffMaxSecond = 30.0
)

var retryableStatus = map[int]bool{429: true, 502: true, 503: true, 504: true}

// ConsumerConfig tunes one concurrent consumer goroutine.
type ConsumerConfig struct {
	ConsumerID     int
	RatePerSec     float64
	TimeoutSeconds float64
	MCPURL         string // empty means plain HTTP GET mode
	AuthToken      string
	Persona        string
	MaxRetries     int
	BackoffBase    float64
	BackoffMax     float64
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = maxRetries
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = backoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = backoffMaxSecond
	}
	return c
}

// RequestBudget is a shared, mutex-guarded request counter every
// consumer draws from; nil Total means unlimited.
type RequestBudget struct {
	mu        sync.Mutex
	remaining *int
}

// NewRequestBudget builds a budget. total nil means unlimited.
func NewRequestBudget(total *int) *RequestBudget {
	if total == nil {
		return &RequestBudget{}
	}
	v := *total
	return &RequestBudget{remaining: &v}
}

// TryAcquire reports whether one more request may be sent.
func (b *RequestBudget) TryAcquire() bool {
	if b.remaining == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if *b.remaining <= 0 {
		return false
	}
	*b.remaining--
	return true
}

// Counters tallies ok/error outcomes across all consumers.
type Counters struct {
	ok    int64
	error int64
}

func (c *Counters) RecordOK()    { atomic.AddInt64(&c.ok, 1) }
func (c *Counters) RecordError() { atomic.AddInt64(&c.error, 1) }

// Snapshot returns the current (ok, error) totals.
func (c *Counters) Snapshot() (int, int) {
	return int(atomic.LoadInt64(&c.ok)), int(atomic.LoadInt64(&c.error))
}

// classifyHTTPError maps a status code to a canonical error_type, or
// "" for success.
func classifyHTTPError(status int) string {
	switch {
	case status >= 200 && status < 400:
		return ""
	case status == 401:
		return "auth_unauthorized"
	case status == 403:
		return "auth_forbidden"
	case status == 404:
		return "not_found"
	case status == 429:
		return "rate_limited"
	case status >= 400 && status < 500:
		return "client_error"
	case status >= 500 && status < 600:
		return "server_error"
	default:
		return fmt.Sprintf("http_%d", status)
	}
}

// classifyNetworkError maps a transport-level error to a canonical error_type.
func classifyNetworkError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "network_timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "network_connect"
	}
	return "network_error"
}

// backoffDelay computes retry delay, honoring Retry-After when present.
func backoffDelay(attempt int, base, cap float64, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil {
			return time.Duration(math.Min(secs, cap) * float64(time.Second))
		}
	}
	delay := base * math.Pow(2, float64(attempt))
	return time.Duration(math.Min(delay, cap) * float64(time.Second))
}

// Consumer drives one simulated caller, either plain HTTP GET requests
// (live/fixture mode) or the tool-call sequence (MCP mode). Grounded
// on core/consumer.py's Consumer. MCP mode here talks the tool-call
// contract over plain HTTP JSON rather than the original's stdio MCP
// transport, since no MCP client library exists anywhere in the stack
// this project is built from.
type Consumer struct {
	config   ConsumerConfig
	provider URLProvider
	metrics  *MetricsCollector
	client   *http.Client
}

// NewConsumer builds a Consumer. rate_per_sec must be > 0.
func NewConsumer(config ConsumerConfig, provider URLProvider, metrics *MetricsCollector) (*Consumer, error) {
	if config.RatePerSec <= 0 {
		return nil, fmt.Errorf("rate_per_sec must be > 0")
	}
	config = config.withDefaults()
	return &Consumer{
		config:   config,
		provider: provider,
		metrics:  metrics,
		client:   &http.Client{Timeout: time.Duration(config.TimeoutSeconds * float64(time.Second))},
	}, nil
}

// Run drives the consumer until ctx is cancelled or the budget is exhausted.
func (c *Consumer) Run(ctx context.Context, budget *RequestBudget, counters *Counters) {
	if c.config.MCPURL != "" {
		c.runMCP(ctx, budget, counters)
		return
	}

	interval := time.Duration(float64(time.Second) / c.config.RatePerSec)
	nextFire := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !budget.TryAcquire() {
			return
		}

		now := time.Now()
		if now.Before(nextFire) {
			time.Sleep(nextFire.Sub(now))
		}
		nextFire = nextFire.Add(interval)
		if nextFire.Before(time.Now()) {
			nextFire = time.Now()
		}

		url := c.provider.ChooseURL()
		start := time.Now()

		resp, err := c.requestWithRetry(ctx, url)
		durationMs := int(time.Since(start).Milliseconds())

		if err != nil {
			errType := classifyNetworkError(err)
			if c.metrics != nil {
				c.metrics.Record("http.get", durationMs, false, c.config.Persona, errType)
			}
			counters.RecordError()
			logging.Base().Warn("simulator consumer request error", "consumer_id", c.config.ConsumerID, "url", url, "duration_ms", durationMs, "error_type", errType, "error", err)
			continue
		}

		errType := classifyHTTPError(resp.StatusCode)
		ok := errType == ""
		resp.Body.Close()

		if c.metrics != nil {
			c.metrics.Record("http.get", durationMs, ok, c.config.Persona, errType)
		}
		if ok {
			counters.RecordOK()
			logging.Base().Info("simulator consumer request ok", "consumer_id", c.config.ConsumerID, "url", url, "status_code", resp.StatusCode, "duration_ms", durationMs)
		} else {
			counters.RecordError()
			logging.Base().Warn("simulator consumer request error", "consumer_id", c.config.ConsumerID, "url", url, "status_code", resp.StatusCode, "duration_ms", durationMs, "error_type", errType)
		}
	}
}

// requestWithRetry performs an HTTP GET, retrying retryable status
// codes with exponential backoff honoring Retry-After.
func (c *Consumer) requestWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastResp *http.Response
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "gofr-dig-simulator/0.1")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if !retryableStatus[resp.StatusCode] || attempt == c.config.MaxRetries {
			return resp, nil
		}

		retryAfter := resp.Header.Get("Retry-After")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastResp = resp

		delay := backoffDelay(attempt, c.config.BackoffBase, c.config.BackoffMax, retryAfter)
		logging.Base().Info("simulator consumer retry", "consumer_id", c.config.ConsumerID, "url", url, "status_code", resp.StatusCode, "attempt", attempt+1, "delay_seconds", delay.Seconds())

		select {
		case <-ctx.Done():
			return lastResp, nil
		case <-time.After(delay):
		}
	}
	return lastResp, nil
}

// mcpPayload is the loosely-typed tool-call response envelope shared
// by every tool, mirroring the original's dict-shaped MCP payloads.
type mcpPayload map[string]any

func (p mcpPayload) success() bool {
	v, ok := p["success"]
	if !ok {
		return true
	}
	b, _ := v.(bool)
	return b
}

func (p mcpPayload) stringField(name string) string {
	v, _ := p[name].(string)
	return v
}

// mcpErrorType extracts a canonical error_type from a tool payload.
func mcpErrorType(p mcpPayload) string {
	code := p.stringField("error_code")
	if code == "" {
		code = p.stringField("error")
	}
	switch {
	case containsAny(code, "auth", "token", "unauthorized"):
		return "auth_error"
	case containsAny(code, "rate", "429", "throttl"):
		return "rate_limited"
	case containsAny(code, "timeout"):
		return "network_timeout"
	case containsAny(code, "fetch", "network", "connect"):
		return "network_error"
	default:
		return "mcp_tool_failed"
	}
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// callTool POSTs a tool invocation to the simulated RPC surface's
// plain-HTTP JSON tool-call endpoint and returns its decoded payload.
func (c *Consumer) callTool(ctx context.Context, toolName string, arguments map[string]any) (mcpPayload, bool, int) {
	start := time.Now()
	body, err := json.Marshal(arguments)
	if err != nil {
		return mcpPayload{"success": false, "error": err.Error()}, false, int(time.Since(start).Milliseconds())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.MCPURL+"/tools/"+toolName, bytes.NewReader(body))
	if err != nil {
		return mcpPayload{"success": false, "error": err.Error()}, false, int(time.Since(start).Milliseconds())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.client.Do(req)
	durationMs := int(time.Since(start).Milliseconds())
	if err != nil {
		return mcpPayload{"success": false, "error": err.Error()}, false, durationMs
	}
	defer resp.Body.Close()

	var payload mcpPayload
	if jsonErr := json.NewDecoder(resp.Body).Decode(&payload); jsonErr != nil {
		return mcpPayload{"success": false, "error": "non_json_response"}, false, durationMs
	}
	return payload, payload.success(), durationMs
}

// runMCP drives the three-step get_structure -> get_content ->
// session-read sequence per tick. Grounded on consumer.py's _run_mcp.
func (c *Consumer) runMCP(ctx context.Context, budget *RequestBudget, counters *Counters) {
	interval := time.Duration(float64(time.Second) / c.config.RatePerSec)
	nextFire := time.Now()

	if _, ok, _ := c.callTool(ctx, "ping", map[string]any{}); !ok {
		counters.RecordError()
		logging.Base().Error("simulator mcp connection failed", "consumer_id", c.config.ConsumerID, "mcp_url", c.config.MCPURL)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !budget.TryAcquire() {
			return
		}

		now := time.Now()
		if now.Before(nextFire) {
			time.Sleep(nextFire.Sub(now))
		}
		nextFire = nextFire.Add(interval)
		if nextFire.Before(time.Now()) {
			nextFire = time.Now()
		}

		url := c.provider.ChooseURL()
		start := time.Now()

		structureArgs := map[string]any{"url": url}
		if c.config.AuthToken != "" {
			structureArgs["auth_token"] = c.config.AuthToken
		}
		structurePayload, structureOK, structureMs := c.callTool(ctx, "get_structure", structureArgs)
		if c.metrics != nil {
			c.metrics.Record("mcp.get_structure", structureMs, structureOK, c.config.Persona, errTypeIfFailed(structureOK, structurePayload))
		}

		contentArgs := map[string]any{"url": url, "parse_results": false, "session": true}
		if c.config.AuthToken != "" {
			contentArgs["auth_token"] = c.config.AuthToken
		}
		contentPayload, contentOK, contentMs := c.callTool(ctx, "get_content", contentArgs)
		if c.metrics != nil {
			c.metrics.Record("mcp.get_content", contentMs, contentOK, c.config.Persona, errTypeIfFailed(contentOK, contentPayload))
		}

		sessionOK := false
		sessionID := contentPayload.stringField("session_id")
		if sessionID != "" {
			sessionOK = true

			infoArgs := map[string]any{"session_id": sessionID}
			if c.config.AuthToken != "" {
				infoArgs["auth_token"] = c.config.AuthToken
			}
			infoPayload, infoOK, infoMs := c.callTool(ctx, "get_session_info", infoArgs)
			if c.metrics != nil {
				c.metrics.Record("mcp.get_session_info", infoMs, infoOK, c.config.Persona, errTypeIfFailed(infoOK, infoPayload))
			}
			if !infoPayload.success() {
				sessionOK = false
			}

			chunkArgs := map[string]any{"session_id": sessionID, "chunk_index": 0}
			if c.config.AuthToken != "" {
				chunkArgs["auth_token"] = c.config.AuthToken
			}
			chunkPayload, chunkOK, chunkMs := c.callTool(ctx, "get_session_chunk", chunkArgs)
			if c.metrics != nil {
				c.metrics.Record("mcp.get_session_chunk", chunkMs, chunkOK, c.config.Persona, errTypeIfFailed(chunkOK, chunkPayload))
			}
			if !chunkPayload.success() {
				sessionOK = false
			}
		}

		durationMs := int(time.Since(start).Milliseconds())

		if structurePayload.success() && contentPayload.success() {
			counters.RecordOK()
			logging.Base().Info("simulator consumer mcp ok", "consumer_id", c.config.ConsumerID, "url", url, "duration_ms", durationMs, "did_session_reads", sessionOK)
		} else {
			counters.RecordError()
			logging.Base().Warn("simulator consumer mcp error", "consumer_id", c.config.ConsumerID, "url", url, "duration_ms", durationMs,
				"structure_ok", structurePayload.success(), "content_ok", contentPayload.success(), "session_ok", sessionOK)
		}
	}
}

func errTypeIfFailed(ok bool, p mcpPayload) string {
	if ok {
		return ""
	}
	return mcpErrorType(p)
}

// Simulator orchestrates a fleet of Consumers for one run. Grounded on
// core/engine.py's Simulator.
type Simulator struct {
	config      Config
	mixFile     string
	fixturesDir string
}

// NewSimulator builds a Simulator over the given config. mixFile and
// fixturesDir are optional (empty string means unused).
func NewSimulator(config Config, mixFile, fixturesDir string) *Simulator {
	return &Simulator{config: config, mixFile: mixFile, fixturesDir: fixturesDir}
}

// Run executes one simulation to completion, honoring ctx cancellation
// as the "stop" signal (the caller wires OS signal handling into ctx,
// following this codebase's usual context-cancellation idiom rather
// than the original's internal SIGINT/SIGTERM handler install).
func (s *Simulator) Run(ctx context.Context) (Result, error) {
	if s.config.Consumers < 1 && s.mixFile == "" {
		return Result{}, fmt.Errorf("consumers must be >= 1 (or provide a mix file)")
	}
	if s.config.TotalRequests == nil && s.config.DurationSeconds == nil {
		return Result{}, fmt.Errorf("one of total_requests or duration_seconds must be provided")
	}

	provider, err := s.buildProvider()
	if err != nil {
		return Result{}, err
	}

	configs, err := s.buildConsumerConfigs()
	if err != nil {
		return Result{}, err
	}

	counters := &Counters{}
	budget := NewRequestBudget(s.config.TotalRequests)
	metrics := NewMetricsCollector(0)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.config.DurationSeconds != nil {
		d := time.Duration(*s.config.DurationSeconds * float64(time.Second))
		timer := time.AfterFunc(d, cancel)
		defer timer.Stop()
	}

	started := time.Now()
	logging.Base().Info("simulation start", "mode", s.config.Mode, "consumers", len(configs), "total_requests", s.config.TotalRequests, "duration_seconds", s.config.DurationSeconds)

	var wg sync.WaitGroup
	for _, cfg := range configs {
		consumer, err := NewConsumer(cfg, provider, metrics)
		if err != nil {
			return Result{}, err
		}
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			c.Run(runCtx, budget, counters)
		}(consumer)
	}
	wg.Wait()

	ended := time.Now()
	ok, errCount := counters.Snapshot()

	result := Result{
		StartedAt:     started,
		EndedAt:       ended,
		RequestCount:  ok + errCount,
		ErrorCount:    errCount,
		MetricsReport: metrics.BuildReport(),
	}
	logging.Base().Info("simulation end", "request_count", result.RequestCount, "error_count", result.ErrorCount, "duration_seconds", result.Duration().Seconds(), "throughput_rps", result.ThroughputRPS())

	return result, nil
}

func (s *Simulator) buildProvider() (URLProvider, error) {
	switch {
	case s.config.Mode == ModeFixture:
		if s.fixturesDir == "" {
			return nil, fmt.Errorf("fixtures_dir must be provided for fixture mode")
		}
		if s.config.TargetURL == nil {
			return nil, fmt.Errorf("target_url (fixture server base URL) must be provided for fixture mode")
		}
		urls, err := BuildFixtureURLs(*s.config.TargetURL, s.fixturesDir)
		if err != nil {
			return nil, err
		}
		return NewURLListProvider(urls, 0)
	case s.config.TargetURL != nil:
		return staticURLProvider{url: *s.config.TargetURL}, nil
	default:
		return LoadSiteProviderFromFile(s.config.SitesFile)
	}
}

type staticURLProvider struct{ url string }

func (p staticURLProvider) ChooseURL() string { return p.url }

func (s *Simulator) buildConsumerConfigs() ([]ConsumerConfig, error) {
	if s.mixFile == "" {
		configs := make([]ConsumerConfig, s.config.Consumers)
		for i := range configs {
			configs[i] = ConsumerConfig{
				ConsumerID:     i,
				RatePerSec:     s.config.RatePerConsumerPerSec,
				TimeoutSeconds: s.config.TimeoutSeconds,
				MCPURL:         derefString(s.config.MCPURL),
			}
		}
		return configs, nil
	}

	mix, err := LoadMixFile(s.mixFile)
	if err != nil {
		return nil, err
	}

	var tokens map[string]string
	if s.config.MCPURL != nil {
		tokens, err = resolveTokensForMix(mix)
		if err != nil {
			return nil, err
		}
	}

	var configs []ConsumerConfig
	consumerID := 0
	for _, entry := range mix.Entries {
		authToken := ""
		if s.config.MCPURL != nil && entry.Token != nil {
			if resolved, ok := tokens[*entry.Token]; ok {
				authToken = resolved
			} else {
				authToken = *entry.Token
			}
		}
		for i := 0; i < entry.Count; i++ {
			configs = append(configs, ConsumerConfig{
				ConsumerID:     consumerID,
				RatePerSec:     s.config.RatePerConsumerPerSec,
				TimeoutSeconds: s.config.TimeoutSeconds,
				MCPURL:         derefString(s.config.MCPURL),
				AuthToken:      authToken,
				Persona:        entry.Name,
			})
			consumerID++
		}
	}

	if s.config.Consumers != 0 && s.config.Consumers != len(configs) {
		logging.Base().Warn("simulator mix overrides consumer count", "consumers_arg", s.config.Consumers, "consumers_from_mix", len(configs))
	}

	return configs, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// resolveTokensForMix maps symbolic token names (token_apac, ...) used
// in a mix file to concrete bearer strings, read from environment
// variables only. The original also supports minting fresh JWTs
// through an external Vault-backed token service (core/auth.py's
// TokenFactory); that dependency is out of scope here, so env-sourced
// tokens are the only resolution path — a symbolic name with no
// matching env var is a hard configuration error.
func resolveTokensForMix(mix MixConfig) (map[string]string, error) {
	symbolic := map[string]bool{}
	for _, e := range mix.Entries {
		if e.Token != nil && strings.HasPrefix(*e.Token, "token_") {
			symbolic[*e.Token] = true
		}
	}
	if len(symbolic) == 0 {
		return map[string]string{}, nil
	}

	resolved := map[string]string{"token_invalid": "invalid.invalid.invalid"}
	for _, name := range []string{"token_apac", "token_emea", "token_us", "token_multi", "token_expired"} {
		if v := os.Getenv("GOFR_DIG_SIM_" + envSuffixFor(name)); v != "" {
			resolved[name] = v
		}
	}

	var missing []string
	for name := range symbolic {
		if _, ok := resolved[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required tokens for mix (set GOFR_DIG_SIM_TOKEN_* env vars): %v", missing)
	}
	return resolved, nil
}

func envSuffixFor(symbolicName string) string {
	return strings.ToUpper(symbolicName)
}
