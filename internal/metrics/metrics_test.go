package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(8888)
	time.Sleep(100 * time.Millisecond)
	defer srv.Stop(context.Background())

	RecordFetch("example.com", 200, nil, time.Second, 11, false)
	RecordFetch("unreachable.test", 0, errors.New("connection refused"), 0, 0, false)
	RecordSimulatorRun("fixture")

	resp, err := http.Get("http://localhost:8888/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	if !strings.Contains(output, "gofr_dig_fetch_requests_total") {
		t.Errorf("expected gofr_dig_fetch_requests_total metric")
	}
	if !strings.Contains(output, `gofr_dig_fetch_duration_seconds_bucket`) {
		t.Errorf("expected gofr_dig_fetch_duration_seconds metric")
	}
	if !strings.Contains(output, `gofr_dig_fetch_bytes_total{host="example.com"}`) {
		t.Errorf("expected gofr_dig_fetch_bytes_total metric for example.com")
	}
	if !strings.Contains(output, `gofr_dig_fetch_requests_total{host="unreachable.test",rate_limited="false",status="error"}`) {
		t.Errorf("expected error-status fetch to be recorded")
	}
	if !strings.Contains(output, `gofr_dig_simulator_runs_total{mode="fixture"}`) {
		t.Errorf("expected gofr_dig_simulator_runs_total metric")
	}
}
