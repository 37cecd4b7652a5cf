package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/gofr-dig/internal/storage"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if GOFR_DIG_TEST_PG_DSN is set
	dsn := os.Getenv("GOFR_DIG_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: GOFR_DIG_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()

	rec := &storage.RunRecord{
		ID:           "testpg1234",
		Mode:         "fixture",
		StartedAt:    now,
		FinishedAt:   now.Add(50 * time.Millisecond),
		Duration:     50 * time.Millisecond,
		RequestCount: 10,
		ErrorCount:   1,
		ReportJSON:   []byte(`{"hello":"pg"}`),
		Error:        "",
	}

	if err := b.Save(ctx, rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	// Test Query
	filter := storage.Filter{Mode: "fixture"}

	results, err := b.Query(ctx, filter)
	if err != nil {
		t.Fatalf("Failed to query results: %v", err)
	}

	// Can be more than 1 if tests run repeatedly, so we just check the most recent
	if len(results) < 1 {
		t.Fatalf("Expected at least 1 result, got %d", len(results))
	}

	got := results[0]
	if got.ID != rec.ID {
		t.Errorf("Expected ID %s, got %s", rec.ID, got.ID)
	}
	if got.Mode != rec.Mode {
		t.Errorf("Expected Mode %s, got %s", rec.Mode, got.Mode)
	}
	if got.RequestCount != rec.RequestCount {
		t.Errorf("Expected RequestCount %d, got %d", rec.RequestCount, got.RequestCount)
	}
	if string(got.ReportJSON) != string(rec.ReportJSON) {
		t.Errorf("Expected ReportJSON %s, got %s", string(rec.ReportJSON), string(got.ReportJSON))
	}
	// Note: precision might be lost if we only store ms
	if got.Duration.Milliseconds() != rec.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", rec.Duration, got.Duration)
	}
	if got.Error != rec.Error {
		t.Errorf("Expected Error %s, got %s", rec.Error, got.Error)
	}

	// Postgres timestamps might differ slightly in sub-millisecond precision
	// compared to Go time.Now(), checking Unix seconds is usually safe enough
	if got.StartedAt.Unix() != rec.StartedAt.Unix() {
		t.Errorf("Expected StartedAt %v, got %v", rec.StartedAt, got.StartedAt)
	}

	// Test Since filter
	past := now.Add(-1 * time.Hour)
	filterSince := storage.Filter{Mode: "fixture", Since: &past}
	resultsSince, err := b.Query(ctx, filterSince)
	if err != nil {
		t.Fatalf("Failed to query results with Since: %v", err)
	}
	if len(resultsSince) < 1 {
		t.Fatalf("Expected at least 1 result, got %d", len(resultsSince))
	}
}
