package jsonbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/gofr-dig/internal/storage"
)

func TestJSONBackend(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "runs.jsonl")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC() // JSON marshals with precision limits

	rec1 := &storage.RunRecord{
		ID:           "run1",
		Mode:         "fixture",
		StartedAt:    now.Add(-2 * time.Hour),
		FinishedAt:   now.Add(-2 * time.Hour).Add(30 * time.Second),
		Duration:     30 * time.Second,
		RequestCount: 100,
		ErrorCount:   0,
		ReportJSON:   []byte(`{"ok":true}`),
	}

	rec2 := &storage.RunRecord{
		ID:           "run2",
		Mode:         "live",
		StartedAt:    now.Add(-1 * time.Hour),
		FinishedAt:   now.Add(-1 * time.Hour).Add(45 * time.Second),
		Duration:     45 * time.Second,
		RequestCount: 200,
		ErrorCount:   5,
		ReportJSON:   []byte(`{"ok":false}`),
	}

	if err := b.Save(ctx, rec1); err != nil {
		t.Fatalf("Failed to save record 1: %v", err)
	}
	if err := b.Save(ctx, rec2); err != nil {
		t.Fatalf("Failed to save record 2: %v", err)
	}

	// Test Mode filter
	filterMode := storage.Filter{Mode: "live"}
	resultsMode, err := b.Query(ctx, filterMode)
	if err != nil {
		t.Fatalf("Failed to query by mode: %v", err)
	}
	if len(resultsMode) != 1 {
		t.Fatalf("Expected 1 result for mode filter, got %d", len(resultsMode))
	}
	if resultsMode[0].ID != "run2" {
		t.Errorf("Expected ID run2, got %s", resultsMode[0].ID)
	}

	// Test Since Filter
	past := now.Add(-90 * time.Minute)
	filterSince := storage.Filter{Since: &past}
	resultsSince, err := b.Query(ctx, filterSince)
	if err != nil {
		t.Fatalf("Failed to query by Since: %v", err)
	}
	if len(resultsSince) != 1 {
		t.Fatalf("Expected 1 result for Since filter, got %d", len(resultsSince))
	}
	if resultsSince[0].ID != "run2" {
		t.Errorf("Expected ID run2, got %s", resultsSince[0].ID)
	}

	// Test no filters, ordering
	resultsAll, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(resultsAll) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resultsAll))
	}
	if resultsAll[0].ID != "run2" {
		t.Errorf("Expected run2 first, got %s", resultsAll[0].ID)
	}

	// Test limit
	resultsLimit, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query limit: %v", err)
	}
	if len(resultsLimit) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resultsLimit))
	}

	// Test offset
	resultsOffset, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query offset: %v", err)
	}
	if len(resultsOffset) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resultsOffset))
	}
	if resultsOffset[0].ID != "run1" {
		t.Errorf("Expected run1 for offset 1, got %s", resultsOffset[0].ID)
	}
}
