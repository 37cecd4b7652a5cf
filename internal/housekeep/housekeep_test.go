package housekeep

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/gofr-dig/internal/session"
)

func newTestStore(t *testing.T) (*session.Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "sessions")
	store, err := session.New(dir, 0)
	if err != nil {
		t.Fatalf("session.New() error: %v", err)
	}
	return store, dir
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenIndex(":memory:")
	if err != nil {
		t.Fatalf("OpenIndex() error: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestPruneSize_NoopWhenUnderBudget(t *testing.T) {
	store, dir := newTestStore(t)
	idx := newTestIndex(t)
	ctx := context.Background()

	_, _ = store.Create(ctx, "short", "https://example.com", "", 0)

	result, err := PruneSize(ctx, store, idx, dir, 1<<20, "", time.Hour)
	if err != nil {
		t.Fatalf("PruneSize() error: %v", err)
	}
	if result.DeletedCount != 0 {
		t.Errorf("expected no deletions under budget, got %d", result.DeletedCount)
	}
}

func TestPruneSize_DeletesOldestFirstUntilUnderBudget(t *testing.T) {
	store, dir := newTestStore(t)
	idx := newTestIndex(t)
	ctx := context.Background()

	guidOld, _ := store.Create(ctx, strings.Repeat("a", 50), "https://a.example.com", "", 0)
	time.Sleep(2 * time.Millisecond)
	_, _ = store.Create(ctx, strings.Repeat("b", 50), "https://b.example.com", "", 0)

	result, err := PruneSize(ctx, store, idx, dir, 60, "", time.Hour)
	if err != nil {
		t.Fatalf("PruneSize() error: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Fatalf("expected exactly 1 deletion to get under budget, got %d", result.DeletedCount)
	}

	if _, err := store.GetInfo(guidOld, session.Requester{}); err == nil {
		t.Errorf("expected the older session to have been pruned first")
	}
}

func TestPruneSize_EmptyStoreIsNoop(t *testing.T) {
	store, dir := newTestStore(t)
	idx := newTestIndex(t)

	result, err := PruneSize(context.Background(), store, idx, dir, 1, "", time.Hour)
	if err != nil {
		t.Fatalf("PruneSize() error: %v", err)
	}
	if result.ItemCount != 0 {
		t.Errorf("expected 0 items for an empty store, got %d", result.ItemCount)
	}
}

func TestPruneSize_ScopesToGroup(t *testing.T) {
	store, dir := newTestStore(t)
	idx := newTestIndex(t)
	ctx := context.Background()

	_, _ = store.Create(ctx, strings.Repeat("a", 50), "https://a.example.com", "apac", 0)
	_, _ = store.Create(ctx, strings.Repeat("b", 50), "https://b.example.com", "emea", 0)

	result, err := PruneSize(ctx, store, idx, dir, 10, "apac", time.Hour)
	if err != nil {
		t.Fatalf("PruneSize() error: %v", err)
	}
	if result.ItemCount != 1 {
		t.Errorf("expected group-scoped scan to see only the apac session, got %d", result.ItemCount)
	}
	if result.DeletedCount != 1 {
		t.Errorf("expected the apac session to be pruned, got %d", result.DeletedCount)
	}

	list, err := store.ListSessions("")
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(list) != 1 || list[0].Group != "emea" {
		t.Errorf("expected the emea session to survive untouched, got %+v", list)
	}
}

func TestAcquirePruneLock_BlocksConcurrentAcquireThenReclaimsWhenStale(t *testing.T) {
	dir := t.TempDir()

	first, ok := acquirePruneLock(dir, time.Hour)
	if !ok {
		t.Fatalf("expected first lock acquisition to succeed")
	}

	if _, ok := acquirePruneLock(dir, time.Hour); ok {
		t.Errorf("expected concurrent acquisition to be blocked while fresh")
	}

	// Simulate staleness by requesting with a zero tolerance window.
	reclaimed, ok := acquirePruneLock(dir, 0)
	if !ok {
		t.Fatalf("expected a zero-tolerance stale check to reclaim the lock")
	}
	reclaimed.release()
	first.release()
}
