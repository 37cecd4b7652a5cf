package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FranksOps/gofr-dig/internal/apperr"
)

var anon = Requester{Enforce: true}

func asGroup(group string) Requester { return Requester{Group: group, Enforce: true} }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "sessions"), 10)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return store
}

func TestCreate_ChunkMathAndRoundTrip(t *testing.T) {
	store := newTestStore(t)
	guid, err := store.Create(context.Background(), "0123456789abcde", "https://example.com", "", 0)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	info, err := store.GetInfo(guid, anon)
	if err != nil {
		t.Fatalf("GetInfo() error: %v", err)
	}
	if info.Extra.TotalChars != 15 {
		t.Errorf("expected total_chars 15, got %d", info.Extra.TotalChars)
	}
	if info.Extra.TotalChunks != 2 {
		t.Errorf("expected total_chunks 2 for chunk_size=10, got %d", info.Extra.TotalChunks)
	}

	chunk0, err := store.GetChunk(guid, 0, anon)
	if err != nil {
		t.Fatalf("GetChunk(0) error: %v", err)
	}
	if chunk0 != "0123456789" {
		t.Errorf("unexpected chunk 0: %q", chunk0)
	}
	chunk1, err := store.GetChunk(guid, 1, anon)
	if err != nil {
		t.Fatalf("GetChunk(1) error: %v", err)
	}
	if chunk1 != "abcde" {
		t.Errorf("unexpected chunk 1: %q", chunk1)
	}
	if chunk0+chunk1 != "0123456789abcde" {
		t.Errorf("concatenated chunks do not reproduce stored text")
	}
}

func TestCreate_EmptyContentStillHasOneChunk(t *testing.T) {
	store := newTestStore(t)
	guid, err := store.Create(context.Background(), "", "https://example.com", "", 0)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	info, err := store.GetInfo(guid, anon)
	if err != nil {
		t.Fatalf("GetInfo() error: %v", err)
	}
	if info.Extra.TotalChunks != 1 {
		t.Errorf("expected empty content to still report 1 chunk, got %d", info.Extra.TotalChunks)
	}
}

func TestGetChunk_IndexPastEndErrors(t *testing.T) {
	store := newTestStore(t)
	guid, _ := store.Create(context.Background(), "0123456789abcde", "https://example.com", "", 0)

	if _, err := store.GetChunk(guid, 2, anon); err == nil {
		t.Fatalf("expected chunk_index == total_chunks to error")
	} else if appErr, ok := apperr.As(err); !ok || appErr.Code != apperr.CodeInvalidChunkIndex {
		t.Errorf("expected CodeInvalidChunkIndex, got %v", err)
	}
}

func TestGetInfo_UnknownGUIDIsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetInfo("does-not-exist", anon)
	if err == nil {
		t.Fatalf("expected error for unknown guid")
	}
	if appErr, ok := apperr.As(err); !ok || appErr.Code != apperr.CodeSessionNotFound {
		t.Errorf("expected CodeSessionNotFound, got %v", err)
	}
}

func TestGetInfo_GroupMismatchIsDenied(t *testing.T) {
	store := newTestStore(t)
	guid, _ := store.Create(context.Background(), "content", "https://example.com", "apac", 0)

	if _, err := store.GetInfo(guid, asGroup("emea")); err == nil {
		t.Fatalf("expected group mismatch to be denied")
	} else if appErr, ok := apperr.As(err); !ok || appErr.Code != apperr.CodePermissionDenied {
		t.Errorf("expected CodePermissionDenied, got %v", err)
	}

	if _, err := store.GetInfo(guid, asGroup("apac")); err != nil {
		t.Errorf("expected matching group to succeed, got %v", err)
	}
}

func TestGetInfo_AnonymousSessionReadableByAnyRequester(t *testing.T) {
	store := newTestStore(t)
	guid, _ := store.Create(context.Background(), "content", "https://example.com", "", 0)

	if _, err := store.GetInfo(guid, asGroup("emea")); err != nil {
		t.Errorf("expected anonymous session to be readable regardless of requester group, got %v", err)
	}
}

func TestGetInfo_AnonymousCallerDeniedOnGroupedSessionWhenEnforced(t *testing.T) {
	store := newTestStore(t)
	guid, _ := store.Create(context.Background(), "content", "https://example.com", "apac", 0)

	if _, err := store.GetInfo(guid, anon); err == nil {
		t.Fatalf("expected an authenticated-but-anonymous caller to be denied on a grouped session")
	} else if appErr, ok := apperr.As(err); !ok || appErr.Code != apperr.CodePermissionDenied {
		t.Errorf("expected CodePermissionDenied, got %v", err)
	}
}

func TestGetInfo_EnforcementDisabledBypassesGroupCheck(t *testing.T) {
	store := newTestStore(t)
	guid, _ := store.Create(context.Background(), "content", "https://example.com", "apac", 0)

	if _, err := store.GetInfo(guid, Requester{Group: "emea", Enforce: false}); err != nil {
		t.Errorf("expected auth-disabled requester to bypass group checks entirely, got %v", err)
	}
}

func TestGetFull_OverBudgetReturnsContentTooLarge(t *testing.T) {
	store := newTestStore(t)
	guid, _ := store.Create(context.Background(), strings.Repeat("x", 100), "https://example.com", "", 0)

	_, _, err := store.GetFull(guid, anon, 10)
	if err == nil {
		t.Fatalf("expected CONTENT_TOO_LARGE for an over-budget read")
	}
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodeContentTooLarge {
		t.Fatalf("expected CodeContentTooLarge, got %v", err)
	}
	if appErr.Details["total_size_bytes"] != 100 {
		t.Errorf("expected total_size_bytes detail of 100, got %v", appErr.Details["total_size_bytes"])
	}

	content, size, err := store.GetFull(guid, anon, 0)
	if err != nil {
		t.Fatalf("expected unlimited read to succeed, got %v", err)
	}
	if size != 100 || len(content) != 100 {
		t.Errorf("expected full content of length 100, got size=%d len=%d", size, len(content))
	}
}

func TestListSessions_FiltersByGroup(t *testing.T) {
	store := newTestStore(t)
	_, _ = store.Create(context.Background(), "a", "https://a.example.com", "apac", 0)
	_, _ = store.Create(context.Background(), "b", "https://b.example.com", "emea", 0)
	_, _ = store.Create(context.Background(), "c", "https://c.example.com", "", 0)

	all, err := store.ListSessions("")
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions unfiltered, got %d", len(all))
	}

	apac, err := store.ListSessions("apac")
	if err != nil {
		t.Fatalf("ListSessions(apac) error: %v", err)
	}
	if len(apac) != 2 {
		t.Fatalf("expected apac-scoped list to include the apac session and the anonymous one, got %d", len(apac))
	}
}

func TestDelete_RemovesSessionAndReportsAbsence(t *testing.T) {
	store := newTestStore(t)
	guid, _ := store.Create(context.Background(), "content", "https://example.com", "", 0)

	ok, err := store.Delete(guid, anon)
	if err != nil || !ok {
		t.Fatalf("expected delete to succeed, got ok=%v err=%v", ok, err)
	}

	if _, err := store.GetInfo(guid, anon); err == nil {
		t.Errorf("expected deleted session to be gone")
	}

	ok, err = store.Delete(guid, anon)
	if err != nil || ok {
		t.Errorf("expected deleting an already-gone session to report ok=false, nil error, got ok=%v err=%v", ok, err)
	}
}

func TestPersister_SatisfiesBoundPersistShape(t *testing.T) {
	store := newTestStore(t)
	persister := store.Persister("https://example.com", "apac", 0)

	guid, err := persister.Persist(context.Background(), map[string]string{"hello": "world"})
	if err != nil {
		t.Fatalf("Persist() error: %v", err)
	}
	info, err := store.GetInfo(guid, asGroup("apac"))
	if err != nil {
		t.Fatalf("GetInfo() error: %v", err)
	}
	if info.Extra.URL != "https://example.com" {
		t.Errorf("expected persister's bound url to carry through, got %q", info.Extra.URL)
	}
}
