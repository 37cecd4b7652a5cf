// Package session implements the chunked, group-scoped session store of
// §4.I, keyed by random UUID: one metadata file and one blob file per GUID,
// chunked by character count rather than byte count. Grounded on
// app/session/manager.py. Uses per-GUID files rather than an append-only
// NDJSON log, since sessions are addressed and read individually rather
// than scanned in bulk.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/FranksOps/gofr-dig/internal/apperr"
)

const (
	blobSuffix       = ".blob"
	metaSuffix       = ".meta.json"
	defaultChunkSize = 4000
)

// Extra holds the source-specific metadata fields alongside a session.
type Extra struct {
	URL         string `json:"url"`
	ChunkSize   int    `json:"chunk_size"`
	TotalChars  int    `json:"total_chars"`
	TotalChunks int    `json:"total_chunks"`
}

// Metadata is the on-disk and wire representation of one session.
type Metadata struct {
	GUID      string    `json:"guid"`
	Format    string    `json:"format"`
	Group     string    `json:"group,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int       `json:"size_bytes"`
	Extra     Extra     `json:"extra"`
}

// ChunkRef identifies one retrievable chunk of a session.
type ChunkRef struct {
	SessionID  string `json:"session_id"`
	ChunkIndex int    `json:"chunk_index"`
}

// Store is a directory of per-GUID blob+metadata file pairs.
type Store struct {
	mu               sync.RWMutex
	baseDir          string
	defaultChunkSize int
}

// New opens (creating if necessary) a session store rooted at baseDir.
func New(baseDir string, chunkSize int) (*Store, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create store directory: %w", err)
	}
	return &Store{baseDir: baseDir, defaultChunkSize: chunkSize}, nil
}

// Create serializes content (used as-is if already a string, otherwise
// JSON-encoded) and stores it under a freshly generated GUID.
func (s *Store) Create(ctx context.Context, content any, url, group string, chunkSize int) (string, error) {
	text, err := serializeContent(content)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeSessionError, "failed to serialize session content", err, nil)
	}
	if chunkSize <= 0 {
		chunkSize = s.defaultChunkSize
	}

	totalChars := utf8.RuneCountInString(text)
	totalChunks := 1
	if totalChars > 0 {
		totalChunks = int(math.Ceil(float64(totalChars) / float64(chunkSize)))
	}

	data := []byte(text)
	guid := uuid.New().String()
	meta := Metadata{
		GUID:      guid,
		Format:    "json",
		Group:     group,
		CreatedAt: time.Now().UTC(),
		SizeBytes: len(data),
		Extra: Extra{
			URL:         url,
			ChunkSize:   chunkSize,
			TotalChars:  totalChars,
			TotalChunks: totalChunks,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeBlob(guid, data); err != nil {
		return "", err
	}
	if err := s.writeMetadata(meta); err != nil {
		_ = os.Remove(s.blobPath(guid))
		return "", err
	}
	return guid, nil
}

// Persist adapts Create to the narrow Persist(ctx, content) shape
// internal/crawl's Persister interface expects, bound to a fixed
// url/group/chunkSize for one caller's request. Satisfies that
// interface structurally; no import of internal/crawl is needed.
type boundPersister struct {
	store     *Store
	url       string
	group     string
	chunkSize int
}

func (b *boundPersister) Persist(ctx context.Context, content any) (string, error) {
	return b.store.Create(ctx, content, b.url, b.group, b.chunkSize)
}

// Persister returns a Persist(ctx, content) value bound to the given
// request's url, group, and chunk size.
func (s *Store) Persister(url, group string, chunkSize int) *boundPersister {
	return &boundPersister{store: s, url: url, group: group, chunkSize: chunkSize}
}

// Requester describes the caller on whose behalf a session read is
// performed. Group is the caller's primary group (empty if anonymous).
// Enforce is false only when authorization is disabled process-wide
// (§4.J); a disabled-auth caller bypasses group checks entirely, which
// is distinct from an authenticated-but-anonymous caller (Enforce:
// true, Group: "") hitting a grouped session — the latter is denied.
type Requester struct {
	Group   string
	Enforce bool
}

// GetInfo returns a session's metadata, applying the three-rule group
// check from §4.I: an anonymous session is always public; a grouped
// session is readable by a matching group; a grouped session is denied
// to a mismatched or absent group unless enforcement is off.
func (s *Store) GetInfo(guid string, req Requester) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getInfoLocked(guid, req)
}

func (s *Store) getInfoLocked(guid string, req Requester) (*Metadata, error) {
	meta, err := s.readMetadata(guid)
	if err != nil {
		return nil, apperr.New(apperr.CodeSessionNotFound, fmt.Sprintf("session not found: %s", guid), map[string]any{"session_id": guid})
	}
	if !req.Enforce || meta.Group == "" {
		return meta, nil
	}
	if req.Group == "" || req.Group != meta.Group {
		return nil, apperr.New(apperr.CodePermissionDenied, fmt.Sprintf("access denied to session %s", guid), map[string]any{"session_id": guid})
	}
	return meta, nil
}

// GetChunk returns one character-indexed chunk of a session's text.
func (s *Store) GetChunk(guid string, chunkIndex int, req Requester) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.getInfoLocked(guid, req)
	if err != nil {
		return "", err
	}
	if chunkIndex < 0 || chunkIndex >= meta.Extra.TotalChunks {
		return "", apperr.New(apperr.CodeInvalidChunkIndex,
			fmt.Sprintf("invalid chunk index %d. Valid range: 0-%d", chunkIndex, meta.Extra.TotalChunks-1),
			map[string]any{"chunk_index": chunkIndex, "total_chunks": meta.Extra.TotalChunks})
	}

	blob, err := s.readBlob(guid)
	if err != nil {
		return "", apperr.New(apperr.CodeSessionNotFound, fmt.Sprintf("session not found: %s", guid), map[string]any{"session_id": guid})
	}
	runes := []rune(string(blob))

	start := chunkIndex * meta.Extra.ChunkSize
	end := start + meta.Extra.ChunkSize
	if start > len(runes) {
		start = len(runes)
	}
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end]), nil
}

// GetFull concatenates all chunks, refusing when the session exceeds
// maxBytes (0 means unlimited) so callers fall back to chunked reads.
func (s *Store) GetFull(guid string, req Requester, maxBytes int) (string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.getInfoLocked(guid, req)
	if err != nil {
		return "", 0, err
	}
	if maxBytes > 0 && meta.SizeBytes > maxBytes {
		return "", meta.SizeBytes, apperr.New(apperr.CodeContentTooLarge, "session content exceeds max_bytes", map[string]any{"total_size_bytes": meta.SizeBytes})
	}

	blob, err := s.readBlob(guid)
	if err != nil {
		return "", 0, apperr.New(apperr.CodeSessionNotFound, fmt.Sprintf("session not found: %s", guid), map[string]any{"session_id": guid})
	}
	return string(blob), meta.SizeBytes, nil
}

// ListSessions enumerates all sessions, optionally filtered to a group,
// newest first.
func (s *Store) ListSessions(group string) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSessionError, "failed to list sessions", err, nil)
	}

	var out []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		guid := strings.TrimSuffix(e.Name(), metaSuffix)
		meta, err := s.readMetadata(guid)
		if err != nil {
			continue
		}
		if group != "" && meta.Group != "" && meta.Group != group {
			continue
		}
		out = append(out, *meta)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a session's blob and metadata, reporting whether a
// session existed for the caller to delete.
func (s *Store) Delete(guid string, req Requester) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.getInfoLocked(guid, req)
	if err != nil {
		if appErr, ok := apperr.As(err); ok && appErr.Code == apperr.CodeSessionNotFound {
			return false, nil
		}
		return false, err
	}

	_ = os.Remove(s.blobPath(guid))
	_ = os.Remove(s.metaPath(guid))
	return true, nil
}

// ChunkRefs builds the {session_id, chunk_index} list get_session_urls
// returns in its JSON form.
func ChunkRefs(guid string, totalChunks int) []ChunkRef {
	refs := make([]ChunkRef, totalChunks)
	for i := range refs {
		refs[i] = ChunkRef{SessionID: guid, ChunkIndex: i}
	}
	return refs
}

func serializeContent(content any) (string, error) {
	if text, ok := content.(string); ok {
		return text, nil
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) blobPath(guid string) string { return filepath.Join(s.baseDir, guid+blobSuffix) }
func (s *Store) metaPath(guid string) string { return filepath.Join(s.baseDir, guid+metaSuffix) }

func (s *Store) writeBlob(guid string, data []byte) error {
	if err := os.WriteFile(s.blobPath(guid), data, 0o644); err != nil {
		return apperr.Wrap(apperr.CodeSessionError, "failed to write session blob", err, nil)
	}
	return nil
}

func (s *Store) writeMetadata(meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return apperr.Wrap(apperr.CodeSessionError, "failed to encode session metadata", err, nil)
	}
	if err := os.WriteFile(s.metaPath(meta.GUID), data, 0o644); err != nil {
		return apperr.Wrap(apperr.CodeSessionError, "failed to write session metadata", err, nil)
	}
	return nil
}

func (s *Store) readMetadata(guid string) (*Metadata, error) {
	data, err := os.ReadFile(s.metaPath(guid))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) readBlob(guid string) ([]byte, error) {
	return os.ReadFile(s.blobPath(guid))
}
