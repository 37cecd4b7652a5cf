// Package webserver exposes the HTTP surface of §6.2: a small JSON API
// for session introspection plus the same tool-call handlers rpcserver
// implements, reachable over plain HTTP POST for callers that don't
// speak the simulator's MCP-style transport. Grounded on
// app/web_server.py's FastAPI route table, translated onto the standard
// library's pattern-matching ServeMux (no HTTP router appears anywhere
// in the example pack, so net/http is the justified choice here).
package webserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/gofr-dig/internal/apperr"
	"github.com/FranksOps/gofr-dig/internal/authz"
	"github.com/FranksOps/gofr-dig/internal/logging"
	"github.com/FranksOps/gofr-dig/internal/metrics"
	"github.com/FranksOps/gofr-dig/internal/ratelimit"
	"github.com/FranksOps/gofr-dig/internal/rpcserver"
	"github.com/FranksOps/gofr-dig/internal/session"
)

// Server wires the RPC surface, auth, and rate limiting into one mux.
type Server struct {
	RPC       *rpcserver.Server
	Authz     *authz.Authorizer
	RateLimit *ratelimit.Limiter
}

// Mux builds the HTTP handler tree.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /ping", s.wrap(s.handlePing))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sessions/{id}/info", s.wrap(s.handleSessionInfo))
	mux.HandleFunc("GET /sessions/{id}/chunks/{index}", s.wrap(s.handleSessionChunk))
	mux.HandleFunc("GET /sessions/{id}/urls", s.wrap(s.handleSessionURLs))
	mux.HandleFunc("GET /sessions", s.wrap(s.handleListSessions))
	mux.HandleFunc("POST /tools/{tool}", s.wrap(s.handleToolCall))
	mux.Handle("GET /metrics", metrics.Handler())
	return withCORS(mux)
}

// ToolMux builds the narrower tool-call-only handler tree for the MCP
// listener (§A's "tool-call RPC listener", run on its own port alongside
// the full API's Mux), carrying the same auth/rate-limit middleware and
// wire contract without the session/health/metrics surface.
func (s *Server) ToolMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.wrap(s.handlePing))
	mux.HandleFunc("POST /tools/{tool}", s.wrap(s.handleToolCall))
	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// middleware resolves the caller identity and enforces the rate limit
// ahead of every authenticated route, /ping included. Public endpoints
// (index, health, metrics) skip it entirely.
func (s *Server) wrap(handler func(http.ResponseWriter, *http.Request, session.Requester)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := authz.BearerToken(r.Header.Get("Authorization"))
		identity, err := s.Authz.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		if s.RateLimit != nil {
			limitKey := identity.Group
			if limitKey == "" {
				limitKey = token
			}
			result, err := s.RateLimit.Check(r.Context(), limitKey)
			if err != nil {
				writeError(w, err)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			if !result.Allowed {
				writeError(w, apperr.New(apperr.CodeRateLimitExceeded, "rate limit exceeded", map[string]any{"reset_seconds": result.ResetSeconds}))
				return
			}
		}

		req := session.Requester{Group: identity.Group, Enforce: identity.Enforce}
		handler(w, r, req)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"service": "gofr-dig", "version": rpcserver.Version})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request, req session.Requester) {
	result, _ := s.RPC.Call(r.Context(), "ping", req, nil)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request, req session.Requester) {
	args := map[string]any{"session_id": r.PathValue("id")}
	result, ok := s.RPC.Call(r.Context(), "get_session_info", req, args)
	writeToolResult(w, result, ok)
}

func (s *Server) handleSessionChunk(w http.ResponseWriter, r *http.Request, req session.Requester) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, apperr.New(apperr.CodeInvalidChunkIndex, "chunk index must be an integer", nil))
		return
	}
	args := map[string]any{"session_id": r.PathValue("id"), "chunk_index": index}
	result, ok := s.RPC.Call(r.Context(), "get_session_chunk", req, args)
	writeToolResult(w, result, ok)
}

func (s *Server) handleSessionURLs(w http.ResponseWriter, r *http.Request, req session.Requester) {
	args := map[string]any{
		"session_id": r.PathValue("id"),
		"as_json":    r.URL.Query().Get("as_json") != "false",
		"base_url":   r.URL.Query().Get("base_url"),
	}
	result, ok := s.RPC.Call(r.Context(), "get_session_urls", req, args)
	writeToolResult(w, result, ok)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, req session.Requester) {
	args := map[string]any{"group": r.URL.Query().Get("group")}
	result, ok := s.RPC.Call(r.Context(), "list_sessions", req, args)
	writeToolResult(w, result, ok)
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request, req session.Requester) {
	toolName := r.PathValue("tool")

	var args map[string]any
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil && err.Error() != "EOF" {
			writeError(w, apperr.New(apperr.CodeInvalidArgument, "malformed JSON request body", nil))
			return
		}
	}

	result, ok := s.RPC.Call(r.Context(), toolName, req, args)
	writeToolResult(w, result, ok)
}

func writeToolResult(w http.ResponseWriter, result any, ok bool) {
	status := http.StatusOK
	if !ok {
		status = statusForEnvelope(result)
	}
	writeJSON(w, status, result)
}

func statusForEnvelope(result any) int {
	env, ok := result.(apperr.Envelope)
	if !ok {
		return http.StatusInternalServerError
	}
	switch env.ErrorCode {
	case apperr.CodeInvalidURL, apperr.CodeInvalidArgument, apperr.CodeInvalidProfile, apperr.CodeInvalidSelector,
		apperr.CodeInvalidChunkIndex, apperr.CodeInvalidRateLimit, apperr.CodeInvalidMaxResponseChars, apperr.CodeUnknownTool:
		return http.StatusBadRequest
	case apperr.CodeAuthError:
		return http.StatusUnauthorized
	case apperr.CodePermissionDenied, apperr.CodeAccessDenied, apperr.CodeRobotsBlocked, apperr.CodeSSRFBlocked:
		return http.StatusForbidden
	case apperr.CodeSessionNotFound, apperr.CodeURLNotFound, apperr.CodeSelectorNotFound:
		return http.StatusNotFound
	case apperr.CodeRateLimitExceeded, apperr.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperr.CodeContentTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.CodeTimeoutError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	env := apperr.ToEnvelope(err)
	writeJSON(w, statusForEnvelope(env), env)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Base().Error("failed to encode response", "error", err)
	}
}
