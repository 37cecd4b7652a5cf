// Package rpcserver implements the tool-call RPC surface of §6.1: the
// nine named operations (ping, set_antidetection, get_content,
// get_structure, get_session_info, get_session_chunk, get_session,
// get_session_urls, list_sessions), each taking a JSON arguments object
// and returning a JSON result or the shared failure envelope. Grounded
// on app/mcp_server.py's tool registration and internal/crawl,
// internal/structure, internal/session, internal/antidetect for the
// actual work.
package rpcserver

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/gofr-dig/internal/antidetect"
	"github.com/FranksOps/gofr-dig/internal/apperr"
	"github.com/FranksOps/gofr-dig/internal/authz"
	"github.com/FranksOps/gofr-dig/internal/crawl"
	"github.com/FranksOps/gofr-dig/internal/fetch"
	"github.com/FranksOps/gofr-dig/internal/newsparser"
	"github.com/FranksOps/gofr-dig/internal/robots"
	"github.com/FranksOps/gofr-dig/internal/session"
	"github.com/FranksOps/gofr-dig/internal/structure"
)

// Version is surfaced on ping for client diagnostics.
const Version = "0.1.0"

// Server holds every dependency a tool handler needs. One Server is
// shared process-wide across the webserver's HTTP mux and the RPC
// surface the simulator's MCP mode targets.
type Server struct {
	Fetcher    *fetch.Fetcher
	Robots     *robots.Checker
	Crawler    *crawl.Crawler
	Sessions   *session.Store
	AntiDetect *antidetect.Manager
	Authz      *authz.Authorizer
}

// Tool is one named RPC handler. args is the decoded JSON arguments
// object; the return value is marshaled as the success payload, or
// ToolError is used to render the shared failure envelope.
type Tool func(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error)

// Tools maps every operation name from §6.1 to its handler.
var Tools = map[string]Tool{
	"ping":              handlePing,
	"set_antidetection": handleSetAntidetection,
	"get_content":       handleGetContent,
	"get_structure":     handleGetStructure,
	"get_session_info":  handleGetSessionInfo,
	"get_session_chunk": handleGetSessionChunk,
	"get_session":       handleGetSession,
	"get_session_urls":  handleGetSessionURLs,
	"list_sessions":     handleListSessions,
}

// Call dispatches one named tool invocation, converting any error into
// the shared apperr envelope so the transport layer never has to know
// about individual tool failure shapes.
func (s *Server) Call(ctx context.Context, toolName string, req session.Requester, args map[string]any) (any, bool) {
	tool, ok := Tools[toolName]
	if !ok {
		return apperr.ToEnvelope(apperr.New(apperr.CodeUnknownTool, fmt.Sprintf("unknown tool: %s", toolName), nil)), false
	}
	result, err := tool(ctx, s, req, args)
	if err != nil {
		return apperr.ToEnvelope(err), false
	}
	return result, true
}

func handlePing(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	return map[string]any{"success": true, "message": "pong", "version": Version}, nil
}

func handleSetAntidetection(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	profileName, _ := args["profile"].(string)
	profile := antidetect.Profile(profileName)
	if !profile.Valid() {
		return nil, apperr.New(apperr.CodeInvalidProfile, fmt.Sprintf("unknown anti-detection profile: %s", profileName), nil)
	}

	customHeaders := map[string]string{}
	if raw, ok := args["custom_headers"].(map[string]any); ok {
		for k, v := range raw {
			if sv, ok := v.(string); ok {
				customHeaders[k] = sv
			}
		}
	}
	customUA, _ := args["custom_user_agent"].(string)

	s.AntiDetect.Configure(profile, customHeaders, customUA)

	return map[string]any{
		"success": true,
		"profile": string(s.AntiDetect.Profile()),
	}, nil
}

func handleGetContent(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, apperr.New(apperr.CodeInvalidURL, "url is required", nil)
	}

	opts := crawl.Options{
		Depth:            intArg(args, "depth", 1),
		MaxPagesPerLevel: intArg(args, "max_pages_per_level", 10),
		Selector:         stringArg(args, "selector", ""),
		IncludeLinks:     boolArg(args, "include_links", false),
		IncludeImages:    boolArg(args, "include_images", false),
		IncludeMeta:      boolArg(args, "include_meta", false),
		FilterNoise:      boolArg(args, "filter_noise", true),
		RespectRobots:    true,
		Concurrency:      3,
		ByteBudget:       intArg(args, "max_bytes", 0),
		SessionMode:      boolArg(args, "session", false),
	}

	var persister crawl.Persister
	if opts.SessionMode {
		persister = s.Sessions.Persister(url, req.Group, intArg(args, "chunk_size", 0))
	}

	result := s.Crawler.Crawl(ctx, url, opts, persister)
	if result.Error != nil {
		return nil, result.Error
	}

	if boolArg(args, "parse_results", false) {
		feed, err := newsparser.Parse(toCrawlInput(url, result, stringArg(args, "source_profile_name", "")))
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeExtractionError, "failed to parse crawl results", err, nil)
		}
		return feed, nil
	}

	if result.SessionGUID != "" {
		meta, err := s.Sessions.GetInfo(result.SessionGUID, req)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"session_id":   meta.GUID,
			"total_chunks": meta.Extra.TotalChunks,
			"total_size":   meta.Extra.TotalChars,
			"chunk_size":   meta.Extra.ChunkSize,
		}, nil
	}

	return result, nil
}

func toCrawlInput(startURL string, result *crawl.Result, profileName string) newsparser.CrawlInput {
	pages := make([]newsparser.PageInput, 0, len(result.Pages))
	for _, p := range result.Pages {
		headings := make([]string, 0, len(p.Headings))
		for _, h := range p.Headings {
			headings = append(headings, h.Text)
		}
		pages = append(pages, newsparser.PageInput{
			URL:      p.URL,
			Text:     p.Text,
			Headings: headings,
			Meta:     p.Meta,
			Depth:    p.Depth,
			Language: p.Language,
		})
	}
	return newsparser.CrawlInput{
		StartURL:          startURL,
		CrawlTimeUTC:      time.Now().UTC().Format(time.RFC3339),
		ParserVersion:     Version,
		SourceProfileName: profileName,
		Pages:             pages,
	}
}

func handleGetStructure(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, apperr.New(apperr.CodeInvalidURL, "url is required", nil)
	}

	fetchResult := s.Fetcher.Fetch(ctx, url, fetch.Options{})
	if fetchResult.Err != nil {
		return nil, toStructureFetchErr(fetchResult.Err)
	}

	pageStructure, err := structure.Analyze(string(fetchResult.Body), fetchResult.FinalURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeExtractionError, "failed to analyze page structure", err, nil)
	}
	return pageStructure, nil
}

func toStructureFetchErr(err error) error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	return apperr.Wrap(apperr.CodeFetchError, "failed to fetch page", err, nil)
}

func handleGetSessionInfo(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	guid, _ := args["session_id"].(string)
	meta, err := s.Sessions.GetInfo(guid, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id":      meta.GUID,
		"url":              meta.Extra.URL,
		"total_chunks":     meta.Extra.TotalChunks,
		"total_size_bytes": meta.SizeBytes,
		"chunk_size":       meta.Extra.ChunkSize,
		"created_at":       meta.CreatedAt,
		"group":            meta.Group,
	}, nil
}

func handleGetSessionChunk(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	guid, _ := args["session_id"].(string)
	chunkIndex := intArg(args, "chunk_index", 0)
	chunk, err := s.Sessions.GetChunk(guid, chunkIndex, req)
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func handleGetSession(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	guid, _ := args["session_id"].(string)
	maxBytes := intArg(args, "max_bytes", 0)
	content, totalSize, err := s.Sessions.GetFull(guid, req, maxBytes)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content":          content,
		"total_size_bytes": totalSize,
	}, nil
}

func handleGetSessionURLs(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	guid, _ := args["session_id"].(string)
	meta, err := s.Sessions.GetInfo(guid, req)
	if err != nil {
		return nil, err
	}

	asJSON := true
	if v, ok := args["as_json"].(bool); ok {
		asJSON = v
	}
	baseURL := stringArg(args, "base_url", "")

	if !asJSON {
		urls := make([]string, meta.Extra.TotalChunks)
		for i := range urls {
			urls[i] = fmt.Sprintf("%s/sessions/%s/chunks/%d", baseURL, meta.GUID, i)
		}
		return map[string]any{"chunk_urls": urls}, nil
	}

	chunks := make([]map[string]any, meta.Extra.TotalChunks)
	for i := range chunks {
		chunks[i] = map[string]any{"session_id": meta.GUID, "chunk_index": i}
	}
	return map[string]any{"chunks": chunks}, nil
}

func handleListSessions(ctx context.Context, s *Server, req session.Requester, args map[string]any) (any, error) {
	group := req.Group
	if !req.Enforce {
		group = stringArg(args, "group", "")
	}
	sessions, err := s.Sessions.ListSessions(group)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessions": sessions, "total": len(sessions)}, nil
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
