package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/movie-search-assistant/internal/adapters/session"
	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

type serviceFake struct {
	err        error
	lastSearch domain.SearchRequest
	lastAsk    ports.AskRequest
}

func (f *serviceFake) Search(_ context.Context, req domain.SearchRequest) ([]domain.RankedHit, error) {
	f.lastSearch = req
	if f.err != nil {
		return nil, f.err
	}
	return []domain.RankedHit{{Title: "Alien", URL: "https://example.com/alien", Score: 2}}, nil
}

func (f *serviceFake) Ask(_ context.Context, conversation *domain.Conversation, req ports.AskRequest) (*domain.Answer, error) {
	f.lastAsk = req
	if f.err != nil {
		return nil, f.err
	}
	conversation.Append(domain.RoleUser, req.Search.Text)
	return &domain.Answer{Text: "Alien (1979).", Source: domain.AnswerFromGeneration, Strategy: req.Search.Strategy}, nil
}

func newTestServer(t *testing.T, service *serviceFake) (*Server, *session.Registry) {
	t.Helper()
	registry, err := session.NewRegistry(4, domain.DefaultSystemPrompt)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return NewServer(service, registry), registry
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	switch content := result.Content[0].(type) {
	case mcp.TextContent:
		return content.Text
	case *mcp.TextContent:
		return content.Text
	default:
		t.Fatalf("unexpected content type %T", result.Content[0])
		return ""
	}
}

func TestSearchMoviesDefaultsStrategyAndDetectsFilters(t *testing.T) {
	service := &serviceFake{}
	srv, _ := newTestServer(t, service)

	result, err := srv.handleSearchMovies(context.Background(), callRequest("search_movies", map[string]any{"query": "space horror"}))
	if err != nil {
		t.Fatalf("handleSearchMovies() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if service.lastSearch.Strategy != domain.StrategyHybridFusion || service.lastSearch.Filters != nil {
		t.Fatalf("unexpected search request %+v", service.lastSearch)
	}

	var body struct {
		Strategy string             `json:"strategy"`
		Hits     []domain.RankedHit `json:"hits"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if body.Strategy != "hybrid_fusion" || len(body.Hits) != 1 || body.Hits[0].Title != "Alien" {
		t.Fatalf("unexpected result %+v", body)
	}
}

func TestSearchMoviesPassesExplicitFilters(t *testing.T) {
	service := &serviceFake{}
	srv, _ := newTestServer(t, service)

	result, err := srv.handleSearchMovies(context.Background(), callRequest("search_movies", map[string]any{
		"query":    "laptop",
		"strategy": "bm25",
		"filters":  []any{map[string]any{"field": "color", "value": "red"}},
	}))
	if err != nil || result.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}
	if len(service.lastSearch.Filters) != 1 || service.lastSearch.Filters[0] != (domain.TermFilter{Field: "color", Value: "red"}) {
		t.Fatalf("unexpected filters %v", service.lastSearch.Filters)
	}
}

func TestSearchMoviesReportsInvalidArgumentsAsToolErrors(t *testing.T) {
	srv, _ := newTestServer(t, &serviceFake{})

	cases := []map[string]any{
		{},
		{"query": "q", "strategy": "telepathy"},
		{"query": "q", "filters": "color=red"},
		{"query": "q", "filters": []any{map[string]any{"field": "color"}}},
	}
	for _, args := range cases {
		result, err := srv.handleSearchMovies(context.Background(), callRequest("search_movies", args))
		if err != nil {
			t.Fatalf("args %v: unexpected protocol error %v", args, err)
		}
		if !result.IsError {
			t.Fatalf("args %v: expected tool error", args)
		}
	}
}

func TestAskMoviesOpensAndReusesSessions(t *testing.T) {
	service := &serviceFake{}
	srv, registry := newTestServer(t, service)

	result, err := srv.handleAskMovies(context.Background(), callRequest("ask_movies", map[string]any{
		"query":     "scariest space movie?",
		"use_cache": false,
		"threshold": 0.75,
	}))
	if err != nil || result.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}
	var body struct {
		SessionID string `json:"session_id"`
		Answer    string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if body.SessionID == "" || body.Answer != "Alien (1979)." {
		t.Fatalf("unexpected result %+v", body)
	}
	if service.lastAsk.UseCache == nil || *service.lastAsk.UseCache || *service.lastAsk.Threshold != 0.75 {
		t.Fatalf("expected cache options to pass through, got %+v", service.lastAsk)
	}

	if _, err := srv.handleAskMovies(context.Background(), callRequest("ask_movies", map[string]any{
		"query": "and the sequel?", "session_id": body.SessionID,
	})); err != nil {
		t.Fatalf("second ask error = %v", err)
	}
	conversation, err := registry.Get(body.SessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := conversation.CountRole(domain.RoleUser); got != 2 {
		t.Fatalf("expected both turns in one conversation, got %d", got)
	}
}

func TestAskMoviesUnknownSessionIsToolError(t *testing.T) {
	srv, _ := newTestServer(t, &serviceFake{})

	result, err := srv.handleAskMovies(context.Background(), callRequest("ask_movies", map[string]any{"query": "q", "session_id": "nope"}))
	if err != nil || !result.IsError {
		t.Fatalf("expected tool error, got %v %v", result, err)
	}
}

func TestAskMoviesSurfacesServiceFailure(t *testing.T) {
	srv, _ := newTestServer(t, &serviceFake{err: domain.WrapError(domain.ErrBackend, "dispatch", errors.New("index missing"))})

	result, err := srv.handleAskMovies(context.Background(), callRequest("ask_movies", map[string]any{"query": "q"}))
	if err != nil || !result.IsError {
		t.Fatalf("expected tool error, got %v %v", result, err)
	}
}
