package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/movie-search-assistant/internal/adapters/session"
	"github.com/kirillkom/movie-search-assistant/internal/config"
	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
	"github.com/kirillkom/movie-search-assistant/internal/observability/metrics"
)

type serviceFake struct {
	searchErr error
	askErr    error
	answer    *domain.Answer

	lastSearch domain.SearchRequest
	lastAsk    ports.AskRequest
	lastConv   *domain.Conversation
}

func (f *serviceFake) Search(_ context.Context, req domain.SearchRequest) ([]domain.RankedHit, error) {
	f.lastSearch = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []domain.RankedHit{{Title: "Heat", URL: "https://example.com/heat", Score: 1.5}}, nil
}

func (f *serviceFake) Ask(_ context.Context, conversation *domain.Conversation, req ports.AskRequest) (*domain.Answer, error) {
	f.lastAsk = req
	f.lastConv = conversation
	if f.askErr != nil {
		return nil, f.askErr
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{Text: "Heat (1995).", Source: domain.AnswerFromGeneration, Strategy: req.Search.Strategy, Attempts: 1}, nil
}

func newTestRouter(t *testing.T, cfg config.Config, service *serviceFake) (http.Handler, *session.Registry) {
	t.Helper()
	registry, err := session.NewRegistry(8, domain.DefaultSystemPrompt)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return NewRouter(cfg, service, registry, nil).Handler(), registry
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestSearchParsesLegacyStrategyLabelAndFilters(t *testing.T) {
	service := &serviceFake{}
	handler, _ := newTestRouter(t, config.Config{}, service)

	res := postJSON(t, handler, "/v1/search", map[string]any{
		"query":    "  red chrome laptop ",
		"strategy": "Reciprocal Rank Fusion",
		"filters":  []map[string]string{},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if service.lastSearch.Strategy != domain.StrategyRankFusion || service.lastSearch.Text != "red chrome laptop" {
		t.Fatalf("unexpected search request %+v", service.lastSearch)
	}
	if service.lastSearch.Filters == nil {
		t.Fatalf("expected explicit empty filters to stay non-nil")
	}

	var body struct {
		Strategy string             `json:"strategy"`
		Hits     []domain.RankedHit `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Strategy != "rank_fusion" || len(body.Hits) != 1 || body.Hits[0].Title != "Heat" {
		t.Fatalf("unexpected response %+v", body)
	}
}

func TestSearchOmittedFiltersStayNil(t *testing.T) {
	service := &serviceFake{}
	handler, _ := newTestRouter(t, config.Config{}, service)

	res := postJSON(t, handler, "/v1/search", map[string]any{"query": "heist", "strategy": "bm25"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if service.lastSearch.Filters != nil {
		t.Fatalf("expected nil filters for detection, got %v", service.lastSearch.Filters)
	}
}

func TestSearchRejectsUnknownStrategy(t *testing.T) {
	handler, _ := newTestRouter(t, config.Config{}, &serviceFake{})

	res := postJSON(t, handler, "/v1/search", map[string]any{"query": "heist", "strategy": "semantic-ish"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSearchRejectsEmptyQueryAndBadJSON(t *testing.T) {
	handler, _ := newTestRouter(t, config.Config{}, &serviceFake{})

	if res := postJSON(t, handler, "/v1/search", map[string]any{"query": "  ", "strategy": "bm25"}); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", res.Code)
	}
}

func TestSearchRequiresPost(t *testing.T) {
	handler, _ := newTestRouter(t, config.Config{}, &serviceFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/search", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestSearchMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid input", err: domain.WrapError(domain.ErrInvalidInput, "dispatch", errors.New("bad")), want: http.StatusBadRequest},
		{name: "embedding", err: domain.WrapError(domain.ErrEmbedding, "dispatch", errors.New("down")), want: http.StatusBadGateway},
		{name: "backend", err: domain.WrapError(domain.ErrBackend, "dispatch", errors.New("down")), want: http.StatusBadGateway},
		{name: "malformed", err: domain.WrapError(domain.ErrMalformedResult, "normalize", errors.New("no hits")), want: http.StatusBadGateway},
		{name: "temporary", err: domain.WrapError(domain.ErrBackend, "dispatch", domain.WrapError(domain.ErrTemporary, "search", errors.New("503"))), want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, _ := newTestRouter(t, config.Config{}, &serviceFake{searchErr: tc.err})
			res := postJSON(t, handler, "/v1/search", map[string]any{"query": "heist", "strategy": "bm25"})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestAskOpensSessionWhenIDMissing(t *testing.T) {
	service := &serviceFake{}
	handler, registry := newTestRouter(t, config.Config{}, service)

	useCache := false
	threshold := 0.8
	res := postJSON(t, handler, "/v1/ask", map[string]any{
		"query":     "best heist movie?",
		"strategy":  "hybrid",
		"use_cache": useCache,
		"threshold": threshold,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var body struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
		Source    string `json:"source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID == "" || body.Text != "Heat (1995)." || body.Source != "generation" {
		t.Fatalf("unexpected response %+v", body)
	}
	if _, err := registry.Get(body.SessionID); err != nil {
		t.Fatalf("expected session to be registered: %v", err)
	}
	if service.lastAsk.UseCache == nil || *service.lastAsk.UseCache || service.lastAsk.Threshold == nil || *service.lastAsk.Threshold != 0.8 {
		t.Fatalf("expected per-request cache options to pass through, got %+v", service.lastAsk)
	}
}

func TestAskReusesExistingSession(t *testing.T) {
	service := &serviceFake{}
	handler, registry := newTestRouter(t, config.Config{}, service)
	conversation := registry.Open("s-1")

	res := postJSON(t, handler, "/v1/ask", map[string]any{"session_id": "s-1", "query": "q", "strategy": "bm25"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if service.lastConv != conversation {
		t.Fatalf("expected the registered conversation to be used")
	}
}

func TestAskUnknownSessionReturns404(t *testing.T) {
	handler, _ := newTestRouter(t, config.Config{}, &serviceFake{})

	res := postJSON(t, handler, "/v1/ask", map[string]any{"session_id": "missing", "query": "q", "strategy": "bm25"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestAskRejectsThresholdOutOfRange(t *testing.T) {
	handler, _ := newTestRouter(t, config.Config{}, &serviceFake{})

	res := postJSON(t, handler, "/v1/ask", map[string]any{"query": "q", "strategy": "bm25", "threshold": 1.5})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAskMapsRateLimitedGenerationTo429(t *testing.T) {
	err := domain.WrapError(domain.ErrGeneration, "generate", &domain.GenerationError{Category: domain.GenerationRateLimited, Err: errors.New("slow down")})
	handler, _ := newTestRouter(t, config.Config{}, &serviceFake{askErr: err})

	res := postJSON(t, handler, "/v1/ask", map[string]any{"query": "q", "strategy": "genai"})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestAskRecordsMetrics(t *testing.T) {
	registry, err := session.NewRegistry(8, "")
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	httpMetrics := metrics.NewHTTPServerMetrics("api")
	service := &serviceFake{answer: &domain.Answer{Text: "cached", Source: domain.AnswerFromCache, Strategy: domain.StrategyLexical, Similarity: 0.9}}
	handler := NewRouter(config.Config{CacheEnabled: true, CacheBackend: "memory"}, service, registry, httpMetrics).Handler()

	res := postJSON(t, handler, "/v1/ask", map[string]any{"query": "q", "strategy": "bm25"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	metricsRes := httptest.NewRecorder()
	handler.ServeHTTP(metricsRes, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metricsRes.Body.String(), `msa_semantic_cache_lookups_total{result="hit",service="api"} 1`) {
		t.Fatalf("expected cache hit metric, got:\n%s", metricsRes.Body.String())
	}
}

func TestAskRecordsDisabledCacheForOffBackend(t *testing.T) {
	for _, backend := range []string{"off", ""} {
		registry, err := session.NewRegistry(8, "")
		if err != nil {
			t.Fatalf("NewRegistry() error = %v", err)
		}
		httpMetrics := metrics.NewHTTPServerMetrics("api")
		service := &serviceFake{answer: &domain.Answer{Text: "generated", Source: domain.AnswerFromGeneration, Strategy: domain.StrategyLexical, Attempts: 1}}
		handler := NewRouter(config.Config{CacheEnabled: true, CacheBackend: backend}, service, registry, httpMetrics).Handler()

		res := postJSON(t, handler, "/v1/ask", map[string]any{"query": "q", "strategy": "bm25", "use_cache": true})
		if res.Code != http.StatusOK {
			t.Fatalf("backend %q: expected 200, got %d", backend, res.Code)
		}

		metricsRes := httptest.NewRecorder()
		handler.ServeHTTP(metricsRes, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body := metricsRes.Body.String()
		if !strings.Contains(body, `msa_semantic_cache_lookups_total{result="disabled",service="api"} 1`) {
			t.Fatalf("backend %q: expected disabled cache metric, got:\n%s", backend, body)
		}
		if strings.Contains(body, `result="miss"`) {
			t.Fatalf("backend %q: expected no miss for a disabled backend", backend)
		}
	}
}

func TestSearchKeepsExplicitZeroWeights(t *testing.T) {
	service := &serviceFake{}
	handler, _ := newTestRouter(t, config.Config{}, service)

	res := postJSON(t, handler, "/v1/search", map[string]any{
		"query":    "noir",
		"strategy": "rrf",
		"weights":  map[string]any{"window_size": 0, "vector_boost": 0.5},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	weights := service.lastSearch.Weights
	if weights.WindowSize == nil || *weights.WindowSize != 0 {
		t.Fatalf("expected explicit zero window size to reach the service, got %v", weights.WindowSize)
	}
	if weights.RankConstant != nil {
		t.Fatalf("expected omitted rank constant to stay unset, got %v", *weights.RankConstant)
	}
	if weights.VectorBoost == nil || *weights.VectorBoost != 0.5 {
		t.Fatalf("expected vector boost 0.5, got %v", weights.VectorBoost)
	}
}

func TestSearchMapsInvalidFusionWindowToBadRequest(t *testing.T) {
	service := &serviceFake{searchErr: domain.WrapError(domain.ErrInvalidStrategy, "build rank fusion query", errors.New("window size 0 and rank constant 60 must be positive"))}
	handler, _ := newTestRouter(t, config.Config{}, service)

	res := postJSON(t, handler, "/v1/search", map[string]any{
		"query":    "noir",
		"strategy": "rrf",
		"weights":  map[string]any{"window_size": 0},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	handler, registry := newTestRouter(t, config.Config{}, &serviceFake{})

	res := postJSON(t, handler, "/v1/sessions", map[string]any{"session_id": "s-42"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	if _, err := registry.Get("s-42"); err != nil {
		t.Fatalf("expected session to exist: %v", err)
	}

	del := httptest.NewRecorder()
	handler.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s-42", nil))
	if del.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", del.Code)
	}

	again := httptest.NewRecorder()
	handler.ServeHTTP(again, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s-42", nil))
	if again.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for closed session, got %d", again.Code)
	}
}

func TestOpenSessionWithoutBodyGeneratesID(t *testing.T) {
	handler, _ := newTestRouter(t, config.Config{}, &serviceFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id, _ := body["session_id"].(string); id == "" {
		t.Fatalf("expected generated session id, got %v", body)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	handler, _ := newTestRouter(t, config.Config{}, &serviceFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("expected request id echo, got %q", res.Header().Get(requestIDHeader))
	}
}
