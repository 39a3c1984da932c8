package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/config"
	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
	"github.com/kirillkom/movie-search-assistant/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxRequestBytes = 1 << 20
)

type Router struct {
	cfg      config.Config
	service  ports.MovieSearchService
	sessions ports.SessionStore
	metrics  *metrics.HTTPServerMetrics
}

// NewRouter wires the HTTP surface. metrics may be nil.
func NewRouter(
	cfg config.Config,
	service ports.MovieSearchService,
	sessions ports.SessionStore,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		service:  service,
		sessions: sessions,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/ask", rt.ask)
	mux.HandleFunc("/v1/sessions", rt.openSession)
	mux.HandleFunc("/v1/sessions/", rt.closeSession)

	var handler http.Handler = mux
	if rt.cfg.APIMaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query    string `json:"query"`
	Strategy string `json:"strategy"`
	// Filters absent means detect them from the query text; an empty list
	// disables filtering.
	Filters []domain.TermFilter `json:"filters"`
	// Weights fields left out take the server defaults; an explicit
	// window_size or rank_constant of 0 is rejected for rank fusion.
	Weights domain.WeightOverrides `json:"weights"`
}

func (req searchRequest) toDomain() (domain.SearchRequest, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.SearchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("query is required"))
	}
	strategy, err := domain.ParseStrategy(req.Strategy)
	if err != nil {
		return domain.SearchRequest{}, err
	}
	return domain.SearchRequest{
		Strategy: strategy,
		Text:     query,
		Filters:  req.Filters,
		Weights:  req.Weights,
	}, nil
}

type searchResponse struct {
	Strategy domain.SearchStrategy `json:"strategy"`
	Hits     []domain.RankedHit    `json:"hits"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	searchReq, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	hits, err := rt.service.Search(r.Context(), searchReq)
	if err != nil {
		slog.Warn("search_failed", "request_id", requestIDFromContext(r.Context()), "strategy", searchReq.Strategy.String(), "error", err)
		writeError(w, err)
		return
	}
	if hits == nil {
		hits = []domain.RankedHit{}
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(serviceName, "search", searchReq.Strategy.String(), len(hits), time.Since(start))
	}
	writeJSON(w, http.StatusOK, searchResponse{Strategy: searchReq.Strategy, Hits: hits})
}

type askRequest struct {
	searchRequest
	SessionID string   `json:"session_id"`
	UseCache  *bool    `json:"use_cache"`
	Threshold *float64 `json:"threshold"`
}

type askResponse struct {
	SessionID string `json:"session_id"`
	*domain.Answer
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	searchReq, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("threshold must be within [0, 1]")))
		return
	}

	conversation, err := rt.conversationFor(strings.TrimSpace(req.SessionID))
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	answer, err := rt.service.Ask(r.Context(), conversation, ports.AskRequest{
		Search:    searchReq,
		UseCache:  req.UseCache,
		Threshold: req.Threshold,
	})
	if err != nil {
		slog.Warn("ask_failed",
			"request_id", requestIDFromContext(r.Context()),
			"session_id", conversation.ID,
			"strategy", searchReq.Strategy.String(),
			"error", err,
		)
		rt.recordAskFailure(err)
		writeError(w, err)
		return
	}
	rt.recordAnswer(req, answer, time.Since(start))
	writeJSON(w, http.StatusOK, askResponse{SessionID: conversation.ID, Answer: answer})
}

// conversationFor returns the named session, or a new one when id is empty.
func (rt *Router) conversationFor(id string) (*domain.Conversation, error) {
	if id == "" {
		return rt.sessions.Open(""), nil
	}
	return rt.sessions.Get(id)
}

func (rt *Router) openSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	conversation := rt.sessions.Open(strings.TrimSpace(req.SessionID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": conversation.ID,
		"created_at": conversation.CreatedAt,
		"messages":   conversation.Len(),
	})
}

func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}
	if !rt.sessions.Close(id) {
		writeError(w, domain.WrapError(domain.ErrSessionNotFound, "close session", errors.New("id="+id)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) recordAnswer(req askRequest, answer *domain.Answer, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordRetrieval(serviceName, "ask", answer.Strategy.String(), len(answer.Hits), elapsed)

	consulted := rt.cfg.CacheEnabled
	if req.UseCache != nil {
		consulted = *req.UseCache
	}
	consulted = consulted && rt.cfg.CacheBackendEnabled()
	switch {
	case answer.Source == domain.AnswerFromCache:
		rt.metrics.RecordCacheLookup(serviceName, "hit", answer.Similarity)
	case consulted:
		rt.metrics.RecordCacheLookup(serviceName, "miss", 0)
	default:
		rt.metrics.RecordCacheLookup(serviceName, "disabled", 0)
	}
	if answer.Source == domain.AnswerFromGeneration {
		rt.metrics.RecordGeneration(serviceName, string(domain.GenerationSucceeded), "", answer.Attempts)
	}
}

func (rt *Router) recordAskFailure(err error) {
	if rt.metrics == nil || !domain.IsKind(err, domain.ErrGeneration) {
		return
	}
	rt.metrics.RecordGeneration(serviceName, string(domain.GenerationFailed), string(domain.GenerationFailureOf(err)), 0)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("http_response_encode_failed", "error", err)
	}
}
