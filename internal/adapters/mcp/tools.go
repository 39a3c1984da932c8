package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

const defaultStrategy = "hybrid_fusion"

func (s *Server) handleSearchMovies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := searchRequestFrom(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.service.Search(ctx, req)
	if err != nil {
		slog.Warn("mcp_search_failed", "strategy", req.Strategy.String(), "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if hits == nil {
		hits = []domain.RankedHit{}
	}
	return mcp.NewToolResultText(formatJSON(map[string]any{
		"strategy": req.Strategy,
		"hits":     hits,
	})), nil
}

func (s *Server) handleAskMovies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req, err := searchRequestFrom(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	askReq := ports.AskRequest{Search: req}
	if useCache, ok := args["use_cache"].(bool); ok {
		askReq.UseCache = &useCache
	}
	if threshold, ok := args["threshold"].(float64); ok {
		if threshold < 0 || threshold > 1 {
			return mcp.NewToolResultError("threshold must be within [0, 1]"), nil
		}
		askReq.Threshold = &threshold
	}

	var conversation *domain.Conversation
	sessionID, _ := args["session_id"].(string)
	if sessionID = strings.TrimSpace(sessionID); sessionID == "" {
		conversation = s.sessions.Open("")
	} else if conversation, err = s.sessions.Get(sessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := s.service.Ask(ctx, conversation, askReq)
	if err != nil {
		slog.Warn("mcp_ask_failed", "session_id", conversation.ID, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]any{
		"session_id": conversation.ID,
		"answer":     answer.Text,
		"source":     answer.Source,
		"similarity": answer.Similarity,
		"strategy":   answer.Strategy,
		"hits":       answer.Hits,
	})), nil
}

func searchRequestFrom(args map[string]any) (domain.SearchRequest, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.SearchRequest{}, domain.WrapError(domain.ErrInvalidInput, "tool arguments", errors.New("query is required"))
	}

	rawStrategy, _ := args["strategy"].(string)
	if strings.TrimSpace(rawStrategy) == "" {
		rawStrategy = defaultStrategy
	}
	strategy, err := domain.ParseStrategy(rawStrategy)
	if err != nil {
		return domain.SearchRequest{}, err
	}

	filters, err := filtersFrom(args["filters"])
	if err != nil {
		return domain.SearchRequest{}, err
	}
	return domain.SearchRequest{Strategy: strategy, Text: query, Filters: filters}, nil
}

// filtersFrom keeps the nil/empty distinction: nil enables detection.
func filtersFrom(raw any) ([]domain.TermFilter, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "tool arguments", errors.New("filters must be an array"))
	}
	out := make([]domain.TermFilter, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "tool arguments", fmt.Errorf("filters[%d] must be an object", i))
		}
		field, _ := obj["field"].(string)
		value, _ := obj["value"].(string)
		if field == "" || value == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "tool arguments", fmt.Errorf("filters[%d] needs field and value", i))
		}
		out = append(out, domain.TermFilter{Field: field, Value: value})
	}
	return out, nil
}

func formatJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(raw)
}
