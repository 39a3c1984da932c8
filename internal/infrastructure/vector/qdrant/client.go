package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

// candidateLimit is how many nearest points are fetched so equal scores can
// be resolved by age.
const candidateLimit = 8

// Client stores semantic cache entries as points in a Qdrant collection.
type Client struct {
	baseURL    string
	collection string
	retention  domain.CacheRetention
	httpClient *http.Client
	now        func() time.Time

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, retention domain.CacheRetention) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		retention:  retention,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
	}
}

func (c *Client) CreateIndex(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("vector dimensionality must be positive, got %d", dims)
	}
	return c.ensureCollection(ctx, dims)
}

func (c *Client) Append(ctx context.Context, entry domain.CacheEntry) error {
	if len(entry.QueryEmbedding) == 0 {
		return fmt.Errorf("cache entry has no embedding")
	}
	id := entry.ID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	body, err := json.Marshal(map[string]any{
		"points": []point{{
			ID:     id,
			Vector: entry.QueryEmbedding,
			Payload: map[string]any{
				"query_text":         entry.QueryText,
				"prompt_text":        entry.PromptText,
				"response_text":      entry.ResponseText,
				"created_at_unix_ms": entry.CreatedAt.UnixMilli(),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPut, url, body, nil, "upsert"); err != nil {
		return err
	}
	return nil
}

func (c *Client) Nearest(ctx context.Context, vector []float32) (domain.CacheMatch, bool, error) {
	reqBody := map[string]any{
		"query":        vector,
		"limit":        candidateLimit,
		"with_payload": true,
		"with_vector":  true,
	}
	if c.retention.MaxAge > 0 {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "created_at_unix_ms",
					"range": map[string]any{
						"gte": c.now().Add(-c.retention.MaxAge).UnixMilli(),
					},
				},
			},
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.CacheMatch{}, false, fmt.Errorf("marshal query body: %w", err)
	}

	var queryResp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Score   float64        `json:"score"`
				Vector  []float32      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, body, &queryResp, "query"); err != nil {
		return domain.CacheMatch{}, false, err
	}

	var (
		best  domain.CacheMatch
		found bool
	)
	for _, p := range queryResp.Result.Points {
		candidate := domain.CacheMatch{
			Entry: domain.CacheEntry{
				ID:             fmt.Sprintf("%v", p.ID),
				QueryText:      getStringPayload(p.Payload, "query_text"),
				QueryEmbedding: p.Vector,
				PromptText:     getStringPayload(p.Payload, "prompt_text"),
				ResponseText:   getStringPayload(p.Payload, "response_text"),
				CreatedAt:      time.UnixMilli(getInt64Payload(p.Payload, "created_at_unix_ms")).UTC(),
			},
			Similarity: math.Max(0, math.Min(1, p.Score)),
		}
		if !found || domain.Closer(candidate, best) {
			best = candidate
			found = true
		}
	}
	return best, found, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 409 or 400 "already exists" depending on server version.
	if resp.StatusCode >= 300 {
		statusErr := statusError("ensure collection", resp)
		if resp.StatusCode != http.StatusConflict && !strings.Contains(statusErr.Error(), "already exists") {
			return statusErr
		}
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
	}
	return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getInt64Payload(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case int64:
		return v
	default:
		return 0
	}
}
