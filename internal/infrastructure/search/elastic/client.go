package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/resilience"
)

type Options struct {
	Username string
	Password string
	APIKey   string
	Timeout  time.Duration

	ResilienceExecutor *resilience.Executor
}

// Client executes structured queries against the Elasticsearch _search API.
type Client struct {
	baseURL    string
	username   string
	password   string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   options.Username,
		password:   options.Password,
		apiKey:     options.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits *struct {
		Total *struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits *[]struct {
			ID     string         `json:"_id"`
			Score  *float64       `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *Client) Execute(ctx context.Context, index string, query domain.StructuredQuery, size int) (domain.RawResultSet, error) {
	if strings.TrimSpace(index) == "" {
		return domain.RawResultSet{}, fmt.Errorf("elastic search: index is required")
	}
	body, err := renderQuery(query, size)
	if err != nil {
		return domain.RawResultSet{}, fmt.Errorf("render search body: %w", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.RawResultSet{}, fmt.Errorf("marshal search body: %w", err)
	}

	var decoded searchResponse
	call := func(callCtx context.Context) error {
		decoded = searchResponse{}
		return c.search(callCtx, index, payload, &decoded)
	}
	if c.executor != nil {
		err = c.executor.Execute(ctx, "elastic.search", call, resilience.BreakerOnly(classifyElasticError))
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.RawResultSet{}, wrapTemporaryIfNeeded("elastic.search", err)
	}
	return toResultSet(decoded), nil
}

func (c *Client) search(ctx context.Context, index string, payload []byte, out *searchResponse) error {
	endpoint := fmt.Sprintf("%s/%s/_search", c.baseURL, url.PathEscape(index))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elastic search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.apiKey != "":
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
}

func toResultSet(resp searchResponse) domain.RawResultSet {
	out := domain.RawResultSet{Took: time.Duration(resp.Took) * time.Millisecond}
	if resp.Hits == nil || resp.Hits.Hits == nil {
		out.Missing = true
		return out
	}
	hits := *resp.Hits.Hits
	out.Hits = make([]domain.RawHit, 0, len(hits))
	for _, h := range hits {
		hit := domain.RawHit{ID: h.ID, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		if hit.Source == nil {
			hit.Source = map[string]any{}
		}
		out.Hits = append(out.Hits, hit)
	}
	if resp.Hits.Total != nil {
		out.Total = resp.Hits.Total.Value
	} else {
		out.Total = len(out.Hits)
	}
	return out
}
