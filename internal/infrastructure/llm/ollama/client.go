package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/resilience"
)

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	call := func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	}
	if err := e.client.execute(ctx, "ollama.embed", call); err != nil {
		return nil, wrapTemporaryIfNeeded("ollama.embed", err)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

// ChatGenerator completes conversations through /api/chat. Retries are left
// to the caller so rate limits are counted once.
type ChatGenerator struct {
	client *Client
}

func NewChatGenerator(client *Client) *ChatGenerator {
	return &ChatGenerator{client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (g *ChatGenerator) Complete(ctx context.Context, history []domain.Message) (string, error) {
	messages := make([]chatMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	request := map[string]any{
		"model":    g.client.genModel,
		"messages": messages,
		"stream":   false,
	}

	var response struct {
		Message chatMessage `json:"message"`
	}
	if err := g.client.postJSON(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return "", asGenerationError(err)
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// execute runs call once under the breaker; embedding failures surface to
// the caller without a retry.
func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, resilience.BreakerOnly(classifyOllamaError))
}
