package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	// AzureAPIVersion switches the client to Azure OpenAI deployments.
	AzureAPIVersion string
	Temperature     float64
}

func (c Config) options(model string) []openai.Option {
	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithEmbeddingModel(c.EmbeddingModel),
	}
	if c.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.BaseURL))
	}
	token := c.APIKey
	if token == "" {
		// local OpenAI-compatible servers accept any token
		token = "none"
	}
	opts = append(opts, openai.WithToken(token))
	if c.AzureAPIVersion != "" {
		opts = append(opts, openai.WithAPIType(openai.APITypeAzure), openai.WithAPIVersion(c.AzureAPIVersion))
	}
	return opts
}

type Embedder struct {
	embedder embeddings.Embedder
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if strings.TrimSpace(cfg.EmbeddingModel) == "" {
		return nil, fmt.Errorf("openai embedding model is required")
	}
	client, err := openai.New(cfg.options(cfg.EmbeddingModel)...)
	if err != nil {
		return nil, fmt.Errorf("create openai embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}
	return &Embedder{embedder: embedder}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vector, nil
}

// ChatGenerator completes conversations through the chat completions API.
type ChatGenerator struct {
	model       llms.Model
	temperature float64
	logger      *slog.Logger
}

func NewChatGenerator(cfg Config) (*ChatGenerator, error) {
	if strings.TrimSpace(cfg.ChatModel) == "" {
		return nil, fmt.Errorf("openai chat model is required")
	}
	client, err := openai.New(cfg.options(cfg.ChatModel)...)
	if err != nil {
		return nil, fmt.Errorf("create openai chat client: %w", err)
	}
	return &ChatGenerator{
		model:       client,
		temperature: cfg.Temperature,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

func (g *ChatGenerator) Complete(ctx context.Context, history []domain.Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	response, err := g.model.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		category := classifyError(err)
		g.logger.Debug("chat completion failed", "category", string(category), "error", err.Error())
		return "", domain.NewGenerationError(category, err)
	}
	if len(response.Choices) == 0 {
		return "", domain.NewGenerationError(domain.GenerationUnknownFailure, fmt.Errorf("no choices returned"))
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}

func chatMessageType(role domain.Role) llms.ChatMessageType {
	switch role {
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

// classifyError maps client errors to failure categories. The client only
// exposes the HTTP status inside the error text.
func classifyError(err error) domain.GenerationFailure {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.GenerationTimeout
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return failureForStatus(code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.GenerationTimeout
		}
		return domain.GenerationUnavailable
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate limit"):
		return domain.GenerationRateLimited
	case strings.Contains(lower, "invalid api key"), strings.Contains(lower, "unauthorized"):
		return domain.GenerationUnauthorized
	}
	return domain.GenerationUnknownFailure
}

func failureForStatus(code int) domain.GenerationFailure {
	switch {
	case code == 429:
		return domain.GenerationRateLimited
	case code == 401 || code == 403:
		return domain.GenerationUnauthorized
	case code == 400 || code == 404 || code == 422:
		return domain.GenerationBadRequest
	case code == 408 || code == 504:
		return domain.GenerationTimeout
	case code >= 500:
		return domain.GenerationUnavailable
	}
	return domain.GenerationUnknownFailure
}
