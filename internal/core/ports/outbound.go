package ports

import (
	"context"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

// Embedder turns query text into a fixed-length dense vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchBackend executes a structured query against a document index.
type SearchBackend interface {
	Execute(ctx context.Context, index string, query domain.StructuredQuery, size int) (domain.RawResultSet, error)
}

// GenerationService completes a conversation. Errors should be
// *domain.GenerationError so the caller can tell rate limits apart.
type GenerationService interface {
	Complete(ctx context.Context, history []domain.Message) (string, error)
}

// CacheStore persists semantic cache entries.
type CacheStore interface {
	// CreateIndex provisions storage for vectors of the given size. Repeated
	// calls with the same size are no-ops.
	CreateIndex(ctx context.Context, dims int) error
	Append(ctx context.Context, entry domain.CacheEntry) error
	// Nearest returns the most similar entry, newest first on ties.
	Nearest(ctx context.Context, vector []float32) (domain.CacheMatch, bool, error)
}

// EventPublisher announces answered turns.
type EventPublisher interface {
	PublishAnswered(ctx context.Context, event domain.AnswerEvent) error
}

// Retrier runs fn under a bounded retry policy and reports how many times fn
// was called.
type Retrier interface {
	Run(ctx context.Context, operation string, fn func(context.Context) error, retryable func(error) bool) (int, error)
}
