package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

type turnEmbeddingsKey struct{}

// turnEmbeddings remembers query vectors for the length of one Ask turn, so
// retrieval, cache lookup and cache write share a single embedding call.
type turnEmbeddings struct {
	mu      sync.Mutex
	vectors map[string][]float32
}

func withTurnEmbeddings(ctx context.Context) context.Context {
	if _, ok := ctx.Value(turnEmbeddingsKey{}).(*turnEmbeddings); ok {
		return ctx
	}
	return context.WithValue(ctx, turnEmbeddingsKey{}, &turnEmbeddings{vectors: make(map[string][]float32)})
}

// embedQuery embeds text at most once per turn. Failures are not remembered.
// Outside a turn it calls embedder directly.
func embedQuery(ctx context.Context, embedder ports.Embedder, text string) ([]float32, error) {
	memo, ok := ctx.Value(turnEmbeddingsKey{}).(*turnEmbeddings)
	if !ok {
		return embedder.EmbedQuery(ctx, text)
	}

	memo.mu.Lock()
	vector, found := memo.vectors[text]
	memo.mu.Unlock()
	if found {
		return vector, nil
	}

	vector, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	memo.mu.Lock()
	memo.vectors[text] = vector
	memo.mu.Unlock()
	return vector, nil
}
