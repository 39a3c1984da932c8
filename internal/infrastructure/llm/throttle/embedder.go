package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

// DefaultInterval keeps embedding calls under five per second.
const DefaultInterval = 200 * time.Millisecond

// Embedder spaces calls to the wrapped embedder at least interval apart.
type Embedder struct {
	next    ports.Embedder
	limiter *rate.Limiter
}

func NewEmbedder(next ports.Embedder, interval time.Duration) *Embedder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Embedder{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for embedding slot: %w", err)
	}
	return e.next.EmbedQuery(ctx, text)
}
