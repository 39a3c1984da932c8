package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

const DefaultSimilarityThreshold = 0.6

type SemanticCacheConfig struct {
	Dims      int
	Threshold float64
}

// SemanticCache reuses earlier responses for queries whose embedding is close
// enough to a stored one.
type SemanticCache struct {
	embedder ports.Embedder
	store    ports.CacheStore
	cfg      SemanticCacheConfig
	now      func() time.Time

	provisionMu sync.Mutex
	provisioned bool
}

func NewSemanticCache(embedder ports.Embedder, store ports.CacheStore, cfg SemanticCacheConfig) *SemanticCache {
	return &SemanticCache{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (c *SemanticCache) Threshold() float64 {
	return c.cfg.Threshold
}

// Provision creates the backing index once per process. Failed attempts are
// retried on the next call.
func (c *SemanticCache) Provision(ctx context.Context) error {
	c.provisionMu.Lock()
	defer c.provisionMu.Unlock()
	if c.provisioned {
		return nil
	}
	if err := c.store.CreateIndex(ctx, c.cfg.Dims); err != nil {
		return domain.WrapError(domain.ErrCache, "create cache index", err)
	}
	c.provisioned = true
	return nil
}

func (c *SemanticCache) Lookup(ctx context.Context, queryText string, threshold float64) (domain.CacheLookup, error) {
	if err := c.Provision(ctx); err != nil {
		return domain.CacheLookup{}, err
	}
	vector, err := c.embed(ctx, queryText)
	if err != nil {
		return domain.CacheLookup{}, err
	}

	match, found, err := c.store.Nearest(ctx, vector)
	if err != nil {
		return domain.CacheLookup{}, domain.WrapError(domain.ErrCache, "cache nearest", err)
	}
	if !found {
		return domain.CacheLookup{}, nil
	}
	return domain.CacheLookup{Hit: match.Similarity >= threshold, Match: match}, nil
}

// Store appends a new entry without checking for near duplicates.
func (c *SemanticCache) Store(ctx context.Context, queryText, promptText, responseText string) error {
	if err := c.Provision(ctx); err != nil {
		return err
	}
	vector, err := c.embed(ctx, queryText)
	if err != nil {
		return err
	}

	entry := domain.CacheEntry{
		ID:             uuid.NewString(),
		QueryText:      queryText,
		QueryEmbedding: vector,
		PromptText:     promptText,
		ResponseText:   responseText,
		CreatedAt:      c.now(),
	}
	if err := c.store.Append(ctx, entry); err != nil {
		return domain.WrapError(domain.ErrCache, "cache append", err)
	}
	return nil
}

func (c *SemanticCache) embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := embedQuery(ctx, c.embedder, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed cache key", err)
	}
	if c.cfg.Dims > 0 && len(vector) != c.cfg.Dims {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed cache key", fmt.Errorf("expected %d dimensions, got %d", c.cfg.Dims, len(vector)))
	}
	return vector, nil
}
