package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/resilience"
)

type embedderFake struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    []string
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	if f.fallback != nil {
		return f.fallback, nil
	}
	return []float32{1, 0}, nil
}

func (f *embedderFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type backendCall struct {
	index string
	query domain.StructuredQuery
	size  int
}

type backendFake struct {
	result domain.RawResultSet
	err    error
	calls  []backendCall
}

func (f *backendFake) Execute(_ context.Context, index string, query domain.StructuredQuery, size int) (domain.RawResultSet, error) {
	f.calls = append(f.calls, backendCall{index: index, query: query, size: size})
	if f.err != nil {
		return domain.RawResultSet{}, f.err
	}
	return f.result, nil
}

type generatorFake struct {
	errs     []error
	response string
	calls    int
	history  [][]domain.Message
}

func (f *generatorFake) Complete(_ context.Context, history []domain.Message) (string, error) {
	f.calls++
	f.history = append(f.history, history)
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return "", f.errs[f.calls-1]
	}
	return f.response, nil
}

type cacheStoreFake struct {
	mu          sync.Mutex
	entries     []domain.CacheEntry
	createCalls int
	createErr   error
	nearestErr  error
	appendErr   error
}

func (f *cacheStoreFake) CreateIndex(context.Context, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	return f.createErr
}

func (f *cacheStoreFake) Append(_ context.Context, entry domain.CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *cacheStoreFake) Nearest(_ context.Context, vector []float32) (domain.CacheMatch, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nearestErr != nil {
		return domain.CacheMatch{}, false, f.nearestErr
	}
	var best domain.CacheMatch
	found := false
	for _, entry := range f.entries {
		candidate := domain.CacheMatch{Entry: entry, Similarity: domain.CosineSimilarity(vector, entry.QueryEmbedding)}
		if !found || domain.Closer(candidate, best) {
			best, found = candidate, true
		}
	}
	return best, found, nil
}

func (f *cacheStoreFake) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type publisherFake struct {
	events []domain.AnswerEvent
	err    error
}

func (f *publisherFake) PublishAnswered(_ context.Context, event domain.AnswerEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func newTestRetrier() *resilience.Executor {
	return resilience.NewExecutor(resilience.FixedBackoff(3, time.Millisecond).WithoutBreaker())
}

func rateLimitErr() error {
	return domain.NewGenerationError(domain.GenerationRateLimited, errors.New("429 too many requests"))
}

func unauthorizedErr() error {
	return domain.NewGenerationError(domain.GenerationUnauthorized, errors.New("401 invalid api key"))
}

func movieHit(score float64, title string) domain.RawHit {
	return domain.RawHit{
		ID:    title,
		Score: score,
		Source: map[string]any{
			"title":        title,
			"url":          "https://movies.example/" + title,
			"body_content": title + " body",
			"passages":     []any{map[string]any{"text": title + " passage"}},
		},
	}
}
