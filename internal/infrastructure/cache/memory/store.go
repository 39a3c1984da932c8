package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

// Store keeps semantic cache entries in process memory. It is the default
// backend for a single replica.
type Store struct {
	retention domain.CacheRetention
	now       func() time.Time

	mu      sync.RWMutex
	dims    int
	entries []domain.CacheEntry
}

func NewStore(retention domain.CacheRetention) *Store {
	return &Store{retention: retention, now: time.Now}
}

func (s *Store) CreateIndex(_ context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("vector dimensionality must be positive, got %d", dims)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims != 0 && s.dims != dims {
		return fmt.Errorf("cache index already created with %d dimensions", s.dims)
	}
	s.dims = dims
	return nil
}

func (s *Store) Append(_ context.Context, entry domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims != 0 && len(entry.QueryEmbedding) != s.dims {
		return fmt.Errorf("entry embedding has %d dimensions, want %d", len(entry.QueryEmbedding), s.dims)
	}
	s.entries = append(s.entries, entry)
	s.evictLocked()
	return nil
}

func (s *Store) Nearest(_ context.Context, vector []float32) (domain.CacheMatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var (
		best  domain.CacheMatch
		found bool
	)
	for _, entry := range s.entries {
		if s.retention.Expired(entry.CreatedAt, now) {
			continue
		}
		candidate := domain.CacheMatch{Entry: entry, Similarity: domain.CosineSimilarity(vector, entry.QueryEmbedding)}
		if !found || domain.Closer(candidate, best) {
			best = candidate
			found = true
		}
	}
	return best, found, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) evictLocked() {
	if limit := s.retention.MaxEntries; limit > 0 && len(s.entries) > limit {
		drop := len(s.entries) - limit
		s.entries = append(s.entries[:0:0], s.entries[drop:]...)
	}
	if s.retention.MaxAge <= 0 {
		return
	}
	now := s.now()
	kept := s.entries[:0]
	for _, entry := range s.entries {
		if !s.retention.Expired(entry.CreatedAt, now) {
			kept = append(kept, entry)
		}
	}
	s.entries = kept
}
