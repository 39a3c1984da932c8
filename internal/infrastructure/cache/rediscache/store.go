package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

// Store keeps cache entries in a sorted set scored by creation time, so
// retention trims by score or rank.
type Store struct {
	client    *redis.Client
	prefix    string
	retention domain.CacheRetention
	now       func() time.Time
}

func NewStore(client *redis.Client, prefix string, retention domain.CacheRetention) *Store {
	if prefix == "" {
		prefix = "movies:semantic_cache:"
	}
	return &Store{client: client, prefix: prefix, retention: retention, now: time.Now}
}

// Connect parses url and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func (s *Store) entriesKey() string { return s.prefix + "entries" }
func (s *Store) dimsKey() string    { return s.prefix + "dims" }

// CreateIndex records the vector size. A different size already on record is
// an error.
func (s *Store) CreateIndex(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("vector dimensionality must be positive, got %d", dims)
	}
	if err := s.client.SetNX(ctx, s.dimsKey(), dims, 0).Err(); err != nil {
		return fmt.Errorf("record cache dims: %w", err)
	}
	stored, err := s.client.Get(ctx, s.dimsKey()).Int()
	if err != nil {
		return fmt.Errorf("read cache dims: %w", err)
	}
	if stored != dims {
		return fmt.Errorf("cache index already created with %d dimensions", stored)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry domain.CacheEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	member, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	key := s.entriesKey()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(entry.CreatedAt.UnixMilli()),
			Member: member,
		})
		if s.retention.MaxAge > 0 {
			minScore := s.now().Add(-s.retention.MaxAge).UnixMilli()
			pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(minScore, 10))
		}
		if s.retention.MaxEntries > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.retention.MaxEntries-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

func (s *Store) Nearest(ctx context.Context, vector []float32) (domain.CacheMatch, bool, error) {
	minScore := "-inf"
	if s.retention.MaxAge > 0 {
		minScore = strconv.FormatInt(s.now().Add(-s.retention.MaxAge).UnixMilli(), 10)
	}
	members, err := s.client.ZRangeByScore(ctx, s.entriesKey(), &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return domain.CacheMatch{}, false, fmt.Errorf("loading cache entries: %w", err)
	}

	var (
		best  domain.CacheMatch
		found bool
	)
	for _, raw := range members {
		var entry domain.CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// skip entries written by an incompatible version
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
