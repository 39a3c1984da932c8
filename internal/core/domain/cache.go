package domain

import (
	"math"
	"time"
)

// CacheEntry is one stored generation. Entries are immutable once appended.
type CacheEntry struct {
	ID             string    `json:"id"`
	QueryText      string    `json:"query_text"`
	QueryEmbedding []float32 `json:"query_embedding"`
	PromptText     string    `json:"prompt_text"`
	ResponseText   string    `json:"response_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// CacheMatch is the nearest stored entry for a query embedding.
type CacheMatch struct {
	Entry      CacheEntry
	Similarity float64
}

type CacheLookup struct {
	Hit   bool
	Match CacheMatch
}

// CacheRetention bounds what a cache store keeps or considers. Zero values
// mean unbounded.
type CacheRetention struct {
	MaxEntries int
	MaxAge     time.Duration
}

// Expired reports whether an entry created at createdAt falls outside MaxAge.
func (r CacheRetention) Expired(createdAt, now time.Time) bool {
	return r.MaxAge > 0 && now.Sub(createdAt) > r.MaxAge
}

// CosineSimilarity returns the cosine similarity of a and b clamped to [0, 1].
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	default:
		return sim
	}
}

// Closer reports whether candidate should replace best as the nearest match:
// higher similarity wins, equal similarity goes to the newer entry.
func Closer(candidate, best CacheMatch) bool {
	if candidate.Similarity != best.Similarity {
		return candidate.Similarity > best.Similarity
	}
	return !candidate.Entry.CreatedAt.Before(best.Entry.CreatedAt)
}
