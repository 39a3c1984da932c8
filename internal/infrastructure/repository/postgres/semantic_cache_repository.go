package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

const schemaLockKey int64 = 2026101701

// SemanticCacheRepository keeps cache entries in a table and scans the most
// recent ones for the nearest embedding.
type SemanticCacheRepository struct {
	db        *sql.DB
	retention domain.CacheRetention
	now       func() time.Time
}

func NewSemanticCacheRepository(db *sql.DB, retention domain.CacheRetention) *SemanticCacheRepository {
	return &SemanticCacheRepository{db: db, retention: retention, now: time.Now}
}

func (r *SemanticCacheRepository) CreateIndex(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("vector dimensionality must be positive, got %d", dims)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS semantic_cache (
	id TEXT PRIMARY KEY,
	query_text TEXT NOT NULL,
	query_embedding JSONB NOT NULL,
	dims INTEGER NOT NULL,
	prompt_text TEXT NOT NULL,
	response_text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_semantic_cache_dims_created_at ON semantic_cache(dims, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SemanticCacheRepository) Append(ctx context.Context, entry domain.CacheEntry) error {
	embedding, err := json.Marshal(entry.QueryEmbedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO semantic_cache (id, query_text, query_embedding, dims, prompt_text, response_text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		id, entry.QueryText, embedding, len(entry.QueryEmbedding), entry.PromptText, entry.ResponseText, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

func (r *SemanticCacheRepository) Nearest(ctx context.Context, vector []float32) (domain.CacheMatch, bool, error) {
	var since time.Time
	if r.retention.MaxAge > 0 {
		since = r.now().Add(-r.retention.MaxAge)
	}
	var limit sql.NullInt64
	if r.retention.MaxEntries > 0 {
		limit = sql.NullInt64{Int64: int64(r.retention.MaxEntries), Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, query_text, query_embedding, prompt_text, response_text, created_at
FROM semantic_cache
WHERE dims = $1 AND created_at >= $2
ORDER BY created_at DESC
LIMIT $3
`, len(vector), since, limit)
	if err != nil {
		return domain.CacheMatch{}, false, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	var (
		best  domain.CacheMatch
		found bool
	)
	for rows.Next() {
		var entry domain.CacheEntry
		var embeddingRaw []byte
		if err := rows.Scan(&entry.ID, &entry.QueryText, &embeddingRaw, &entry.PromptText, &entry.ResponseText, &entry.CreatedAt); err != nil {
			return domain.CacheMatch{}, false, fmt.Errorf("scan cache entry: %w", err)
		}
		if err := json.Unmarshal(embeddingRaw, &entry.QueryEmbedding); err != nil {
			return domain.CacheMatch{}, false, fmt.Errorf("unmarshal embedding for %s: %w", entry.ID, err)
		}
		candidate := domain.CacheMatch{Entry: entry, Similarity: domain.CosineSimilarity(vector, entry.QueryEmbedding)}
		if !found || domain.Closer(candidate, best) {
			best = candidate
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return domain.CacheMatch{}, false, fmt.Errorf("iterate cache entries: %w", err)
	}
	return best, found, nil
}
