package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

type DispatcherConfig struct {
	Index string
	// ResultSize caps the hits requested from the backend.
	ResultSize int
	Defaults   domain.Weights
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Index:      "movies_inferred",
		ResultSize: defaultPageSize,
		Defaults: domain.Weights{
			LexicalBoost: 1,
			VectorBoost:  1,
			SparseBoost:  1,
			WindowSize:   200,
			RankConstant: 60,
		},
	}
}

// StrategyDispatcher embeds when needed, builds the structured query and
// submits it to the search backend exactly once.
type StrategyDispatcher struct {
	embedder ports.Embedder
	backend  ports.SearchBackend
	builder  *QueryBuilder
	cfg      DispatcherConfig
}

func NewStrategyDispatcher(
	embedder ports.Embedder,
	backend ports.SearchBackend,
	builder *QueryBuilder,
	cfg DispatcherConfig,
) *StrategyDispatcher {
	if cfg.ResultSize <= 0 {
		cfg.ResultSize = defaultPageSize
	}
	return &StrategyDispatcher{
		embedder: embedder,
		backend:  backend,
		builder:  builder,
		cfg:      cfg,
	}
}

func (d *StrategyDispatcher) Dispatch(ctx context.Context, req domain.SearchRequest) (domain.Dispatch, error) {
	if !req.Strategy.Valid() {
		return domain.Dispatch{}, domain.WrapError(domain.ErrInvalidStrategy, "dispatch", fmt.Errorf("unknown strategy %d", int(req.Strategy)))
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.Dispatch{}, domain.WrapError(domain.ErrInvalidInput, "dispatch", fmt.Errorf("query text is required"))
	}

	input := domain.BuildInput{
		Strategy: req.Strategy,
		Text:     text,
		Filters:  req.Filters,
		Weights:  req.Weights.Resolve(d.cfg.Defaults),
	}

	if req.Strategy.NeedsVector() {
		vector, err := embedQuery(ctx, d.embedder, text)
		if err != nil {
			return domain.Dispatch{}, domain.WrapError(domain.ErrEmbedding, "embed query", err)
		}
		if len(vector) == 0 {
			return domain.Dispatch{}, domain.WrapError(domain.ErrEmbedding, "embed query", fmt.Errorf("empty embedding"))
		}
		input.Vector = vector
	}

	query, err := d.builder.Build(input)
	if err != nil {
		return domain.Dispatch{}, err
	}

	out := domain.Dispatch{Strategy: req.Strategy, Query: query}
	if req.Strategy == domain.StrategyGenerationOnly {
		out.Result = domain.RawResultSet{Hits: []domain.RawHit{}}
		return out, nil
	}

	size := d.cfg.ResultSize
	if page := query.PageSize(); page > 0 && page < size {
		size = page
	}

	result, err := d.backend.Execute(ctx, d.cfg.Index, query, size)
	if err != nil {
		if domain.IsKind(err, domain.ErrBackend) {
			return domain.Dispatch{}, err
		}
		return domain.Dispatch{}, domain.WrapError(domain.ErrBackend, "search "+req.Strategy.String(), err)
	}
	out.Result = result
	return out, nil
}
