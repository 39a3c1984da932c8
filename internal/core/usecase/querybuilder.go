package usecase

import (
	"fmt"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

const (
	defaultPageSize = 5

	denseK               = 10
	denseCandidateFactor = 10

	fusionDenseK          = 5
	fusionDenseCandidates = 50
)

// QueryBuilder maps a strategy and its inputs to a structured query. It does
// no I/O and holds no mutable state.
type QueryBuilder struct {
	fields   domain.IndexFields
	pageSize int
}

func NewQueryBuilder(fields domain.IndexFields) *QueryBuilder {
	return &QueryBuilder{fields: fields, pageSize: defaultPageSize}
}

func (b *QueryBuilder) Fields() domain.IndexFields {
	return b.fields
}

func (b *QueryBuilder) Build(in domain.BuildInput) (domain.StructuredQuery, error) {
	switch in.Strategy {
	case domain.StrategyLexical:
		return b.lexical(in), nil
	case domain.StrategyDenseVector:
		return b.denseVector(in)
	case domain.StrategySparseExpansion:
		return b.sparseExpansion(in), nil
	case domain.StrategyHybridFusion:
		return b.hybridFusion(in)
	case domain.StrategyRankFusion:
		return b.rankFusion(in)
	case domain.StrategyGenerationOnly:
		return domain.GenerationOnlyQuery{}, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidStrategy, "build query", fmt.Errorf("unsupported strategy %d", int(in.Strategy)))
	}
}

func (b *QueryBuilder) lexical(in domain.BuildInput) domain.LexicalQuery {
	return domain.LexicalQuery{
		Match: domain.LexicalClause{Field: b.fields.Content, Text: in.Text},
		Size:  b.pageSize,
	}
}

func (b *QueryBuilder) denseVector(in domain.BuildInput) (domain.DenseVectorQuery, error) {
	if len(in.Vector) == 0 {
		return domain.DenseVectorQuery{}, domain.WrapError(domain.ErrInvalidInput, "build dense vector query", fmt.Errorf("query vector is required"))
	}
	return domain.DenseVectorQuery{
		KNN: domain.DenseClause{
			Field:         b.fields.Vector,
			Vector:        copyVector(in.Vector),
			K:             denseK,
			NumCandidates: denseK * denseCandidateFactor,
			Filters:       b.resolveFilters(in),
		},
		Size: b.pageSize,
	}, nil
}

func (b *QueryBuilder) sparseExpansion(in domain.BuildInput) domain.SparseExpansionQuery {
	return domain.SparseExpansionQuery{
		Expansion: b.expansionClause(in),
		Size:      b.pageSize,
	}
}

func (b *QueryBuilder) hybridFusion(in domain.BuildInput) (domain.HybridFusionQuery, error) {
	if len(in.Vector) == 0 {
		return domain.HybridFusionQuery{}, domain.WrapError(domain.ErrInvalidInput, "build hybrid query", fmt.Errorf("query vector is required"))
	}
	filters := b.resolveFilters(in)
	return domain.HybridFusionQuery{
		Match: domain.LexicalClause{
			Field: b.fields.Content,
			Text:  in.Text,
			Boost: in.Weights.LexicalBoost,
		},
		KNN: domain.DenseClause{
			Field:         b.fields.Vector,
			Vector:        copyVector(in.Vector),
			K:             denseK,
			NumCandidates: denseK * denseCandidateFactor,
			Boost:         in.Weights.VectorBoost,
			Filters:       filters,
		},
		Filters: copyFilters(filters),
		Size:    b.pageSize,
	}, nil
}

func (b *QueryBuilder) rankFusion(in domain.BuildInput) (domain.RankFusionQuery, error) {
	if in.Weights.WindowSize <= 0 || in.Weights.RankConstant <= 0 {
		return domain.RankFusionQuery{}, domain.WrapError(
			domain.ErrInvalidStrategy,
			"build rank fusion query",
			fmt.Errorf("window size %d and rank constant %d must be positive", in.Weights.WindowSize, in.Weights.RankConstant),
		)
	}
	if len(in.Vector) == 0 {
		return domain.RankFusionQuery{}, domain.WrapError(domain.ErrInvalidInput, "build rank fusion query", fmt.Errorf("query vector is required"))
	}
	return domain.RankFusionQuery{
		Match: domain.LexicalClause{Field: b.fields.Content, Text: in.Text},
		KNN: domain.DenseClause{
			Path:          b.fields.PassagePath,
			Field:         b.fields.PassageVector,
			Vector:        copyVector(in.Vector),
			K:             fusionDenseK,
			NumCandidates: fusionDenseCandidates,
		},
		Expansion: b.expansionClause(in),
		Policy: domain.FusionPolicy{
			WindowSize:   in.Weights.WindowSize,
			RankConstant: in.Weights.RankConstant,
		},
		Size: b.pageSize,
	}, nil
}

func (b *QueryBuilder) expansionClause(in domain.BuildInput) domain.SparseClause {
	return domain.SparseClause{
		Path:    b.fields.PassagePath,
		Field:   b.fields.PassageSparse,
		ModelID: b.fields.SparseModelID,
		Text:    in.Text,
		Boost:   in.Weights.SparseBoost,
	}
}

func (b *QueryBuilder) resolveFilters(in domain.BuildInput) []domain.TermFilter {
	if in.Filters != nil {
		return copyFilters(in.Filters)
	}
	return TermFilters(ExtractAttributeFilters(in.Text), b.fields)
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func copyFilters(f []domain.TermFilter) []domain.TermFilter {
	out := make([]domain.TermFilter, len(f))
	copy(out, f)
	return out
}
