package elastic

import (
	"fmt"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

// renderQuery turns a structured query into an Elasticsearch _search body.
func renderQuery(query domain.StructuredQuery, size int) (map[string]any, error) {
	var body map[string]any
	switch q := query.(type) {
	case domain.LexicalQuery:
		body = map[string]any{
			"query": map[string]any{
				"bool": map[string]any{
					"should": []any{queryString(q.Match)},
				},
			},
		}
	case domain.DenseVectorQuery:
		if q.KNN.Path != "" {
			body = map[string]any{"query": nestedKNN(q.KNN)}
		} else {
			body = map[string]any{"knn": knnSection(q.KNN)}
		}
	case domain.SparseExpansionQuery:
		body = map[string]any{"query": nestedExpansion(q.Expansion)}
	case domain.HybridFusionQuery:
		must := map[string]any{"query": q.Match.Text}
		if q.Match.Boost != 0 {
			must["boost"] = q.Match.Boost
		}
		body = map[string]any{
			"query": map[string]any{
				"bool": map[string]any{
					"must":   map[string]any{"match": map[string]any{q.Match.Field: must}},
					"filter": termFilters(q.Filters),
				},
			},
			"knn": knnSection(q.KNN),
		}
	case domain.RankFusionQuery:
		body = map[string]any{
			"sub_searches": []any{
				map[string]any{"query": map[string]any{"match": map[string]any{q.Match.Field: q.Match.Text}}},
				map[string]any{"query": nestedKNN(q.KNN)},
				map[string]any{"query": nestedExpansion(q.Expansion)},
			},
			"rank": map[string]any{
				"rrf": map[string]any{
					"window_size":   q.Policy.WindowSize,
					"rank_constant": q.Policy.RankConstant,
				},
			},
		}
	case domain.GenerationOnlyQuery:
		return nil, fmt.Errorf("generation only query has no search body")
	case nil:
		return nil, fmt.Errorf("query is nil")
	default:
		return nil, fmt.Errorf("unsupported query type %T", query)
	}

	if size <= 0 {
		size = query.PageSize()
	}
	if size > 0 {
		body["size"] = size
	}
	return body, nil
}

func queryString(c domain.LexicalClause) map[string]any {
	inner := map[string]any{
		"default_field": c.Field,
		"query":         c.Text,
	}
	if c.Boost != 0 {
		inner["boost"] = c.Boost
	}
	return map[string]any{"query_string": inner}
}

func knnSection(c domain.DenseClause) map[string]any {
	knn := map[string]any{
		"field":          c.Field,
		"query_vector":   c.Vector,
		"k":              c.K,
		"num_candidates": c.NumCandidates,
	}
	if c.Boost != 0 {
		knn["boost"] = c.Boost
	}
	if len(c.Filters) > 0 {
		knn["filter"] = map[string]any{
			"bool": map[string]any{"filter": termFilters(c.Filters)},
		}
	}
	return knn
}

// nestedKNN is the knn query form used inside nested passages.
func nestedKNN(c domain.DenseClause) map[string]any {
	knn := map[string]any{
		"field":          c.Field,
		"query_vector":   c.Vector,
		"num_candidates": c.NumCandidates,
	}
	if c.K > 0 {
		knn["k"] = c.K
	}
	if c.Boost != 0 {
		knn["boost"] = c.Boost
	}
	if len(c.Filters) > 0 {
		knn["filter"] = termFilters(c.Filters)
	}
	return map[string]any{
		"nested": map[string]any{
			"path":  c.Path,
			"query": map[string]any{"knn": knn},
		},
	}
}

func nestedExpansion(c domain.SparseClause) map[string]any {
	expansion := map[string]any{
		"model_id":   c.ModelID,
		"model_text": c.Text,
	}
	if c.Boost != 0 {
		expansion["boost"] = c.Boost
	}
	inner := map[string]any{
		"bool": map[string]any{
			"should": []any{
				map[string]any{"text_expansion": map[string]any{c.Field: expansion}},
			},
		},
	}
	if c.Path == "" {
		return inner
	}
	return map[string]any{
		"nested": map[string]any{
			"path":  c.Path,
			"query": inner,
		},
	}
}

func termFilters(filters []domain.TermFilter) []any {
	out := make([]any, 0, len(filters))
	for _, f := range filters {
		out = append(out, map[string]any{"term": map[string]any{f.Field: f.Value}})
	}
	return out
}
