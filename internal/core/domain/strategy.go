package domain

import (
	"fmt"
	"strings"
)

// SearchStrategy selects the retrieval algorithm for one request.
type SearchStrategy int

const (
	StrategyUnknown SearchStrategy = iota
	StrategyLexical
	StrategyDenseVector
	StrategySparseExpansion
	StrategyHybridFusion
	StrategyRankFusion
	StrategyGenerationOnly
)

var strategyNames = map[SearchStrategy]string{
	StrategyLexical:         "lexical",
	StrategyDenseVector:     "dense_vector",
	StrategySparseExpansion: "sparse_expansion",
	StrategyHybridFusion:    "hybrid_fusion",
	StrategyRankFusion:      "rank_fusion",
	StrategyGenerationOnly:  "generation_only",
}

// Labels used by the voice search UI are still accepted.
var strategyAliases = map[string]SearchStrategy{
	"bm25":                   StrategyLexical,
	"lexical":                StrategyLexical,
	"vector":                 StrategyDenseVector,
	"vector openai":          StrategyDenseVector,
	"dense_vector":           StrategyDenseVector,
	"elser":                  StrategySparseExpansion,
	"sparse_expansion":       StrategySparseExpansion,
	"hybrid":                 StrategyHybridFusion,
	"hybrid_fusion":          StrategyHybridFusion,
	"rrf":                    StrategyRankFusion,
	"reciprocal rank fusion": StrategyRankFusion,
	"rank_fusion":            StrategyRankFusion,
	"genai":                  StrategyGenerationOnly,
	"genai search only":      StrategyGenerationOnly,
	"generation_only":        StrategyGenerationOnly,
}

func AllStrategies() []SearchStrategy {
	return []SearchStrategy{
		StrategyLexical,
		StrategyDenseVector,
		StrategySparseExpansion,
		StrategyHybridFusion,
		StrategyRankFusion,
		StrategyGenerationOnly,
	}
}

func ParseStrategy(raw string) (SearchStrategy, error) {
	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if strategy, ok := strategyAliases[key]; ok {
		return strategy, nil
	}
	return StrategyUnknown, WrapError(ErrInvalidStrategy, "parse strategy", fmt.Errorf("unrecognized tag %q", raw))
}

func (s SearchStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s SearchStrategy) Valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// NeedsVector reports whether the strategy requires a query embedding before
// the structured query can be built.
func (s SearchStrategy) NeedsVector() bool {
	switch s {
	case StrategyDenseVector, StrategyHybridFusion, StrategyRankFusion:
		return true
	default:
		return false
	}
}

func (s SearchStrategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, WrapError(ErrInvalidStrategy, "marshal strategy", fmt.Errorf("value %d", int(s)))
	}
	return []byte(s.String()), nil
}

func (s *SearchStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
