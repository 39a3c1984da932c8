package domain

// TermFilter is an exact-match constraint on a keyword field.
type TermFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// AttributeFilters holds categorical attributes detected in query text. Empty
// fields mean no match.
type AttributeFilters struct {
	Color    string `json:"color,omitempty"`
	Platform string `json:"platform,omitempty"`
}

func (f AttributeFilters) Empty() bool {
	return f.Color == "" && f.Platform == ""
}

// IndexFields names the document index fields the query builders target.
type IndexFields struct {
	Content       string
	Vector        string
	PassagePath   string
	PassageVector string
	PassageSparse string
	SparseModelID string
	ColorField    string
	PlatformField string
}

func DefaultIndexFields() IndexFields {
	return IndexFields{
		Content:       "body_content",
		Vector:        "text_embedding.predicted_value",
		PassagePath:   "passages",
		PassageVector: "passages.vector.predicted_value",
		PassageSparse: "passages.content_embedding.predicted_value",
		SparseModelID: ".elser_model_2_linux-x86_64",
		ColorField:    "color",
		PlatformField: "OS",
	}
}

// Weights are the resolved tuning values a query is built with.
type Weights struct {
	LexicalBoost float64 `json:"lexical_boost,omitempty"`
	VectorBoost  float64 `json:"vector_boost,omitempty"`
	SparseBoost  float64 `json:"sparse_boost,omitempty"`
	WindowSize   int     `json:"window_size,omitempty"`
	RankConstant int     `json:"rank_constant,omitempty"`
}

// WeightOverrides carries per-request tuning. A nil field takes the
// configured default; an explicit value, zero included, is kept as given and
// left to the query builder to validate.
type WeightOverrides struct {
	LexicalBoost *float64 `json:"lexical_boost,omitempty"`
	VectorBoost  *float64 `json:"vector_boost,omitempty"`
	SparseBoost  *float64 `json:"sparse_boost,omitempty"`
	WindowSize   *int     `json:"window_size,omitempty"`
	RankConstant *int     `json:"rank_constant,omitempty"`
}

// Resolve fills the fields o leaves unset from def.
func (o WeightOverrides) Resolve(def Weights) Weights {
	out := def
	if o.LexicalBoost != nil {
		out.LexicalBoost = *o.LexicalBoost
	}
	if o.VectorBoost != nil {
		out.VectorBoost = *o.VectorBoost
	}
	if o.SparseBoost != nil {
		out.SparseBoost = *o.SparseBoost
	}
	if o.WindowSize != nil {
		out.WindowSize = *o.WindowSize
	}
	if o.RankConstant != nil {
		out.RankConstant = *o.RankConstant
	}
	return out
}

// BuildInput is everything a query builder may read.
type BuildInput struct {
	Strategy SearchStrategy
	Text     string
	Vector   []float32
	// Filters nil means "extract from Text"; an empty slice disables filtering.
	Filters []TermFilter
	Weights Weights
}

// StructuredQuery is the backend-facing request produced by a builder. The set
// of implementations is closed.
type StructuredQuery interface {
	Strategy() SearchStrategy
	PageSize() int
	structuredQuery()
}

type LexicalClause struct {
	Field string
	Text  string
	Boost float64
}

type DenseClause struct {
	// Path is set when the vector lives inside nested passages.
	Path          string
	Field         string
	Vector        []float32
	K             int
	NumCandidates int
	Boost         float64
	Filters       []TermFilter
}

type SparseClause struct {
	Path    string
	Field   string
	ModelID string
	Text    string
	Boost   float64
}

// FusionPolicy parameterizes reciprocal rank fusion.
type FusionPolicy struct {
	WindowSize   int
	RankConstant int
}

type LexicalQuery struct {
	Match LexicalClause
	Size  int
}

type DenseVectorQuery struct {
	KNN  DenseClause
	Size int
}

type SparseExpansionQuery struct {
	Expansion SparseClause
	Size      int
}

type HybridFusionQuery struct {
	Match   LexicalClause
	KNN     DenseClause
	Filters []TermFilter
	Size    int
}

type RankFusionQuery struct {
	Match     LexicalClause
	KNN       DenseClause
	Expansion SparseClause
	Policy    FusionPolicy
	Size      int
}

// GenerationOnlyQuery skips retrieval entirely.
type GenerationOnlyQuery struct{}

func (LexicalQuery) Strategy() SearchStrategy         { return StrategyLexical }
func (DenseVectorQuery) Strategy() SearchStrategy     { return StrategyDenseVector }
func (SparseExpansionQuery) Strategy() SearchStrategy { return StrategySparseExpansion }
func (HybridFusionQuery) Strategy() SearchStrategy    { return StrategyHybridFusion }
func (RankFusionQuery) Strategy() SearchStrategy      { return StrategyRankFusion }
func (GenerationOnlyQuery) Strategy() SearchStrategy  { return StrategyGenerationOnly }

func (q LexicalQuery) PageSize() int         { return q.Size }
func (q DenseVectorQuery) PageSize() int     { return q.Size }
func (q SparseExpansionQuery) PageSize() int { return q.Size }
func (q HybridFusionQuery) PageSize() int    { return q.Size }
func (q RankFusionQuery) PageSize() int      { return q.Size }
func (GenerationOnlyQuery) PageSize() int    { return 0 }

func (LexicalQuery) structuredQuery()         {}
func (DenseVectorQuery) structuredQuery()     {}
func (SparseExpansionQuery) structuredQuery() {}
func (HybridFusionQuery) structuredQuery()    {}
func (RankFusionQuery) structuredQuery()      {}
func (GenerationOnlyQuery) structuredQuery()  {}
