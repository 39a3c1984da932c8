package domain

import "time"

// SearchRequest is one retrieval request as received from a caller.
type SearchRequest struct {
	Strategy SearchStrategy
	Text     string
	Filters  []TermFilter
	Weights  WeightOverrides
}

// RawHit is a backend hit with its opaque source document.
type RawHit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// RawResultSet is the unmodified backend answer. Missing is set when the
// response did not contain a hit list at all.
type RawResultSet struct {
	Hits    []RawHit
	Total   int
	Took    time.Duration
	Missing bool
}

// Dispatch is the outcome of one strategy dispatch.
type Dispatch struct {
	Strategy SearchStrategy
	Query    StructuredQuery
	Result   RawResultSet
}

type FieldPresence struct {
	Title   bool `json:"title"`
	URL     bool `json:"url"`
	Snippet bool `json:"snippet"`
	Body    bool `json:"body"`
}

// RankedHit is a normalized search result ready for prompt construction.
type RankedHit struct {
	Title   string        `json:"title"`
	URL     string        `json:"url"`
	Score   float64       `json:"score"`
	Snippet string        `json:"snippet"`
	Body    string        `json:"body"`
	Present FieldPresence `json:"present"`
}

type AnswerSource string

const (
	AnswerFromCache      AnswerSource = "cache"
	AnswerFromGeneration AnswerSource = "generation"
)

type Answer struct {
	Text       string         `json:"text"`
	Source     AnswerSource   `json:"source"`
	Strategy   SearchStrategy `json:"strategy"`
	Similarity float64        `json:"similarity,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	Hits       []RankedHit    `json:"hits"`
}
