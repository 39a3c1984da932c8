package domain

import "time"

type GenerationState string

const (
	GenerationIdle             GenerationState = "idle"
	GenerationPromptAssembled  GenerationState = "prompt_assembled"
	GenerationAwaitingResponse GenerationState = "awaiting_response"
	GenerationSucceeded        GenerationState = "succeeded"
	GenerationFailed           GenerationState = "failed"
)

// GenerationOutcome reports how one orchestrated generation ended.
type GenerationOutcome struct {
	State    GenerationState
	Prompt   string
	Response string
	Attempts int
	// Transitions lists every state visited, starting with GenerationIdle.
	Transitions []GenerationState
	Failure     GenerationFailure
	// CacheErr is set when the response was produced but could not be cached.
	CacheErr error
}

// AnswerEvent is published after every answered turn.
type AnswerEvent struct {
	SessionID  string        `json:"session_id"`
	Query      string        `json:"query"`
	Strategy   string        `json:"strategy"`
	Source     AnswerSource  `json:"source"`
	Similarity float64       `json:"similarity,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	HitCount   int           `json:"hit_count"`
	Duration   time.Duration `json:"duration_ns"`
	AnsweredAt time.Time     `json:"answered_at"`
}
