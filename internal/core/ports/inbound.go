package ports

import (
	"context"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

// AskRequest is one conversational turn.
type AskRequest struct {
	Search domain.SearchRequest
	// UseCache nil means use the configured default.
	UseCache  *bool
	Threshold *float64
}

// MovieSearchService is the inbound contract for retrieval and answering.
type MovieSearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.RankedHit, error)
	Ask(ctx context.Context, conversation *domain.Conversation, req AskRequest) (*domain.Answer, error)
}

// SessionStore owns the conversations of live sessions.
type SessionStore interface {
	Open(id string) *domain.Conversation
	Get(id string) (*domain.Conversation, error)
	Close(id string) bool
}
