package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

const DefaultMaxSessions = 1024

// Registry holds live conversations. The least recently used session is
// dropped once MaxSessions is reached.
type Registry struct {
	systemPrompt string

	mu       sync.Mutex
	sessions *lru.Cache[string, *domain.Conversation]
}

func NewRegistry(maxSessions int, systemPrompt string) (*Registry, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	cache, err := lru.New[string, *domain.Conversation](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Registry{systemPrompt: systemPrompt, sessions: cache}, nil
}

// Open returns the conversation for id, creating it when missing. An empty id
// gets a fresh random one.
func (r *Registry) Open(id string) *domain.Conversation {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.sessions.Get(id); ok {
		return conv
	}
	conv := domain.NewConversation(id, r.systemPrompt)
	r.sessions.Add(id, conv)
	return conv
}

func (r *Registry) Get(id string) (*domain.Conversation, error) {
	if conv, ok := r.sessions.Get(strings.TrimSpace(id)); ok {
		return conv, nil
	}
	return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("session %q", id))
}

func (r *Registry) Close(id string) bool {
	return r.sessions.Remove(strings.TrimSpace(id))
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}
