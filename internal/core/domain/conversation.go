package domain

import (
	"sync"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

const DefaultSystemPrompt = "You are an AI assistant for Movies. You answer questions about movies " +
	"using only the movie descriptions provided with each question."

// Conversation is the message log of one user session. It only grows; entries
// are never reordered or removed.
type Conversation struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	messages []Message
}

func NewConversation(id, systemPrompt string) *Conversation {
	c := &Conversation{ID: id, CreatedAt: time.Now().UTC()}
	if systemPrompt != "" {
		c.messages = append(c.messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return c
}

func (c *Conversation) Append(role Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: role, Content: content})
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// CountRole returns how many messages carry role.
func (c *Conversation) CountRole(role Role) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if m.Role == role {
			n++
		}
	}
	return n
}
