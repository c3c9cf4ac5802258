package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is one of the known senders
func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a chat message in a session
type Message struct {
	ID        uuid.UUID   `json:"id"`
	SessionID uuid.UUID   `json:"session_id"`
	Content   string      `json:"content"`
	Sender    MessageRole `json:"sender"`
	Model     string      `json:"model"`
	Tokens    *int        `json:"tokens,omitempty"`
	Cost      *float64    `json:"cost,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewMessage creates a message with a fresh id stamped with the current time
func NewMessage(sessionID uuid.UUID, sender MessageRole, content, model string) Message {
	return Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Content:   content,
		Sender:    sender,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
}

// WithUsage returns a copy of m with its token and cost fields set
func (m Message) WithUsage(tokens int, cost float64) Message {
	m.Tokens = &tokens
	m.Cost = &cost
	return m
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	// ListBySession returns the session's messages ordered by creation time ascending
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Message, error)
}
