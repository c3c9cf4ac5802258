package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTitle is the title of a session that has no messages yet
const DefaultSessionTitle = "New Chat"

// maxTitleLength is the number of characters kept when deriving a title from the first message
const maxTitleLength = 30

// Session represents a conversation thread owned by a principal
type Session struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Model       string    `json:"model"`
	TotalTokens int       `json:"total_tokens"`
	TotalCost   float64   `json:"total_cost"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSession allocates an empty session for the given owner and model
func NewSession(userID uuid.UUID, model string) Session {
	now := time.Now().UTC()
	return Session{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     DefaultSessionTitle,
		Model:     model,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy of the session that shares no message storage with s
func (s Session) Clone() Session {
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	s.Messages = msgs
	return s
}

// WithMessage returns a copy of the session with msg appended and UpdatedAt bumped
func (s Session) WithMessage(msg Message) Session {
	out := s.Clone()
	out.Messages = append(out.Messages, msg)
	out.UpdatedAt = msg.CreatedAt
	return out
}

// WithReplacedMessage returns a copy of the session where the message with msg.ID is replaced
func (s Session) WithReplacedMessage(msg Message) Session {
	out := s.Clone()
	for i := range out.Messages {
		if out.Messages[i].ID == msg.ID {
			out.Messages[i] = msg
			break
		}
	}
	return out
}

// MessageTotals sums the token and cost fields of every message that has them
func (s Session) MessageTotals() (int, float64) {
	var tokens int
	var cost float64
	for _, m := range s.Messages {
		if m.Tokens != nil {
			tokens += *m.Tokens
		}
		if m.Cost != nil {
			cost += *m.Cost
		}
	}
	return tokens, cost
}

// DeriveTitle builds a session title from the first user message
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength]) + "..."
	}
	return text
}

// SessionUpdate is a partial set of session fields; nil fields are left untouched
type SessionUpdate struct {
	Title       *string
	Model       *string
	TotalTokens *int
	TotalCost   *float64
	UpdatedAt   *time.Time
}

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	// ListByUser returns the user's sessions ordered by updated_at descending, without messages
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Session, error)
	Create(ctx context.Context, session *Session) error
	Update(ctx context.Context, id uuid.UUID, update SessionUpdate) error
	// Delete removes the session and its messages
	Delete(ctx context.Context, id uuid.UUID) error
}
