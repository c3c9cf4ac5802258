// Package relay forwards a conversation to an LLM provider and reports the reply either as one
// completion or as a stream of start/chunk/done/error events.
package relay

import (
	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/google/uuid"
)

// Request is the payload accepted by the relay endpoints
type Request struct {
	Messages  []llm.Turn `json:"messages" validate:"required,min=1,dive"`
	Model     string     `json:"model" validate:"max=128"`
	SessionID uuid.UUID  `json:"session_id"`
	UserID    uuid.UUID  `json:"user_id"`
}

// Completion is the result of a blocking relay call
type Completion struct {
	Content string  `json:"content"`
	Tokens  int     `json:"tokens"`
	Cost    float64 `json:"cost"`
	Model   string  `json:"model"`
}
