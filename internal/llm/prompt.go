package llm

import (
	"errors"
	"strings"
)

// DefaultSystemPrompt is sent when no system prompt is configured
const DefaultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely."

// ErrEmptyConversation is returned when a request has no user turn to answer
var ErrEmptyConversation = errors.New("conversation has no user message")

// Validate checks that the request ends with a non-empty user turn
func (r Request) Validate() error {
	if len(r.Turns) == 0 {
		return ErrEmptyConversation
	}
	last := r.Turns[len(r.Turns)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return ErrEmptyConversation
	}
	for _, t := range r.Turns {
		switch t.Role {
		case RoleUser, RoleAssistant:
		default:
			return errors.New("unsupported turn role: " + t.Role)
		}
	}
	return nil
}

// SystemPrompt returns the request's system prompt or the default one
func (r Request) SystemPrompt() string {
	if s := strings.TrimSpace(r.System); s != "" {
		return s
	}
	return DefaultSystemPrompt
}

// History returns every turn except the last one
func (r Request) History() []Turn {
	if len(r.Turns) == 0 {
		return nil
	}
	return r.Turns[:len(r.Turns)-1]
}

// LastTurn returns the turn being answered
func (r Request) LastTurn() Turn {
	if len(r.Turns) == 0 {
		return Turn{}
	}
	return r.Turns[len(r.Turns)-1]
}

// Transcript flattens the conversation into plain text for providers that only take a
// single prompt, and for token estimation when a provider reports no usage
func (r Request) Transcript() string {
	var sb strings.Builder
	for _, t := range r.Turns {
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
