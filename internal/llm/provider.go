package llm

import "context"

// Role values accepted in a Turn
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation history in provider-neutral form
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains chat completion parameters
type Request struct {
	Turns     []Turn
	Model     string
	System    string
	MaxTokens int
}

// Response contains LLM generation result
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}

// TotalTokens returns input plus output tokens as reported by the provider
func (r *Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// DeltaFunc receives incremental text while a reply streams. Returning an error aborts the stream.
type DeltaFunc func(text string) error

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Chat returns the complete reply in one call
	Chat(ctx context.Context, req Request) (*Response, error)

	// ChatStream calls onDelta for every text fragment and returns the assembled reply
	ChatStream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error)
}
