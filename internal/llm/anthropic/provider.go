package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/Rrens/chat-relay/internal/stream"
)

const defaultMaxTokens = 2048

// Provider implements llm.Provider for Anthropic
type Provider struct {
	apiKey       string
	defaultModel string
	client       *http.Client
	baseURL      string
}

// NewProvider creates a new Anthropic provider
func NewProvider(apiKey, defaultModel string) *Provider {
	if defaultModel == "" {
		defaultModel = "claude-3-5-sonnet-20241022"
	}
	return &Provider{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 120 * time.Second},
		baseURL:      "https://api.anthropic.com/v1",
	}
}

// WithBaseURL points the provider at a different API host
func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "anthropic"
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return []string{
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
		"claude-3-haiku-20240307",
		"claude-3-5-sonnet-20241022",
	}
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// IsConfigured checks if provider has valid credentials
func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage anthropicUsage `json:"usage"`
}

// streamEvent covers the fields used from message_start, content_block_delta,
// message_delta and error events
type streamEvent struct {
	Message struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) buildRequest(req llm.Request, streaming bool) anthropicRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]anthropicMessage, 0, len(req.Turns))
	for _, t := range req.Turns {
		messages = append(messages, anthropicMessage{Role: t.Role, Content: t.Content})
	}

	return anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.SystemPrompt(),
		Messages:  messages,
		Stream:    streaming,
	}
}

func (p *Provider) do(ctx context.Context, anthropicReq anthropicRequest) (*http.Response, error) {
	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// Chat returns the complete reply in one call
func (p *Provider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	anthropicReq := p.buildRequest(req, false)
	start := time.Now()

	resp, err := p.do(ctx, anthropicReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(anthropicResp.Content) == 0 {
		return nil, fmt.Errorf("no response from Anthropic")
	}

	var text strings.Builder
	for _, block := range anthropicResp.Content {
		text.WriteString(block.Text)
	}

	return &llm.Response{
		Content:      text.String(),
		Model:        anthropicReq.Model,
		InputTokens:  anthropicResp.Usage.InputTokens,
		OutputTokens: anthropicResp.Usage.OutputTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

// ChatStream streams the reply through onDelta
func (p *Provider) ChatStream(ctx context.Context, req llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error) {
	anthropicReq := p.buildRequest(req, true)
	start := time.Now()

	resp, err := p.do(ctx, anthropicReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &llm.Response{Model: anthropicReq.Model}
	var content strings.Builder

	err = stream.Scan(resp.Body, func(f stream.Frame) error {
		var ev streamEvent
		if f.Data != "" {
			if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
				return fmt.Errorf("failed to decode %s event: %w", f.Event, err)
			}
		}

		switch f.Event {
		case "message_start":
			result.InputTokens = ev.Message.Usage.InputTokens
		case "content_block_delta":
			if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
				return nil
			}
			content.WriteString(ev.Delta.Text)
			return onDelta(ev.Delta.Text)
		case "message_delta":
			result.OutputTokens = ev.Usage.OutputTokens
		case "message_stop":
			return stream.ErrStop
		case "error":
			return errors.New("anthropic stream error: " + ev.Error.Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Content = content.String()
	result.LatencyMs = time.Since(start).Milliseconds()
	return result, nil
}
