package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/chat-relay/internal/config"
	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) AvailableModels() []string {
	return []string{
		"gemini-2.5-flash",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	}
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// toContents maps turns onto Gemini's user/model roles
func toContents(turns []llm.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func applyUsage(result *llm.Response, resp *genai.GenerateContentResponse) {
	if resp != nil && resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
}

// session opens a client and a chat primed with the request's history
func (p *Provider) session(ctx context.Context, req llm.Request) (*genai.Client, *genai.ChatSession, string, error) {
	if !p.IsConfigured() {
		return nil, nil, "", fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create gemini client: %w", err)
	}

	generativeModel := client.GenerativeModel(model)
	generativeModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemPrompt())},
	}
	if req.MaxTokens > 0 {
		generativeModel.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	cs := generativeModel.StartChat()
	cs.History = toContents(req.History())
	return client, cs, model, nil
}

func (p *Provider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	client, cs, model, err := p.session(ctx, req)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	start := time.Now()
	resp, err := cs.SendMessage(ctx, genai.Text(req.LastTurn().Content))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	output := responseText(resp)
	if output == "" {
		return nil, fmt.Errorf("empty response from gemini")
	}

	result := &llm.Response{
		Content:   output,
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	applyUsage(result, resp)
	return result, nil
}

func (p *Provider) ChatStream(ctx context.Context, req llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error) {
	client, cs, model, err := p.session(ctx, req)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	start := time.Now()
	result := &llm.Response{Model: model}
	var content strings.Builder

	iter := cs.SendMessageStream(ctx, genai.Text(req.LastTurn().Content))
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini stream error: %w", err)
		}

		applyUsage(result, resp)
		if text := responseText(resp); text != "" {
			content.WriteString(text)
			if err := onDelta(text); err != nil {
				return nil, err
			}
		}
	}

	result.Content = content.String()
	result.LatencyMs = time.Since(start).Milliseconds()
	return result, nil
}
