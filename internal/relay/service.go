package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/chat-relay/internal/config"
	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/Rrens/chat-relay/internal/stream"
	"github.com/Rrens/chat-relay/internal/usage"
	"github.com/rs/zerolog/log"
)

// Service answers relay requests with the registered LLM providers
type Service struct {
	router       *llm.Router
	estimator    *usage.Estimator
	systemPrompt string
	maxTokens    int
}

// NewService creates a new relay service
func NewService(router *llm.Router, estimator *usage.Estimator, cfg config.LLMConfig) *Service {
	return &Service{
		router:       router,
		estimator:    estimator,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
	}
}

func (s *Service) prepare(req Request) (llm.Provider, llm.Request, error) {
	provider, err := s.router.ProviderForModel(req.Model)
	if err != nil {
		return nil, llm.Request{}, fmt.Errorf("failed to get LLM provider: %w", err)
	}

	model := req.Model
	if model == "" {
		model = provider.DefaultModel()
	}

	llmReq := llm.Request{
		Turns:     req.Messages,
		Model:     model,
		System:    s.systemPrompt,
		MaxTokens: s.maxTokens,
	}
	if err := llmReq.Validate(); err != nil {
		return nil, llm.Request{}, err
	}
	return provider, llmReq, nil
}

// usageOf prices the reply. Providers that report no usage get an estimate over the
// transcript and the reply.
func (s *Service) usageOf(req llm.Request, resp *llm.Response) (int, float64, string) {
	model := resp.Model
	if model == "" {
		model = req.Model
	}

	tokens := resp.TotalTokens()
	if tokens == 0 {
		tokens = usage.Tokens(req.Transcript()) + usage.Tokens(resp.Content)
	}
	return tokens, s.estimator.Cost(tokens, model), model
}

// Complete returns the whole reply in one response
func (s *Service) Complete(ctx context.Context, req Request) (*Completion, error) {
	provider, llmReq, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := provider.Chat(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("failed to complete chat: %w", err)
	}

	tokens, cost, model := s.usageOf(llmReq, resp)
	log.Info().
		Str("provider", provider.Name()).
		Str("model", model).
		Str("session_id", req.SessionID.String()).
		Int("tokens", tokens).
		Dur("latency", time.Since(start)).
		Msg("Relay completion finished")

	return &Completion{
		Content: resp.Content,
		Tokens:  tokens,
		Cost:    cost,
		Model:   model,
	}, nil
}

// Stream writes start, then one chunk per provider delta, then done. Any failure is reported
// as an error event and returned to the caller for logging.
func (s *Service) Stream(ctx context.Context, req Request, w *stream.Writer) error {
	provider, llmReq, err := s.prepare(req)
	if err != nil {
		return errors.Join(err, w.Error(err.Error()))
	}

	if err := w.Start(llmReq.Model); err != nil {
		return err
	}

	start := time.Now()
	resp, err := provider.ChatStream(ctx, llmReq, func(text string) error {
		return w.Chunk(text)
	})
	if err != nil {
		err = fmt.Errorf("failed to stream chat: %w", err)
		return errors.Join(err, w.Error(err.Error()))
	}

	tokens, cost, model := s.usageOf(llmReq, resp)
	log.Info().
		Str("provider", provider.Name()).
		Str("model", model).
		Str("session_id", req.SessionID.String()).
		Int("tokens", tokens).
		Dur("latency", time.Since(start)).
		Msg("Relay stream finished")

	return w.Done(tokens, cost, model)
}
