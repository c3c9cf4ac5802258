package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewCompatible(Options{
		Name:         "openai",
		APIKey:       "test-key",
		DefaultModel: "gpt-4o-mini",
		Models:       []string{"gpt-4o-mini"},
		BaseURL:      srv.URL,
	})
}

var testRequest = llm.Request{Turns: []llm.Turn{
	{Role: "user", Content: "Hello"},
}}

func TestProvider_Chat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		assert.False(t, body.Stream)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, "Hello", body.Messages[1].Content)
		}

		fmt.Fprint(w, `{"choices":[{"message":{"content":"Hi there"}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`)
	})

	resp, err := p.Chat(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, 5, resp.TotalTokens())
}

func TestProvider_ChatStatusError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := p.Chat(context.Background(), testRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestProvider_ChatStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":8}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	resp, err := p.ChatStream(context.Background(), testRequest, func(text string) error {
		deltas = append(deltas, text)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, deltas)
	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, 12, resp.TotalTokens())
}

func TestProvider_IsConfigured(t *testing.T) {
	assert.False(t, NewProvider("", "").IsConfigured())
	assert.True(t, NewProvider("key", "").IsConfigured())
	assert.Equal(t, "gpt-4o-mini", NewProvider("key", "").DefaultModel())
}
