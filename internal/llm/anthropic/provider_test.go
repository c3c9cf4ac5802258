package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"message\":{\"usage\":{\"input_tokens\":7}}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n")
		fmt.Fprint(w, "event: ping\ndata: {}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"delta\":{\"type\":\"text_delta\",\"text\":\" there\"}}\n\n")
		fmt.Fprint(w, "event: message_delta\ndata: {\"usage\":{\"output_tokens\":5}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {}\n\n")
	}))
	defer srv.Close()

	p := NewProvider("key", "").WithBaseURL(srv.URL)

	var deltas []string
	resp, err := p.ChatStream(context.Background(), llm.Request{Turns: []llm.Turn{{Role: "user", Content: "Hello"}}},
		func(text string) error {
			deltas = append(deltas, text)
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, deltas)
	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, 7, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)
}

func TestProvider_ChatStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: error\ndata: {\"error\":{\"message\":\"overloaded\"}}\n\n")
	}))
	defer srv.Close()

	p := NewProvider("key", "").WithBaseURL(srv.URL)
	_, err := p.ChatStream(context.Background(), llm.Request{Turns: []llm.Turn{{Role: "user", Content: "Hello"}}},
		func(string) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[{"text":"Hello"},{"text":" world"}],"usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	p := NewProvider("key", "claude-3-haiku-20240307").WithBaseURL(srv.URL)
	resp, err := p.Chat(context.Background(), llm.Request{Turns: []llm.Turn{{Role: "user", Content: "Hi"}}})

	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, "claude-3-haiku-20240307", resp.Model)
	assert.Equal(t, 5, resp.TotalTokens())
}
