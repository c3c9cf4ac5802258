package relay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/chat-relay/internal/config"
	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/Rrens/chat-relay/internal/relay"
	"github.com/Rrens/chat-relay/internal/stream"
	"github.com/Rrens/chat-relay/internal/usage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	chunks []string
	usage  int
	err    error
	seen   llm.Request
}

func (p *scriptedProvider) Name() string              { return "scripted" }
func (p *scriptedProvider) AvailableModels() []string { return []string{"gpt-4o"} }
func (p *scriptedProvider) DefaultModel() string      { return "gpt-4o" }
func (p *scriptedProvider) IsConfigured() bool        { return true }

func (p *scriptedProvider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.seen = req
	if p.err != nil {
		return nil, p.err
	}
	var content string
	for _, c := range p.chunks {
		content += c
	}
	return &llm.Response{Content: content, Model: req.Model, OutputTokens: p.usage}, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error) {
	p.seen = req
	var content string
	for _, c := range p.chunks {
		if err := onDelta(c); err != nil {
			return nil, err
		}
		content += c
	}
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: content, Model: req.Model, OutputTokens: p.usage}, nil
}

func newService(p *scriptedProvider) *relay.Service {
	router := llm.NewRouter("scripted")
	router.RegisterProvider(p)
	return relay.NewService(router, usage.NewEstimator(nil), config.LLMConfig{SystemPrompt: "be brief", MaxTokens: 256})
}

func testRequest() relay.Request {
	return relay.Request{
		Messages:  []llm.Turn{{Role: llm.RoleUser, Content: "Hello"}},
		Model:     "gpt-4o",
		SessionID: uuid.New(),
		UserID:    uuid.New(),
	}
}

func decodeEvents(t *testing.T, r io.Reader) []stream.Event {
	t.Helper()
	var events []stream.Event
	err := stream.Scan(r, func(f stream.Frame) error {
		ev, ok, err := stream.ParseEvent(f)
		if err != nil {
			return err
		}
		if ok {
			events = append(events, ev)
		}
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestService_Complete(t *testing.T) {
	p := &scriptedProvider{chunks: []string{"Hi", " there"}, usage: 12}
	svc := newService(p)

	got, err := svc.Complete(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "Hi there", got.Content)
	assert.Equal(t, 12, got.Tokens)
	assert.InDelta(t, 12*usage.NewEstimator(nil).Rate("gpt-4o"), got.Cost, 1e-12)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, "be brief", p.seen.System)
	assert.Equal(t, 256, p.seen.MaxTokens)
}

func TestService_CompleteEstimatesMissingUsage(t *testing.T) {
	p := &scriptedProvider{chunks: []string{"Hi there"}}
	svc := newService(p)

	got, err := svc.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Greater(t, got.Tokens, 0)
	assert.Greater(t, got.Cost, 0.0)
}

func TestService_CompleteRejectsEmptyConversation(t *testing.T) {
	svc := newService(&scriptedProvider{})
	req := testRequest()
	req.Messages = nil

	_, err := svc.Complete(context.Background(), req)
	assert.ErrorIs(t, err, llm.ErrEmptyConversation)
}

func TestService_Stream(t *testing.T) {
	p := &scriptedProvider{chunks: []string{"Hi", " there"}, usage: 12}
	svc := newService(p)

	var buf bytes.Buffer
	require.NoError(t, svc.Stream(context.Background(), testRequest(), stream.NewWriter(&buf)))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 4)
	assert.Equal(t, stream.EventStart, events[0].Type)
	assert.Equal(t, "gpt-4o", events[0].Model)
	assert.Equal(t, "Hi", events[1].Content)
	assert.Equal(t, " there", events[2].Content)
	assert.Equal(t, stream.EventDone, events[3].Type)
	assert.Equal(t, 12, events[3].Tokens)
}

func TestService_StreamProviderError(t *testing.T) {
	p := &scriptedProvider{chunks: []string{"Hi"}, err: errors.New("upstream broke")}
	svc := newService(p)

	var buf bytes.Buffer
	err := svc.Stream(context.Background(), testRequest(), stream.NewWriter(&buf))
	require.Error(t, err)

	events := decodeEvents(t, &buf)
	require.Len(t, events, 3)
	assert.Equal(t, stream.EventError, events[2].Type)
	assert.Contains(t, events[2].Error, "upstream broke")
}

func TestLocal_Stream(t *testing.T) {
	p := &scriptedProvider{chunks: []string{"a", "b"}, usage: 7}
	local := relay.NewLocal(newService(p))

	body, err := local.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer body.Close()

	events := decodeEvents(t, body)
	require.Len(t, events, 4)
	assert.Equal(t, stream.EventDone, events[3].Type)
	assert.Equal(t, 7, events[3].Tokens)
}

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/relay/complete", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req relay.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 1)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"content":"Hi there","tokens":12,"cost":0.002,"model":"gpt-4o"}}`))
	}))
	defer server.Close()

	client := relay.NewClient(config.RelayConfig{URL: server.URL + "/", Token: "secret"})
	got, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, &relay.Completion{Content: "Hi there", Tokens: 12, Cost: 0.002, Model: "gpt-4o"}, got)
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := relay.NewClient(config.RelayConfig{URL: server.URL})

	_, err := client.Complete(context.Background(), testRequest())
	var statusErr *relay.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	_, err = client.Stream(context.Background(), testRequest())
	require.ErrorAs(t, err, &statusErr)
}

func TestClient_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/relay/stream", r.URL.Path)
		assert.Equal(t, stream.ContentType, r.Header.Get("Accept"))
		stream.PrepareResponse(w)
		sw := stream.NewWriter(w)
		sw.Start("gpt-4o")
		sw.Chunk("Hi")
		sw.Done(5, 0.001, "gpt-4o")
	}))
	defer server.Close()

	body, err := relay.NewClient(config.RelayConfig{URL: server.URL}).Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer body.Close()

	events := decodeEvents(t, body)
	require.Len(t, events, 3)
	assert.Equal(t, "Hi", events[1].Content)
}
