package chat

import (
	"context"
	"sync"

	"github.com/Rrens/chat-relay/internal/config"
	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/Rrens/chat-relay/internal/usage"
	"github.com/google/uuid"
)

// Conversation is the store and pipeline of one principal
type Conversation struct {
	Store    *Store
	Pipeline *Pipeline

	loadMu sync.Mutex
	loaded bool
}

// Hub hands out one Conversation per principal
type Hub struct {
	sessions  domain.SessionRepository
	messages  domain.MessageRepository
	client    ModelClient
	estimator *usage.Estimator
	cfg       config.ChatConfig

	mu      sync.Mutex
	entries map[uuid.UUID]*Conversation
}

// NewHub creates a new hub
func NewHub(
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	client ModelClient,
	estimator *usage.Estimator,
	cfg config.ChatConfig,
) *Hub {
	return &Hub{
		sessions:  sessions,
		messages:  messages,
		client:    client,
		estimator: estimator,
		cfg:       cfg,
		entries:   make(map[uuid.UUID]*Conversation),
	}
}

// Get returns the principal's conversation, loading it on first use. A failed load is retried
// on the next call.
func (h *Hub) Get(ctx context.Context, principal domain.Principal) (*Conversation, error) {
	h.mu.Lock()
	conv, ok := h.entries[principal.ID]
	if !ok {
		store := NewStore(h.sessions, h.messages, h.cfg.DefaultModel)
		conv = &Conversation{
			Store:    store,
			Pipeline: NewPipeline(store, h.client, h.estimator, h.cfg.ModelTimeout),
		}
		h.entries[principal.ID] = conv
	}
	h.mu.Unlock()

	conv.loadMu.Lock()
	defer conv.loadMu.Unlock()
	if !conv.loaded {
		if err := conv.Store.Load(ctx, &principal); err != nil {
			return nil, err
		}
		conv.loaded = true
	}
	return conv, nil
}

// Forget drops the cached conversation of userID
func (h *Hub) Forget(userID uuid.UUID) {
	h.mu.Lock()
	delete(h.entries, userID)
	h.mu.Unlock()
}
