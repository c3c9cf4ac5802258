package handler

import (
	"errors"
	"net/http"

	"github.com/Rrens/chat-relay/internal/api/middleware"
	"github.com/Rrens/chat-relay/internal/api/response"
	"github.com/Rrens/chat-relay/internal/chat"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionHandler exposes the session store of the signed-in principal
type SessionHandler struct {
	hub *chat.Hub
}

func NewSessionHandler(hub *chat.Hub) *SessionHandler {
	return &SessionHandler{hub: hub}
}

// conversation resolves the caller's conversation, writing the error response itself
func conversation(hub *chat.Hub, w http.ResponseWriter, r *http.Request) (*chat.Conversation, bool) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return nil, false
	}

	conv, err := hub.Get(r.Context(), principal)
	if err != nil {
		log.Error().Err(err).Str("user_id", principal.ID.String()).Msg("Failed to load conversation")
		response.InternalError(w, "failed to load sessions")
		return nil, false
	}
	return conv, true
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.BadRequest(w, "invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

func storeSnapshot(store *chat.Store) map[string]any {
	active, _ := store.Active()
	return map[string]any{
		"sessions":          store.Sessions(),
		"active_session_id": active.ID,
		"active_model":      store.ActiveModel(),
		"total_cost":        store.TotalCost(),
	}
}

// List returns all sessions of the principal, most recently updated first
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	conv, ok := conversation(h.hub, w, r)
	if !ok {
		return
	}
	response.OK(w, storeSnapshot(conv.Store))
}

// Create creates a new session and makes it active
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	conv, ok := conversation(h.hub, w, r)
	if !ok {
		return
	}

	var req struct {
		Model string `json:"model" validate:"max=128"`
	}
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := conv.Store.CreateSession(r.Context(), req.Model)
	if err != nil {
		response.InternalError(w, "failed to create session")
		return
	}

	response.Created(w, session)
}

// Select makes a session active
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	conv, ok := conversation(h.hub, w, r)
	if !ok {
		return
	}
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if !conv.Store.SelectSession(id) {
		response.NotFound(w, "session not found")
		return
	}

	response.OK(w, storeSnapshot(conv.Store))
}

// ChangeModel sets the model of a session
func (h *SessionHandler) ChangeModel(w http.ResponseWriter, r *http.Request) {
	conv, ok := conversation(h.hub, w, r)
	if !ok {
		return
	}
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		Model string `json:"model" validate:"required,max=128"`
	}
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := conv.Store.ChangeModel(r.Context(), id, req.Model); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		response.InternalError(w, "failed to update session")
		return
	}

	session, _ := conv.Store.Session(id)
	response.OK(w, session)
}

// Delete removes a session and its messages
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conv, ok := conversation(h.hub, w, r)
	if !ok {
		return
	}
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := conv.Store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		response.InternalError(w, "failed to delete session")
		return
	}

	response.NoContent(w)
}
