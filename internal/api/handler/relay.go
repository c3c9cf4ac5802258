package handler

import (
	"net/http"

	"github.com/Rrens/chat-relay/internal/api/middleware"
	"github.com/Rrens/chat-relay/internal/api/response"
	"github.com/Rrens/chat-relay/internal/relay"
	"github.com/Rrens/chat-relay/internal/stream"
	"github.com/rs/zerolog/log"
)

// RelayHandler serves the remote model endpoints
type RelayHandler struct {
	svc *relay.Service
}

func NewRelayHandler(svc *relay.Service) *RelayHandler {
	return &RelayHandler{svc: svc}
}

func (h *RelayHandler) decode(w http.ResponseWriter, r *http.Request) (relay.Request, bool) {
	var req relay.Request
	if !decodeAndValidate(w, r, &req) {
		return req, false
	}
	// user calls are attributed to the caller
	if p, ok := middleware.GetPrincipal(r.Context()); ok {
		req.UserID = p.ID
	}
	return req, true
}

// Complete answers with the whole reply
func (h *RelayHandler) Complete(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	completion, err := h.svc.Complete(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID.String()).Msg("Relay completion failed")
		response.BadGateway(w, err.Error())
		return
	}

	response.OK(w, completion)
}

// Stream answers with an event stream
func (h *RelayHandler) Stream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	stream.PrepareResponse(w)
	w.WriteHeader(http.StatusOK)

	if err := h.svc.Stream(r.Context(), req, stream.NewWriter(w)); err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID.String()).Msg("Relay stream failed")
	}
}
