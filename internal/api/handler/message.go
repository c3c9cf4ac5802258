package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rrens/chat-relay/internal/api/response"
	"github.com/Rrens/chat-relay/internal/chat"
	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/Rrens/chat-relay/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MessageHandler runs message exchanges for the signed-in principal
type MessageHandler struct {
	hub         *chat.Hub
	defaultMode chat.ExchangeMode
}

func NewMessageHandler(hub *chat.Hub, defaultMode chat.ExchangeMode) *MessageHandler {
	return &MessageHandler{hub: hub, defaultMode: defaultMode}
}

type sendMessageRequest struct {
	Text      string     `json:"text" validate:"required,max=32000"`
	Mode      string     `json:"mode" validate:"omitempty,oneof=blocking streaming"`
	SessionID *uuid.UUID `json:"session_id"`
	Model     string     `json:"model" validate:"max=128"`
}

type sendMessageResponse struct {
	State            chat.State      `json:"state"`
	Session          domain.Session  `json:"session"`
	UserMessage      *domain.Message `json:"user_message,omitempty"`
	AssistantMessage *domain.Message `json:"assistant_message,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Send appends a user message to the active session and fetches the reply. Streaming mode
// answers with an event stream of start, chunk, done or error events.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	conv, ok := conversation(h.hub, w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	mode, err := chat.ParseMode(req.Mode, h.defaultMode)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	// The exchange outlives a dropped connection; the pipeline timeout bounds it.
	ctx := context.WithoutCancel(r.Context())
	send := chat.SendRequest{
		Principal: conv.Store.Principal(),
		Text:      req.Text,
		Mode:      mode,
		SessionID: req.SessionID,
		Model:     req.Model,
	}

	if mode == chat.ModeBlocking {
		h.sendBlocking(ctx, w, conv, send)
		return
	}
	h.sendStreaming(ctx, w, conv, send)
}

// rejectSend answers a send that failed a precondition
func rejectSend(w http.ResponseWriter, reason error) {
	switch {
	case errors.Is(reason, chat.ErrBusy):
		response.Conflict(w, "message rejected: "+reason.Error())
	case errors.Is(reason, chat.ErrSessionNotFound):
		response.NotFound(w, "session not found")
	case errors.Is(reason, chat.ErrNoPrincipal):
		response.Unauthorized(w, "unauthorized")
	default:
		response.BadRequest(w, "message rejected: "+reason.Error())
	}
}

func (h *MessageHandler) sendBlocking(ctx context.Context, w http.ResponseWriter, conv *chat.Conversation, send chat.SendRequest) {
	result, err := conv.Pipeline.Send(ctx, send)
	if err != nil {
		response.InternalError(w, "failed to store message")
		return
	}
	if result.State == chat.StateIdle {
		rejectSend(w, result.Rejected)
		return
	}

	response.OK(w, toSendResponse(conv.Store, result))
}

func (h *MessageHandler) sendStreaming(ctx context.Context, w http.ResponseWriter, conv *chat.Conversation, send chat.SendRequest) {
	var sw *stream.Writer
	open := func() *stream.Writer {
		if sw == nil {
			stream.PrepareResponse(w)
			w.WriteHeader(http.StatusOK)
			sw = stream.NewWriter(w)
		}
		return sw
	}

	send.OnUpdate = func(u chat.Update) {
		var werr error
		switch u.State {
		case chat.StateAwaitingModel:
			werr = open().Start(u.Message.Model)
		case chat.StateStreamingPartial:
			werr = open().Chunk(u.Delta)
		case chat.StateFinalized:
			werr = open().Done(*u.Message.Tokens, *u.Message.Cost, u.Message.Model)
		case chat.StateErrored:
			werr = open().Error(u.Err.Error())
		}
		if werr != nil {
			log.Debug().Err(werr).Msg("Client stream write failed")
		}
	}
	result, err := conv.Pipeline.Send(ctx, send)
	if sw != nil {
		return
	}
	if err != nil {
		response.InternalError(w, "failed to store message")
		return
	}
	if result.State == chat.StateIdle {
		rejectSend(w, result.Rejected)
	}
}

func toSendResponse(store *chat.Store, result *chat.Result) sendMessageResponse {
	resp := sendMessageResponse{
		State:            result.State,
		UserMessage:      result.UserMessage,
		AssistantMessage: result.AssistantMessage,
	}
	if result.UserMessage != nil {
		resp.Session, _ = store.Session(result.UserMessage.SessionID)
	}
	for _, warning := range result.Warnings {
		resp.Warnings = append(resp.Warnings, warning.Error())
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return resp
}
