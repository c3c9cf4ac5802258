package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/Rrens/chat-relay/internal/relay"
	"github.com/Rrens/chat-relay/internal/stream"
	"github.com/Rrens/chat-relay/internal/usage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ExchangeMode selects how the reply is fetched from the model
type ExchangeMode string

const (
	ModeBlocking  ExchangeMode = "blocking"
	ModeStreaming ExchangeMode = "streaming"
)

// ParseMode maps a mode name to an ExchangeMode. An empty name yields fallback.
func ParseMode(name string, fallback ExchangeMode) (ExchangeMode, error) {
	switch ExchangeMode(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return fallback, nil
	case ModeBlocking:
		return ModeBlocking, nil
	case ModeStreaming:
		return ModeStreaming, nil
	default:
		return "", fmt.Errorf("unknown exchange mode: %s", name)
	}
}

// State is the position of one exchange in its lifecycle
type State string

const (
	StateIdle                State = "idle"
	StateUserMessageAppended State = "user_message_appended"
	StateAwaitingModel       State = "awaiting_model"
	StateStreamingPartial    State = "streaming_partial"
	StateFinalized           State = "finalized"
	StateErrored             State = "errored"
)

var (
	// ErrIncompleteStream is reported when the event stream closes before done or error
	ErrIncompleteStream = errors.New("stream ended without a terminal event")

	ErrBlankText       = errors.New("message text is empty")
	ErrNoActiveSession = errors.New("no active session")
	ErrBusy            = errors.New("an exchange is already in progress")
)

// ErrorNotice prefixes the error text shown in place of a failed reply
const ErrorNotice = "Error: the model could not answer."

// ModelClient is the remote model collaborator
type ModelClient interface {
	Complete(ctx context.Context, req relay.Request) (*relay.Completion, error)
	// Stream returns the encoded event stream. The caller closes it.
	Stream(ctx context.Context, req relay.Request) (io.ReadCloser, error)
}

// Update is delivered to SendRequest.OnUpdate after every visible change
type Update struct {
	State   State
	Session domain.Session
	// Message is the message the change concerns, if any
	Message *domain.Message
	// Delta is the text a chunk appended
	Delta string
	Err   error
}

// SendRequest describes one exchange
type SendRequest struct {
	Principal *domain.Principal
	Text      string
	Mode      ExchangeMode
	// SessionID, when set, selects that session before the exchange starts
	SessionID *uuid.UUID
	// Model, when set, becomes the active model before the exchange starts
	Model    string
	OnUpdate func(Update)
}

// Result is the outcome of Send
type Result struct {
	State State
	// Rejected names the failed precondition of a StateIdle result
	Rejected         error
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
	// Warnings holds durable write failures that happened after the reply was shown
	Warnings []error
	// Err is the model failure of an errored exchange
	Err error
}

// Pipeline runs message exchanges against a Store. At most one exchange is in flight.
type Pipeline struct {
	store     *Store
	client    ModelClient
	estimator *usage.Estimator
	timeout   time.Duration

	processing atomic.Bool
}

// NewPipeline creates a pipeline. A positive timeout bounds every model call.
func NewPipeline(store *Store, client ModelClient, estimator *usage.Estimator, timeout time.Duration) *Pipeline {
	if estimator == nil {
		estimator = usage.NewEstimator(nil)
	}
	return &Pipeline{
		store:     store,
		client:    client,
		estimator: estimator,
		timeout:   timeout,
	}
}

// Processing reports whether an exchange is in flight
func (p *Pipeline) Processing() bool {
	return p.processing.Load()
}

func rejected(reason error) *Result {
	return &Result{State: StateIdle, Rejected: reason}
}

// exchange carries the state of one Send call
type exchange struct {
	p         *Pipeline
	req       SendRequest
	sessionID string
	model     string
	user      domain.Message
	result    *Result
}

func (x *exchange) emit(u Update) {
	if x.req.OnUpdate != nil {
		x.req.OnUpdate(u)
	}
}

// Send runs one exchange. Requests that fail a precondition return a Result in StateIdle and
// change nothing. The returned error is set only when the user message could not be stored;
// model failures end in StateErrored with Result.Err set.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (*Result, error) {
	text := strings.TrimSpace(req.Text)
	if req.Principal == nil {
		return rejected(ErrNoPrincipal), nil
	}
	if text == "" {
		return rejected(ErrBlankText), nil
	}
	if req.SessionID != nil {
		if _, ok := p.store.Session(*req.SessionID); !ok {
			return rejected(ErrSessionNotFound), nil
		}
	} else if _, ok := p.store.Active(); !ok {
		return rejected(ErrNoActiveSession), nil
	}
	if !p.processing.CompareAndSwap(false, true) {
		return rejected(ErrBusy), nil
	}
	defer p.processing.Store(false)

	if req.SessionID != nil && !p.store.SelectSession(*req.SessionID) {
		return rejected(ErrSessionNotFound), nil
	}
	active, ok := p.store.Active()
	if !ok {
		return rejected(ErrNoActiveSession), nil
	}
	if req.Model != "" {
		p.store.SetActiveModel(req.Model)
	}
	model := p.store.ActiveModel()
	if model == "" {
		model = active.Model
	}

	x := &exchange{
		p:         p,
		req:       req,
		sessionID: active.ID.String(),
		model:     model,
		result:    &Result{},
	}

	// Step 1: the user message is stored before anything changes locally
	x.user = domain.NewMessage(active.ID, domain.RoleUser, text, model)
	if err := p.store.messages.Create(ctx, &x.user); err != nil {
		log.Error().Err(err).Str("session_id", x.sessionID).Msg("Failed to store user message")
		return &Result{State: StateErrored, Err: err}, fmt.Errorf("failed to store user message: %w", err)
	}
	user := x.user
	x.result.UserMessage = &user

	// Step 2
	first := len(active.Messages) == 0
	session, _ := p.store.modify(active.ID, func(s domain.Session) domain.Session {
		s = s.WithMessage(x.user)
		if first {
			s.Title = domain.DeriveTitle(text)
		}
		return s
	})
	x.emit(Update{State: StateUserMessageAppended, Session: session, Message: &user})

	if first {
		title := session.Title
		if err := p.store.sessions.Update(ctx, active.ID, domain.SessionUpdate{Title: &title}); err != nil {
			x.warn(err, "Failed to store session title")
		}
	}

	// Step 3
	relayReq := relay.Request{
		Messages:  turns(session.Messages),
		Model:     model,
		SessionID: active.ID,
		UserID:    req.Principal.ID,
	}

	modelCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		modelCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var assistant domain.Message
	var err error
	if req.Mode == ModeBlocking {
		assistant, err = x.blocking(modelCtx, relayReq)
	} else {
		assistant, err = x.streaming(modelCtx, relayReq)
	}
	if err != nil {
		return x.result, nil
	}

	// Step 4 runs detached from ctx so a dropped caller does not lose the reply
	x.finalize(context.WithoutCancel(ctx), assistant)
	return x.result, nil
}

func (x *exchange) blocking(ctx context.Context, req relay.Request) (domain.Message, error) {
	session, _ := x.p.store.Active()
	x.emit(Update{State: StateAwaitingModel, Session: session})

	completion, err := x.p.client.Complete(ctx, req)
	if err != nil {
		msg := domain.NewMessage(x.user.SessionID, domain.RoleAssistant, "", x.model)
		x.p.store.modify(x.user.SessionID, func(s domain.Session) domain.Session {
			return s.WithMessage(msg)
		})
		return domain.Message{}, x.fail(msg, err)
	}

	model := completion.Model
	if model == "" {
		model = x.model
	}
	userTokens, userCost := x.p.estimator.Estimate(x.user.Content, x.model)
	replyTokens, replyCost := x.p.estimator.Estimate(completion.Content, model)

	msg := domain.NewMessage(x.user.SessionID, domain.RoleAssistant, completion.Content, model).
		WithUsage(userTokens+replyTokens, userCost+replyCost)
	x.p.store.modify(x.user.SessionID, func(s domain.Session) domain.Session {
		return s.WithMessage(msg)
	})
	return msg, nil
}

func (x *exchange) streaming(ctx context.Context, req relay.Request) (domain.Message, error) {
	msg := domain.NewMessage(x.user.SessionID, domain.RoleAssistant, "", x.model)
	session, _ := x.p.store.modify(msg.SessionID, func(s domain.Session) domain.Session {
		return s.WithMessage(msg)
	})
	placeholder := msg
	x.emit(Update{State: StateAwaitingModel, Session: session, Message: &placeholder})

	body, err := x.p.client.Stream(ctx, req)
	if err != nil {
		return domain.Message{}, x.fail(msg, err)
	}
	defer body.Close()

	var terminal *stream.Event
	err = stream.Scan(body, func(f stream.Frame) error {
		ev, ok, err := stream.ParseEvent(f)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		switch ev.Type {
		case stream.EventStart:
			log.Debug().Str("session_id", x.sessionID).Str("model", ev.Model).Msg("Model stream started")
		case stream.EventChunk:
			msg.Content += ev.Content
			session, _ := x.p.store.modify(msg.SessionID, func(s domain.Session) domain.Session {
				return s.WithReplacedMessage(msg)
			})
			current := msg
			x.emit(Update{State: StateStreamingPartial, Session: session, Message: &current, Delta: ev.Content})
		case stream.EventDone, stream.EventError:
			terminal = &ev
			return stream.ErrStop
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, x.fail(msg, err)
	}
	if terminal == nil {
		return domain.Message{}, x.fail(msg, ErrIncompleteStream)
	}
	if terminal.Type == stream.EventError {
		return domain.Message{}, x.fail(msg, fmt.Errorf("model error: %s", terminal.Error))
	}

	if terminal.Model != "" {
		msg.Model = terminal.Model
	}
	msg = msg.WithUsage(terminal.Tokens, terminal.Cost)
	x.p.store.modify(msg.SessionID, func(s domain.Session) domain.Session {
		return s.WithReplacedMessage(msg)
	})
	return msg, nil
}

// fail annotates msg, which is already in the session, with err and ends the exchange
// without any durable write
func (x *exchange) fail(msg domain.Message, err error) error {
	log.Error().Err(err).Str("session_id", x.sessionID).Msg("Model exchange failed")

	msg.Content = annotate(msg.Content, err)
	session, _ := x.p.store.modify(msg.SessionID, func(s domain.Session) domain.Session {
		return s.WithReplacedMessage(msg)
	})

	x.result.State = StateErrored
	x.result.Err = err
	x.result.AssistantMessage = &msg
	x.emit(Update{State: StateErrored, Session: session, Message: &msg, Err: err})
	return err
}

// finalize stores the reply and the session aggregates. Aggregates reach the local session
// only once the session update is durable.
func (x *exchange) finalize(ctx context.Context, msg domain.Message) {
	if err := x.p.store.messages.Create(ctx, &msg); err != nil {
		x.warn(err, "Failed to store assistant message")
	}

	current, ok := x.p.store.Session(msg.SessionID)
	if ok {
		tokens := current.TotalTokens + *msg.Tokens
		cost := current.TotalCost + *msg.Cost
		updatedAt := time.Now().UTC()
		title := current.Title

		err := x.p.store.sessions.Update(ctx, msg.SessionID, domain.SessionUpdate{
			Title:       &title,
			TotalTokens: &tokens,
			TotalCost:   &cost,
			UpdatedAt:   &updatedAt,
		})
		if err != nil {
			x.warn(err, "Failed to store session totals")
		} else {
			x.p.store.modify(msg.SessionID, func(s domain.Session) domain.Session {
				s.TotalTokens = tokens
				s.TotalCost = cost
				s.UpdatedAt = updatedAt
				return s
			})
		}
	}

	session, _ := x.p.store.Session(msg.SessionID)
	x.result.State = StateFinalized
	x.result.AssistantMessage = &msg
	x.emit(Update{State: StateFinalized, Session: session, Message: &msg})
}

func (x *exchange) warn(err error, msg string) {
	log.Warn().Err(err).Str("session_id", x.sessionID).Msg(msg)
	x.result.Warnings = append(x.result.Warnings, err)
}

// annotate appends an inline error marker to whatever content already arrived
func annotate(content string, err error) string {
	notice := ErrorNotice + " " + err.Error()
	if content == "" {
		return notice
	}
	return content + "\n\n[" + notice + "]"
}

// turns converts session history to relay turns. Assistant messages without usage never
// completed and are left out.
func turns(messages []domain.Message) []llm.Turn {
	out := make([]llm.Turn, 0, len(messages))
	for _, m := range messages {
		if m.Sender == domain.RoleAssistant && m.Tokens == nil {
			continue
		}
		out = append(out, llm.Turn{Role: string(m.Sender), Content: m.Content})
	}
	return out
}
