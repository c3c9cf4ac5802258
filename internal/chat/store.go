// Package chat holds the per-principal conversation state: the session store and the
// message exchange pipeline that drives it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoPrincipal is returned by structural operations before Load was given a principal
	ErrNoPrincipal = errors.New("no principal loaded")
	// ErrSessionNotFound is returned when an operation names a session the store does not hold
	ErrSessionNotFound = errors.New("session not found")
)

// Store owns the in-memory session list and the active session pointer of one principal.
// Sessions are replaced whole on every change; accessors return copies.
type Store struct {
	sessions     domain.SessionRepository
	messages     domain.MessageRepository
	defaultModel string

	mu          sync.RWMutex
	principal   *domain.Principal
	list        []domain.Session
	activeID    uuid.UUID
	activeModel string
	totalCost   float64
}

// NewStore creates an empty store
func NewStore(sessions domain.SessionRepository, messages domain.MessageRepository, defaultModel string) *Store {
	return &Store{
		sessions:     sessions,
		messages:     messages,
		defaultModel: defaultModel,
		activeModel:  defaultModel,
	}
}

// Load replaces the store content with the principal's sessions. A nil principal resets the
// store without creating anything; a principal with no sessions gets a fresh one.
func (s *Store) Load(ctx context.Context, principal *domain.Principal) error {
	if principal == nil {
		s.mu.Lock()
		s.principal = nil
		s.setList(nil, uuid.Nil)
		s.activeModel = s.defaultModel
		s.mu.Unlock()
		return nil
	}

	p := *principal
	list, err := s.fetch(ctx, p.ID)

	s.mu.Lock()
	s.principal = &p
	if err != nil {
		s.setList(nil, uuid.Nil)
		s.activeModel = s.defaultModel
		s.mu.Unlock()
		log.Error().Err(err).Str("user_id", p.ID.String()).Msg("Failed to load sessions")
		return err
	}
	if len(list) == 0 {
		s.setList(nil, uuid.Nil)
		s.mu.Unlock()
		_, err := s.CreateSession(ctx, s.defaultModel)
		return err
	}
	s.setList(list, uuid.Nil)
	s.activeID = s.list[0].ID
	s.activeModel = s.list[0].Model
	s.mu.Unlock()
	return nil
}

func (s *Store) fetch(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for i := range list {
		msgs, err := s.messages.ListBySession(ctx, list[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list messages for session %s: %w", list[i].ID, err)
		}
		if msgs == nil {
			msgs = []domain.Message{}
		}
		list[i].Messages = msgs
	}
	return list, nil
}

// CreateSession persists a new empty session and makes it active. An empty model selects the
// current active model. Nothing changes locally when the durable insert fails.
func (s *Store) CreateSession(ctx context.Context, model string) (domain.Session, error) {
	s.mu.RLock()
	principal := s.principal
	if model == "" {
		model = s.activeModel
	}
	s.mu.RUnlock()

	if principal == nil {
		return domain.Session{}, ErrNoPrincipal
	}
	if model == "" {
		model = s.defaultModel
	}

	session := domain.NewSession(principal.ID, model)
	if err := s.sessions.Create(ctx, &session); err != nil {
		log.Error().Err(err).Str("user_id", principal.ID.String()).Msg("Failed to create session")
		return domain.Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	list := make([]domain.Session, 0, len(s.list)+1)
	list = append(list, session)
	list = append(list, s.list...)
	s.setList(list, session.ID)
	s.activeModel = session.Model
	s.mu.Unlock()

	return session.Clone(), nil
}

// SelectSession activates the session with id and switches the active model to the session's
// model. It reports false and changes nothing when id is unknown.
func (s *Store) SelectSession(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.activeID = id
	s.activeModel = s.list[i].Model
	return true
}

// DeleteSession deletes durably first and only then drops the session locally. Deleting the
// active session selects the most recent remaining one, or creates a fresh session when none
// remain.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	s.mu.RLock()
	known := s.indexOf(id) >= 0
	s.mu.RUnlock()
	if !known {
		return ErrSessionNotFound
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to delete session")
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	wasActive := s.activeID == id
	list := make([]domain.Session, 0, len(s.list)-1)
	list = append(list, s.list[:i]...)
	list = append(list, s.list[i+1:]...)

	activeID := s.activeID
	if wasActive {
		activeID = uuid.Nil
	}
	s.setList(list, activeID)
	if wasActive && len(s.list) > 0 {
		s.activeID = s.list[0].ID
		s.activeModel = s.list[0].Model
	}
	empty := len(s.list) == 0
	s.mu.Unlock()

	if empty {
		if _, err := s.CreateSession(ctx, ""); err != nil {
			return err
		}
	}
	return nil
}

// ChangeModel persists model on the session with id and then applies it locally. The
// active model follows when id is the active session.
func (s *Store) ChangeModel(ctx context.Context, id uuid.UUID, model string) error {
	if _, ok := s.Session(id); !ok {
		return ErrSessionNotFound
	}

	if err := s.sessions.Update(ctx, id, domain.SessionUpdate{Model: &model}); err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to update session model")
		return fmt.Errorf("failed to update session model: %w", err)
	}

	s.modify(id, func(session domain.Session) domain.Session {
		session.Model = model
		return session
	})

	s.mu.Lock()
	if s.activeID == id {
		s.activeModel = model
	}
	s.mu.Unlock()
	return nil
}

// SetActiveModel changes the model used for the next exchange without touching the session
func (s *Store) SetActiveModel(model string) {
	s.mu.Lock()
	s.activeModel = model
	s.mu.Unlock()
}

// Principal returns the loaded principal, or nil
func (s *Store) Principal() *domain.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

// Sessions returns a copy of the session list, most recently updated first
func (s *Store) Sessions() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, len(s.list))
	for i := range s.list {
		out[i] = s.list[i].Clone()
	}
	return out
}

// Session returns a copy of the session with id
func (s *Store) Session(id uuid.UUID) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Session{}, false
	}
	return s.list[i].Clone(), true
}

// Active returns a copy of the active session
func (s *Store) Active() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(s.activeID)
	if i < 0 {
		return domain.Session{}, false
	}
	return s.list[i].Clone(), true
}

// ActiveModel returns the model used for the next exchange
func (s *Store) ActiveModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeModel
}

// TotalCost returns the summed cost of every loaded session
func (s *Store) TotalCost() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalCost
}

// modify applies fn to a copy of the session with id and installs the result. Unknown sessions
// are ignored, which covers a session deleted while an exchange on it was in flight.
func (s *Store) modify(id uuid.UUID, fn func(domain.Session) domain.Session) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Session{}, false
	}
	updated := fn(s.list[i].Clone())
	s.replaceLocked(updated)
	return updated.Clone(), true
}

func (s *Store) replaceLocked(session domain.Session) bool {
	i := s.indexOf(session.ID)
	if i < 0 {
		return false
	}
	list := make([]domain.Session, len(s.list))
	copy(list, s.list)
	list[i] = session
	s.setList(list, s.activeID)
	return true
}

// setList installs list ordered by UpdatedAt, most recent first, and recomputes the derived
// total. Callers hold mu.
func (s *Store) setList(list []domain.Session, activeID uuid.UUID) {
	list = slices.Clone(list)
	if list == nil {
		list = []domain.Session{}
	}
	slices.SortStableFunc(list, func(a, b domain.Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	var total float64
	for _, session := range list {
		total += session.TotalCost
	}
	s.list = list
	s.activeID = activeID
	s.totalCost = total
}

func (s *Store) indexOf(id uuid.UUID) int {
	if id == uuid.Nil {
		return -1
	}
	for i := range s.list {
		if s.list[i].ID == id {
			return i
		}
	}
	return -1
}
