package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rrens/chat-relay/internal/config"
	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHub_GetLoadsOnce(t *testing.T) {
	sessions := new(MockSessionRepository)
	messages := new(MockMessageRepository)
	principal := testPrincipal()

	sessions.On("ListByUser", mock.Anything, principal.ID).Return([]domain.Session{}, nil).Once()
	sessions.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil).Once()

	hub := NewHub(sessions, messages, new(MockModelClient), nil, config.ChatConfig{DefaultModel: testModel, ModelTimeout: time.Minute})

	first, err := hub.Get(context.Background(), *principal)
	require.NoError(t, err)
	second, err := hub.Get(context.Background(), *principal)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, first.Store.Sessions(), 1)
	sessions.AssertExpectations(t)
}

func TestHub_GetRetriesFailedLoad(t *testing.T) {
	sessions := new(MockSessionRepository)
	messages := new(MockMessageRepository)
	principal := testPrincipal()

	sessions.On("ListByUser", mock.Anything, principal.ID).Return(nil, errors.New("db down")).Once()
	sessions.On("ListByUser", mock.Anything, principal.ID).Return([]domain.Session{}, nil).Once()
	sessions.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil).Once()

	hub := NewHub(sessions, messages, new(MockModelClient), nil, config.ChatConfig{DefaultModel: testModel})

	_, err := hub.Get(context.Background(), *principal)
	require.Error(t, err)

	conv, err := hub.Get(context.Background(), *principal)
	require.NoError(t, err)
	assert.Len(t, conv.Store.Sessions(), 1)

	hub.Forget(principal.ID)
	sessions.On("ListByUser", mock.Anything, principal.ID).Return([]domain.Session{}, nil).Once()
	sessions.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil).Once()
	again, err := hub.Get(context.Background(), *principal)
	require.NoError(t, err)
	assert.NotSame(t, conv, again)
}
