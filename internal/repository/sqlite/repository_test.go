package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/Rrens/chat-relay/internal/repository/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestSessionRepository_ListByUserOrdersByUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewSessionRepository(openTestDB(t))
	userID := uuid.New()

	older := domain.NewSession(userID, "gpt-4o")
	older.UpdatedAt = older.UpdatedAt.Add(-time.Hour)
	newer := domain.NewSession(userID, "claude-3-5-sonnet-latest")
	other := domain.NewSession(uuid.New(), "gpt-4o")

	require.NoError(t, repo.Create(ctx, &older))
	require.NoError(t, repo.Create(ctx, &newer))
	require.NoError(t, repo.Create(ctx, &other))

	sessions, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, older.ID, sessions[1].ID)
	assert.Equal(t, domain.DefaultSessionTitle, sessions[0].Title)
	assert.Equal(t, newer.UpdatedAt.UnixNano(), sessions[0].UpdatedAt.UnixNano())
	assert.NotNil(t, sessions[0].Messages)
}

func TestSessionRepository_UpdateIsPartial(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewSessionRepository(openTestDB(t))
	session := domain.NewSession(uuid.New(), "gpt-4o")
	require.NoError(t, repo.Create(ctx, &session))

	title := "Hello there"
	require.NoError(t, repo.Update(ctx, session.ID, domain.SessionUpdate{Title: &title}))

	tokens, cost := 42, 0.021
	require.NoError(t, repo.Update(ctx, session.ID, domain.SessionUpdate{TotalTokens: &tokens, TotalCost: &cost}))

	sessions, err := repo.ListByUser(ctx, session.UserID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Hello there", sessions[0].Title)
	assert.Equal(t, "gpt-4o", sessions[0].Model)
	assert.Equal(t, 42, sessions[0].TotalTokens)
	assert.InDelta(t, 0.021, sessions[0].TotalCost, 1e-9)
}

func TestSessionRepository_UpdateMissing(t *testing.T) {
	repo := sqlite.NewSessionRepository(openTestDB(t))
	model := "gpt-4o"
	err := repo.Update(context.Background(), uuid.New(), domain.SessionUpdate{Model: &model})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionRepository_DeleteRemovesMessages(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sessions := sqlite.NewSessionRepository(db)
	messages := sqlite.NewMessageRepository(db)

	session := domain.NewSession(uuid.New(), "gpt-4o")
	require.NoError(t, sessions.Create(ctx, &session))
	msg := domain.NewMessage(session.ID, domain.RoleUser, "hi", "gpt-4o")
	require.NoError(t, messages.Create(ctx, &msg))

	require.NoError(t, sessions.Delete(ctx, session.ID))

	list, err := sessions.ListByUser(ctx, session.UserID)
	require.NoError(t, err)
	assert.Empty(t, list)

	msgs, err := messages.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessageRepository_RoundTripsUsage(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sessions := sqlite.NewSessionRepository(db)
	messages := sqlite.NewMessageRepository(db)

	session := domain.NewSession(uuid.New(), "gpt-4o")
	require.NoError(t, sessions.Create(ctx, &session))

	user := domain.NewMessage(session.ID, domain.RoleUser, "first", "gpt-4o")
	reply := domain.NewMessage(session.ID, domain.RoleAssistant, "second", "gpt-4o").WithUsage(12, 0.006)
	reply.CreatedAt = user.CreatedAt.Add(time.Millisecond)
	require.NoError(t, messages.Create(ctx, &reply))
	require.NoError(t, messages.Create(ctx, &user))

	msgs, err := messages.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, domain.RoleUser, msgs[0].Sender)
	assert.Nil(t, msgs[0].Tokens)
	assert.Nil(t, msgs[0].Cost)

	assert.Equal(t, reply.ID, msgs[1].ID)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Sender)
	require.NotNil(t, msgs[1].Tokens)
	require.NotNil(t, msgs[1].Cost)
	assert.Equal(t, 12, *msgs[1].Tokens)
	assert.InDelta(t, 0.006, *msgs[1].Cost, 1e-9)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewUserRepository(openTestDB(t))

	now := time.Now().UTC()
	user := &domain.User{ID: uuid.New(), Email: "a@example.com", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(ctx, user))

	exists, err := repo.EmailExists(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.EmailExists(ctx, "b@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := repo.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a@example.com", got.Email)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
