package postgres

import (
	"context"
	"fmt"

	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/google/uuid"
)

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO chat_sessions (id, user_id, title, model, total_tokens, total_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Title,
		session.Model,
		session.TotalTokens,
		session.TotalCost,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	query := `
		SELECT id, user_id, title, model, total_tokens, total_cost, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Title,
			&s.Model,
			&s.TotalTokens,
			&s.TotalCost,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Messages = []domain.Message{}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Update writes only the non-nil fields of update
func (r *SessionRepository) Update(ctx context.Context, id uuid.UUID, update domain.SessionUpdate) error {
	query := `
		UPDATE chat_sessions
		SET title = COALESCE($2, title),
			model = COALESCE($3, model),
			total_tokens = COALESCE($4, total_tokens),
			total_cost = COALESCE($5, total_cost),
			updated_at = COALESCE($6, updated_at)
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		id,
		update.Title,
		update.Model,
		update.TotalTokens,
		update.TotalCost,
		update.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update session %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes the session; chat_messages rows go with it through ON DELETE CASCADE
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM chat_sessions WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
