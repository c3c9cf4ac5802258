package sqlite

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.SQL.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.Title,
		session.Model,
		session.TotalTokens,
		session.TotalCost,
		toUnix(session.CreatedAt),
		toUnix(session.UpdatedAt),
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
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`
	rows, err := r.db.SQL.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Title,
			&s.Model,
			&s.TotalTokens,
			&s.TotalCost,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.CreatedAt = fromUnix(createdAt)
		s.UpdatedAt = fromUnix(updatedAt)
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
	var updatedAt *int64
	if update.UpdatedAt != nil {
		n := toUnix(*update.UpdatedAt)
		updatedAt = &n
	}

	query := `
		UPDATE chat_sessions
		SET title = COALESCE(?, title),
			model = COALESCE(?, model),
			total_tokens = COALESCE(?, total_tokens),
			total_cost = COALESCE(?, total_cost),
			updated_at = COALESCE(?, updated_at)
		WHERE id = ?
	`
	res, err := r.db.SQL.ExecContext(ctx, query,
		update.Title,
		update.Model,
		update.TotalTokens,
		update.TotalCost,
		updatedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update session %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes the session and its messages in one transaction
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
