package sqlite

import (
	"context"
	"fmt"

	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/google/uuid"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO chat_messages (id, session_id, content, sender, model, tokens, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.SQL.ExecContext(ctx, query,
		message.ID,
		message.SessionID,
		message.Content,
		string(message.Sender),
		message.Model,
		message.Tokens,
		message.Cost,
		toUnix(message.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, content, sender, model, tokens, cost, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC
	`
	rows, err := r.db.SQL.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var sender string
		var createdAt int64
		if err := rows.Scan(
			&m.ID,
			&m.SessionID,
			&m.Content,
			&sender,
			&m.Model,
			&m.Tokens,
			&m.Cost,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = domain.MessageRole(sender)
		m.CreatedAt = fromUnix(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
