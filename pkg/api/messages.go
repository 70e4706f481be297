package api

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voxos-ai/voxos/pkg/models"
)

// MessageStore persists conversation history.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore creates the store.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert appends a message and returns its id.
func (s *MessageStore) Insert(ctx context.Context, m *models.ConversationMessage) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_messages (session_id, sender, content, content_type, input_mode)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING id`,
		m.SessionID, m.Sender, m.Content, m.ContentType, m.InputMode).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

// List returns a page of a session's messages, newest last.
func (s *MessageStore) List(ctx context.Context, sessionID string, limit, offset int) ([]models.ConversationMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender, content, content_type, COALESCE(input_mode, ''), created_at
		FROM conversation_messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`,
		sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Content, &m.ContentType, &m.InputMode, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
