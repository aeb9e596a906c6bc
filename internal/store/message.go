package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luckylove/server/internal/model"
)

type MessageStore struct {
	db Queryer
}

func NewMessageStore(db Queryer) *MessageStore {
	return &MessageStore{db: db}
}

const messageCols = `id, couple_id, author_id, text, created_at`

func (s *MessageStore) Create(ctx context.Context, coupleID, authorID, text string) (*model.Message, error) {
	m := model.Message{
		ID:        uuid.NewString(),
		CoupleID:  coupleID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO home_messages (`+messageCols+`) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.CoupleID, m.AuthorID, m.Text, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}

// ListByCouple returns messages newest first.
func (s *MessageStore) ListByCouple(ctx context.Context, coupleID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageCols+` FROM home_messages WHERE couple_id = ? ORDER BY created_at DESC`, coupleID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.CoupleID, &m.AuthorID, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
