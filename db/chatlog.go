package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ChatLine is one stored chat message.
type ChatLine struct {
	Channel   string    `json:"channel"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatLogStore appends every chat line seen by the bot.
type ChatLogStore struct{ DB *sql.DB }

// Append stores one line. A zero CreatedAt is stamped by the database.
func (s *ChatLogStore) Append(ctx context.Context, l ChatLine) error {
	var created any
	if !l.CreatedAt.IsZero() {
		created = l.CreatedAt.UTC()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO chat_messages(channel, user_id, username, message, created_at)
		 VALUES($1,$2,$3,$4,COALESCE($5, NOW()))`,
		l.Channel, l.UserID, l.Username, l.Message, created)
	if err != nil {
		return fmt.Errorf("append chat line: %w", err)
	}
	return nil
}

// Recent returns the newest lines for a channel, oldest first.
func (s *ChatLogStore) Recent(ctx context.Context, channel string, limit int) ([]ChatLine, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT channel, COALESCE(user_id,''), username, message, created_at FROM (
		   SELECT * FROM chat_messages WHERE channel=$1 ORDER BY created_at DESC, id DESC LIMIT $2
		 ) t ORDER BY created_at ASC, id ASC`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("recent chat: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ChatLine
	for rows.Next() {
		var l ChatLine
		if err := rows.Scan(&l.Channel, &l.UserID, &l.Username, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
