package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Tipper is one row of the tip ledger.
type Tipper struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Total    int64  `json:"total"`
}

// TipStore keeps the per-user running tip totals.
type TipStore struct{ DB *sql.DB }

// AddTip credits amount to the user, creating the row on first tip. The
// stored username follows the latest display name.
func (s *TipStore) AddTip(ctx context.Context, userID, username string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("add tip: amount must be positive, got %d", amount)
	}
	if userID == "" {
		userID = strings.ToLower(username)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO tips(user_id, username, total, updated_at) VALUES($1,$2,$3,NOW())
		 ON CONFLICT(user_id) DO UPDATE SET
		   username=EXCLUDED.username,
		   total=tips.total+EXCLUDED.total,
		   updated_at=NOW()`,
		userID, username, amount)
	if err != nil {
		return fmt.Errorf("add tip: %w", err)
	}
	return nil
}

// TopTippers returns up to limit users ordered by total, largest first.
func (s *TipStore) TopTippers(ctx context.Context, limit int) ([]Tipper, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT user_id, username, total FROM tips WHERE total > 0 ORDER BY total DESC, username ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top tippers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Tipper
	for rows.Next() {
		var t Tipper
		if err := rows.Scan(&t.UserID, &t.Username, &t.Total); err != nil {
			return nil, fmt.Errorf("scan tipper: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TipTotal looks a user up by name, ignoring case. ok is false when the user
// has never tipped.
func (s *TipStore) TipTotal(ctx context.Context, username string) (total int64, ok bool, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT total FROM tips WHERE LOWER(username) = LOWER($1) ORDER BY updated_at DESC LIMIT 1`, username).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("tip total: %w", err)
	}
	return total, total > 0, nil
}
