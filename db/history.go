package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/roomcast/player"
)

// PlayStore persists player lifecycle events. It satisfies player.History.
type PlayStore struct{ DB *sql.DB }

var _ player.History = (*PlayStore)(nil)

// Record inserts one event row.
func (s *PlayStore) Record(ctx context.Context, ev player.Event) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO play_history(session_id, url, event, detail, created_at) VALUES($1,$2,$3,$4,$5)`,
		ev.SessionID, ev.URL, string(ev.Kind), ev.Detail, ev.At.UTC())
	if err != nil {
		return fmt.Errorf("record play event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (s *PlayStore) Recent(ctx context.Context, limit int) ([]player.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT session_id, url, event, detail, created_at FROM play_history ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent plays: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []player.Event
	for rows.Next() {
		var ev player.Event
		var kind string
		if err := rows.Scan(&ev.SessionID, &ev.URL, &kind, &ev.Detail, &ev.At); err != nil {
			return nil, fmt.Errorf("scan play event: %w", err)
		}
		ev.Kind = player.EventKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}
