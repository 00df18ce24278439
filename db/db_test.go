package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/roomcast/player"
)

// openTestDB connects to TEST_PG_DSN, resets the schema and applies Migrate.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	db, err := ConnectDSN(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	cleanDatabase(t, ctx, db)
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func cleanDatabase(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"play_history", "chat_messages", "tips", "schema_migrations"} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestTipStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := &TipStore{DB: db}

	if err := s.AddTip(ctx, "1", "Alice", 100); err != nil {
		t.Fatalf("AddTip: %v", err)
	}
	if err := s.AddTip(ctx, "1", "alice_", 50); err != nil {
		t.Fatalf("AddTip: %v", err)
	}
	if err := s.AddTip(ctx, "2", "Bob", 500); err != nil {
		t.Fatalf("AddTip: %v", err)
	}
	if err := s.AddTip(ctx, "3", "Carol", 0); err == nil {
		t.Error("expected error for zero tip")
	}

	top, err := s.TopTippers(ctx, 10)
	if err != nil {
		t.Fatalf("TopTippers: %v", err)
	}
	if len(top) != 2 || top[0].Username != "Bob" || top[1].Total != 150 || top[1].Username != "alice_" {
		t.Errorf("top = %+v", top)
	}

	total, ok, err := s.TipTotal(ctx, "ALICE_")
	if err != nil || !ok || total != 150 {
		t.Errorf("TipTotal(ALICE_) = %d %v %v", total, ok, err)
	}
	if _, ok, err := s.TipTotal(ctx, "nobody"); err != nil || ok {
		t.Errorf("TipTotal(nobody) ok=%v err=%v", ok, err)
	}
}

func TestChatLogStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := &ChatLogStore{DB: db}

	base := time.Now().Add(-time.Minute).UTC()
	for i, msg := range []string{"one", "two", "three"} {
		if err := s.Append(ctx, ChatLine{Channel: "room", UserID: "u", Username: "user", Message: msg, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Append(ctx, ChatLine{Channel: "other", Username: "x", Message: "elsewhere"}); err != nil {
		t.Fatalf("Append without timestamp: %v", err)
	}

	lines, err := s.Recent(ctx, "room", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(lines) != 2 || lines[0].Message != "two" || lines[1].Message != "three" {
		t.Errorf("recent = %+v", lines)
	}
}

func TestPlayStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := &PlayStore{DB: db}

	now := time.Now().UTC()
	events := []player.Event{
		{SessionID: "s1", URL: "https://a", Kind: player.EventStarted, At: now},
		{SessionID: "s1", URL: "https://a", Kind: player.EventCrashed, Detail: "exit status 1", At: now.Add(time.Second)},
		{SessionID: "s1", URL: "https://a", Kind: player.EventAbandoned, Detail: "exit status 1", At: now.Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Kind != player.EventAbandoned || got[1].Kind != player.EventCrashed {
		t.Errorf("recent = %+v", got)
	}
	if got[1].Detail != "exit status 1" {
		t.Errorf("detail = %q", got[1].Detail)
	}
}
