package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/roomcast/db"
	"github.com/onnwee/roomcast/player"
	"github.com/onnwee/roomcast/telemetry"
)

const (
	genericErrorReply = "An error occurred while processing your request. Please try again."
	topTippersLimit   = 10
	queuePreview      = 5
)

// Controller is the slice of the player the bot drives.
type Controller interface {
	Enqueue(url string) int
	Stop()
	Status() player.Status
}

// TipLedger is the running tip total store.
type TipLedger interface {
	AddTip(ctx context.Context, userID, username string, amount int64) error
	TopTippers(ctx context.Context, limit int) ([]db.Tipper, error)
	TipTotal(ctx context.Context, username string) (int64, bool, error)
}

// ChatLog receives every chat line.
type ChatLog interface {
	Append(ctx context.Context, l db.ChatLine) error
}

// Message is one inbound chat line, transport independent.
type Message struct {
	Channel     string
	UserID      string
	Username    string
	Text        string
	Mod         bool
	Broadcaster bool
	// Bits is the cheer amount attached to the message, credited as a tip.
	Bits int
	At   time.Time
}

// Options tunes command handling.
type Options struct {
	Prefix       string
	Admins       []string
	PlayModsOnly bool
	Greet        bool
}

// Bot maps chat lines to player and ledger operations and returns reply lines.
type Bot struct {
	ctrl   Controller
	tips   TipLedger
	chat   ChatLog
	opts   Options
	admins map[string]bool
	log    *slog.Logger
}

// NewBot builds a bot. tips and chatLog may be nil when storage is unavailable.
func NewBot(ctrl Controller, tips TipLedger, chatLog ChatLog, opts Options) *Bot {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	admins := make(map[string]bool, len(opts.Admins))
	for _, a := range opts.Admins {
		admins[strings.ToLower(a)] = true
	}
	return &Bot{
		ctrl:   ctrl,
		tips:   tips,
		chat:   chatLog,
		opts:   opts,
		admins: admins,
		log:    slog.Default().With(slog.String("component", "chat_bot")),
	}
}

// Greeting returns the join greeting, or "" when greetings are off.
func (b *Bot) Greeting(username string) string {
	if !b.opts.Greet || username == "" {
		return ""
	}
	return fmt.Sprintf("Welcome to the room, %s!", username)
}

// Handle logs the line, credits any tip and runs the command it carries.
// It returns the reply lines to send, possibly none.
func (b *Bot) Handle(ctx context.Context, m Message) []string {
	if b.chat != nil {
		line := db.ChatLine{Channel: m.Channel, UserID: m.UserID, Username: m.Username, Message: m.Text, CreatedAt: m.At}
		if err := b.chat.Append(ctx, line); err != nil {
			b.log.Warn("chat log append failed", slog.Any("err", err))
		}
	}
	if m.Bits > 0 {
		b.creditTip(ctx, m)
	}

	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, b.opts.Prefix) {
		return nil
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(text, b.opts.Prefix), " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	var replies []string
	switch name {
	case "play":
		replies = b.play(m, arg)
	case "stop":
		replies = b.stop(m)
	case "np", "nowplaying":
		replies = b.nowPlaying()
	case "queue", "q":
		replies = b.queue()
	case "say":
		replies = b.say(m, arg)
	case "top":
		replies = b.top(ctx)
	case "get":
		replies = b.get(ctx, arg)
	case "help", "commands":
		replies = b.help()
	default:
		return nil
	}
	telemetry.ChatCommand(name)
	b.log.Debug("command handled", slog.String("command", name), slog.String("user", m.Username))
	return replies
}

func (b *Bot) privileged(m Message) bool {
	return m.Mod || m.Broadcaster || b.admins[strings.ToLower(m.Username)]
}

func (b *Bot) creditTip(ctx context.Context, m Message) {
	if b.tips == nil {
		return
	}
	if err := b.tips.AddTip(ctx, m.UserID, m.Username, int64(m.Bits)); err != nil {
		b.log.Error("failed to credit tip", slog.Any("err", err), slog.String("user", m.Username), slog.Int("bits", m.Bits))
		return
	}
	telemetry.TipReceived()
	b.log.Info("tip received", slog.String("user", m.Username), slog.Int("bits", m.Bits))
}

func (b *Bot) play(m Message, url string) []string {
	if b.opts.PlayModsOnly && !b.privileged(m) {
		return []string{"Only moderators can queue music."}
	}
	if url == "" {
		return []string{fmt.Sprintf("Usage: %splay <url>", b.opts.Prefix)}
	}
	url = strings.Fields(url)[0]
	switch pos := b.ctrl.Enqueue(url); {
	case pos < 0:
		return []string{"The music player is shutting down."}
	case pos == 0:
		return []string{"Playing music from the provided URL..."}
	default:
		return []string{fmt.Sprintf("Queued at position %d.", pos)}
	}
}

func (b *Bot) stop(m Message) []string {
	if !b.privileged(m) {
		return []string{"Only moderators can stop the music."}
	}
	b.ctrl.Stop()
	return []string{"Music playback stopped."}
}

func (b *Bot) nowPlaying() []string {
	st := b.ctrl.Status()
	if st.NowPlaying == "" {
		return []string{"Nothing is playing."}
	}
	switch st.State {
	case player.StateRetrying.String():
		return []string{fmt.Sprintf("Reconnecting: %s (%d retries left)", st.NowPlaying, st.RetriesLeft)}
	case player.StateResolving.String():
		return []string{fmt.Sprintf("Loading: %s", st.NowPlaying)}
	}
	return []string{fmt.Sprintf("Now playing: %s", st.NowPlaying)}
}

func (b *Bot) queue() []string {
	q := b.ctrl.Status().Queue
	if len(q) == 0 {
		return []string{"The queue is empty."}
	}
	n := min(len(q), queuePreview)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, q[i]))
	}
	line := fmt.Sprintf("Up next (%d): %s", len(q), strings.Join(parts, " | "))
	if extra := len(q) - n; extra > 0 {
		line += fmt.Sprintf(" | ...and %d more", extra)
	}
	return []string{line}
}

func (b *Bot) say(m Message, text string) []string {
	if !b.privileged(m) || text == "" {
		return nil
	}
	return []string{text}
}

func (b *Bot) top(ctx context.Context) []string {
	if b.tips == nil {
		return []string{"No tips received yet."}
	}
	tippers, err := b.tips.TopTippers(ctx, topTippersLimit)
	if err != nil {
		b.log.Error("top tippers lookup failed", slog.Any("err", err))
		return []string{genericErrorReply}
	}
	if len(tippers) == 0 {
		return []string{"No tips received yet."}
	}
	out := make([]string, 0, len(tippers)+1)
	out = append(out, "Top Tippers:")
	for i, t := range tippers {
		out = append(out, fmt.Sprintf("%d. %s (%db)", i+1, t.Username, t.Total))
	}
	return out
}

func (b *Bot) get(ctx context.Context, arg string) []string {
	username := strings.TrimPrefix(strings.TrimSpace(arg), "@")
	if f := strings.Fields(username); len(f) > 0 {
		username = f[0]
	}
	if username == "" {
		return []string{fmt.Sprintf("Usage: %sget <user>", b.opts.Prefix)}
	}
	if b.tips == nil {
		return []string{fmt.Sprintf("%s hasn't tipped.", username)}
	}
	total, ok, err := b.tips.TipTotal(ctx, username)
	if err != nil {
		b.log.Error("tip total lookup failed", slog.Any("err", err), slog.String("user", username))
		return []string{genericErrorReply}
	}
	if !ok {
		return []string{fmt.Sprintf("%s hasn't tipped.", username)}
	}
	return []string{fmt.Sprintf("%s has tipped %db", username, total)}
}

func (b *Bot) help() []string {
	p := b.opts.Prefix
	return []string{fmt.Sprintf("Commands: %[1]splay <url>, %[1]sstop, %[1]snp, %[1]squeue, %[1]stop, %[1]sget <user>, %[1]ssay <text>", p)}
}
