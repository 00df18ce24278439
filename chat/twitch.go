package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// inboxSize bounds chat lines waiting for the handler; beyond it lines are dropped.
const inboxSize = 64

// TwitchConfig holds the IRC credentials.
type TwitchConfig struct {
	Channel     string
	BotUsername string
	OAuthToken  string
}

// StartBot connects to Twitch IRC, joins the channel and feeds every message
// through bot. Replies are sent back to the same channel. It blocks until ctx
// is canceled.
func StartBot(ctx context.Context, cfg TwitchConfig, bot *Bot) error {
	if cfg.Channel == "" || cfg.BotUsername == "" || cfg.OAuthToken == "" {
		return fmt.Errorf("twitch chat: channel, bot username and oauth token are required")
	}
	token := cfg.OAuthToken
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	logger := slog.Default().With(slog.String("component", "chat"), slog.String("channel", cfg.Channel))
	client := twitch.NewClient(cfg.BotUsername, token)

	inbox := make(chan Message, inboxSize)
	say := func(channel, text string) { client.Say(channel, text) }
	go serve(ctx, bot, inbox, say)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		m := Message{
			Channel:     msg.Channel,
			UserID:      msg.User.ID,
			Username:    displayName(msg.User),
			Text:        msg.Message,
			Mod:         msg.User.Badges["moderator"] > 0,
			Broadcaster: msg.User.Badges["broadcaster"] > 0,
			Bits:        msg.Bits,
			At:          msg.Time.UTC(),
		}
		select {
		case inbox <- m:
		default:
			logger.Warn("chat inbox full; dropping message", slog.String("user", m.Username))
		}
	})
	client.OnUserJoinMessage(func(msg twitch.UserJoinMessage) {
		if strings.EqualFold(msg.User, cfg.BotUsername) {
			return
		}
		logger.Info("user joined", slog.String("user", msg.User))
		if g := bot.Greeting(msg.User); g != "" {
			client.Say(msg.Channel, g)
		}
	})
	client.OnUserPartMessage(func(msg twitch.UserPartMessage) {
		logger.Info("user left", slog.String("user", msg.User))
	})
	client.OnConnect(func() {
		logger.Info("twitch chat connected", slog.String("bot", cfg.BotUsername))
	})

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		client.Disconnect()
		close(done)
	}()

	client.Join(cfg.Channel)
	if err := client.Connect(); err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
		if ctx.Err() == nil {
			return fmt.Errorf("twitch chat connect: %w", err)
		}
	}
	<-done
	return nil
}

// serve runs bot.Handle for each inbound line in arrival order and sends
// the replies. Commands like stop block until the streamer exits, so this
// runs off the IRC read loop.
func serve(ctx context.Context, bot *Bot, inbox <-chan Message, say func(channel, text string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-inbox:
			for _, line := range bot.Handle(ctx, m) {
				say(m.Channel, line)
			}
		}
	}
}

func displayName(u twitch.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}
