// Command roomcast is the chat-room music bot. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs migrations.
//   - Starts the streaming queue manager that resolves URLs with yt-dlp and
//     pushes audio to the Icecast relay through ffmpeg.
//   - Joins the Twitch channel and serves chat commands.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics and the
//     admin queue controls.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/roomcast/chat"
	"github.com/onnwee/roomcast/config"
	"github.com/onnwee/roomcast/db"
	"github.com/onnwee/roomcast/player"
	"github.com/onnwee/roomcast/server"
	"github.com/onnwee/roomcast/telemetry"
)

var version = "dev"

// shutdownTimeout bounds how long main waits for the HTTP server and chat bot.
const shutdownTimeout = 10 * time.Second

func main() {
	// Local dev convenience only; production relies on real env.
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional and requires OTEL_EXPORTER_OTLP_ENDPOINT.
	shutdownTracing, err := telemetry.InitTracing("roomcast", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.ConnectDSN(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; the embedded idempotent DDL covers databases
	// created before schema_migrations existed.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL", slog.Any("err", err), slog.String("component", "db_migrate"))
		mctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(mctx, database)
		cancel()
		if err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var svc services

	if err := cfg.ValidateRelay(); err != nil {
		slog.Warn("relay not configured, playback will fail until it is", slog.Any("err", err))
	}

	plays := &db.PlayStore{DB: database}
	mgr := player.NewManager(
		&player.YTDLPResolver{
			Binary:      cfg.YTDLPPath,
			Format:      cfg.YTDLPFormat,
			Passthrough: cfg.PlayerDirectPassthrough,
		},
		&player.FFmpegRunner{
			Binary: cfg.FFmpegPath,
			Relay: player.Relay{
				Host:     cfg.RelayHost,
				Port:     cfg.RelayPort,
				Mount:    cfg.RelayMount,
				User:     cfg.RelayUser,
				Password: cfg.RelayPassword,
				Encoding: cfg.RelayEncoding,
				Bitrate:  cfg.RelayBitrate,
			},
			KillGrace: cfg.PlayerKillGrace,
		},
		player.Options{
			Retries:        cfg.PlayerRetries,
			RetryDelay:     cfg.PlayerRetryDelay,
			RetryMaxDelay:  cfg.PlayerRetryMaxDelay,
			ResolveTimeout: cfg.PlayerResolveTimeout,
			History:        plays,
		},
	)
	defer mgr.Close()

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat bot disabled", slog.Any("reason", err))
	} else {
		bot := chat.NewBot(mgr, &db.TipStore{DB: database}, &db.ChatLogStore{DB: database}, chat.Options{
			Prefix:       cfg.ChatPrefix,
			Admins:       cfg.ChatAdmins,
			PlayModsOnly: cfg.ChatPlayModsOnly,
			Greet:        cfg.ChatGreet,
		})
		tc := chat.TwitchConfig{Channel: cfg.TwitchChannel, BotUsername: cfg.TwitchBotUsername, OAuthToken: cfg.TwitchOAuthToken}
		svc.Go("chat bot", func() error { return chat.StartBot(ctx, tc, bot) })
	}

	if os.Getenv("ENABLE_PPROF") == "1" {
		startPprof(envOr("PPROF_ADDR", "localhost:6060"))
	}

	opts := server.Options{
		DB:            database,
		Player:        mgr,
		History:       plays,
		RelayCheck:    cfg.ValidateRelay,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		AdminToken:    cfg.AdminToken,
	}
	svc.Go("http server", func() error {
		err := server.Start(ctx, opts, cfg.HTTPAddr)
		if err != nil {
			stop()
		}
		return err
	})

	<-ctx.Done()
	slog.Info("shutting down")
	// Handlers and chat commands use the player and the database, which the
	// deferred calls close.
	if !svc.Wait(shutdownTimeout) {
		slog.Warn("background services did not stop in time", slog.Duration("timeout", shutdownTimeout))
	}
}

// services joins the long-running goroutines started by main.
type services struct {
	wg sync.WaitGroup
}

// Go runs fn in its own goroutine and logs a non-nil error under name.
func (s *services) Go(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			slog.Error(name+" exited with error", slog.Any("err", err))
		}
	}()
}

// Wait blocks until every goroutine returned or timeout passed. It reports
// whether all of them returned.
func (s *services) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format), slog.String("version", version))
}

func startPprof(addr string) {
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
