// Command backend is the entrypoint for the stream-widgets overlay server.
// It:
//   - Loads configuration and initializes structured logging.
//   - Restores persisted OAuth tokens and the chat overlay settings.
//   - Starts the chat clients (Twitch IRC, YouTube live chat polling), the
//     now-playing provider, and OAuth token refreshers for Twitch/YouTube.
//   - Exposes the HTTP server with the /ws push endpoint, the JSON API,
//     OAuth routes, /healthz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stream-widgets/backend/auth"
	"github.com/onnwee/stream-widgets/backend/chat"
	"github.com/onnwee/stream-widgets/backend/config"
	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/nowplaying"
	"github.com/onnwee/stream-widgets/backend/server"
	"github.com/onnwee/stream-widgets/backend/state"
	"github.com/onnwee/stream-widgets/backend/telemetry"
	"github.com/onnwee/stream-widgets/backend/twitchchat"
	"github.com/onnwee/stream-widgets/backend/youtubechat"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("data dir create failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := nowplaying.EnsureArtFiles(cfg.ArtDir()); err != nil {
		slog.Error("art dir setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	hub := state.New()

	// Restore persisted OAuth tokens so a restart does not force re-auth.
	store := auth.NewFileStore(cfg.DataDir)
	tokens, err := store.Load()
	if err != nil {
		slog.Warn("token restore failed", slog.Any("err", err))
	}
	for p, t := range tokens {
		hub.SetTokens(p, t)
		slog.Info("restored oauth tokens", slog.String("platform", string(p)))
	}

	// Restore the chat overlay settings saved by the config page.
	settings, err := config.LoadChatSettings(cfg.DataDir)
	if err != nil {
		slog.Warn("chat settings restore failed, using defaults", slog.Any("err", err))
	} else {
		hub.SetChatConfig(settings)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := chat.NewManager(ctx, hub,
		func(channel string) chat.Client { return twitchchat.New(hub, cfg, channel) },
		func(videoID string) chat.Client { return youtubechat.New(hub, videoID) },
	)
	manager.Start()

	var wg sync.WaitGroup

	provider := nowplaying.New(hub, &nowplaying.FileSource{Dir: cfg.DataDir}, cfg.ArtDir(), cfg.NowPlayingInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := provider.Run(ctx); err != nil {
			slog.Error("now-playing provider exited with error", slog.Any("err", err))
		}
	}()

	// Centralized OAuth token refreshers
	auth.StartRefresher(ctx, hub, store, model.PlatformTwitch, 5*time.Minute, 15*time.Minute,
		func(rctx context.Context, current model.AuthTokens) (model.AuthTokens, error) {
			return auth.RefreshTwitchToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, current.RefreshToken)
		})
	auth.StartRefresher(ctx, hub, store, model.PlatformYouTube, 10*time.Minute, 20*time.Minute,
		func(rctx context.Context, current model.AuthTokens) (model.AuthTokens, error) {
			return auth.RefreshYouTubeToken(rctx, cfg, current)
		})

	handlers := server.NewHandlers(hub, cfg, manager, store)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	manager.Stop()
	wg.Wait()
}
