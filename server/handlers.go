package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/stream-widgets/backend/auth"
	"github.com/onnwee/stream-widgets/backend/chat"
	"github.com/onnwee/stream-widgets/backend/config"
	"github.com/onnwee/stream-widgets/backend/state"
	"github.com/onnwee/stream-widgets/backend/twitchchat"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	hub     *state.Hub
	cfg     *config.Config
	manager *chat.Manager
	store   *auth.FileStore
	states  *auth.StateStore

	// viewer count lookups; swapped in tests
	twitchViewers  func(ctx context.Context, accessToken, login string) (int, bool, error)
	youtubeViewers func(ctx context.Context, accessToken, videoID string) (int, bool, error)
}

// NewHandlers wires the handlers to their collaborators.
func NewHandlers(hub *state.Hub, cfg *config.Config, manager *chat.Manager, store *auth.FileStore) *Handlers {
	h := &Handlers{
		hub:     hub,
		cfg:     cfg,
		manager: manager,
		store:   store,
		states:  auth.NewStateStore(),
	}
	h.twitchViewers = func(ctx context.Context, accessToken, login string) (int, bool, error) {
		hc := &twitchchat.Helix{ClientID: cfg.TwitchClientID, Token: accessToken}
		return hc.StreamViewerCount(ctx, login)
	}
	h.youtubeViewers = youtubeConcurrentViewers
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleHealthz reports liveness plus the coarse client states.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"twitch":  h.manager.TwitchStatus(),
		"youtube": h.manager.YouTubeStatus(),
	})
}
