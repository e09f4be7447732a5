package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/stream-widgets/backend/auth"
	"github.com/onnwee/stream-widgets/backend/model"
)

const oauthStateTTL = 10 * time.Minute

// HandleTwitchOAuthStart redirects the browser to the Twitch consent page.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.TwitchConfigured() {
		httpError(w, http.StatusPreconditionFailed, "twitch oauth is not configured")
		return
	}
	st := uuid.New().String()
	if !h.states.Add(st, oauthStateTTL) {
		httpError(w, http.StatusServiceUnavailable, "too many pending authorizations")
		return
	}
	url, err := auth.BuildTwitchAuthorizeURL(h.cfg.TwitchClientID, h.cfg.TwitchRedirectURI, h.cfg.TwitchScopes, st)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// HandleTwitchOAuthCallback finishes the Twitch code grant and restarts the
// Twitch client so the connection upgrades from anonymous to authenticated.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !h.states.Consume(r.URL.Query().Get("state")) {
		httpError(w, http.StatusBadRequest, "invalid or expired oauth state")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httpError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	tokens, err := auth.ExchangeTwitchCode(r.Context(), h.cfg.TwitchClientID, h.cfg.TwitchClientSecret, code, h.cfg.TwitchRedirectURI)
	if err != nil {
		slog.Error("twitch code exchange failed", slog.Any("err", err))
		httpError(w, http.StatusBadGateway, "twitch code exchange failed")
		return
	}
	h.storeTokens(model.PlatformTwitch, tokens)
	if ch := h.hub.ChatConfig().TwitchChannel; ch != "" {
		go h.manager.StartTwitch(ch)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "authenticated", "platform": "twitch"})
}

// HandleYouTubeOAuthStart redirects the browser to the Google consent page.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.YouTubeConfigured() {
		httpError(w, http.StatusPreconditionFailed, "youtube oauth is not configured")
		return
	}
	st := uuid.New().String()
	if !h.states.Add(st, oauthStateTTL) {
		httpError(w, http.StatusServiceUnavailable, "too many pending authorizations")
		return
	}
	http.Redirect(w, r, auth.BuildYouTubeAuthorizeURL(h.cfg, st), http.StatusFound)
}

// HandleYouTubeOAuthCallback finishes the Google code grant and starts the
// YouTube chat client.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !h.states.Consume(r.URL.Query().Get("state")) {
		httpError(w, http.StatusBadRequest, "invalid or expired oauth state")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httpError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	tokens, err := auth.ExchangeYouTubeCode(r.Context(), h.cfg, code)
	if err != nil {
		slog.Error("youtube code exchange failed", slog.Any("err", err))
		httpError(w, http.StatusBadGateway, "youtube code exchange failed")
		return
	}
	h.storeTokens(model.PlatformYouTube, tokens)
	go h.manager.StartYouTube(h.hub.ChatConfig().YouTubeVideoID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "authenticated", "platform": "youtube"})
}

func (h *Handlers) storeTokens(p model.Platform, t model.AuthTokens) {
	h.hub.SetTokens(p, t)
	if err := h.store.Set(p, t); err != nil {
		slog.Warn("token persist failed", slog.String("platform", string(p)), slog.Any("err", err))
	}
}

// HandleAuthLogout drops a platform's tokens from memory and disk and stops
// its chat client.
func (h *Handlers) HandleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid logout payload")
		return
	}
	p := model.Platform(req.Platform)
	switch p {
	case model.PlatformTwitch, model.PlatformYouTube:
	default:
		httpError(w, http.StatusBadRequest, fmt.Sprintf("unknown platform %q", req.Platform))
		return
	}
	h.hub.ClearTokens(p)
	if err := h.store.Delete(p); err != nil {
		slog.Warn("token delete failed", slog.String("platform", string(p)), slog.Any("err", err))
	}
	switch p {
	case model.PlatformTwitch:
		h.manager.StopTwitch()
	case model.PlatformYouTube:
		h.manager.StopYouTube()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out", "platform": string(p)})
}

// HandleAuthStatus reports whether each platform holds a live token.
func (h *Handlers) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"twitch_authenticated":  h.hub.Authenticated(model.PlatformTwitch),
		"youtube_authenticated": h.hub.Authenticated(model.PlatformYouTube),
	})
}

// HandleOAuthStatus reports whether client credentials are configured at
// all, for the config page's setup hints.
func (h *Handlers) HandleOAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"twitch_configured":  h.cfg.TwitchConfigured(),
		"youtube_configured": h.cfg.YouTubeConfigured(),
	})
}
