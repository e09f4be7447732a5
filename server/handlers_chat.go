package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/stream-widgets/backend/config"
	"github.com/onnwee/stream-widgets/backend/model"
)

// HandleNowPlaying returns the current now-playing snapshot.
func (h *Handlers) HandleNowPlaying(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.hub.NowPlaying())
}

// HandleChatMessages returns recent chat history, newest last. The limit
// query parameter defaults to the configured snapshot size.
func (h *Handlers) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := h.cfg.ChatHistorySnapshot
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	msgs := h.hub.RecentMessages(limit)
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// HandleChatConfig serves and updates the chat configuration. An update that
// changes the Twitch channel or YouTube video restarts the chat clients;
// every update is persisted to disk.
func (h *Handlers) HandleChatConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.hub.ChatConfig())
	case http.MethodPost:
		var next model.ChatConfig
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			httpError(w, http.StatusBadRequest, "invalid chat config payload")
			return
		}
		prev := h.hub.ChatConfig()
		h.hub.SetChatConfig(next)
		if err := config.SaveChatSettings(h.cfg.DataDir, next); err != nil {
			slog.Warn("chat settings persist failed", slog.Any("err", err))
		}
		if prev.TwitchChannel != next.TwitchChannel || prev.YouTubeVideoID != next.YouTubeVideoID {
			go h.manager.Restart()
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleChatSend routes an outbound message to one platform or "all".
func (h *Handlers) HandleChatSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Platform string `json:"platform"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid send payload")
		return
	}
	if req.Message == "" {
		httpError(w, http.StatusBadRequest, "empty message")
		return
	}
	if req.Platform == "" {
		req.Platform = "all"
	}
	res := h.manager.SendMessage(r.Context(), req.Platform, req.Message)
	status := http.StatusOK
	if !res.OK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}
