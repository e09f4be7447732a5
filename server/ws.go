package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/stream-widgets/backend/state"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Overlays are served from arbitrary OBS browser-source origins, so the
	// check mirrors the permissive CORS policy on the REST routes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and streams hub events to the client. A
// fresh connection first receives the current now-playing snapshot and the
// recent chat history so overlays render without waiting for new activity.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("websocket close", slog.Any("err", err))
		}
	}()

	snapshots := []state.Event{
		{Type: "nowplaying", Data: h.hub.NowPlaying()},
		{Type: "chat_history", Data: h.hub.RecentMessages(h.cfg.ChatHistorySnapshot)},
	}
	for _, ev := range snapshots {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	// Inbound frames are discarded; the reader exists to notice the peer
	// going away and to answer pings.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
