// Package server exposes the HTTP surface: the websocket push endpoint the
// overlays subscribe to, the JSON API behind the config page, OAuth start and
// callback routes, health, and metrics. It includes permissive CORS for
// local overlay development and injects correlation IDs into request
// contexts for consistent logging.
package server

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/stream-widgets/backend/telemetry"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Push endpoint
	mux.HandleFunc("/ws", h.HandleWS)

	// Overlay / config page API
	mux.HandleFunc("/api/nowplaying", h.HandleNowPlaying)
	mux.HandleFunc("/api/chat/messages", h.HandleChatMessages)
	mux.HandleFunc("/api/chat/config", h.HandleChatConfig)
	mux.HandleFunc("/api/chat/send", h.HandleChatSend)
	mux.HandleFunc("/api/viewercount", h.HandleViewerCount)
	mux.HandleFunc("/api/auth/status", h.HandleAuthStatus)
	mux.HandleFunc("/api/auth/logout", h.HandleAuthLogout)
	mux.HandleFunc("/api/oauth/status", h.HandleOAuthStatus)

	// OAuth endpoints
	mux.HandleFunc("/auth/twitch/start", h.HandleTwitchOAuthStart)
	mux.HandleFunc("/auth/twitch/callback", h.HandleTwitchOAuthCallback)
	mux.HandleFunc("/auth/youtube/start", h.HandleYouTubeOAuthStart)
	mux.HandleFunc("/auth/youtube/callback", h.HandleYouTubeOAuthCallback)

	// Health endpoint
	mux.HandleFunc("/healthz", h.HandleHealthz)

	// Album art files
	mux.Handle("/art/", http.StripPrefix("/art/", http.FileServer(http.Dir(h.cfg.ArtDir()))))

	// Wrap with correlation ID injector
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("component", "http"))

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrapped, r.WithContext(ctx))

		if wrapped.statusCode >= 500 {
			telemetry.LoggerWithCorr(ctx).Warn("request failed",
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode))
		}
	})
	return withCORS(handler)
}

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrade take over the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// withCORS applies permissive CORS. The server binds loopback by default;
// overlays and the config page are same-host, but OBS browser sources load
// with arbitrary origins.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server and shuts down gracefully on context
// cancellation.
func Start(ctx context.Context, h *Handlers, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     NewMux(h),
		ReadTimeout: 5 * time.Second,
		// no WriteTimeout: /ws connections are long-lived
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
