package auth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/state"
)

// RefreshFunc performs the provider-specific refresh grant.
type RefreshFunc func(ctx context.Context, current model.AuthTokens) (model.AuthTokens, error)

// StartRefresher launches a goroutine that keeps one platform's token fresh,
// updating both the hub and the file store on success. It wakes on a
// jittered interval and refreshes once remaining lifetime falls inside the
// window. Platforms without a refresh token are left alone.
func StartRefresher(ctx context.Context, hub *state.Hub, store *FileStore, p model.Platform, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	go func() {
		for {
			// jitter the wakeup so both platform refreshers drift apart
			jitterRange := int64(interval / 5)
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval + jitter):
			}

			current, ok := hub.Tokens(p)
			if !ok || current.RefreshToken == "" {
				continue
			}
			if !current.ExpiresAt.IsZero() && time.Until(current.ExpiresAt) > window {
				continue
			}

			refreshCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			fresh, err := fn(refreshCtx, current)
			cancel()
			if err != nil {
				slog.Warn("token refresh failed", slog.String("platform", string(p)), slog.Any("err", err))
				continue
			}
			if fresh.RefreshToken == "" {
				fresh.RefreshToken = current.RefreshToken
			}
			hub.SetTokens(p, fresh)
			if err := store.Set(p, fresh); err != nil {
				slog.Warn("token persist failed", slog.String("platform", string(p)), slog.Any("err", err))
			}
			slog.Info("refreshed oauth token",
				slog.String("platform", string(p)),
				slog.Time("expires_at", fresh.ExpiresAt))
		}
	}()
}
