package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-widgets/backend/model"
)

const viewerLookupTimeout = 10 * time.Second

// HandleViewerCount returns the live viewer count per platform plus a total.
// A platform that is not configured or not authenticated reports null rather
// than zero so the overlay can distinguish "offline" from "unknown".
func (h *Handlers) HandleViewerCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), viewerLookupTimeout)
	defer cancel()

	cfg := h.hub.ChatConfig()
	var twitch, youtube *int
	total := 0

	if login := cfg.TwitchChannel; login != "" && h.cfg.TwitchClientID != "" {
		if tok, ok := h.hub.Tokens(model.PlatformTwitch); ok {
			n, live, err := h.twitchViewers(ctx, tok.AccessToken, login)
			if err != nil {
				slog.Warn("twitch viewer lookup failed", slog.Any("err", err))
			} else {
				if !live {
					n = 0
				}
				twitch = &n
				total += n
			}
		}
	}

	if videoID := cfg.YouTubeVideoID; videoID != "" {
		if tok, ok := h.hub.Tokens(model.PlatformYouTube); ok {
			n, live, err := h.youtubeViewers(ctx, tok.AccessToken, videoID)
			if err != nil {
				slog.Warn("youtube viewer lookup failed", slog.Any("err", err))
			} else {
				if !live {
					n = 0
				}
				youtube = &n
				total += n
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"twitch":  twitch,
		"youtube": youtube,
		"total":   total,
	})
}

// youtubeConcurrentViewers reads concurrentViewers from the video's
// liveStreamingDetails. A video with no live details is treated as offline.
func youtubeConcurrentViewers(ctx context.Context, accessToken, videoID string) (int, bool, error) {
	svc, err := yt.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})))
	if err != nil {
		return 0, false, err
	}
	resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return 0, false, err
	}
	if len(resp.Items) == 0 {
		return 0, false, errors.New("video not found: " + videoID)
	}
	details := resp.Items[0].LiveStreamingDetails
	if details == nil || details.ActualEndTime != "" {
		return 0, false, nil
	}
	return int(details.ConcurrentViewers), true, nil
}
