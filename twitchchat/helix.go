// Package twitchchat connects to Twitch chat over IRC and normalizes messages
// into the shared chat model. Badges resolve through the Helix API and emotes
// through the FFZ, BTTV and 7TV public APIs.
package twitchchat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Helix provides the minimal Helix API surface the chat client needs:
// resolving the authenticated user, channel ids, badge sets and live viewer
// counts. Token may be empty for requests that only need the Client-Id.
type Helix struct {
	ClientID   string
	Token      string
	HTTPClient *http.Client

	// BaseURL overrides the Helix endpoint in tests.
	BaseURL string
}

func (hc *Helix) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *Helix) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return "https://api.twitch.tv/helix"
}

func (hc *Helix) get(ctx context.Context, path string, query map[string]string, out any) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+path, nil)
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	if hc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+hc.Token)
	}
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UserInfo identifies a Twitch account.
type UserInfo struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// AuthenticatedUser resolves the account that owns the bearer token.
func (hc *Helix) AuthenticatedUser(ctx context.Context) (UserInfo, error) {
	var body struct {
		Data []UserInfo `json:"data"`
	}
	if err := hc.get(ctx, "/users", nil, &body); err != nil {
		return UserInfo{}, err
	}
	if len(body.Data) == 0 {
		return UserInfo{}, fmt.Errorf("no user for token")
	}
	return body.Data[0], nil
}

// GetUserID resolves a login name to its user ID.
func (hc *Helix) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []UserInfo `json:"data"`
	}
	if err := hc.get(ctx, "/users", map[string]string{"login": login}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

type badgeSetPayload struct {
	Data []struct {
		SetID    string `json:"set_id"`
		Versions []struct {
			ID         string `json:"id"`
			ImageURL1x string `json:"image_url_1x"`
			ImageURL2x string `json:"image_url_2x"`
			ImageURL4x string `json:"image_url_4x"`
		} `json:"versions"`
	} `json:"data"`
}

func (p badgeSetPayload) flatten() map[string]string {
	out := make(map[string]string)
	for _, set := range p.Data {
		for _, v := range set.Versions {
			url := v.ImageURL4x
			if url == "" {
				url = v.ImageURL2x
			}
			if url == "" {
				url = v.ImageURL1x
			}
			if url != "" {
				out[set.SetID+"/"+v.ID] = url
			}
		}
	}
	return out
}

// GlobalBadges fetches the global badge sets keyed "set_id/version".
func (hc *Helix) GlobalBadges(ctx context.Context) (map[string]string, error) {
	var body badgeSetPayload
	if err := hc.get(ctx, "/chat/badges/global", nil, &body); err != nil {
		return nil, err
	}
	return body.flatten(), nil
}

// ChannelBadges fetches badge sets specific to one broadcaster, keyed
// "set_id/version". Subscriber badge art lives here, not in the global set.
func (hc *Helix) ChannelBadges(ctx context.Context, broadcasterID string) (map[string]string, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	var body badgeSetPayload
	if err := hc.get(ctx, "/chat/badges", map[string]string{"broadcaster_id": broadcasterID}, &body); err != nil {
		return nil, err
	}
	return body.flatten(), nil
}

// StreamViewerCount reports the live viewer count for a channel. live is
// false when the channel is offline.
func (hc *Helix) StreamViewerCount(ctx context.Context, login string) (count int, live bool, err error) {
	var body struct {
		Data []struct {
			ViewerCount int `json:"viewer_count"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/streams", map[string]string{"user_login": login}, &body); err != nil {
		return 0, false, err
	}
	if len(body.Data) == 0 {
		return 0, false, nil
	}
	return body.Data[0].ViewerCount, true, nil
}

// fallbackBadges are stable CDN URLs for the common badges, used when no
// Helix credentials are configured.
var fallbackBadges = map[string]string{
	"broadcaster/1": "https://static-cdn.jtvnw.net/badges/v1/5527c58c-fb7d-422d-b71b-f309dcb85cc1/3",
	"moderator/1":   "https://static-cdn.jtvnw.net/badges/v1/3267646d-33f0-4b17-b3df-f923a41db1d0/3",
	"vip/1":         "https://static-cdn.jtvnw.net/badges/v1/b817aba4-fad8-49e2-b88a-7cc744f6a6e3/3",
	"subscriber/0":  "https://static-cdn.jtvnw.net/badges/v1/5d9f2208-5dd8-11e7-8513-2ff4adfae661/3",
	"subscriber/1":  "https://static-cdn.jtvnw.net/badges/v1/5d9f2208-5dd8-11e7-8513-2ff4adfae661/3",
	"premium/1":     "https://static-cdn.jtvnw.net/badges/v1/bbbe0db0-a598-423e-86d0-f9fb98ca1933/3",
	"partner/1":     "https://static-cdn.jtvnw.net/badges/v1/d12a2e27-16f6-41d0-ab77-b780518f00a3/3",
	"turbo/1":       "https://static-cdn.jtvnw.net/badges/v1/bd444ec6-8f34-4bf9-91f4-af1e3428d80f/3",
	"glhf-pledge/1": "https://static-cdn.jtvnw.net/badges/v1/3158e758-3cb4-43c5-94b3-7571f71cf6a0/3",
	"founder/0":     "https://static-cdn.jtvnw.net/badges/v1/511b78a9-ab37-472f-9569-457753bbe7d3/3",
}

// badgeSet resolves "set_id/version" keys to icon URLs, preferring
// channel-specific art over global art.
type badgeSet struct {
	global  map[string]string
	channel map[string]string
}

func (b *badgeSet) lookup(key string) string {
	if b == nil {
		return ""
	}
	if url, ok := b.channel[key]; ok {
		return url
	}
	return b.global[key]
}

// loadBadges populates a badgeSet from Helix, falling back to the static
// table when no client id is configured or the API calls fail.
func loadBadges(ctx context.Context, hc *Helix, channelID string) *badgeSet {
	bs := &badgeSet{global: map[string]string{}, channel: map[string]string{}}
	if hc == nil || hc.ClientID == "" {
		bs.global = fallbackBadges
		return bs
	}
	global, err := hc.GlobalBadges(ctx)
	if err != nil {
		slog.Warn("twitch global badge load failed, using static fallback", slog.Any("err", err))
		bs.global = fallbackBadges
		return bs
	}
	bs.global = global
	if channelID != "" {
		channel, err := hc.ChannelBadges(ctx, channelID)
		if err != nil {
			slog.Warn("twitch channel badge load failed", slog.Any("err", err))
		} else {
			bs.channel = channel
		}
	}
	slog.Info("loaded twitch badges",
		slog.Int("global", len(bs.global)),
		slog.Int("channel", len(bs.channel)))
	return bs
}
