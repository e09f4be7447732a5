// Package model holds the platform-agnostic chat and now-playing types shared
// by every ingestion client and the state hub. Values are built once by a
// platform client and never mutated afterwards; a ChatMessage carries its user
// by value so later role changes do not rewrite history.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the source of a message or token set.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
)

// UserRole is an additive role on top of the implicit viewer baseline.
type UserRole string

const (
	RoleBroadcaster UserRole = "broadcaster"
	RoleModerator   UserRole = "moderator"
	RoleVIP         UserRole = "vip"
	RoleSubscriber  UserRole = "subscriber"
	RoleViewer      UserRole = "viewer"
)

// EmoteProvider tags where a resolved emote image comes from.
type EmoteProvider string

const (
	EmoteTwitch  EmoteProvider = "twitch"
	EmoteYouTube EmoteProvider = "youtube"
	EmoteFFZ     EmoteProvider = "ffz"
	EmoteBTTV    EmoteProvider = "bttv"
	EmoteSevenTV EmoteProvider = "7tv"
)

// Emote is a fully-resolved emote: the literal code matched in the message
// text plus the image URL to render. Resolution happens at ingestion time.
type Emote struct {
	Code     string        `json:"code"`
	URL      string        `json:"url"`
	Provider EmoteProvider `json:"provider"`
	Animated bool          `json:"is_animated"`
	Scale    int           `json:"scale"`
}

// ChatBadge is a user badge (mod sword, sub badge, ...). IconURL may be empty
// when the platform provides no image metadata.
type ChatBadge struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// ChatUser is the platform-scoped identity attached to a message.
type ChatUser struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name"`
	Platform    Platform    `json:"platform"`
	Color       string      `json:"color,omitempty"`
	Roles       []UserRole  `json:"roles"`
	Badges      []ChatBadge `json:"badges"`
}

// NewChatUser builds a user with the viewer baseline plus any extra roles.
// Duplicate and viewer entries in extra are ignored.
func NewChatUser(id, username, displayName string, platform Platform, extra ...UserRole) ChatUser {
	u := ChatUser{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		Platform:    platform,
		Roles:       []UserRole{RoleViewer},
		Badges:      []ChatBadge{},
	}
	for _, r := range extra {
		if r == RoleViewer || u.HasRole(r) {
			continue
		}
		u.Roles = append(u.Roles, r)
	}
	return u
}

// HasRole reports whether the user carries the given role.
func (u ChatUser) HasRole(role UserRole) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Validate enforces the invariants a platform client must uphold.
func (u ChatUser) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("chat user: empty username")
	}
	if !u.HasRole(RoleViewer) {
		return fmt.Errorf("chat user %q: missing viewer baseline role", u.Username)
	}
	return nil
}

// ChatMessage is one normalized message. Immutable after creation; the Deleted
// flag is reserved for future moderation events and unused by ingestion.
type ChatMessage struct {
	ID        string    `json:"id"`
	Platform  Platform  `json:"platform"`
	User      ChatUser  `json:"user"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Emotes    []Emote   `json:"emotes"`
	Deleted   bool      `json:"is_deleted"`
	Action    bool      `json:"is_action"`
}

// SynthesizeMessageID builds a message id for platforms or frames that carry
// none: username plus the receive timestamp.
func SynthesizeMessageID(username string, ts time.Time) string {
	return fmt.Sprintf("%s_%d", username, ts.UnixNano())
}

// AuthTokens is one platform's OAuth token set. Expiry is checked against the
// stored absolute instant; this process never refreshes proactively.
type AuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scope        []string  `json:"scope"`
}

// Expired reports whether the token lifetime has lapsed. A zero ExpiresAt
// means the platform issued no expiry and the token is treated as live.
func (t AuthTokens) Expired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(t.ExpiresAt)
}

// ChatConfig is the hub-owned widget configuration. Replacing it is what
// triggers a chat manager restart decision.
type ChatConfig struct {
	TwitchEnabled  bool `json:"twitch_enabled"`
	YouTubeEnabled bool `json:"youtube_enabled"`

	MaxMessages       int  `json:"max_messages"`
	ShowTimestamps    bool `json:"show_timestamps"`
	ShowBadges        bool `json:"show_badges"`
	ShowPlatformIcons bool `json:"show_platform_icons"`
	UnifiedView       bool `json:"unified_view"`

	EnableFFZ     bool `json:"enable_ffz"`
	EnableBTTV    bool `json:"enable_bttv"`
	EnableSevenTV bool `json:"enable_7tv"`

	FilterByRoles    []UserRole `json:"filter_by_roles"`
	BlockedKeywords  []string   `json:"blocked_keywords"`
	MinMessageLength int        `json:"min_message_length"`

	TwitchChannel  string `json:"twitch_channel"`
	YouTubeVideoID string `json:"youtube_video_id"`
}

// DefaultChatConfig mirrors the zero-setup defaults the widget ships with.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		MaxMessages:       50,
		ShowTimestamps:    true,
		ShowBadges:        true,
		ShowPlatformIcons: true,
		UnifiedView:       true,
		EnableFFZ:         true,
		EnableBTTV:        true,
		EnableSevenTV:     true,
	}
}

// Allows applies the content filters (blocked keywords, minimum length, role
// allow-list) to an incoming message. An empty role list allows every role.
func (c ChatConfig) Allows(m ChatMessage) bool {
	if len(m.Message) < c.MinMessageLength {
		return false
	}
	lower := strings.ToLower(m.Message)
	for _, kw := range c.BlockedKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	if len(c.FilterByRoles) > 0 {
		ok := false
		for _, r := range c.FilterByRoles {
			if m.User.HasRole(r) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// NowPlaying is the current media snapshot. Each poll cycle fully replaces the
// previous value; there is no field-level merge.
type NowPlaying struct {
	Title       string `json:"title"`
	Album       string `json:"album"`
	Artist      string `json:"artist"`
	Playing     bool   `json:"playing"`
	SourceApp   string `json:"source_app"`
	ArtURL      string `json:"art_url"`
	HasArt      bool   `json:"has_art"`
	UpdatedUnix int64  `json:"updated_unix"`
}
