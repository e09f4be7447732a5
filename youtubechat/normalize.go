package youtubechat

import (
	"strings"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-widgets/backend/model"
)

// normalize maps one API chat item onto the shared model. Only plain text
// messages pass; super chats, membership events and the like are skipped.
func normalize(item *yt.LiveChatMessage) (model.ChatMessage, bool) {
	if item == nil || item.Snippet == nil || item.Snippet.Type != "textMessageEvent" {
		return model.ChatMessage{}, false
	}
	text := ""
	if item.Snippet.TextMessageDetails != nil {
		text = item.Snippet.TextMessageDetails.MessageText
	}

	ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	if err != nil {
		ts = time.Now()
	}

	return model.ChatMessage{
		ID:        item.Id,
		Platform:  model.PlatformYouTube,
		User:      buildUser(item.AuthorDetails),
		Message:   text,
		Timestamp: ts,
		Emotes:    nil, // YouTube chat uses plain unicode emoji
	}, true
}

// buildUser maps author details onto the shared user model. YouTube exposes
// no user colors; roles come from the owner/moderator/sponsor flags.
func buildUser(a *yt.LiveChatMessageAuthorDetails) model.ChatUser {
	if a == nil {
		return model.NewChatUser("", "", "", model.PlatformYouTube)
	}
	username := a.ChannelId
	if a.ChannelUrl != "" {
		parts := strings.Split(a.ChannelUrl, "/")
		if last := parts[len(parts)-1]; last != "" {
			username = last
		}
	}
	var roles []model.UserRole
	var badges []model.ChatBadge
	if a.IsChatOwner {
		roles = append(roles, model.RoleBroadcaster)
		badges = append(badges, model.ChatBadge{Name: "owner"})
	}
	if a.IsChatModerator {
		roles = append(roles, model.RoleModerator)
		badges = append(badges, model.ChatBadge{Name: "moderator"})
	}
	if a.IsChatSponsor {
		roles = append(roles, model.RoleSubscriber)
		badges = append(badges, model.ChatBadge{Name: "member"})
	}

	u := model.NewChatUser(a.ChannelId, username, a.DisplayName, model.PlatformYouTube, roles...)
	u.Badges = badges
	return u
}
