package twitchchat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/stream-widgets/backend/model"
)

const actionPrefix = "\x01ACTION"

// unwrapAction strips the CTCP ACTION envelope from a "/me" message. The IRC
// library normally unwraps this itself; kept as a guard for raw relays.
func unwrapAction(text string) (string, bool) {
	if strings.HasPrefix(text, actionPrefix) && strings.HasSuffix(text, "\x01") {
		return strings.TrimSpace(text[len(actionPrefix) : len(text)-1]), true
	}
	return text, false
}

// rolesFromBadgeTag derives platform roles from the raw badges tag. Founders
// hold a founder badge instead of a subscriber badge but keep the role.
func rolesFromBadgeTag(badgeTag string) []model.UserRole {
	var roles []model.UserRole
	if strings.Contains(badgeTag, "broadcaster") {
		roles = append(roles, model.RoleBroadcaster)
	}
	if strings.Contains(badgeTag, "moderator") {
		roles = append(roles, model.RoleModerator)
	}
	if strings.Contains(badgeTag, "vip") {
		roles = append(roles, model.RoleVIP)
	}
	if strings.Contains(badgeTag, "subscriber") || strings.Contains(badgeTag, "founder") {
		roles = append(roles, model.RoleSubscriber)
	}
	return roles
}

// badgesFromTag resolves the raw badges tag ("subscriber/12,vip/1") to badge
// entries with icon URLs.
func badgesFromTag(badgeTag string, badges *badgeSet) []model.ChatBadge {
	if badgeTag == "" {
		return nil
	}
	var out []model.ChatBadge
	for _, pair := range strings.Split(badgeTag, ",") {
		name, version, ok := strings.Cut(pair, "/")
		if !ok {
			continue
		}
		out = append(out, model.ChatBadge{
			Name:    name,
			IconURL: badges.lookup(name + "/" + version),
		})
	}
	return out
}

// buildUser maps a Twitch chat author onto the shared user model.
func buildUser(msg twitch.PrivateMessage, badges *badgeSet) model.ChatUser {
	badgeTag := msg.Tags["badges"]
	u := model.NewChatUser(msg.User.ID, msg.User.Name, msg.User.DisplayName, model.PlatformTwitch, rolesFromBadgeTag(badgeTag)...)
	u.Color = msg.User.Color
	u.Badges = badgesFromTag(badgeTag, badges)
	return u
}

// nativeEmotes decodes the IRC emotes tag ("id:start-end,start-end/id2:...")
// against the message text. Ranges index Unicode code points, not bytes.
func nativeEmotes(emoteTag, text string) []model.Emote {
	if emoteTag == "" {
		return nil
	}
	runes := []rune(text)
	var out []model.Emote
	for _, entry := range strings.Split(emoteTag, "/") {
		id, positions, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		// the first range is enough to recover the code
		first, _, _ := strings.Cut(positions, ",")
		startStr, endStr, ok := strings.Cut(first, "-")
		if !ok {
			continue
		}
		start, err1 := strconv.Atoi(startStr)
		end, err2 := strconv.Atoi(endStr)
		if err1 != nil || err2 != nil || start < 0 || end >= len(runes) || start > end {
			continue
		}
		out = append(out, model.Emote{
			Code:     string(runes[start : end+1]),
			URL:      fmt.Sprintf("https://static-cdn.jtvnw.net/emoticons/v2/%s/default/dark/1.0", id),
			Provider: model.EmoteTwitch,
		})
	}
	return out
}

// thirdPartyEmotes scans whitespace-separated tokens against the loaded
// FFZ/BTTV/7TV sets, channel set first. Each code appears at most once.
func thirdPartyEmotes(text string, emotes *emoteSet) []model.Emote {
	if emotes == nil {
		return nil
	}
	var out []model.Emote
	seen := map[string]bool{}
	for _, word := range strings.Fields(text) {
		if seen[word] {
			continue
		}
		if e, ok := emotes.lookup(word); ok {
			out = append(out, e)
			seen[word] = true
		}
	}
	return out
}

// normalize converts one inbound IRC message into the shared chat model.
func normalize(msg twitch.PrivateMessage, badges *badgeSet, emotes *emoteSet) model.ChatMessage {
	text, action := unwrapAction(msg.Message)
	action = action || msg.Action

	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	id := msg.ID
	if id == "" {
		id = model.SynthesizeMessageID(msg.User.Name, ts)
	}

	all := nativeEmotes(msg.Tags["emotes"], text)
	all = append(all, thirdPartyEmotes(text, emotes)...)

	return model.ChatMessage{
		ID:        id,
		Platform:  model.PlatformTwitch,
		User:      buildUser(msg, badges),
		Message:   text,
		Timestamp: ts,
		Emotes:    all,
		Action:    action,
	}
}
