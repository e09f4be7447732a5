package twitchchat

import (
	"strings"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/stream-widgets/backend/model"
)

func TestNativeEmotes_SingleRange(t *testing.T) {
	emotes := nativeEmotes("25:0-4", "Kappa test")
	if len(emotes) != 1 {
		t.Fatalf("got %d emotes, want 1", len(emotes))
	}
	if emotes[0].Code != "Kappa" {
		t.Errorf("code = %q, want Kappa", emotes[0].Code)
	}
	if !strings.Contains(emotes[0].URL, "/25/") {
		t.Errorf("url %q does not reference emote id 25", emotes[0].URL)
	}
	if emotes[0].Provider != model.EmoteTwitch {
		t.Errorf("provider = %q", emotes[0].Provider)
	}
}

func TestNativeEmotes_MultipleEntriesAndRanges(t *testing.T) {
	// second range of the first emote is ignored; only the code matters
	emotes := nativeEmotes("25:0-4,12-16/1902:6-10", "Kappa Keepo Kappa")
	if len(emotes) != 2 {
		t.Fatalf("got %d emotes, want 2", len(emotes))
	}
	if emotes[0].Code != "Kappa" || emotes[1].Code != "Keepo" {
		t.Errorf("codes = %q, %q", emotes[0].Code, emotes[1].Code)
	}
}

func TestNativeEmotes_CodePointOffsets(t *testing.T) {
	// ranges count code points, so multibyte text before the emote must not
	// shift the decoded code
	emotes := nativeEmotes("25:6-10", "héllo Kappa")
	if len(emotes) != 1 || emotes[0].Code != "Kappa" {
		t.Fatalf("emotes = %+v, want single Kappa", emotes)
	}
}

func TestNativeEmotes_Malformed(t *testing.T) {
	for _, tag := range []string{"", "25", "25:", "25:4-1", "25:0-999", "25:x-y"} {
		if got := nativeEmotes(tag, "Kappa"); len(got) != 0 {
			t.Errorf("tag %q produced %d emotes, want 0", tag, len(got))
		}
	}
}

func TestUnwrapAction(t *testing.T) {
	text, action := unwrapAction("\x01ACTION waves\x01")
	if !action || text != "waves" {
		t.Fatalf("got %q action=%v", text, action)
	}
	text, action = unwrapAction("plain message")
	if action || text != "plain message" {
		t.Fatalf("plain text altered: %q action=%v", text, action)
	}
}

func TestRolesFromBadgeTag(t *testing.T) {
	cases := []struct {
		tag  string
		want []model.UserRole
	}{
		{"broadcaster/1,subscriber/0", []model.UserRole{model.RoleBroadcaster, model.RoleSubscriber}},
		{"moderator/1", []model.UserRole{model.RoleModerator}},
		{"vip/1,subscriber/12", []model.UserRole{model.RoleVIP, model.RoleSubscriber}},
		{"founder/0", []model.UserRole{model.RoleSubscriber}},
		{"", nil},
	}
	for _, tc := range cases {
		got := rolesFromBadgeTag(tc.tag)
		if len(got) != len(tc.want) {
			t.Errorf("tag %q: roles %v, want %v", tc.tag, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("tag %q: roles %v, want %v", tc.tag, got, tc.want)
				break
			}
		}
	}
}

func TestBadgesFromTag_ChannelOverridesGlobal(t *testing.T) {
	bs := &badgeSet{
		global:  map[string]string{"subscriber/12": "https://global/sub12", "vip/1": "https://global/vip"},
		channel: map[string]string{"subscriber/12": "https://channel/sub12"},
	}
	badges := badgesFromTag("subscriber/12,vip/1", bs)
	if len(badges) != 2 {
		t.Fatalf("got %d badges, want 2", len(badges))
	}
	if badges[0].Name != "subscriber" || badges[0].IconURL != "https://channel/sub12" {
		t.Errorf("subscriber badge = %+v, want channel art", badges[0])
	}
	if badges[1].IconURL != "https://global/vip" {
		t.Errorf("vip badge = %+v, want global art", badges[1])
	}
}

func TestNormalize_FullMessage(t *testing.T) {
	msg := twitch.PrivateMessage{
		ID:      "abc-123",
		Message: "Kappa test",
		Time:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		User: twitch.User{
			ID:          "100",
			Name:        "somechatter",
			DisplayName: "SomeChatter",
			Color:       "#FF0000",
		},
		Tags: map[string]string{
			"emotes": "25:0-4",
			"badges": "moderator/1",
		},
	}
	got := normalize(msg, &badgeSet{global: fallbackBadges}, nil)

	if got.ID != "abc-123" || got.Platform != model.PlatformTwitch {
		t.Fatalf("identity fields wrong: %+v", got)
	}
	if !got.User.HasRole(model.RoleModerator) || !got.User.HasRole(model.RoleViewer) {
		t.Errorf("roles = %v", got.User.Roles)
	}
	if got.User.Color != "#FF0000" {
		t.Errorf("color = %q", got.User.Color)
	}
	if len(got.Emotes) != 1 || got.Emotes[0].Code != "Kappa" {
		t.Errorf("emotes = %+v", got.Emotes)
	}
	if len(got.User.Badges) != 1 || got.User.Badges[0].IconURL == "" {
		t.Errorf("badges = %+v, want moderator with fallback art", got.User.Badges)
	}
}

func TestNormalize_SynthesizesMissingID(t *testing.T) {
	msg := twitch.PrivateMessage{
		Message: "hello",
		User:    twitch.User{ID: "1", Name: "anon", DisplayName: "anon"},
	}
	got := normalize(msg, nil, nil)
	if !strings.HasPrefix(got.ID, "anon_") {
		t.Fatalf("id = %q, want synthesized anon_<ts>", got.ID)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("timestamp not defaulted")
	}
}

func TestThirdPartyEmotes_ChannelPrecedenceAndDedup(t *testing.T) {
	set := newEmoteSet()
	set.global["OMEGALUL"] = model.Emote{Code: "OMEGALUL", URL: "https://global/o", Provider: model.EmoteBTTV}
	set.channel["OMEGALUL"] = model.Emote{Code: "OMEGALUL", URL: "https://channel/o", Provider: model.EmoteSevenTV}
	set.global["monkaS"] = model.Emote{Code: "monkaS", URL: "https://global/m", Provider: model.EmoteFFZ}

	got := thirdPartyEmotes("OMEGALUL monkaS OMEGALUL", set)
	if len(got) != 2 {
		t.Fatalf("got %d emotes, want 2 (deduped)", len(got))
	}
	if got[0].URL != "https://channel/o" {
		t.Errorf("channel emote not preferred: %+v", got[0])
	}
}
