package model

import (
	"strings"
	"testing"
	"time"
)

func TestNewChatUser_ViewerBaseline(t *testing.T) {
	u := NewChatUser("1", "alice", "Alice", PlatformTwitch)
	if !u.HasRole(RoleViewer) {
		t.Fatal("new user missing viewer baseline role")
	}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestNewChatUser_ExtraRolesDeduped(t *testing.T) {
	u := NewChatUser("1", "bob", "Bob", PlatformYouTube, RoleModerator, RoleModerator, RoleViewer)
	if got := len(u.Roles); got != 2 {
		t.Fatalf("expected viewer+moderator, got %v", u.Roles)
	}
	if !u.HasRole(RoleModerator) {
		t.Fatal("moderator role lost")
	}
}

func TestChatUser_Validate(t *testing.T) {
	bad := ChatUser{ID: "1", Username: "x", Roles: []UserRole{RoleModerator}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing viewer role")
	}
	empty := ChatUser{Roles: []UserRole{RoleViewer}}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected error for empty username")
	}
}

func TestSynthesizeMessageID(t *testing.T) {
	ts := time.Unix(1700000000, 42)
	id := SynthesizeMessageID("alice", ts)
	if !strings.HasPrefix(id, "alice_") {
		t.Fatalf("unexpected id %q", id)
	}
	if id == SynthesizeMessageID("alice", ts.Add(time.Nanosecond)) {
		t.Fatal("ids for different instants collide")
	}
}

func TestAuthTokens_Expired(t *testing.T) {
	tests := []struct {
		name string
		tok  AuthTokens
		want bool
	}{
		{"no expiry", AuthTokens{AccessToken: "a"}, false},
		{"future", AuthTokens{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}, false},
		{"past", AuthTokens{AccessToken: "a", ExpiresAt: time.Now().Add(-time.Minute)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Expired(); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChatConfig_Allows(t *testing.T) {
	msg := func(text string, roles ...UserRole) ChatMessage {
		return ChatMessage{
			Message: text,
			User:    NewChatUser("1", "u", "U", PlatformTwitch, roles...),
		}
	}
	tests := []struct {
		name string
		cfg  ChatConfig
		m    ChatMessage
		want bool
	}{
		{"default allows", DefaultChatConfig(), msg("hello"), true},
		{"min length blocks", ChatConfig{MinMessageLength: 10}, msg("short"), false},
		{"blocked keyword", ChatConfig{BlockedKeywords: []string{"SpAm"}}, msg("buy spam now"), false},
		{"keyword absent", ChatConfig{BlockedKeywords: []string{"spam"}}, msg("hello"), true},
		{"role allow-list blocks viewer", ChatConfig{FilterByRoles: []UserRole{RoleModerator}}, msg("hi"), false},
		{"role allow-list passes mod", ChatConfig{FilterByRoles: []UserRole{RoleModerator}}, msg("hi", RoleModerator), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Allows(tt.m); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}
