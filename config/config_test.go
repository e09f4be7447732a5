package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "TWITCH_REDIRECT_URI", "TWITCH_SCOPES",
		"YT_CLIENT_ID", "YT_CLIENT_SECRET", "YT_REDIRECT_URI", "YT_SCOPES",
		"HTTP_ADDR", "DATA_DIR", "NOWPLAYING_POLL_INTERVAL", "CHAT_HISTORY_SNAPSHOT",
	} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:8765" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.TwitchScopes != "chat:read chat:edit" {
		t.Errorf("TwitchScopes = %q", cfg.TwitchScopes)
	}
	if cfg.NowPlayingInterval != time.Second {
		t.Errorf("NowPlayingInterval = %v", cfg.NowPlayingInterval)
	}
	if cfg.ChatHistorySnapshot != 50 {
		t.Errorf("ChatHistorySnapshot = %d", cfg.ChatHistorySnapshot)
	}
	if cfg.TwitchRedirectURI != "http://127.0.0.1:8765/auth/twitch/callback" {
		t.Errorf("TwitchRedirectURI = %q", cfg.TwitchRedirectURI)
	}
	if cfg.TwitchConfigured() {
		t.Error("TwitchConfigured() true without credentials")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	t.Setenv("TWITCH_REDIRECT_URI", "http://example.test/cb")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("NOWPLAYING_POLL_INTERVAL", "250ms")
	t.Setenv("CHAT_HISTORY_SNAPSHOT", "25")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.TwitchConfigured() {
		t.Error("TwitchConfigured() false with credentials set")
	}
	if cfg.NowPlayingInterval != 250*time.Millisecond {
		t.Errorf("NowPlayingInterval = %v", cfg.NowPlayingInterval)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.ChatHistorySnapshot != 25 {
		t.Errorf("ChatHistorySnapshot = %d", cfg.ChatHistorySnapshot)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SOME_INT", "42")
	if got := GetEnvInt("SOME_INT", 7); got != 42 {
		t.Errorf("GetEnvInt = %d", got)
	}
	t.Setenv("SOME_INT", "not-a-number")
	if got := GetEnvInt("SOME_INT", 7); got != 7 {
		t.Errorf("GetEnvInt fallback = %d", got)
	}
}
