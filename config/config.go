// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// OAuth credentials are optional; missing ones disable the matching platform login.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	// Twitch OAuth app
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	TwitchScopes       string

	// YouTube OAuth app
	YTClientID     string
	YTClientSecret string
	YTRedirectURI  string
	YTScopes       string

	// HTTP
	HTTPAddr string

	// Storage
	DataDir string

	// Now-playing provider
	NowPlayingInterval time.Duration

	// Messages delivered as the initial history snapshot on /ws and as the
	// default page size on the messages endpoint.
	ChatHistorySnapshot int
}

// Load reads environment variables and applies defaults. Missing OAuth
// credentials are not an error; the auth endpoints report them as
// unconfigured instead.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		// read-only chat plus send for the widget's reply box
		cfg.TwitchScopes = "chat:read chat:edit"
	}

	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRedirectURI = os.Getenv("YT_REDIRECT_URI")
	cfg.YTScopes = os.Getenv("YT_SCOPES")
	if cfg.YTScopes == "" {
		cfg.YTScopes = "https://www.googleapis.com/auth/youtube.readonly"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "127.0.0.1:8765"
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.NowPlayingInterval = time.Second
	if v := os.Getenv("NOWPLAYING_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.NowPlayingInterval = d
		}
	}

	cfg.ChatHistorySnapshot = GetEnvInt("CHAT_HISTORY_SNAPSHOT", 50)
	if cfg.ChatHistorySnapshot <= 0 {
		cfg.ChatHistorySnapshot = 50
	}

	if cfg.TwitchRedirectURI == "" {
		cfg.TwitchRedirectURI = "http://" + cfg.HTTPAddr + "/auth/twitch/callback"
	}
	if cfg.YTRedirectURI == "" {
		cfg.YTRedirectURI = "http://" + cfg.HTTPAddr + "/auth/youtube/callback"
	}

	return cfg, nil
}

// TwitchConfigured reports whether the Twitch OAuth app credentials are set.
func (c *Config) TwitchConfigured() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != "" && c.TwitchRedirectURI != ""
}

// YouTubeConfigured reports whether the YouTube OAuth app credentials are set.
func (c *Config) YouTubeConfigured() bool {
	return c.YTClientID != "" && c.YTClientSecret != "" && c.YTRedirectURI != ""
}

// ArtDir is the directory album art files are written to.
func (c *Config) ArtDir() string {
	return filepath.Join(c.DataDir, "art")
}

// GetEnvInt returns an integer environment variable value or default if not set or invalid.
func GetEnvInt(key string, defaultVal int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return defaultVal
}
