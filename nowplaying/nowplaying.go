// Package nowplaying polls the operating system's media sessions and keeps
// the hub's now-playing snapshot and album art file current. Every cycle
// publishes a snapshot, whether or not anything changed; album art is only
// rewritten when the track identity changes.
package nowplaying

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/state"
	"github.com/onnwee/stream-widgets/backend/telemetry"
)

const (
	// ArtFilename is the fixed name of the current album art file. Overlays
	// reference it by path; the file is overwritten in place on track change.
	ArtFilename = "album.png"
	// PlaceholderFilename holds the transparent 1x1 stand-in art.
	PlaceholderFilename = "placeholder.png"
)

// 1x1 transparent PNG.
var placeholderPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNk+A8AAwUBAO+X2F8AAAAASUVORK5CYII=")

// Session is a snapshot of one OS media session.
type Session struct {
	AppID        string
	Title        string
	Album        string
	Artist       string // raw; may carry an embedded album hint
	Playing      bool
	HasThumbnail bool
}

// Source exposes the operating system's media sessions. Implementations are
// platform-specific; tests use a fake.
type Source interface {
	// Sessions returns every current media session.
	Sessions(ctx context.Context) ([]Session, error)
	// WriteThumbnail writes the session's current artwork to path. The
	// boolean reports whether any bytes were written.
	WriteThumbnail(ctx context.Context, s Session, path string) (bool, error)
}

var albumTagRe = regexp.MustCompile(`(?i)\s*\[ALBUM:(.*?)\]\s*$`)

// ExtractAlbumFromArtist splits an artist string that carries an embedded
// album. Recognized formats, in precedence order: a trailing "[ALBUM:name]"
// tag, an em or en dash separator, and a spaced hyphen. A bare hyphen inside
// a name ("Jay-Z") never splits.
func ExtractAlbumFromArtist(raw string) (artist, album string) {
	if raw == "" {
		return "", ""
	}
	if m := albumTagRe.FindStringIndex(raw); m != nil {
		sub := albumTagRe.FindStringSubmatch(raw)
		return strings.TrimSpace(raw[:m[0]]), strings.TrimSpace(sub[1])
	}
	for _, dash := range []string{"—", "–"} {
		if before, after, ok := strings.Cut(raw, dash); ok {
			artist, album = strings.TrimSpace(before), strings.TrimSpace(after)
			if artist != "" && album != "" {
				return artist, album
			}
		}
	}
	if before, after, ok := strings.Cut(raw, " - "); ok {
		artist, album = strings.TrimSpace(before), strings.TrimSpace(after)
		if artist != "" && album != "" {
			return artist, album
		}
	}
	return strings.TrimSpace(raw), ""
}

// pickSession prefers the first actively playing session, falling back to
// the first session of any state.
func pickSession(sessions []Session) (Session, bool) {
	if len(sessions) == 0 {
		return Session{}, false
	}
	for _, s := range sessions {
		if s.Playing {
			return s, true
		}
	}
	return sessions[0], true
}

// Provider runs the poll loop for one Source.
type Provider struct {
	hub      *state.Hub
	src      Source
	artDir   string
	interval time.Duration

	lastArtSig string
	lastHasArt bool
}

// New builds a provider writing art files under artDir.
func New(hub *state.Hub, src Source, artDir string, interval time.Duration) *Provider {
	if interval <= 0 {
		interval = time.Second
	}
	return &Provider{hub: hub, src: src, artDir: artDir, interval: interval}
}

func (p *Provider) artPath() string { return filepath.Join(p.artDir, ArtFilename) }

func writePlaceholder(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, placeholderPNG, 0o644)
}

// EnsureArtFiles creates the placeholder and an initial album art file so
// the overlay always has something to render.
func EnsureArtFiles(artDir string) error {
	placeholder := filepath.Join(artDir, PlaceholderFilename)
	if _, err := os.Stat(placeholder); os.IsNotExist(err) {
		if err := writePlaceholder(placeholder); err != nil {
			return fmt.Errorf("write placeholder art: %w", err)
		}
	}
	album := filepath.Join(artDir, ArtFilename)
	if _, err := os.Stat(album); os.IsNotExist(err) {
		if err := writePlaceholder(album); err != nil {
			return fmt.Errorf("write initial album art: %w", err)
		}
	}
	return nil
}

// Run polls until the context is cancelled. Transient source errors keep the
// last published snapshot. Cancellation is a normal exit, not an error.
func (p *Provider) Run(ctx context.Context) error {
	if err := EnsureArtFiles(p.artDir); err != nil {
		return err
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		telemetry.TimeFunc(telemetry.NowPlayingCycleDuration, func() {
			if err := p.cycle(ctx); err != nil {
				slog.Debug("nowplaying cycle error", slog.Any("err", err))
			}
		})
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Provider) cycle(ctx context.Context) error {
	sessions, err := p.src.Sessions(ctx)
	if err != nil {
		return err
	}
	session, ok := pickSession(sessions)
	if !ok {
		// nothing is playing anywhere: reset art and publish an empty state
		if err := writePlaceholder(p.artPath()); err != nil {
			slog.Warn("album art reset failed", slog.Any("err", err))
		}
		p.lastArtSig = ""
		p.lastHasArt = false
		p.publish(model.NowPlaying{UpdatedUnix: time.Now().Unix()})
		return nil
	}

	artist, albumHint := ExtractAlbumFromArtist(session.Artist)
	album := session.Album
	if album == "" {
		album = albumHint
	}

	trackKey := strings.Join([]string{session.AppID, session.Title, album, artist}, "||")
	artSig := fmt.Sprintf("%s||thumb:%t", trackKey, session.HasThumbnail)

	if artSig != p.lastArtSig {
		hasArt := false
		if session.HasThumbnail {
			wrote, err := p.src.WriteThumbnail(ctx, session, p.artPath())
			if err != nil || !wrote {
				if err := writePlaceholder(p.artPath()); err != nil {
					slog.Warn("album art reset failed", slog.Any("err", err))
				}
			}
			hasArt = wrote && err == nil
		} else {
			if err := writePlaceholder(p.artPath()); err != nil {
				slog.Warn("album art reset failed", slog.Any("err", err))
			}
		}
		// an all-empty track never pins the signature, so real metadata
		// arriving later still triggers an art refresh
		if session.Title != "" || album != "" || artist != "" {
			p.lastArtSig = artSig
		} else {
			p.lastArtSig = ""
		}
		p.lastHasArt = hasArt
	}

	p.publish(model.NowPlaying{
		Title:       session.Title,
		Album:       album,
		Artist:      artist,
		Playing:     session.Playing,
		SourceApp:   session.AppID,
		ArtURL:      "/art/" + ArtFilename,
		HasArt:      p.lastHasArt,
		UpdatedUnix: time.Now().Unix(),
	})
	return nil
}

func (p *Provider) publish(np model.NowPlaying) {
	p.hub.SetNowPlaying(np)
	p.hub.Broadcast(state.Event{Type: "nowplaying", Data: np})
}
