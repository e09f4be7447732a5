package nowplaying

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SessionFilename is the snapshot file a platform companion keeps current.
const SessionFilename = "media_session.json"

// sessionFile is the on-disk shape one companion-reported session takes.
type sessionFile struct {
	AppID     string `json:"app_id"`
	Title     string `json:"title"`
	Album     string `json:"album"`
	Artist    string `json:"artist"`
	Playing   bool   `json:"playing"`
	Thumbnail string `json:"thumbnail,omitempty"` // path to current artwork
}

// FileSource reads media sessions from a JSON snapshot file that an
// OS-specific companion process overwrites as playback changes. A missing
// file means no sessions.
type FileSource struct {
	Dir string
}

func (f *FileSource) path() string { return filepath.Join(f.Dir, SessionFilename) }

// Sessions implements Source.
func (f *FileSource) Sessions(ctx context.Context) ([]Session, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var raw []sessionFile
	if err := json.Unmarshal(data, &raw); err != nil {
		// the companion may also write a single object
		var one sessionFile
		if err2 := json.Unmarshal(data, &one); err2 != nil {
			return nil, fmt.Errorf("parse %s: %w", SessionFilename, err)
		}
		raw = []sessionFile{one}
	}
	out := make([]Session, 0, len(raw))
	for _, s := range raw {
		out = append(out, Session{
			AppID:        s.AppID,
			Title:        s.Title,
			Album:        s.Album,
			Artist:       s.Artist,
			Playing:      s.Playing,
			HasThumbnail: s.Thumbnail != "",
		})
	}
	return out, nil
}

// WriteThumbnail implements Source by copying the companion's artwork file.
func (f *FileSource) WriteThumbnail(ctx context.Context, s Session, path string) (bool, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		return false, err
	}
	var raw []sessionFile
	if err := json.Unmarshal(data, &raw); err != nil {
		var one sessionFile
		if err2 := json.Unmarshal(data, &one); err2 != nil {
			return false, err
		}
		raw = []sessionFile{one}
	}
	thumb := ""
	for _, r := range raw {
		if r.AppID == s.AppID && r.Thumbnail != "" {
			thumb = r.Thumbnail
			break
		}
	}
	if thumb == "" {
		return false, nil
	}
	src, err := os.Open(thumb)
	if err != nil {
		return false, err
	}
	defer src.Close()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	dst, err := os.Create(path)
	if err != nil {
		return false, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
