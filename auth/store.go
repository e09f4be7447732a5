// Package auth handles OAuth for both chat platforms: authorize-URL
// construction, code exchange, CSRF state tracking, background token refresh
// and the on-disk token file the rest of the system reads at startup.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/onnwee/stream-widgets/backend/model"
)

// TokensFilename is the JSON token file kept under the data dir, keyed by
// platform name.
const TokensFilename = "tokens.json"

// FileStore persists per-platform tokens as a single JSON file. Writes go
// through a temp file followed by a rename so a crash never leaves a
// truncated token file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore builds a store living under dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, TokensFilename)}
}

// Load reads every stored token set. A missing file is an empty store.
func (s *FileStore) Load() (map[model.Platform]model.AuthTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (map[model.Platform]model.AuthTokens, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[model.Platform]model.AuthTokens{}, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	out := map[model.Platform]model.AuthTokens{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return out, nil
}

// Set stores the token set for one platform, keeping the others.
func (s *FileStore) Set(p model.Platform, t model.AuthTokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked()
	if err != nil {
		return err
	}
	all[p] = t
	return s.writeLocked(all)
}

// Delete removes the token set for one platform.
func (s *FileStore) Delete(p model.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked()
	if err != nil {
		return err
	}
	delete(all, p)
	return s.writeLocked(all)
}

func (s *FileStore) writeLocked(all map[model.Platform]model.AuthTokens) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}
