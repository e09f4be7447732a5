package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/onnwee/stream-widgets/backend/model"
)

// ChatSettingsFilename is the chat configuration file kept under the data
// dir so overlay settings survive restarts.
const ChatSettingsFilename = "chat_settings.json"

// LoadChatSettings reads the persisted chat configuration. A missing file
// returns the defaults.
func LoadChatSettings(dir string) (model.ChatConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChatSettingsFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return model.DefaultChatConfig(), nil
		}
		return model.ChatConfig{}, fmt.Errorf("read chat settings: %w", err)
	}
	cfg := model.DefaultChatConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.ChatConfig{}, fmt.Errorf("parse chat settings: %w", err)
	}
	return cfg, nil
}

// SaveChatSettings persists the chat configuration.
func SaveChatSettings(dir string, cfg model.ChatConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	path := filepath.Join(dir, ChatSettingsFilename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write chat settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace chat settings: %w", err)
	}
	return nil
}
