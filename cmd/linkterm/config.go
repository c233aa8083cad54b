package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// termConfig holds console preferences persisted between runs.
type termConfig struct {
	LinkConfig   string `toml:"link_config"`
	DisplayLimit int    `toml:"display_limit"`
	LiveEcho     bool   `toml:"live_echo"`
	ClearScreen  bool   `toml:"clear_screen_after_command"`
	SendMode     string `toml:"send_mode"`
}

func defaultTermConfig() termConfig {
	return termConfig{
		LinkConfig:   "cmd/linkctl/config.toml",
		DisplayLimit: 20,
		LiveEcho:     true,
		SendMode:     "ascii",
	}
}

// loadTermConfig overlays keys present in path onto the defaults. A missing
// file yields the defaults.
func loadTermConfig(path string) (termConfig, error) {
	cfg := defaultTermConfig()

	var raw termConfig
	meta, err := toml.DecodeFile(path, &raw)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return termConfig{}, fmt.Errorf("load linkterm config: %w", err)
	}

	if meta.IsDefined("link_config") {
		cfg.LinkConfig = strings.TrimSpace(raw.LinkConfig)
	}
	if meta.IsDefined("display_limit") {
		if raw.DisplayLimit < 0 {
			return termConfig{}, fmt.Errorf("display_limit must not be negative: %d", raw.DisplayLimit)
		}
		cfg.DisplayLimit = raw.DisplayLimit
	}
	if meta.IsDefined("live_echo") {
		cfg.LiveEcho = raw.LiveEcho
	}
	if meta.IsDefined("clear_screen_after_command") {
		cfg.ClearScreen = raw.ClearScreen
	}
	if meta.IsDefined("send_mode") {
		cfg.SendMode = strings.ToLower(strings.TrimSpace(raw.SendMode))
	}
	return cfg, nil
}

func saveTermConfig(path string, cfg termConfig) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode linkterm config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create linkterm config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write linkterm config: %w", err)
	}
	return nil
}
