// Copyright 2025 PanFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config handles the per-user settings file and the paths under
// the configuration directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"panfs/internal/artifacts"
)

// getConfigDir returns the config directory path.
// Uses PANFS_CONFIG_DIR env var if set, otherwise defaults to ~/.panfs.
// Computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("PANFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".panfs")
}

// Dir returns the configuration directory path.
func Dir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// ServeLockPath returns the lock file guarding a single serve instance.
func ServeLockPath() string {
	return filepath.Join(getConfigDir(), "serve.lock")
}

// LogPath returns the log file path.
// Uses PANFS_LOG env var if set, otherwise defaults to config_dir/panfs.log.
func LogPath() string {
	if envPath := os.Getenv("PANFS_LOG"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), "panfs.log")
}

// EnsureDir creates the config directory if it doesn't exist.
func EnsureDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// Init initializes the config directory with the default settings file.
func Init() error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path := SettingsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, artifacts.DefaultSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// Settings is the per-user configuration from ~/.panfs/settings.yaml.
type Settings struct {
	Endpoint string `yaml:"endpoint"`  // base URL of the drive API
	Cookie   string `yaml:"cookie"`    // authentication cookie
	LogLevel string `yaml:"log_level"` // trace, debug, info, warn, off
	ServeAddr string `yaml:"serve_addr"`

	AttrTTLSeconds int `yaml:"attr_ttl_seconds"`
	AttrCacheSize  int `yaml:"attr_cache_size"`
	DirCacheSize   int `yaml:"dir_cache_size"`
	PathIndexSize  int `yaml:"path_index_size"`
	PageSize       int `yaml:"page_size"`
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.Endpoint == "" {
		s.Endpoint = "https://webapi.example.com"
	}
	if s.LogLevel == "" {
		s.LogLevel = "off"
	}
	if s.ServeAddr == "" {
		s.ServeAddr = "127.0.0.1:20049"
	}
}

// AttrTTL returns the configured attribute TTL, or zero for the default.
func (s *Settings) AttrTTL() time.Duration {
	return time.Duration(s.AttrTTLSeconds) * time.Second
}

// LoggingEnabled returns whether logging is enabled (any level other than
// "off" or empty).
func (s *Settings) LoggingEnabled() bool {
	level := strings.ToLower(s.LogLevel)
	return level != "" && level != "off" && level != "none"
}

// loadDefaults parses the embedded settings template.
func loadDefaults() Settings {
	var s Settings
	if err := yaml.Unmarshal(artifacts.DefaultSettings, &s); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	s.ApplyDefaults()
	return s
}

// Load reads the settings file, falling back to embedded defaults when the
// file does not exist. The cookie may always be overridden with PANFS_COOKIE.
func Load() (*Settings, error) {
	var s Settings
	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", SettingsPath(), err)
		}
		s.ApplyDefaults()
	case os.IsNotExist(err):
		s = loadDefaults()
	default:
		return nil, err
	}
	if cookie := os.Getenv("PANFS_COOKIE"); cookie != "" {
		s.Cookie = cookie
	}
	return &s, nil
}

// Save writes the settings back to the settings file.
func Save(s *Settings) error {
	if err := EnsureDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	header := []byte("# PanFS settings\n# See: panfs --help\n\n")
	return os.WriteFile(SettingsPath(), append(header, data...), 0600)
}
