// Package config loads the TOML configuration, layering the user's
// config directory under any config.toml in the working directory.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Server is the music server to stream from.
	Server ServerConfig `koanf:"server"`

	// Last.fm scrobbling (enables scrobbling when configured)
	Lastfm LastfmConfig `koanf:"lastfm"`

	// Player tuning knobs
	Player PlayerConfig `koanf:"player"`
}

// ServerConfig holds the Subsonic-compatible server connection settings.
type ServerConfig struct {
	URL        string `koanf:"url"` // e.g., "https://music.example.com"
	Username   string `koanf:"username"`
	Password   string `koanf:"password"`
	ClientName string `koanf:"client_name"` // reported to the server, default "sub000"
}

// LastfmConfig holds Last.fm scrobbling configuration.
type LastfmConfig struct {
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
}

// PlayerConfig holds playback tuning configuration.
type PlayerConfig struct {
	PositionIntervalMs int `koanf:"position_interval_ms"` // min spacing of position updates (default: 250)
	StartupQueueSize   int `koanf:"startup_queue_size"`   // random tracks fetched when no saved queue (default: 20)
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Normalize server URL (remove trailing slash)
	cfg.Server.URL = strings.TrimSuffix(cfg.Server.URL, "/")

	if cfg.Server.ClientName == "" {
		cfg.Server.ClientName = "sub000"
	}

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/sub000/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sub000", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

// HasServerConfig returns true if the streaming server is configured.
func (c *Config) HasServerConfig() bool {
	return c.Server.URL != "" && c.Server.Username != "" && c.Server.Password != ""
}

// HasLastfmConfig returns true if Last.fm scrobbling is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// GetPlayerConfig returns the player configuration with defaults applied.
func (c *Config) GetPlayerConfig() PlayerConfig {
	cfg := c.Player

	if cfg.PositionIntervalMs <= 0 {
		cfg.PositionIntervalMs = 250
	}
	if cfg.StartupQueueSize <= 0 || cfg.StartupQueueSize > 500 {
		cfg.StartupQueueSize = 20
	}

	return cfg
}
