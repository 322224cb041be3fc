package config

import "path/filepath"

// Config is the root configuration for archmon.
type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
}

// DiscordConfig holds the Discord bot settings.
type DiscordConfig struct {
	Token string `json:"token"`
	// DebugGuildID additionally registers the slash commands in one
	// guild, where they propagate instantly.
	DebugGuildID string `json:"debugGuildId,omitempty"`
	// LogChannelID receives lifecycle announcements (guild joins etc).
	LogChannelID string `json:"logChannelId,omitempty"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `json:"level"`
}

// DatabasePath returns the expanded database file path.
func (c *Config) DatabasePath() string {
	return expandHome(c.Database.Path)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "~/.archmon/archmon.db"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		home := homeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
