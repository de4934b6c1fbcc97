// Package config loads the application configuration from a TOML file with
// optional environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Database Database `toml:"database"`
	Library  Library  `toml:"library"`
	Playback Playback `toml:"playback"`
	Logging  Logging  `toml:"logging"`
}

// Database contains storage configuration
type Database struct {
	Path string `toml:"path"`
}

// Library contains import configuration
type Library struct {
	SupportedFormats []string `toml:"supported_formats"`
	WatchDir         string   `toml:"watch_dir"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
}

// Playback contains playback defaults
type Playback struct {
	RateStep  float64 `toml:"rate_step"`  // increment applied by the rate controls
	HandleDir string  `toml:"handle_dir"` // where audio handles are materialized; empty = system temp
}

// Logging contains logging configuration
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: Database{
			Path: "./dacapo.db",
		},
		Library: Library{
			SupportedFormats: []string{".mp3", ".wav", ".flac"},
			WatchDir:         "./inbox",
			WatchForChanges:  false,
		},
		Playback: Playback{
			RateStep: 0.1,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating it with
// defaults when absent. A .env file and process environment may override
// the database path and log level (DACAPO_DB_PATH, DACAPO_LOG_LEVEL).
func LoadConfig(configPath string) (*Config, error) {
	godotenv.Load(".env")

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if path := os.Getenv("DACAPO_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if level := os.Getenv("DACAPO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Dacapo Configuration
# Settings for the A-B loop practice player.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if len(c.Library.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}
	if c.Library.WatchForChanges && c.Library.WatchDir == "" {
		return fmt.Errorf("watch dir cannot be empty when watching is enabled")
	}
	if c.Playback.RateStep <= 0 || c.Playback.RateStep > 1 {
		return fmt.Errorf("playback rate step must be in (0, 1]")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}
