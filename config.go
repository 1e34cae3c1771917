package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fleetmaster/config"
)

const configFileName = "server.toml"

// Config represents the server configuration
type Config struct {
	Server   ServerConfig          `toml:"server"`
	Database config.DatabaseConfig `toml:"database"`
	Logging  config.LoggingConfig  `toml:"logging"`
	Fleet    FleetConfig           `toml:"fleet"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Port        int    `toml:"port"`
	BindAddress string `toml:"bind_address"`
}

// FleetConfig holds agent-fleet behavior settings
type FleetConfig struct {
	// LocationPollIntervalSeconds is the period of the per-client
	// location-freshness check.
	LocationPollIntervalSeconds int `toml:"location_poll_interval_seconds"`

	// DownloadsDir is where ingested media is written. Empty = a
	// "downloads" directory next to the database.
	DownloadsDir string `toml:"downloads_dir"`

	// MaxConcurrentUploads caps simultaneous media ingests.
	MaxConcurrentUploads int `toml:"max_concurrent_uploads"`

	// MinAgentVersion logs a warning for agents connecting with an older
	// version. Empty disables the check.
	MinAgentVersion string `toml:"min_agent_version"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        9090,
			BindAddress: "0.0.0.0",
		},
		Database: config.DatabaseConfig{
			Path: "", // Empty = use platform default
		},
		Logging: config.LoggingConfig{
			Level: "info",
		},
		Fleet: FleetConfig{
			LocationPollIntervalSeconds: 60,
			MaxConcurrentUploads:        4,
		},
	}
}

// LoadConfig loads configuration from a TOML file with environment variable
// overrides. An empty configPath searches the platform locations; a missing
// file is not an error (defaults apply).
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		if found, _, err := config.FindConfigFile(configFileName); err == nil {
			configPath = found
		}
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := config.LoadTOML(configPath, cfg); err != nil {
				return nil, err
			}
		}
	}

	if val := os.Getenv("SERVER_PORT"); val != "" {
		var port int
		if _, err := fmt.Sscanf(val, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if val := os.Getenv("BIND_ADDRESS"); val != "" {
		cfg.Server.BindAddress = val
	}
	if val := os.Getenv("FLEET_POLL_INTERVAL_SECONDS"); val != "" {
		var v int
		if _, err := fmt.Sscanf(val, "%d", &v); err == nil {
			cfg.Fleet.LocationPollIntervalSeconds = v
		}
	}
	if val := os.Getenv("FLEET_DOWNLOADS_DIR"); val != "" {
		cfg.Fleet.DownloadsDir = val
	}
	if val := os.Getenv("FLEET_MAX_CONCURRENT_UPLOADS"); val != "" {
		var v int
		if _, err := fmt.Sscanf(val, "%d", &v); err == nil {
			cfg.Fleet.MaxConcurrentUploads = v
		}
	}
	if val := os.Getenv("FLEET_MIN_AGENT_VERSION"); val != "" {
		cfg.Fleet.MinAgentVersion = val
	}
	if val := os.Getenv("SERVER_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	} else {
		config.ApplyLoggingEnvOverrides(&cfg.Logging)
	}
	config.ApplyDatabaseEnvOverrides(&cfg.Database)

	return cfg, nil
}

// WriteDefaultConfig writes the default configuration to configPath,
// refusing to clobber an existing file.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}
	return config.WriteDefaultTOML(configPath, DefaultConfig())
}

// downloadsDir resolves the media directory: the configured one, or a
// "downloads" directory inside the data directory.
func (c *Config) downloadsDir(dataDir string) string {
	if c.Fleet.DownloadsDir != "" {
		return c.Fleet.DownloadsDir
	}
	return filepath.Join(dataDir, "downloads")
}
