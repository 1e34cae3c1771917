// Package config provides shared configuration utilities for FleetMaster.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
)

// FindConfigFile searches for a config file in platform-appropriate locations.
// Returns the path and data if found, or an error if not found in any location.
func FindConfigFile(filename string) (string, []byte, error) {
	searchPaths := GetConfigSearchPaths(filename)

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// GetConfigSearchPaths returns an ordered list of paths to search for config files.
func GetConfigSearchPaths(filename string) []string {
	var searchPaths []string

	// 1. System directory (highest priority for services)
	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), "FleetMaster", "server", filename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support", "FleetMaster", "server", filename))
	default: // Linux and other Unix-like
		searchPaths = append(searchPaths, filepath.Join("/etc/fleetmaster", filename))
	}

	// 2. User-specific config directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "AppData", "Local", "FleetMaster", "server", filename))
		case "darwin":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "Library", "Application Support", "FleetMaster", "server", filename))
		default:
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "fleetmaster", filename))
		}
	}

	// 3. Executable directory
	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), filename))
	}

	// 4. Current working directory (lowest priority)
	searchPaths = append(searchPaths, filepath.Join(".", filename))

	return searchPaths
}

// GetDataDirectory returns the appropriate directory for storing application data.
// When running as a service, returns the system-wide directory.
func GetDataDirectory(isService bool) (string, error) {
	var dataDir string

	if isService {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), "FleetMaster", "server")
		default:
			dataDir = "/var/lib/fleetmaster/server"
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}

		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", "FleetMaster", "server")
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library", "Application Support", "FleetMaster", "server")
		default:
			dataDir = filepath.Join(homeDir, ".local", "share", "fleetmaster", "server")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

// WriteDefaultTOML writes a default TOML configuration file with the provided structure
func WriteDefaultTOML(configPath string, config interface{}) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadTOML loads a TOML configuration file into the provided structure
func LoadTOML(configPath string, config interface{}) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DatabaseConfig holds database settings. SQLite uses Path; PostgreSQL uses
// DSN or the discrete Host/Port/User/Password/Name fields.
type DatabaseConfig struct {
	Driver              string `toml:"driver"`
	Path                string `toml:"path"`
	DSN                 string `toml:"dsn"`
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	User                string `toml:"user"`
	Password            string `toml:"password"`
	Name                string `toml:"name"`
	SSLMode             string `toml:"ssl_mode"`
	MaxOpenConns        int    `toml:"max_open_conns"`
	MaxIdleConns        int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSecs int    `toml:"conn_max_lifetime_secs"`
}

// EffectiveDriver returns the configured driver, defaulting to sqlite.
func (c *DatabaseConfig) EffectiveDriver() string {
	if c.Driver == "" {
		return "sqlite"
	}
	return c.Driver
}

// BuildDSN assembles a connection string for the configured driver.
// For SQLite this is the database path; for PostgreSQL it is either the
// explicit DSN or a keyword/value string built from the discrete fields.
func (c *DatabaseConfig) BuildDSN() string {
	switch c.EffectiveDriver() {
	case "postgres", "postgresql":
		if c.DSN != "" {
			return c.DSN
		}
		if c.Host == "" || c.Name == "" {
			return ""
		}
		port := c.Port
		if port == 0 {
			port = 5432
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		dsn := "host=" + c.Host + " port=" + strconv.Itoa(port) + " dbname=" + c.Name + " sslmode=" + sslMode
		if c.User != "" {
			dsn += " user=" + c.User
		}
		if c.Password != "" {
			dsn += " password=" + c.Password
		}
		return dsn
	default:
		return c.Path
	}
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"`
}

// ApplyDatabaseEnvOverrides applies common environment variable overrides
func ApplyDatabaseEnvOverrides(cfg *DatabaseConfig) {
	if val := os.Getenv("DB_DRIVER"); val != "" {
		cfg.Driver = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		cfg.Path = val
	}
	if val := os.Getenv("DB_DSN"); val != "" {
		cfg.DSN = val
	}
}

func ApplyLoggingEnvOverrides(cfg *LoggingConfig) {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Level = val
	}
}
