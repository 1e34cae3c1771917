package storage

import (
	"fmt"

	"fleetmaster/config"
)

// NewStore creates a Store implementation based on the database configuration.
// It supports SQLite (default) and PostgreSQL backends.
//
// For SQLite: uses Path from config or the platform default.
// For PostgreSQL: uses DSN or builds a connection string from Host, Port,
// User, Password, Name.
func NewStore(cfg *config.DatabaseConfig) (Store, error) {
	if cfg == nil {
		cfg = &config.DatabaseConfig{}
	}

	switch driver := cfg.EffectiveDriver(); driver {
	case "sqlite", "sqlite3", "modernc", "modernc-sqlite":
		path := cfg.Path
		if path == "" {
			path = GetDefaultDBPath()
		}
		return NewSQLiteStore(path)

	case "postgres", "postgresql":
		return NewPostgresStore(cfg)

	default:
		return nil, fmt.Errorf("unsupported database driver: %q (supported: sqlite, postgres)", driver)
	}
}
