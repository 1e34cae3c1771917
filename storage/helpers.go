package storage

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// nullString returns a sql.NullString for optional string values.
// Empty strings are treated as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// marshalJSONMap encodes a map as JSON text for storage, mapping an empty or
// nil map to NULL.
func marshalJSONMap(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GetDefaultDBPath returns the platform-appropriate default SQLite path.
func GetDefaultDBPath() string {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = filepath.Join(os.Getenv("ProgramData"), "FleetMaster", "server")
	case "darwin":
		dir = "/Library/Application Support/FleetMaster/server"
	default:
		dir = "/var/lib/fleetmaster/server"
	}
	return filepath.Join(dir, "fleetmaster.db")
}
