package ws

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageMarshalStampsTimestamp(t *testing.T) {
	t.Parallel()

	m := &Message{Type: MessageTypeHeartbeat}
	b, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if m.Timestamp.IsZero() {
		t.Error("expected Marshal to stamp a timestamp")
	}

	var decoded Message
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != MessageTypeHeartbeat {
		t.Errorf("type = %q, want %q", decoded.Type, MessageTypeHeartbeat)
	}
}

func TestMessageMarshalKeepsExplicitTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	m := &Message{Type: MessageTypeUpload, Timestamp: ts}
	if _, err := m.Marshal(); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !m.Timestamp.Equal(ts) {
		t.Errorf("timestamp overwritten: %v", m.Timestamp)
	}
}

func TestDialRejectsNonWebSocketSchemes(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"http://example.com/ws", "ftp://example.com", "://bad"} {
		if _, _, err := Dial(u, nil, nil, time.Second); err == nil {
			t.Errorf("Dial(%q) succeeded, want error", u)
		}
	}
}

func TestClosedConnHelpers(t *testing.T) {
	t.Parallel()

	var c *Conn
	if _, err := c.ReadMessage(); err == nil {
		t.Error("ReadMessage on nil conn should error")
	}
	if err := c.WriteRaw([]byte("x"), time.Second); err == nil {
		t.Error("WriteRaw on nil conn should error")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil conn should be a no-op, got %v", err)
	}
}
