package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"fleetmaster/fleet"
	"fleetmaster/storage"
	wscommon "fleetmaster/ws"
)

// newWSTestServer starts an HTTP test server with the full route set and
// returns a dialer for its /ws endpoint.
func newWSTestServer(t *testing.T) (*fleet.Manager, func(clientID string, info map[string]interface{}) *wscommon.Conn) {
	t.Helper()

	manager, mux := newTestMux(t)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dial := func(clientID string, info map[string]interface{}) *wscommon.Conn {
		t.Helper()
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?id=" + url.QueryEscape(clientID)
		if info != nil {
			raw, err := json.Marshal(info)
			if err != nil {
				t.Fatalf("marshal info: %v", err)
			}
			wsURL += "&info=" + url.QueryEscape(string(raw))
		}
		conn, _, err := wscommon.Dial(wsURL, nil, nil, 5*time.Second)
		if err != nil {
			t.Fatalf("dial %s: %v", wsURL, err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return manager, dial
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sendAgentMessage(t *testing.T, conn *wscommon.Conn, msgType string, data map[string]interface{}) {
	t.Helper()
	msg := &wscommon.Message{Type: msgType, Data: data}
	if err := conn.WriteMessage(msg, 5*time.Second); err != nil {
		t.Fatalf("write %s message: %v", msgType, err)
	}
}

func TestAgentWebSocketRejectsMissingID(t *testing.T) {
	_, mux := newTestMux(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAgentWebSocketConnectAndDisconnect(t *testing.T) {
	manager, dial := newWSTestServer(t)
	ctx := context.Background()

	conn := dial("agent-ws-1", map[string]interface{}{"model": "Pixel 6"})

	waitFor(t, "connection registered", func() bool {
		return manager.IsConnected("agent-ws-1")
	})

	client, err := manager.Client(ctx, "agent-ws-1")
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	if client == nil || !client.IsOnline {
		t.Fatalf("client record = %+v, want online record", client)
	}
	if client.DynamicData["model"] != "Pixel 6" {
		t.Errorf("DynamicData model = %v, want Pixel 6", client.DynamicData["model"])
	}

	conn.Close()

	waitFor(t, "disconnect recorded", func() bool {
		if manager.IsConnected("agent-ws-1") {
			return false
		}
		client, err := manager.Client(ctx, "agent-ws-1")
		return err == nil && client != nil && !client.IsOnline
	})
}

func TestAgentWebSocketHeartbeatPong(t *testing.T) {
	manager, dial := newWSTestServer(t)

	conn := dial("agent-ws-2", nil)
	waitFor(t, "connection registered", func() bool {
		return manager.IsConnected("agent-ws-2")
	})

	sendAgentMessage(t, conn, wscommon.MessageTypeHeartbeat, nil)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	var msg wscommon.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("parse pong: %v", err)
	}
	if msg.Type != wscommon.MessageTypePong {
		t.Errorf("reply type = %q, want %q", msg.Type, wscommon.MessageTypePong)
	}
}

func TestAgentWebSocketDeliversCommands(t *testing.T) {
	manager, dial := newWSTestServer(t)

	conn := dial("agent-ws-3", nil)
	waitFor(t, "connection registered", func() bool {
		return manager.IsConnected("agent-ws-3")
	})

	status, err := manager.SendCommand(context.Background(), "agent-ws-3", fleet.CommandLock, map[string]interface{}{"message": "locked"})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if status != fleet.StatusRequested {
		t.Fatalf("status = %q, want %q", status, fleet.StatusRequested)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read command: %v", err)
	}
	var msg wscommon.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("parse command: %v", err)
	}
	if msg.Type != wscommon.MessageTypeCommand {
		t.Errorf("message type = %q, want %q", msg.Type, wscommon.MessageTypeCommand)
	}
	if msg.Data["type"] != fleet.CommandLock {
		t.Errorf("command type = %v, want %q", msg.Data["type"], fleet.CommandLock)
	}
	if msg.Data["message"] != "locked" {
		t.Errorf("command payload message = %v, want locked", msg.Data["message"])
	}
}

func TestAgentWebSocketTelemetry(t *testing.T) {
	manager, dial := newWSTestServer(t)
	ctx := context.Background()

	conn := dial("agent-ws-4", nil)
	waitFor(t, "connection registered", func() bool {
		return manager.IsConnected("agent-ws-4")
	})

	sendAgentMessage(t, conn, wscommon.MessageTypeCall, map[string]interface{}{
		"phoneNo":   "15551234",
		"name":      "Alice",
		"direction": "incoming",
		"duration":  float64(42),
		"date":      float64(time.Now().UnixMilli()),
	})
	sendAgentMessage(t, conn, wscommon.MessageTypeLocation, map[string]interface{}{
		"latitude":  52.52,
		"longitude": 13.405,
		"accuracy":  8.5,
		"date":      float64(time.Now().UnixMilli()),
	})
	sendAgentMessage(t, conn, wscommon.MessageTypeSnapshot, map[string]interface{}{
		"section": "contacts",
		"data":    []interface{}{map[string]interface{}{"name": "Alice", "phoneNo": "15551234"}},
	})

	waitFor(t, "call entry ingested", func() bool {
		data, err := manager.GetPage(ctx, "agent-ws-4", fleet.PageCalls, "")
		if err != nil {
			return false
		}
		calls, ok := data.([]*storage.CallEntry)
		return ok && len(calls) == 1 && calls[0].PhoneNo == "15551234" && calls[0].Duration == 42
	})
	waitFor(t, "location sample ingested", func() bool {
		data, err := manager.GetPage(ctx, "agent-ws-4", fleet.PageGPS, "")
		if err != nil {
			return false
		}
		samples, ok := data.([]*storage.LocationSample)
		return ok && len(samples) == 1 && samples[0].Latitude == 52.52
	})
	waitFor(t, "contacts snapshot ingested", func() bool {
		data, err := manager.GetPage(ctx, "agent-ws-4", fleet.PageContacts, "")
		if err != nil || data == nil {
			return false
		}
		raw, ok := data.(json.RawMessage)
		return ok && strings.Contains(string(raw), "Alice")
	})
}

func TestAgentWebSocketUpload(t *testing.T) {
	manager, dial := newWSTestServer(t)
	ctx := context.Background()

	conn := dial("agent-ws-5", nil)
	waitFor(t, "connection registered", func() bool {
		return manager.IsConnected("agent-ws-5")
	})

	payload := base64.StdEncoding.EncodeToString([]byte("fake png bytes"))
	sendAgentMessage(t, conn, wscommon.MessageTypeUpload, map[string]interface{}{
		"name":   "capture.png",
		"buffer": payload,
		"image":  true,
	})

	waitFor(t, "upload recorded", func() bool {
		data, err := manager.GetPage(ctx, "agent-ws-5", fleet.PageScreenshot, "")
		if err != nil {
			return false
		}
		downloads, ok := data.([]*storage.DownloadRecord)
		return ok && len(downloads) == 1 && strings.HasSuffix(downloads[0].Path, ".png")
	})
}

func TestWSFieldHelpers(t *testing.T) {
	data := map[string]interface{}{
		"s": "hello",
		"b": true,
		"f": 3.5,
		"n": nil,
	}

	if got := wsStringField(data, "s"); got != "hello" {
		t.Errorf("wsStringField(s) = %q", got)
	}
	if got := wsStringField(data, "b"); got != "" {
		t.Errorf("wsStringField(b) = %q, want empty", got)
	}
	if got := wsStringField(data, "missing"); got != "" {
		t.Errorf("wsStringField(missing) = %q, want empty", got)
	}
	if !wsBoolField(data, "b") {
		t.Error("wsBoolField(b) = false, want true")
	}
	if wsBoolField(data, "s") || wsBoolField(data, "missing") {
		t.Error("wsBoolField on non-bool should be false")
	}
	if got := wsFloatField(data, "f"); got != 3.5 {
		t.Errorf("wsFloatField(f) = %v, want 3.5", got)
	}
	if got := wsFloatField(data, "n"); got != 0 {
		t.Errorf("wsFloatField(n) = %v, want 0", got)
	}
}

func TestWSTimeField(t *testing.T) {
	millis := float64(1700000000000)
	data := map[string]interface{}{
		"date": millis,
		"bad":  "yesterday",
		"zero": float64(0),
	}

	if got := wsTimeField(data, "date"); got.UnixMilli() != int64(millis) {
		t.Errorf("wsTimeField(date) = %v, want epoch millis %v", got.UnixMilli(), int64(millis))
	}

	// Non-numeric and non-positive values fall back to the current time.
	before := time.Now().Add(-time.Minute)
	for _, key := range []string{"bad", "zero", "missing"} {
		if got := wsTimeField(data, key); got.Before(before) {
			t.Errorf("wsTimeField(%s) = %v, want approximately now", key, got)
		}
	}
}
