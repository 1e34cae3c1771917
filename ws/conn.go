package ws

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a thin wrapper around *websocket.Conn exposing the small helper
// methods the server and agents use.
type Conn struct {
	c *websocket.Conn
	// writeMu serializes all writes to the underlying websocket.Conn.
	// Gorilla websocket Conn panics on concurrent writes; protect against that here.
	writeMu sync.Mutex
}

// Dial connects to the given WebSocket URL and returns a wrapped Conn and HTTP response.
// tlsCfg may be nil to use default TLS settings.
func Dial(urlStr string, reqHeader http.Header, tlsCfg *tls.Config, handshakeTimeout time.Duration) (*Conn, *http.Response, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, nil, fmt.Errorf("URL scheme must be ws or wss, got %q", parsed.Scheme)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout, TLSClientConfig: tlsCfg}
	c, resp, err := dialer.Dial(parsed.String(), reqHeader)
	if err != nil {
		return nil, resp, err
	}
	return &Conn{c: c}, resp, nil
}

// UpgradeHTTP upgrades an incoming HTTP request to a websocket Conn using a permissive upgrader.
func UpgradeHTTP(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// ReadMessage reads a text message and returns the raw bytes.
func (cw *Conn) ReadMessage() ([]byte, error) {
	if cw == nil || cw.c == nil {
		return nil, errors.New("websocket: connection is closed")
	}
	_, msg, err := cw.c.ReadMessage()
	return msg, err
}

// WriteMessage marshals a ws Message (stamping its timestamp) and writes it
// with a write deadline.
func (cw *Conn) WriteMessage(msg *Message, timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errors.New("websocket: connection is closed")
	}
	b, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("websocket: marshal message: %w", err)
	}
	return cw.WriteRaw(b, timeout)
}

// WriteRaw writes raw bytes as a text message.
func (cw *Conn) WriteRaw(b []byte, timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errors.New("websocket: connection is closed")
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	if timeout > 0 {
		cw.c.SetWriteDeadline(time.Now().Add(timeout))
	}
	return cw.c.WriteMessage(websocket.TextMessage, b)
}

// WritePing sends a ping control message.
func (cw *Conn) WritePing(timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errors.New("websocket: connection is closed")
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	if timeout > 0 {
		cw.c.SetWriteDeadline(time.Now().Add(timeout))
	}
	return cw.c.WriteMessage(websocket.PingMessage, nil)
}

// SetReadDeadline sets the read deadline on the underlying conn.
func (cw *Conn) SetReadDeadline(t time.Time) error {
	if cw == nil || cw.c == nil {
		return errors.New("websocket: connection is closed")
	}
	return cw.c.SetReadDeadline(t)
}

// SetPongHandler installs a handler for pong control messages.
func (cw *Conn) SetPongHandler(h func(string) error) {
	if cw == nil || cw.c == nil {
		return
	}
	cw.c.SetPongHandler(h)
}

// Close closes the underlying websocket connection.
func (cw *Conn) Close() error {
	if cw == nil || cw.c == nil {
		return nil
	}
	return cw.c.Close()
}

// IsUnexpectedCloseError reports whether err is a close error with a code not
// in the expected list.
func IsUnexpectedCloseError(err error, expectedCodes ...int) bool {
	return websocket.IsUnexpectedCloseError(err, expectedCodes...)
}
