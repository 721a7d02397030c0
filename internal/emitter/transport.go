package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketTransport is the online transport: a single persistent
// connection to the event-ingest endpoint, re-dialed lazily on first use
// or after a prior failure. Any write or dial error marks the transport
// disconnected so the next Emit call routes to the offline queue instead.
type WebSocketTransport struct {
	URL         string
	AccessToken func() string // read lazily so token refresh is picked up

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewWebSocketTransport constructs a transport targeting url; accessToken
// is called on every dial to fetch the current bearer token.
func NewWebSocketTransport(url string, accessToken func() string) *WebSocketTransport {
	return &WebSocketTransport{URL: url, AccessToken: accessToken}
}

func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send dials (if not already connected) and writes env as a JSON text
// frame. Any failure tears down the connection and reports disconnected,
// so the caller's emitter routes this (and subsequent) events to the
// offline queue until the next successful dial.
func (t *WebSocketTransport) Send(ctx context.Context, scope AccountScope, env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		if err := t.dialLocked(ctx); err != nil {
			t.connected = false
			return fmt.Errorf("dialing event transport: %w", err)
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.closeLocked()
		t.connected = false
		return fmt.Errorf("writing envelope: %w", err)
	}
	return nil
}

func (t *WebSocketTransport) dialLocked(ctx context.Context) error {
	header := http.Header{}
	if t.AccessToken != nil {
		if tok := t.AccessToken(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, t.URL, header)
	if err != nil {
		return err
	}
	t.conn = conn
	t.connected = true
	return nil
}

func (t *WebSocketTransport) closeLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// Close tears down any live connection. Safe to call even if never
// connected.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	t.connected = false
	return nil
}
