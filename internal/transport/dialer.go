package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"studysync/pkg/interfaces"
	"studysync/pkg/types"
)

// WebsocketDialer establishes websocket connections to a session channel on
// the relay. Implements interfaces.Dialer.
type WebsocketDialer struct {
	// BaseURL is the relay websocket endpoint, e.g. ws://localhost:8080/ws.
	BaseURL string

	HandshakeTimeout time.Duration
}

// NewWebsocketDialer creates a dialer for the given relay endpoint.
func NewWebsocketDialer(baseURL string) *WebsocketDialer {
	return &WebsocketDialer{
		BaseURL:          baseURL,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Dial connects to the session channel, identifying the caller via query
// parameters the relay validates against the store.
func (d *WebsocketDialer) Dial(ctx context.Context, sessionID string, identity *types.Identity) (interfaces.Transport, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}

	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("user_id", identity.ID)
	q.Set("user_name", identity.Name)
	q.Set("role", identity.Role)
	u.RawQuery = q.Encode()

	dialer := &websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial session channel: %w", err)
	}

	return NewConn(ws), nil
}
