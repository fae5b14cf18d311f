// Package relay implements the transport substrate the engine trusts:
// websocket subscriptions per session channel and fan-out of every inbound
// envelope to all channel subscribers.
package relay

import (
	"sync"

	"github.com/sirupsen/logrus"

	"studysync/internal/transport"
)

// subscriber is one client's subscription to a session channel.
type subscriber struct {
	userID    string
	sessionID string
	conn      *transport.Conn
}

// Registry tracks session channel subscriptions with O(1) lookup by user
// and by session.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]*subscriber            // userID -> subscription
	channels map[string]map[string]*subscriber // sessionID -> userID -> subscription
	log      *logrus.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]*subscriber),
		channels: make(map[string]map[string]*subscriber),
		log:      logrus.WithField("component", "relay.registry"),
	}
}

// Subscribe adds a connection to a session channel. An existing
// subscription for the same user is replaced; the old connection is closed
// asynchronously to avoid blocking registration.
func (r *Registry) Subscribe(sessionID, userID string, conn *transport.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byUser[userID]; ok {
		r.removeLocked(existing)
		go func() {
			_ = existing.conn.Close()
		}()
	}

	sub := &subscriber{userID: userID, sessionID: sessionID, conn: conn}
	r.byUser[userID] = sub

	channel := r.channels[sessionID]
	if channel == nil {
		channel = make(map[string]*subscriber)
		r.channels[sessionID] = channel
	}
	channel[userID] = sub
}

// Unsubscribe removes a connection from its session channel. Idempotent:
// only the currently registered connection for the user is removed, so a
// stale connection's cleanup cannot evict its replacement.
func (r *Registry) Unsubscribe(userID string, conn *transport.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byUser[userID]
	if !ok || sub.conn != conn {
		return
	}
	r.removeLocked(sub)
}

func (r *Registry) removeLocked(sub *subscriber) {
	delete(r.byUser, sub.userID)
	if channel, ok := r.channels[sub.sessionID]; ok {
		delete(channel, sub.userID)
		if len(channel) == 0 {
			delete(r.channels, sub.sessionID)
		}
	}
}

// ChannelConns returns the connections subscribed to a session channel.
func (r *Registry) ChannelConns(sessionID string) []*transport.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channel := r.channels[sessionID]
	conns := make([]*transport.Conn, 0, len(channel))
	for _, sub := range channel {
		conns = append(conns, sub.conn)
	}
	return conns
}

// Stats reports subscriber and channel counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"subscribers":     len(r.byUser),
		"active_channels": len(r.channels),
	}
}
