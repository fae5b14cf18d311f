// Package events provides the per-session listener registry. Each session's
// supervisor owns one registry scoped to the session lifetime; there is no
// process-wide listener map.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"studysync/pkg/types"
)

// Listener receives inbound envelopes for one event type.
type Listener func(env *types.Envelope)

// Registry is a simple ordered pub/sub keyed by envelope type. Listeners
// run synchronously in registration order; a panic in one listener is
// recovered and logged, never propagated to siblings or the emitter.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string][]registration
	nextID    int
	log       *logrus.Entry
}

type registration struct {
	id       int
	listener Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[string][]registration),
		log:       logrus.WithField("component", "events"),
	}
}

// AddListener registers a listener for the event type and returns a handle
// for removal. Multiple listeners per event are invoked in registration
// order.
func (r *Registry) AddListener(eventType string, listener Listener) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.listeners[eventType] = append(r.listeners[eventType], registration{id: id, listener: listener})
	return id
}

// RemoveListener deregisters the listener with the given handle. Removing
// an unknown handle is a no-op.
func (r *Registry) RemoveListener(eventType string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.listeners[eventType]
	for i, reg := range regs {
		if reg.id == id {
			r.listeners[eventType] = append(regs[:i], regs[i+1:]...)
			break
		}
	}
	if len(r.listeners[eventType]) == 0 {
		delete(r.listeners, eventType)
	}
}

// Emit dispatches the envelope to all listeners for its type, in order.
func (r *Registry) Emit(env *types.Envelope) {
	r.mu.RLock()
	regs := make([]registration, len(r.listeners[env.Type]))
	copy(regs, r.listeners[env.Type])
	r.mu.RUnlock()

	for _, reg := range regs {
		r.invoke(env, reg)
	}
}

// invoke isolates one listener call so a panic cannot take down siblings.
func (r *Registry) invoke(env *types.Envelope, reg registration) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"event": env.Type,
				"panic": rec,
			}).Error("listener panicked")
		}
	}()
	reg.listener(env)
}

// ListenerCount reports registered listeners for an event type.
func (r *Registry) ListenerCount(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[eventType])
}
