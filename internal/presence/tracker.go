// Package presence tracks live participant state per session: status,
// cursor, and selection. Status changes write through to the durable store
// and are announced on the transport; cursor and selection updates are
// transport-only.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"studysync/pkg/interfaces"
	"studysync/pkg/types"
)

// Notifier announces presence transitions to the session channel. Only
// status changes are announced; cursor traffic goes through PublishCursor.
type Notifier interface {
	PublishPresence(update types.PresenceUpdate) error
	PublishCursor(update types.CursorUpdate) error
}

// entry is one participant's live state.
type entry struct {
	status    string
	cursor    *types.CursorPosition
	selection *types.SelectionRange
}

// sessionPresence serializes all mutation for one session's participants.
// The per-session mutex is the required serialization for concurrent status
// changes on the same (session, user) pair; last write wins.
type sessionPresence struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Tracker maintains per-session presence maps.
type Tracker struct {
	store    interfaces.Store
	notifier Notifier

	mu       sync.RWMutex
	sessions map[string]*sessionPresence
	log      *logrus.Entry
}

// NewTracker creates a tracker over the given store. The notifier may be
// nil (status changes then persist without a transport announcement).
func NewTracker(store interfaces.Store, notifier Notifier) *Tracker {
	return &Tracker{
		store:    store,
		notifier: notifier,
		sessions: make(map[string]*sessionPresence),
		log:      logrus.WithField("component", "presence"),
	}
}

// SetNotifier installs the transport notifier after construction. The
// broadcast router is built after the tracker, so wiring closes the loop
// here.
func (t *Tracker) SetNotifier(notifier Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifier = notifier
}

func (t *Tracker) session(sessionID string) *sessionPresence {
	t.mu.Lock()
	defer t.mu.Unlock()

	sp, ok := t.sessions[sessionID]
	if !ok {
		sp = &sessionPresence{entries: make(map[string]*entry)}
		t.sessions[sessionID] = sp
	}
	return sp
}

func (t *Tracker) currentNotifier() Notifier {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.notifier
}

// UpdateStatus records a presence transition, writes it through to the
// store, and announces it on the transport when the status actually
// changed. Store failures on this path are logged and swallowed: presence
// is non-critical and the next transition retries the write anyway.
func (t *Tracker) UpdateStatus(ctx context.Context, sessionID, userID, status string) {
	sp := t.session(sessionID)

	sp.mu.Lock()
	e, ok := sp.entries[userID]
	if !ok {
		e = &entry{}
		sp.entries[userID] = e
	}
	changed := e.status != status
	e.status = status
	sp.mu.Unlock()

	if err := t.store.UpdateParticipantStatus(ctx, sessionID, userID, status); err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"session": sessionID,
			"user":    userID,
		}).Warn("presence write-through failed")
	}

	if !changed {
		return
	}
	if n := t.currentNotifier(); n != nil {
		update := types.PresenceUpdate{
			SessionID: sessionID,
			UserID:    userID,
			Status:    status,
			Timestamp: time.Now(),
		}
		if err := n.PublishPresence(update); err != nil {
			t.log.WithError(err).Debug("presence announcement dropped")
		}
	}
}

// UpdateCursor records a cursor/selection move and pushes it over the
// transport. Fire-and-forget: never persisted, never retried.
func (t *Tracker) UpdateCursor(sessionID, userID string, cursor *types.CursorPosition, selection *types.SelectionRange) {
	sp := t.session(sessionID)

	sp.mu.Lock()
	e, ok := sp.entries[userID]
	if !ok {
		e = &entry{}
		sp.entries[userID] = e
	}
	e.cursor = cursor
	e.selection = selection
	sp.mu.Unlock()

	if n := t.currentNotifier(); n != nil {
		update := types.CursorUpdate{
			SessionID: sessionID,
			UserID:    userID,
			Cursor:    cursor,
			Selection: selection,
		}
		if err := n.PublishCursor(update); err != nil {
			t.log.WithError(err).Debug("cursor update dropped")
		}
	}
}

// Status returns the tracked status for a participant, or offline when the
// participant is unknown to this tracker.
func (t *Tracker) Status(sessionID, userID string) string {
	t.mu.RLock()
	sp, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if !ok {
		return types.ParticipantStatusOffline
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if e, ok := sp.entries[userID]; ok && e.status != "" {
		return e.status
	}
	return types.ParticipantStatusOffline
}

// Snapshot returns the live entries for a session keyed by user ID.
func (t *Tracker) Snapshot(sessionID string) map[string]string {
	t.mu.RLock()
	sp, ok := t.sessions[sessionID]
	t.mu.RUnlock()

	out := make(map[string]string)
	if !ok {
		return out
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	for userID, e := range sp.entries {
		out[userID] = e.status
	}
	return out
}

// Drop discards the in-memory map for a session once it ends. Persisted
// participant rows are untouched.
func (t *Tracker) Drop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}
