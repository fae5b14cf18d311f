// Package broadcast fans persisted events out to the session channel.
// Everything durable follows persist-then-push: the store-assigned
// timestamp is the ordering authority, the router never reorders, and the
// transport substrate is trusted to deliver pushed envelopes to every
// subscriber of the session channel.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studysync/pkg/interfaces"
	"studysync/pkg/types"
)

// ErrNoConnection is returned when no transport is registered for the
// session (the caller has not joined it).
var ErrNoConnection = errors.New("no connection registered for session")

// Sender is the outbound half of a session's connection. Satisfied by
// *supervisor.Supervisor.
type Sender interface {
	Send(env *types.Envelope) error
}

// Router persists and pushes messages, document changes, and screen share
// events for joined sessions.
type Router struct {
	store interfaces.Store

	mu      sync.RWMutex
	senders map[string]Sender // sessionID -> connection
	log     *logrus.Entry
}

// NewRouter creates a router over the given store.
func NewRouter(store interfaces.Store) *Router {
	return &Router{
		store:   store,
		senders: make(map[string]Sender),
		log:     logrus.WithField("component", "broadcast"),
	}
}

// Register binds a session's connection for outbound pushes. Called by the
// session manager when a join completes.
func (r *Router) Register(sessionID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[sessionID] = sender
}

// Unregister removes a session's connection on leave. Idempotent.
func (r *Router) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.senders, sessionID)
}

func (r *Router) sender(sessionID string) Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.senders[sessionID]
}

// requireActive rejects routing durable events into a session that is
// paused, completed, or archived. Every persisted message and change must
// reference an active session.
func (r *Router) requireActive(ctx context.Context, sessionID string) error {
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != types.SessionStatusActive {
		return types.ErrSessionNotActive
	}
	return nil
}

// push marshals payload and writes it to the session channel. Push failures
// after a successful persist are logged, not surfaced: the store is the
// source of truth and subscribers recover from history.
func (r *Router) push(sessionID, eventType string, payload interface{}) {
	sender := r.sender(sessionID)
	if sender == nil {
		r.log.WithField("session", sessionID).Debug("push skipped, no connection")
		return
	}

	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		r.log.WithError(err).Error("failed to encode envelope")
		return
	}
	if err := sender.Send(env); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"session": sessionID,
			"event":   eventType,
		}).Warn("push failed after persist")
	}
}

// SendMessage persists a message then pushes it to the session channel.
// Store failures propagate; the message is not pushed unless persisted.
func (r *Router) SendMessage(ctx context.Context, sessionID string, sender types.Identity, msgType, content string, metadata map[string]interface{}) (*types.Message, error) {
	message := &types.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    sender,
		Type:      msgType,
		Content:   content,
		Metadata:  metadata,
	}
	if err := message.Validate(); err != nil {
		return nil, err
	}
	if err := r.requireActive(ctx, sessionID); err != nil {
		return nil, err
	}

	if err := r.store.StoreMessage(ctx, message); err != nil {
		return nil, err
	}

	r.push(sessionID, types.EventTypeMessage, message)
	return message, nil
}

// ReplyToMessage persists a threaded reply then pushes it.
func (r *Router) ReplyToMessage(ctx context.Context, sessionID string, sender types.Identity, msgType, content, replyTo string) (*types.Message, error) {
	message := &types.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    sender,
		Type:      msgType,
		Content:   content,
		ReplyTo:   &replyTo,
	}
	if err := message.Validate(); err != nil {
		return nil, err
	}
	if err := r.requireActive(ctx, sessionID); err != nil {
		return nil, err
	}

	if err := r.store.StoreMessage(ctx, message); err != nil {
		return nil, err
	}

	r.push(sessionID, types.EventTypeMessage, message)
	return message, nil
}

// AddReaction appends a reaction to a persisted message, then pushes a
// reaction notice. The notice itself is not a stored message; the reaction
// lives on the parent row.
func (r *Router) AddReaction(ctx context.Context, sessionID, messageID string, user types.Identity, emoji string) error {
	if err := r.requireActive(ctx, sessionID); err != nil {
		return err
	}

	reaction := types.Reaction{UserID: user.ID, Emoji: emoji, Timestamp: time.Now()}
	if err := r.store.AppendReaction(ctx, messageID, reaction); err != nil {
		return err
	}

	notice := &types.Message{
		SessionID: sessionID,
		Sender:    user,
		Type:      types.MessageTypeReaction,
		Content:   emoji,
		ReplyTo:   &messageID,
	}
	r.push(sessionID, types.EventTypeMessage, notice)
	return nil
}

// ApplyDocumentChange appends the change to the log with applied=false,
// then pushes it optimistically. Conflicting concurrent edits are not
// merged here; the log order (store timestamps) is authoritative.
func (r *Router) ApplyDocumentChange(ctx context.Context, sessionID string, user types.Identity, changeType string, position, length int, content string) (*types.DocumentChange, error) {
	change := &types.DocumentChange{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		UserID:     user.ID,
		UserName:   user.Name,
		ChangeType: changeType,
		Position:   position,
		Length:     length,
		Content:    content,
	}
	if err := change.Validate(); err != nil {
		return nil, err
	}
	if err := r.requireActive(ctx, sessionID); err != nil {
		return nil, err
	}

	if err := r.store.StoreDocumentChange(ctx, change); err != nil {
		return nil, err
	}

	r.push(sessionID, types.EventTypeDocumentChange, change)
	return change, nil
}

// ConfirmChangeApplied flips the applied flag once the authoritative
// document replica confirms delivery.
func (r *Router) ConfirmChangeApplied(ctx context.Context, changeID string) error {
	return r.store.MarkChangeApplied(ctx, changeID)
}

// PublishScreenShare pushes a screen share lifecycle event. The share row
// is persisted by the coordinator before this is called.
func (r *Router) PublishScreenShare(sessionID, eventType string, share *types.ScreenShareSession) {
	r.push(sessionID, eventType, share)
}

// PublishPresence pushes a presence status transition. Implements
// presence.Notifier.
func (r *Router) PublishPresence(update types.PresenceUpdate) error {
	sender := r.sender(update.SessionID)
	if sender == nil {
		return ErrNoConnection
	}
	env, err := types.NewEnvelope(types.EventTypePresence, update)
	if err != nil {
		return err
	}
	return sender.Send(env)
}

// PublishCursor pushes a cursor update. Fire-and-forget: not persisted,
// not retried. Implements presence.Notifier.
func (r *Router) PublishCursor(update types.CursorUpdate) error {
	sender := r.sender(update.SessionID)
	if sender == nil {
		return ErrNoConnection
	}
	env, err := types.NewEnvelope(types.EventTypeCursorUpdate, update)
	if err != nil {
		return err
	}
	return sender.Send(env)
}
