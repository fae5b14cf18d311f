// Package session drives session lifecycle and membership: create, join,
// leave, status transitions, and the screen share coordinator.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studysync/internal/broadcast"
	"studysync/internal/events"
	"studysync/internal/presence"
	"studysync/internal/supervisor"
	"studysync/pkg/interfaces"
	"studysync/pkg/permissions"
	"studysync/pkg/types"
)

// Manager orchestrates the permission policy, presence tracker, broadcast
// router, and connection supervisors over the durable store. One Manager
// serves one client process/identity; the store, not the Manager, is the
// source of truth across processes.
type Manager struct {
	store    interfaces.Store
	identity interfaces.IdentityProvider
	dialer   interfaces.Dialer
	tracker  *presence.Tracker
	router   *broadcast.Router
	supCfg   *supervisor.Config

	mu          sync.Mutex
	supervisors map[string]*supervisor.Supervisor // sessionID -> connection owner
	current     string                            // caller's currently joined session
	log         *logrus.Entry
}

// NewManager wires a session manager from injected collaborators.
func NewManager(store interfaces.Store, identity interfaces.IdentityProvider, dialer interfaces.Dialer, tracker *presence.Tracker, router *broadcast.Router, supCfg *supervisor.Config) *Manager {
	if supCfg == nil {
		supCfg = supervisor.DefaultConfig()
	}
	return &Manager{
		store:       store,
		identity:    identity,
		dialer:      dialer,
		tracker:     tracker,
		router:      router,
		supCfg:      supCfg,
		supervisors: make(map[string]*supervisor.Supervisor),
		log:         logrus.WithField("component", "session"),
	}
}

// DefaultSettings returns the type-specific settings baseline. Live classes
// run large and gated; everything else defaults to a ten-seat open room.
func DefaultSettings(sessionType string) types.SessionSettings {
	settings := types.SessionSettings{
		MaxParticipants:   10,
		RequireApproval:   false,
		EnableChat:        true,
		EnableVoice:       true,
		EnableVideo:       true,
		EnableScreenShare: true,
		AutoSaveInterval:  30 * time.Second,
	}
	if sessionType == types.SessionTypeLiveClass {
		settings.MaxParticipants = 100
		settings.RequireApproval = true
	}
	return settings
}

// MergeSettings applies the non-nil fields of an override on top of the
// defaults.
func MergeSettings(defaults types.SessionSettings, overrides *types.SettingsOverride) types.SessionSettings {
	if overrides == nil {
		return defaults
	}
	if overrides.MaxParticipants != nil {
		defaults.MaxParticipants = *overrides.MaxParticipants
	}
	if overrides.RequireApproval != nil {
		defaults.RequireApproval = *overrides.RequireApproval
	}
	if overrides.EnableChat != nil {
		defaults.EnableChat = *overrides.EnableChat
	}
	if overrides.EnableVoice != nil {
		defaults.EnableVoice = *overrides.EnableVoice
	}
	if overrides.EnableVideo != nil {
		defaults.EnableVideo = *overrides.EnableVideo
	}
	if overrides.EnableScreenShare != nil {
		defaults.EnableScreenShare = *overrides.EnableScreenShare
	}
	if overrides.AutoSaveInterval != nil {
		defaults.AutoSaveInterval = *overrides.AutoSaveInterval
	}
	return defaults
}

// CreateSession persists a new active session and registers the caller as
// its first participant with full moderator permissions, regardless of what
// the policy would derive for their role.
func (m *Manager) CreateSession(ctx context.Context, title, sessionType string, overrides *types.SettingsOverride) (*types.Session, error) {
	caller, err := m.identity.Current(ctx)
	if err != nil {
		return nil, types.ErrUnauthenticated
	}

	now := time.Now()
	session := &types.Session{
		ID:        uuid.New().String(),
		Title:     title,
		Type:      sessionType,
		CreatedBy: *caller,
		Status:    types.SessionStatusActive,
		Settings:  MergeSettings(DefaultSettings(sessionType), overrides),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	creator := &types.Participant{
		SessionID:   session.ID,
		UserID:      caller.ID,
		UserName:    caller.Name,
		UserRole:    caller.Role,
		JoinedAt:    now,
		Status:      types.ParticipantStatusActive,
		Permissions: permissions.Moderator(),
	}
	if err := m.store.CreateParticipant(ctx, creator); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"session": session.ID,
		"type":    session.Type,
		"creator": caller.ID,
	}).Info("session created")
	return session, nil
}

// JoinSession registers the caller and establishes the session connection.
// Idempotent: a repeat join never duplicates the participant record, it
// transitions presence back to active.
func (m *Manager) JoinSession(ctx context.Context, sessionID string) (*types.Session, error) {
	caller, err := m.identity.Current(ctx)
	if err != nil {
		return nil, types.ErrUnauthenticated
	}

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusActive {
		return nil, types.ErrSessionNotActive
	}

	_, err = m.store.GetParticipant(ctx, sessionID, caller.ID)
	switch {
	case errors.Is(err, types.ErrParticipantNotFound):
		participant := &types.Participant{
			SessionID:   sessionID,
			UserID:      caller.ID,
			UserName:    caller.Name,
			UserRole:    caller.Role,
			JoinedAt:    time.Now(),
			Status:      types.ParticipantStatusActive,
			Permissions: permissions.Derive(caller.Role, session.Type),
		}
		if err := m.store.CreateParticipant(ctx, participant); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if err := m.connect(ctx, sessionID, caller); err != nil {
		return nil, err
	}

	m.tracker.UpdateStatus(ctx, sessionID, caller.ID, types.ParticipantStatusActive)

	m.mu.Lock()
	m.current = sessionID
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session": sessionID,
		"user":    caller.ID,
	}).Info("joined session")
	return session, nil
}

// connect establishes the supervised connection for the session, reusing a
// live one when the caller re-joins.
func (m *Manager) connect(ctx context.Context, sessionID string, caller *types.Identity) error {
	m.mu.Lock()
	if existing, ok := m.supervisors[sessionID]; ok && existing.Connected() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	sup := supervisor.New(m.dialer, sessionID, caller, events.NewRegistry(), m.supCfg)
	sup.SetOnConnectionLost(func(err error) {
		m.log.WithError(err).WithField("session", sessionID).Error("connection lost")
		m.router.Unregister(sessionID)
		m.tracker.UpdateStatus(context.Background(), sessionID, caller.ID, types.ParticipantStatusOffline)
		m.mu.Lock()
		delete(m.supervisors, sessionID)
		m.mu.Unlock()
	})

	if err := sup.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	old := m.supervisors[sessionID]
	m.supervisors[sessionID] = sup
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	m.router.Register(sessionID, sup)
	return nil
}

// LeaveSession marks the caller offline, closes the owned connection, and
// stops its heartbeat timer. An empty sessionID targets the caller's
// current session; with none, this is a no-op. A session that no longer
// exists is treated as already left, never an error.
func (m *Manager) LeaveSession(ctx context.Context, sessionID string) error {
	caller, err := m.identity.Current(ctx)
	if err != nil {
		return types.ErrUnauthenticated
	}

	m.mu.Lock()
	if sessionID == "" {
		sessionID = m.current
	}
	if sessionID == "" {
		m.mu.Unlock()
		return nil
	}
	sup := m.supervisors[sessionID]
	delete(m.supervisors, sessionID)
	if m.current == sessionID {
		m.current = ""
	}
	m.mu.Unlock()

	// Offline before teardown so the transition still reaches the channel.
	m.tracker.UpdateStatus(ctx, sessionID, caller.ID, types.ParticipantStatusOffline)

	m.router.Unregister(sessionID)
	if sup != nil {
		sup.Stop()
	}

	m.log.WithFields(logrus.Fields{
		"session": sessionID,
		"user":    caller.ID,
	}).Info("left session")
	return nil
}

// Events returns the listener registry for a joined session, or nil when
// the caller is not connected to it.
func (m *Manager) Events(sessionID string) *events.Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sup, ok := m.supervisors[sessionID]; ok {
		return sup.Events()
	}
	return nil
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// ListActiveSessions returns all sessions currently active in the store.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return m.store.ListActiveSessions(ctx)
}

// Participants returns a session's membership roster in join order,
// including participants who have since gone offline.
func (m *Manager) Participants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	return m.store.ListParticipants(ctx, sessionID)
}

// MessageHistory returns a session's message log in store-timestamp order,
// for replay after a join or reconnect.
func (m *Manager) MessageHistory(ctx context.Context, sessionID string) ([]*types.Message, error) {
	return m.store.ListSessionMessages(ctx, sessionID)
}

// ChangeHistory returns a session's document change log in store-timestamp
// order.
func (m *Manager) ChangeHistory(ctx context.Context, sessionID string) ([]*types.DocumentChange, error) {
	return m.store.ListDocumentChanges(ctx, sessionID)
}

// PauseSession transitions an active session to paused. Moderator-only,
// checked against the caller's persisted permissions so explicit grants
// are honored.
func (m *Manager) PauseSession(ctx context.Context, sessionID string) error {
	return m.transition(ctx, sessionID, []string{types.SessionStatusActive}, types.SessionStatusPaused)
}

// ResumeSession transitions a paused session back to active.
func (m *Manager) ResumeSession(ctx context.Context, sessionID string) error {
	return m.transition(ctx, sessionID, []string{types.SessionStatusPaused}, types.SessionStatusActive)
}

// CompleteSession moves an active or paused session to the completed
// terminal state.
func (m *Manager) CompleteSession(ctx context.Context, sessionID string) error {
	return m.transition(ctx, sessionID, []string{types.SessionStatusActive, types.SessionStatusPaused}, types.SessionStatusCompleted)
}

// ArchiveSession moves an active or paused session to the archived
// terminal state. Archived sessions reject all new joins.
func (m *Manager) ArchiveSession(ctx context.Context, sessionID string) error {
	return m.transition(ctx, sessionID, []string{types.SessionStatusActive, types.SessionStatusPaused}, types.SessionStatusArchived)
}

func (m *Manager) transition(ctx context.Context, sessionID string, from []string, to string) error {
	caller, err := m.identity.Current(ctx)
	if err != nil {
		return types.ErrUnauthenticated
	}

	if err := m.requireModerator(ctx, sessionID, caller.ID); err != nil {
		return err
	}

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	allowed := false
	for _, status := range from {
		if session.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return types.ErrSessionNotActive
	}

	if err := m.store.UpdateSessionStatus(ctx, sessionID, to, time.Now()); err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{
		"session": sessionID,
		"from":    session.Status,
		"to":      to,
	}).Info("session status changed")
	return nil
}

// requireModerator loads the caller's persisted permissions and checks the
// moderator bit.
func (m *Manager) requireModerator(ctx context.Context, sessionID, userID string) error {
	participant, err := m.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, types.ErrParticipantNotFound) {
			return types.ErrPermissionDenied
		}
		return err
	}
	if !participant.Permissions.IsModerator {
		return types.ErrPermissionDenied
	}
	return nil
}

// GrantPermissions records an explicit permission grant for a participant.
// Moderator-only. Grants never regress automatically; subsequent permission
// checks read the persisted set, not a fresh policy derivation.
func (m *Manager) GrantPermissions(ctx context.Context, sessionID, userID string, perms types.Permissions) error {
	caller, err := m.identity.Current(ctx)
	if err != nil {
		return types.ErrUnauthenticated
	}
	if err := m.requireModerator(ctx, sessionID, caller.ID); err != nil {
		return err
	}
	return m.store.UpdateParticipantPermissions(ctx, sessionID, userID, perms)
}
