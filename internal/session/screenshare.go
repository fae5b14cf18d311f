package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studysync/pkg/types"
)

// Screen share state machine: starting -> active -> paused -> active ->
// stopped. Paused is reachable only from active; stopped is terminal.
var shareTransitions = map[string][]string{
	types.ScreenShareStatusStarting: {types.ScreenShareStatusActive, types.ScreenShareStatusStopped},
	types.ScreenShareStatusActive:   {types.ScreenShareStatusPaused, types.ScreenShareStatusStopped},
	types.ScreenShareStatusPaused:   {types.ScreenShareStatusActive, types.ScreenShareStatusStopped},
	types.ScreenShareStatusStopped:  {},
}

// ErrInvalidShareTransition is returned for share state changes the machine
// does not allow.
var ErrInvalidShareTransition = errors.New("invalid screen share state transition")

func shareTransitionAllowed(from, to string) bool {
	for _, next := range shareTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StartScreenShare begins a share in the session. The caller's persisted
// can_share_screen permission is checked via a store round-trip, not a
// fresh policy derivation, so explicit grants are honored. At most one
// non-stopped share may exist per session; a second start is rejected
// rather than replacing the first.
func (m *Manager) StartScreenShare(ctx context.Context, sessionID, quality string, audioEnabled bool) (*types.ScreenShareSession, error) {
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

	participant, err := m.store.GetParticipant(ctx, sessionID, caller.ID)
	if err != nil {
		if errors.Is(err, types.ErrParticipantNotFound) {
			return nil, types.ErrPermissionDenied
		}
		return nil, err
	}
	if !participant.Permissions.CanShareScreen {
		return nil, types.ErrPermissionDenied
	}

	existing, err := m.store.GetActiveScreenShare(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.ErrScreenShareActive
	}

	if quality == "" {
		quality = "auto"
	}
	share := &types.ScreenShareSession{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		PresenterID:   caller.ID,
		PresenterName: caller.Name,
		Status:        types.ScreenShareStatusStarting,
		Quality:       quality,
		AudioEnabled:  audioEnabled,
		StartedAt:     time.Now(),
	}
	if err := m.store.CreateScreenShare(ctx, share); err != nil {
		return nil, err
	}

	// The engine gates permissions only; there is no media negotiation to
	// wait on, so the share goes active immediately after persisting.
	if err := m.store.UpdateScreenShareStatus(ctx, share.ID, types.ScreenShareStatusActive, nil); err != nil {
		return nil, err
	}
	share.Status = types.ScreenShareStatusActive

	m.router.PublishScreenShare(sessionID, types.EventTypeScreenShareStarted, share)

	m.log.WithFields(logrus.Fields{
		"session":   sessionID,
		"share":     share.ID,
		"presenter": caller.ID,
	}).Info("screen share started")
	return share, nil
}

// PauseScreenShare pauses an active share. Presenter-only.
func (m *Manager) PauseScreenShare(ctx context.Context, shareID string) error {
	return m.transitionShare(ctx, shareID, types.ScreenShareStatusPaused)
}

// ResumeScreenShare resumes a paused share. Presenter-only.
func (m *Manager) ResumeScreenShare(ctx context.Context, shareID string) error {
	return m.transitionShare(ctx, shareID, types.ScreenShareStatusActive)
}

// StopScreenShare moves a share to the stopped terminal state and stamps
// its end time. Once stopped, the session may host a new share.
func (m *Manager) StopScreenShare(ctx context.Context, shareID string) error {
	caller, err := m.identity.Current(ctx)
	if err != nil {
		return types.ErrUnauthenticated
	}

	share, err := m.store.GetScreenShare(ctx, shareID)
	if err != nil {
		return err
	}
	if err := m.authorizeShareChange(ctx, share, caller); err != nil {
		return err
	}
	if !shareTransitionAllowed(share.Status, types.ScreenShareStatusStopped) {
		return ErrInvalidShareTransition
	}

	now := time.Now()
	if err := m.store.UpdateScreenShareStatus(ctx, shareID, types.ScreenShareStatusStopped, &now); err != nil {
		return err
	}
	share.Status = types.ScreenShareStatusStopped
	share.EndedAt = &now

	m.router.PublishScreenShare(share.SessionID, types.EventTypeScreenShareStopped, share)

	m.log.WithFields(logrus.Fields{
		"session": share.SessionID,
		"share":   shareID,
	}).Info("screen share stopped")
	return nil
}

func (m *Manager) transitionShare(ctx context.Context, shareID, to string) error {
	caller, err := m.identity.Current(ctx)
	if err != nil {
		return types.ErrUnauthenticated
	}

	share, err := m.store.GetScreenShare(ctx, shareID)
	if err != nil {
		return err
	}
	if err := m.authorizeShareChange(ctx, share, caller); err != nil {
		return err
	}
	if !shareTransitionAllowed(share.Status, to) {
		return ErrInvalidShareTransition
	}

	return m.store.UpdateScreenShareStatus(ctx, shareID, to, nil)
}

// authorizeShareChange allows the presenter or a session moderator to
// change a share's state.
func (m *Manager) authorizeShareChange(ctx context.Context, share *types.ScreenShareSession, caller *types.Identity) error {
	if share.PresenterID == caller.ID {
		return nil
	}
	return m.requireModerator(ctx, share.SessionID, caller.ID)
}
