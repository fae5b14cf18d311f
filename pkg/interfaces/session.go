package interfaces

import (
	"context"

	"studysync/pkg/types"
)

// SessionManager drives session lifecycle and membership. Implemented by
// internal/session.Manager; consumed by the HTTP API and by embedders.
type SessionManager interface {
	// CreateSession persists a new active session and registers the caller
	// as its first participant with full moderator permissions. Returns
	// types.ErrUnauthenticated when no caller identity resolves.
	CreateSession(ctx context.Context, title, sessionType string, overrides *types.SettingsOverride) (*types.Session, error)

	// JoinSession registers the caller (idempotently) and establishes the
	// transport connection for the session.
	JoinSession(ctx context.Context, sessionID string) (*types.Session, error)

	// LeaveSession marks the caller offline and tears down the connection.
	// An empty sessionID targets the caller's current session; leaving a
	// session that no longer exists is a no-op.
	LeaveSession(ctx context.Context, sessionID string) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// ListActiveSessions returns all sessions currently in the active state.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
}
