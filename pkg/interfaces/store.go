package interfaces

import (
	"context"
	"time"

	"studysync/pkg/types"
)

// Store is the durable-store collaborator. It is the source of truth for
// sessions, participants, messages, and document changes; timestamps it
// assigns at persistence time are the ordering authority for broadcast.
// Implementations must be safe for concurrent use.
type Store interface {
	// Session operations.
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID, status string, updatedAt time.Time) error
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// Participant operations. Rows are never deleted; leave writes the
	// offline status.
	CreateParticipant(ctx context.Context, participant *types.Participant) error
	GetParticipant(ctx context.Context, sessionID, userID string) (*types.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error)
	UpdateParticipantStatus(ctx context.Context, sessionID, userID, status string) error
	UpdateParticipantPermissions(ctx context.Context, sessionID, userID string, perms types.Permissions) error

	// Message operations. StoreMessage assigns the message timestamp;
	// messages are immutable afterwards except reaction append and the
	// edited-at stamp.
	StoreMessage(ctx context.Context, message *types.Message) error
	ListSessionMessages(ctx context.Context, sessionID string) ([]*types.Message, error)
	AppendReaction(ctx context.Context, messageID string, reaction types.Reaction) error
	MarkMessageEdited(ctx context.Context, messageID string, editedAt time.Time) error

	// Document change operations. The log is append-only.
	StoreDocumentChange(ctx context.Context, change *types.DocumentChange) error
	MarkChangeApplied(ctx context.Context, changeID string) error
	ListDocumentChanges(ctx context.Context, sessionID string) ([]*types.DocumentChange, error)

	// Screen share operations.
	CreateScreenShare(ctx context.Context, share *types.ScreenShareSession) error
	GetScreenShare(ctx context.Context, shareID string) (*types.ScreenShareSession, error)
	GetActiveScreenShare(ctx context.Context, sessionID string) (*types.ScreenShareSession, error)
	UpdateScreenShareStatus(ctx context.Context, shareID, status string, endedAt *time.Time) error

	// HealthCheck validates store connectivity.
	HealthCheck(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
