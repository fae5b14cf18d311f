package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"studysync/pkg/types"
)

// CreateParticipant inserts a membership row. Permissions serialize to JSON.
// Cursor and selection are transport-only and never persisted.
func (s *Store) CreateParticipant(ctx context.Context, participant *types.Participant) error {
	err := s.executeWrite(func(db *sql.DB) error {
		permsJSON, err := json.Marshal(participant.Permissions)
		if err != nil {
			return fmt.Errorf("failed to marshal permissions: %w", err)
		}

		query := `
			INSERT INTO collaboration_participants
				(session_id, user_id, user_name, user_role, joined_at, status, permissions)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			participant.SessionID,
			participant.UserID,
			participant.UserName,
			participant.UserRole,
			participant.JoinedAt,
			participant.Status,
			string(permsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
		return nil
	})
	return types.NewStoreError("create participant", err)
}

// GetParticipant retrieves one membership row.
func (s *Store) GetParticipant(ctx context.Context, sessionID, userID string) (*types.Participant, error) {
	query := `
		SELECT session_id, user_id, user_name, user_role, joined_at, status, permissions
		FROM collaboration_participants
		WHERE session_id = ? AND user_id = ?
	`

	participant, err := scanParticipant(s.db.QueryRowContext(ctx, query, sessionID, userID))
	if err == sql.ErrNoRows {
		return nil, types.ErrParticipantNotFound
	}
	if err != nil {
		return nil, types.NewStoreError("get participant", err)
	}
	return participant, nil
}

// ListParticipants returns all membership rows for a session in join order.
func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	query := `
		SELECT session_id, user_id, user_name, user_role, joined_at, status, permissions
		FROM collaboration_participants
		WHERE session_id = ?
		ORDER BY joined_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, types.NewStoreError("list participants", err)
	}
	defer func() { _ = rows.Close() }()

	var participants []*types.Participant
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, types.NewStoreError("list participants", err)
		}
		participants = append(participants, participant)
	}
	if err = rows.Err(); err != nil {
		return nil, types.NewStoreError("list participants", err)
	}

	return participants, nil
}

// UpdateParticipantStatus writes a presence transition.
func (s *Store) UpdateParticipantStatus(ctx context.Context, sessionID, userID, status string) error {
	err := s.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE collaboration_participants SET status = ?
			WHERE session_id = ? AND user_id = ?
		`
		res, err := db.ExecContext(ctx, query, status, sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to update participant status: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return types.ErrParticipantNotFound
		}
		return nil
	})
	return types.NewStoreError("update participant status", err)
}

// UpdateParticipantPermissions records an explicit grant. Grants persist on
// the row and are honored by permission checks; they never regress to the
// derived set automatically.
func (s *Store) UpdateParticipantPermissions(ctx context.Context, sessionID, userID string, perms types.Permissions) error {
	err := s.executeWrite(func(db *sql.DB) error {
		permsJSON, err := json.Marshal(perms)
		if err != nil {
			return fmt.Errorf("failed to marshal permissions: %w", err)
		}

		query := `
			UPDATE collaboration_participants SET permissions = ?
			WHERE session_id = ? AND user_id = ?
		`
		res, err := db.ExecContext(ctx, query, string(permsJSON), sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to update participant permissions: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return types.ErrParticipantNotFound
		}
		return nil
	})
	return types.NewStoreError("update participant permissions", err)
}

func scanParticipant(row scanner) (*types.Participant, error) {
	var participant types.Participant
	var permsJSON string

	err := row.Scan(
		&participant.SessionID,
		&participant.UserID,
		&participant.UserName,
		&participant.UserRole,
		&participant.JoinedAt,
		&participant.Status,
		&permsJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(permsJSON), &participant.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return &participant, nil
}
