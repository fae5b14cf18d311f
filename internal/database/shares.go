package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studysync/pkg/types"
)

// ErrShareNotFound is returned for lookups of unknown share IDs.
var ErrShareNotFound = errors.New("screen share session not found")

// CreateScreenShare inserts a share row in the starting state.
func (s *Store) CreateScreenShare(ctx context.Context, share *types.ScreenShareSession) error {
	err := s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO screen_share_sessions
				(id, session_id, presenter_id, presenter_name, status, quality, audio_enabled, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			share.ID,
			share.SessionID,
			share.PresenterID,
			share.PresenterName,
			share.Status,
			share.Quality,
			share.AudioEnabled,
			share.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert screen share: %w", err)
		}
		return nil
	})
	return types.NewStoreError("create screen share", err)
}

// GetScreenShare retrieves a share by ID.
func (s *Store) GetScreenShare(ctx context.Context, shareID string) (*types.ScreenShareSession, error) {
	query := `
		SELECT id, session_id, presenter_id, presenter_name, status, quality, audio_enabled, started_at, ended_at
		FROM screen_share_sessions
		WHERE id = ?
	`

	share, err := scanScreenShare(s.db.QueryRowContext(ctx, query, shareID))
	if err == sql.ErrNoRows {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, types.NewStoreError("get screen share", err)
	}
	return share, nil
}

// GetActiveScreenShare returns the session's current non-stopped share, or
// nil when none exists. At most one can exist; the session manager enforces
// that invariant before every insert.
func (s *Store) GetActiveScreenShare(ctx context.Context, sessionID string) (*types.ScreenShareSession, error) {
	query := `
		SELECT id, session_id, presenter_id, presenter_name, status, quality, audio_enabled, started_at, ended_at
		FROM screen_share_sessions
		WHERE session_id = ? AND status != 'stopped'
		ORDER BY started_at DESC
		LIMIT 1
	`

	share, err := scanScreenShare(s.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewStoreError("get active screen share", err)
	}
	return share, nil
}

// UpdateScreenShareStatus writes a share state transition. endedAt is set
// only when the share stops.
func (s *Store) UpdateScreenShareStatus(ctx context.Context, shareID, status string, endedAt *time.Time) error {
	err := s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE screen_share_sessions SET status = ?, ended_at = ? WHERE id = ?",
			status, endedAt, shareID,
		)
		if err != nil {
			return fmt.Errorf("failed to update screen share status: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrShareNotFound
		}
		return nil
	})
	return types.NewStoreError("update screen share status", err)
}

func scanScreenShare(row scanner) (*types.ScreenShareSession, error) {
	var share types.ScreenShareSession
	var endedAt sql.NullTime

	err := row.Scan(
		&share.ID,
		&share.SessionID,
		&share.PresenterID,
		&share.PresenterName,
		&share.Status,
		&share.Quality,
		&share.AudioEnabled,
		&share.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		share.EndedAt = &endedAt.Time
	}
	return &share, nil
}
