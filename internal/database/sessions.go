package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"studysync/pkg/types"
)

// CreateSession inserts a new session row. Settings serialize to JSON.
func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	err := s.executeWrite(func(db *sql.DB) error {
		settingsJSON, err := json.Marshal(session.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}

		query := `
			INSERT INTO collaboration_sessions
				(id, title, type, creator_id, creator_name, creator_role, status, settings, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			session.ID,
			session.Title,
			session.Type,
			session.CreatedBy.ID,
			session.CreatedBy.Name,
			session.CreatedBy.Role,
			session.Status,
			string(settingsJSON),
			session.CreatedAt,
			session.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
	return types.NewStoreError("create session", err)
}

// GetSession retrieves a session by ID. Returns types.ErrSessionNotFound
// for missing rows.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	query := `
		SELECT id, title, type, creator_id, creator_name, creator_role, status, settings, created_at, updated_at
		FROM collaboration_sessions
		WHERE id = ?
	`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, types.NewStoreError("get session", err)
	}
	return session, nil
}

// UpdateSessionStatus writes a status transition.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID, status string, updatedAt time.Time) error {
	err := s.executeWrite(func(db *sql.DB) error {
		query := `UPDATE collaboration_sessions SET status = ?, updated_at = ? WHERE id = ?`
		res, err := db.ExecContext(ctx, query, status, updatedAt, sessionID)
		if err != nil {
			return fmt.Errorf("failed to update session status: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return types.ErrSessionNotFound
		}
		return nil
	})
	return types.NewStoreError("update session status", err)
}

// ListActiveSessions returns all active sessions, newest first.
func (s *Store) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	query := `
		SELECT id, title, type, creator_id, creator_name, creator_role, status, settings, created_at, updated_at
		FROM collaboration_sessions
		WHERE status = 'active'
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, types.NewStoreError("list active sessions", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, types.NewStoreError("list active sessions", err)
		}
		sessions = append(sessions, session)
	}
	if err = rows.Err(); err != nil {
		return nil, types.NewStoreError("list active sessions", err)
	}

	return sessions, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*types.Session, error) {
	var session types.Session
	var settingsJSON string

	err := row.Scan(
		&session.ID,
		&session.Title,
		&session.Type,
		&session.CreatedBy.ID,
		&session.CreatedBy.Name,
		&session.CreatedBy.Role,
		&session.Status,
		&settingsJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(settingsJSON), &session.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &session, nil
}
