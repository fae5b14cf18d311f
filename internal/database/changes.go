package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studysync/pkg/types"
)

// ErrChangeNotFound is returned for applied-flag writes against unknown
// change IDs.
var ErrChangeNotFound = errors.New("document change not found")

// StoreDocumentChange appends a change to the log with applied=false and
// assigns its timestamp. The log is append-only; rows are never updated
// except for the applied flag.
func (s *Store) StoreDocumentChange(ctx context.Context, change *types.DocumentChange) error {
	err := s.executeWrite(func(db *sql.DB) error {
		change.Timestamp = time.Now()
		change.Applied = false

		query := `
			INSERT INTO document_changes
				(id, session_id, user_id, user_name, change_type, position, length, content, timestamp, applied)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		`
		_, err := db.ExecContext(ctx, query,
			change.ID,
			change.SessionID,
			change.UserID,
			change.UserName,
			change.ChangeType,
			change.Position,
			change.Length,
			change.Content,
			change.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert document change: %w", err)
		}
		return nil
	})
	return types.NewStoreError("store document change", err)
}

// MarkChangeApplied flips the applied flag once delivery to the
// authoritative document replica is confirmed.
func (s *Store) MarkChangeApplied(ctx context.Context, changeID string) error {
	err := s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE document_changes SET applied = 1 WHERE id = ?", changeID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark change applied: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrChangeNotFound
		}
		return nil
	})
	return types.NewStoreError("mark change applied", err)
}

// ListDocumentChanges returns a session's change log in timestamp order.
func (s *Store) ListDocumentChanges(ctx context.Context, sessionID string) ([]*types.DocumentChange, error) {
	query := `
		SELECT id, session_id, user_id, user_name, change_type, position, length, content, timestamp, applied
		FROM document_changes
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, types.NewStoreError("list document changes", err)
	}
	defer func() { _ = rows.Close() }()

	var changes []*types.DocumentChange
	for rows.Next() {
		var change types.DocumentChange
		var applied int

		err := rows.Scan(
			&change.ID,
			&change.SessionID,
			&change.UserID,
			&change.UserName,
			&change.ChangeType,
			&change.Position,
			&change.Length,
			&change.Content,
			&change.Timestamp,
			&applied,
		)
		if err != nil {
			return nil, types.NewStoreError("list document changes", err)
		}
		change.Applied = applied != 0
		changes = append(changes, &change)
	}
	if err = rows.Err(); err != nil {
		return nil, types.NewStoreError("list document changes", err)
	}

	return changes, nil
}
