package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studysync/pkg/types"
)

// ErrMessageNotFound is returned for reaction/edit writes against unknown
// message IDs.
var ErrMessageNotFound = errors.New("message not found")

// StoreMessage persists a message and assigns its timestamp. The timestamp
// assigned here is the ordering authority for broadcast.
func (s *Store) StoreMessage(ctx context.Context, message *types.Message) error {
	err := s.executeWrite(func(db *sql.DB) error {
		message.Timestamp = time.Now()

		var metadataJSON []byte
		if message.Metadata != nil {
			var err error
			metadataJSON, err = json.Marshal(message.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
		}

		query := `
			INSERT INTO collaboration_messages
				(id, session_id, sender_id, sender_name, sender_role, type, content, metadata, timestamp, reply_to, reactions)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]')
		`
		_, err := db.ExecContext(ctx, query,
			message.ID,
			message.SessionID,
			message.Sender.ID,
			message.Sender.Name,
			message.Sender.Role,
			message.Type,
			message.Content,
			nullableString(metadataJSON),
			message.Timestamp,
			message.ReplyTo,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
	return types.NewStoreError("store message", err)
}

// ListSessionMessages returns a session's messages in timestamp order.
func (s *Store) ListSessionMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	query := `
		SELECT id, session_id, sender_id, sender_name, sender_role, type, content, metadata, timestamp, edited_at, reply_to, reactions
		FROM collaboration_messages
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, types.NewStoreError("list session messages", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, types.NewStoreError("list session messages", err)
		}
		messages = append(messages, message)
	}
	if err = rows.Err(); err != nil {
		return nil, types.NewStoreError("list session messages", err)
	}

	return messages, nil
}

// AppendReaction appends one reaction to a message's ordered reaction list.
// The read-modify-write runs inside the single writer, so appends never
// race each other.
func (s *Store) AppendReaction(ctx context.Context, messageID string, reaction types.Reaction) error {
	err := s.executeWrite(func(db *sql.DB) error {
		var reactionsJSON string
		err := db.QueryRowContext(ctx,
			"SELECT reactions FROM collaboration_messages WHERE id = ?", messageID,
		).Scan(&reactionsJSON)
		if err == sql.ErrNoRows {
			return ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read reactions: %w", err)
		}

		var reactions []types.Reaction
		if reactionsJSON != "" {
			if err := json.Unmarshal([]byte(reactionsJSON), &reactions); err != nil {
				return fmt.Errorf("failed to unmarshal reactions: %w", err)
			}
		}
		reactions = append(reactions, reaction)

		updated, err := json.Marshal(reactions)
		if err != nil {
			return fmt.Errorf("failed to marshal reactions: %w", err)
		}

		_, err = db.ExecContext(ctx,
			"UPDATE collaboration_messages SET reactions = ? WHERE id = ?",
			string(updated), messageID,
		)
		if err != nil {
			return fmt.Errorf("failed to update reactions: %w", err)
		}
		return nil
	})
	return types.NewStoreError("append reaction", err)
}

// MarkMessageEdited stamps the edited-at time. Content itself stays
// immutable at this layer.
func (s *Store) MarkMessageEdited(ctx context.Context, messageID string, editedAt time.Time) error {
	err := s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE collaboration_messages SET edited_at = ? WHERE id = ?",
			editedAt, messageID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark message edited: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrMessageNotFound
		}
		return nil
	})
	return types.NewStoreError("mark message edited", err)
}

func scanMessage(row scanner) (*types.Message, error) {
	var message types.Message
	var metadataJSON, reactionsJSON sql.NullString
	var editedAt sql.NullTime
	var replyTo sql.NullString

	err := row.Scan(
		&message.ID,
		&message.SessionID,
		&message.Sender.ID,
		&message.Sender.Name,
		&message.Sender.Role,
		&message.Type,
		&message.Content,
		&metadataJSON,
		&message.Timestamp,
		&editedAt,
		&replyTo,
		&reactionsJSON,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &message.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if reactionsJSON.Valid && reactionsJSON.String != "" {
		if err := json.Unmarshal([]byte(reactionsJSON.String), &message.Reactions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
		}
	}
	if editedAt.Valid {
		message.EditedAt = &editedAt.Time
	}
	if replyTo.Valid {
		message.ReplyTo = &replyTo.String
	}

	return &message, nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
