package types

import "regexp"

// Regex compiled once at package initialization.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate ensures the session meets all requirements before creation.
func (s *Session) Validate() error {
	if len(s.Title) < 1 || len(s.Title) > 200 {
		return ErrInvalidSessionTitle
	}
	if !IsValidSessionType(s.Type) {
		return ErrInvalidSessionType
	}
	if !IsValidUserID(s.CreatedBy.ID) {
		return ErrInvalidUserID
	}
	return nil
}

// Validate ensures the message meets all requirements before persistence.
func (m *Message) Validate() error {
	if !IsValidMessageType(m.Type) {
		return ErrInvalidMessageType
	}
	if len(m.Content) > 65536 { // 64KB
		return ErrContentTooLarge
	}
	return nil
}

// Validate ensures the document change meets all requirements.
func (c *DocumentChange) Validate() error {
	if !IsValidChangeType(c.ChangeType) {
		return ErrInvalidChangeType
	}
	if len(c.Content) > 65536 {
		return ErrContentTooLarge
	}
	return nil
}

// IsValidUserID checks identity provider IDs. The 1-50 character limit
// matches the store column constraints.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRole checks if the role is one the permission policy understands.
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsValidSessionType checks if the session type is one of the five kinds.
func IsValidSessionType(sessionType string) bool {
	switch sessionType {
	case SessionTypeAssignment,
		SessionTypeStudyGroup,
		SessionTypeTutoring,
		SessionTypeLiveClass,
		SessionTypeDocumentReview:
		return true
	default:
		return false
	}
}

// IsValidSessionStatus checks if the status is a known lifecycle state.
func IsValidSessionStatus(status string) bool {
	switch status {
	case SessionStatusActive, SessionStatusPaused, SessionStatusCompleted, SessionStatusArchived:
		return true
	default:
		return false
	}
}

// IsValidParticipantStatus checks if the status is a known presence state.
func IsValidParticipantStatus(status string) bool {
	switch status {
	case ParticipantStatusActive, ParticipantStatusIdle, ParticipantStatusAway, ParticipantStatusOffline:
		return true
	default:
		return false
	}
}

// IsValidMessageType checks if the message type is one of the allowed types.
func IsValidMessageType(msgType string) bool {
	switch msgType {
	case MessageTypeText, MessageTypeFile, MessageTypeImage,
		MessageTypeVoice, MessageTypeSystem, MessageTypeReaction:
		return true
	default:
		return false
	}
}

// IsValidChangeType checks if the change type is a known edit operation.
func IsValidChangeType(changeType string) bool {
	switch changeType {
	case ChangeTypeInsert, ChangeTypeDelete, ChangeTypeReplace, ChangeTypeFormat:
		return true
	default:
		return false
	}
}

// IsValidEventType checks if the envelope discriminator is known. Unknown
// frames are rejected at the transport boundary.
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventTypeMessage, EventTypeDocumentChange, EventTypeCursorUpdate,
		EventTypePresence, EventTypeScreenShareStarted,
		EventTypeScreenShareStopped, EventTypePing, EventTypePong:
		return true
	default:
		return false
	}
}
