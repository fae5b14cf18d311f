package types

import (
	"encoding/json"
	"time"
)

// Session types determine permission defaults and capacity settings.
const (
	SessionTypeAssignment     = "assignment"
	SessionTypeStudyGroup     = "study_group"
	SessionTypeTutoring       = "tutoring"
	SessionTypeLiveClass      = "live_class"
	SessionTypeDocumentReview = "document_review"
)

// Session lifecycle states. Completed and archived are terminal; terminal
// sessions reject new joins.
const (
	SessionStatusActive    = "active"
	SessionStatusPaused    = "paused"
	SessionStatusCompleted = "completed"
	SessionStatusArchived  = "archived"
)

// Participant presence states.
const (
	ParticipantStatusActive  = "active"
	ParticipantStatusIdle    = "idle"
	ParticipantStatusAway    = "away"
	ParticipantStatusOffline = "offline"
)

// Message types.
const (
	MessageTypeText     = "text"
	MessageTypeFile     = "file"
	MessageTypeImage    = "image"
	MessageTypeVoice    = "voice"
	MessageTypeSystem   = "system"
	MessageTypeReaction = "reaction"
)

// Document change types.
const (
	ChangeTypeInsert  = "insert"
	ChangeTypeDelete  = "delete"
	ChangeTypeReplace = "replace"
	ChangeTypeFormat  = "format"
)

// Screen share lifecycle states. Paused is reachable only from active;
// stopped is terminal.
const (
	ScreenShareStatusStarting = "starting"
	ScreenShareStatusActive   = "active"
	ScreenShareStatusPaused   = "paused"
	ScreenShareStatusStopped  = "stopped"
)

// User roles supplied by the identity provider.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Wire envelope discriminators for transport frames.
const (
	EventTypeMessage            = "message"
	EventTypeDocumentChange     = "document_change"
	EventTypeCursorUpdate       = "cursor_update"
	EventTypePresence           = "presence"
	EventTypeScreenShareStarted = "screen_share_started"
	EventTypeScreenShareStopped = "screen_share_stopped"
	EventTypePing               = "ping"
	EventTypePong               = "pong"
)

// Identity is the resolved caller supplied by the identity provider.
// The engine trusts it and performs no authentication of its own.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// SessionSettings carries capacity and feature toggles for a session.
// Type-specific defaults are merged with caller overrides at creation time.
type SessionSettings struct {
	MaxParticipants   int           `json:"max_participants"`
	RequireApproval   bool          `json:"require_approval"`
	EnableChat        bool          `json:"enable_chat"`
	EnableVoice       bool          `json:"enable_voice"`
	EnableVideo       bool          `json:"enable_video"`
	EnableScreenShare bool          `json:"enable_screen_share"`
	AutoSaveInterval  time.Duration `json:"auto_save_interval"`
}

// SettingsOverride carries caller-supplied settings for session creation.
// Nil fields fall back to the session type's defaults.
type SettingsOverride struct {
	MaxParticipants   *int           `json:"max_participants,omitempty"`
	RequireApproval   *bool          `json:"require_approval,omitempty"`
	EnableChat        *bool          `json:"enable_chat,omitempty"`
	EnableVoice       *bool          `json:"enable_voice,omitempty"`
	EnableVideo       *bool          `json:"enable_video,omitempty"`
	EnableScreenShare *bool          `json:"enable_screen_share,omitempty"`
	AutoSaveInterval  *time.Duration `json:"auto_save_interval,omitempty"`
}

// Session is a bounded collaborative context with participants and a
// lifecycle. Immutable after creation except for status and updated_at.
type Session struct {
	ID        string          `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	Type      string          `json:"type" db:"type"`
	CreatedBy Identity        `json:"created_by"`
	Status    string          `json:"status" db:"status"`
	Settings  SessionSettings `json:"settings"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Permissions is the capability set derived for a participant at join time.
// Booleans are independent; an explicit grant never regresses automatically.
type Permissions struct {
	CanEdit         bool `json:"can_edit"`
	CanComment      bool `json:"can_comment"`
	CanShareScreen  bool `json:"can_share_screen"`
	CanUseVoice     bool `json:"can_use_voice"`
	CanUseVideo     bool `json:"can_use_video"`
	CanInviteOthers bool `json:"can_invite_others"`
	IsModerator     bool `json:"is_moderator"`
}

// CursorPosition is a participant's live cursor in the shared document.
// Transport-only: never persisted.
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SelectionRange is a participant's live selection. Transport-only.
type SelectionRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Participant is a user's membership in a session, unique per
// (session_id, user_id). Records are append-only history: leave transitions
// status to offline, never deletes the row.
type Participant struct {
	SessionID   string          `json:"session_id" db:"session_id"`
	UserID      string          `json:"user_id" db:"user_id"`
	UserName    string          `json:"user_name" db:"user_name"`
	UserRole    string          `json:"user_role" db:"user_role"`
	JoinedAt    time.Time       `json:"joined_at" db:"joined_at"`
	Status      string          `json:"status" db:"status"`
	Permissions Permissions     `json:"permissions"`
	Cursor      *CursorPosition `json:"cursor,omitempty"`
	Selection   *SelectionRange `json:"selection,omitempty"`
}

// Reaction is an emoji reaction appended to a message.
type Reaction struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is a chat message within a session. Immutable once persisted
// except for reaction append and the edited-at stamp. The store-assigned
// timestamp is the ordering authority for broadcast.
type Message struct {
	ID        string                 `json:"id" db:"id"`
	SessionID string                 `json:"session_id" db:"session_id"`
	Sender    Identity               `json:"sender"`
	Type      string                 `json:"type" db:"type"`
	Content   string                 `json:"content" db:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EditedAt  *time.Time             `json:"edited_at,omitempty"`
	ReplyTo   *string                `json:"reply_to,omitempty"`
	Reactions []Reaction             `json:"reactions,omitempty"`
}

// DocumentChange is a single edit operation in the append-only change log.
// Applied flips true once delivery to the authoritative document replica is
// confirmed. Concurrent edits at the same position are last-write-wins by
// store timestamp order; no operational-transform merge is attempted here.
type DocumentChange struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	UserName   string    `json:"user_name" db:"user_name"`
	ChangeType string    `json:"change_type" db:"change_type"`
	Position   int       `json:"position" db:"position"`
	Length     int       `json:"length" db:"length"`
	Content    string    `json:"content" db:"content"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Applied    bool      `json:"applied" db:"applied"`
}

// ScreenShareSession tracks one presenter's share within a session.
// At most one non-stopped share may exist per session.
type ScreenShareSession struct {
	ID            string     `json:"id" db:"id"`
	SessionID     string     `json:"session_id" db:"session_id"`
	PresenterID   string     `json:"presenter_id" db:"presenter_id"`
	PresenterName string     `json:"presenter_name" db:"presenter_name"`
	Status        string     `json:"status" db:"status"`
	Quality       string     `json:"quality" db:"quality"`
	AudioEnabled  bool       `json:"audio_enabled" db:"audio_enabled"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// Envelope is the tagged wire frame exchanged over the transport. Data is
// decoded by the listener that handles the given Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(eventType string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: eventType, Data: data}, nil
}

// PresenceUpdate is the payload of presence envelopes.
type PresenceUpdate struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CursorUpdate is the payload of cursor_update envelopes. Fire-and-forget:
// high-frequency, never persisted, never retried.
type CursorUpdate struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Cursor    *CursorPosition `json:"cursor,omitempty"`
	Selection *SelectionRange `json:"selection,omitempty"`
}
