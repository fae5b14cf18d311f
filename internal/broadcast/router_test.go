package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"studysync/pkg/types"
)

// Mock store recording persisted messages and changes with assigned
// timestamps, the way the real store does inside its write loop.
type mockStore struct {
	mu              sync.Mutex
	messages        []*types.Message
	changes         []*types.DocumentChange
	reactions       map[string][]types.Reaction
	applied         map[string]bool
	sessionStatus   map[string]string // unseeded sessions read as active
	shouldFailStore bool
}

func newMockStore() *mockStore {
	return &mockStore{
		reactions:     make(map[string][]types.Reaction),
		applied:       make(map[string]bool),
		sessionStatus: make(map[string]string),
	}
}

func (m *mockStore) setSessionStatus(sessionID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionStatus[sessionID] = status
}

func (m *mockStore) StoreMessage(ctx context.Context, message *types.Message) error {
	if m.shouldFailStore {
		return errors.New("store write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	message.Timestamp = time.Now()
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockStore) ListSessionMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockStore) AppendReaction(ctx context.Context, messageID string, reaction types.Reaction) error {
	if m.shouldFailStore {
		return errors.New("store write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions[messageID] = append(m.reactions[messageID], reaction)
	return nil
}

func (m *mockStore) MarkMessageEdited(ctx context.Context, messageID string, editedAt time.Time) error {
	return nil
}

func (m *mockStore) StoreDocumentChange(ctx context.Context, change *types.DocumentChange) error {
	if m.shouldFailStore {
		return errors.New("store write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	change.Timestamp = time.Now()
	change.Applied = false
	m.changes = append(m.changes, change)
	return nil
}

func (m *mockStore) MarkChangeApplied(ctx context.Context, changeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[changeID] = true
	return nil
}

func (m *mockStore) ListDocumentChanges(ctx context.Context, sessionID string) ([]*types.DocumentChange, error) {
	return nil, nil
}

func (m *mockStore) CreateSession(ctx context.Context, session *types.Session) error { return nil }
func (m *mockStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.sessionStatus[sessionID]
	if !ok {
		status = types.SessionStatusActive
	}
	return &types.Session{ID: sessionID, Status: status}, nil
}
func (m *mockStore) UpdateSessionStatus(ctx context.Context, sessionID, status string, updatedAt time.Time) error {
	return nil
}
func (m *mockStore) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}
func (m *mockStore) CreateParticipant(ctx context.Context, participant *types.Participant) error {
	return nil
}
func (m *mockStore) GetParticipant(ctx context.Context, sessionID, userID string) (*types.Participant, error) {
	return nil, types.ErrParticipantNotFound
}
func (m *mockStore) ListParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	return nil, nil
}
func (m *mockStore) UpdateParticipantStatus(ctx context.Context, sessionID, userID, status string) error {
	return nil
}
func (m *mockStore) UpdateParticipantPermissions(ctx context.Context, sessionID, userID string, perms types.Permissions) error {
	return nil
}
func (m *mockStore) CreateScreenShare(ctx context.Context, share *types.ScreenShareSession) error {
	return nil
}
func (m *mockStore) GetScreenShare(ctx context.Context, shareID string) (*types.ScreenShareSession, error) {
	return nil, nil
}
func (m *mockStore) GetActiveScreenShare(ctx context.Context, sessionID string) (*types.ScreenShareSession, error) {
	return nil, nil
}
func (m *mockStore) UpdateScreenShareStatus(ctx context.Context, shareID, status string, endedAt *time.Time) error {
	return nil
}
func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

// Mock sender recording pushed envelopes.
type mockSender struct {
	mu         sync.Mutex
	envelopes  []*types.Envelope
	shouldFail bool
}

func (m *mockSender) Send(env *types.Envelope) error {
	if m.shouldFail {
		return errors.New("send failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelopes = append(m.envelopes, env)
	return nil
}

func (m *mockSender) pushed() []*types.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Envelope, len(m.envelopes))
	copy(out, m.envelopes)
	return out
}

func sender() types.Identity {
	return types.Identity{ID: "user1", Name: "User One", Role: types.RoleStudent}
}

func TestRouter_SendMessagePersistsThenPushes(t *testing.T) {
	store := newMockStore()
	conn := &mockSender{}
	router := NewRouter(store)
	router.Register("sess1", conn)

	msg, err := router.SendMessage(context.Background(), "sess1", sender(), types.MessageTypeText, "hello", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if msg.ID == "" {
		t.Error("Message ID should be assigned")
	}
	if msg.Timestamp.IsZero() {
		t.Error("Store should assign the timestamp")
	}

	pushed := conn.pushed()
	if len(pushed) != 1 {
		t.Fatalf("Expected one push, got %d", len(pushed))
	}
	if pushed[0].Type != types.EventTypeMessage {
		t.Errorf("Expected message envelope, got %s", pushed[0].Type)
	}

	var onWire types.Message
	if err := json.Unmarshal(pushed[0].Data, &onWire); err != nil {
		t.Fatalf("Pushed payload should decode as a message: %v", err)
	}
	if onWire.ID != msg.ID {
		t.Error("Pushed message should carry the persisted ID")
	}
	if onWire.Timestamp.IsZero() {
		t.Error("Pushed message should carry the store-assigned timestamp")
	}
}

func TestRouter_StoreFailureBlocksPush(t *testing.T) {
	store := newMockStore()
	store.shouldFailStore = true
	conn := &mockSender{}
	router := NewRouter(store)
	router.Register("sess1", conn)

	_, err := router.SendMessage(context.Background(), "sess1", sender(), types.MessageTypeText, "hello", nil)
	if err == nil {
		t.Fatal("SendMessage should surface the store failure")
	}
	if len(conn.pushed()) != 0 {
		t.Error("Nothing may be pushed when the persist fails")
	}
}

func TestRouter_MessageOrderFollowsStoreTimestamps(t *testing.T) {
	store := newMockStore()
	conn := &mockSender{}
	router := NewRouter(store)
	router.Register("sess1", conn)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if _, err := router.SendMessage(ctx, "sess1", sender(), types.MessageTypeText, content, nil); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	history, _ := store.ListSessionMessages(ctx, "sess1")
	if len(history) != 3 {
		t.Fatalf("Expected 3 persisted messages, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Error("Store timestamps must be non-decreasing in persist order")
		}
	}
}

func TestRouter_SendValidatesBeforePersist(t *testing.T) {
	store := newMockStore()
	router := NewRouter(store)

	_, err := router.SendMessage(context.Background(), "sess1", sender(), "sticker", "hi", nil)
	if err != types.ErrInvalidMessageType {
		t.Errorf("Expected ErrInvalidMessageType, got %v", err)
	}

	_, err = router.SendMessage(context.Background(), "sess1", sender(), types.MessageTypeText, strings.Repeat("a", 65537), nil)
	if err != types.ErrContentTooLarge {
		t.Errorf("Expected ErrContentTooLarge, got %v", err)
	}
	if len(store.messages) != 0 {
		t.Error("Invalid messages must not reach the store")
	}
}

func TestRouter_RejectsInactiveSessions(t *testing.T) {
	store := newMockStore()
	conn := &mockSender{}
	router := NewRouter(store)
	router.Register("sess1", conn)
	ctx := context.Background()

	for _, status := range []string{
		types.SessionStatusPaused,
		types.SessionStatusCompleted,
		types.SessionStatusArchived,
	} {
		store.setSessionStatus("sess1", status)

		if _, err := router.SendMessage(ctx, "sess1", sender(), types.MessageTypeText, "hello", nil); !errors.Is(err, types.ErrSessionNotActive) {
			t.Errorf("%s: SendMessage expected ErrSessionNotActive, got %v", status, err)
		}
		if _, err := router.ApplyDocumentChange(ctx, "sess1", sender(), types.ChangeTypeInsert, 0, 0, "edit"); !errors.Is(err, types.ErrSessionNotActive) {
			t.Errorf("%s: ApplyDocumentChange expected ErrSessionNotActive, got %v", status, err)
		}
		if err := router.AddReaction(ctx, "sess1", "msg1", sender(), "👍"); !errors.Is(err, types.ErrSessionNotActive) {
			t.Errorf("%s: AddReaction expected ErrSessionNotActive, got %v", status, err)
		}
	}

	if len(store.messages) != 0 || len(store.changes) != 0 || len(store.reactions) != 0 {
		t.Error("Nothing may persist against a non-active session")
	}
	if len(conn.pushed()) != 0 {
		t.Error("Nothing may be pushed for a non-active session")
	}

	// Back to active, routing resumes.
	store.setSessionStatus("sess1", types.SessionStatusActive)
	if _, err := router.SendMessage(ctx, "sess1", sender(), types.MessageTypeText, "hello", nil); err != nil {
		t.Fatalf("SendMessage on an active session failed: %v", err)
	}
}

func TestRouter_ReactionCarriesTimestamp(t *testing.T) {
	store := newMockStore()
	router := NewRouter(store)
	ctx := context.Background()

	before := time.Now()
	if err := router.AddReaction(ctx, "sess1", "msg1", sender(), "🎉"); err != nil {
		t.Fatalf("AddReaction failed: %v", err)
	}

	stored := store.reactions["msg1"]
	if len(stored) != 1 {
		t.Fatalf("Expected one stored reaction, got %d", len(stored))
	}
	if stored[0].Timestamp.IsZero() || stored[0].Timestamp.Before(before) {
		t.Errorf("Reaction should be stamped at append time, got %v", stored[0].Timestamp)
	}
}

func TestRouter_PushFailureDoesNotSurface(t *testing.T) {
	store := newMockStore()
	conn := &mockSender{shouldFail: true}
	router := NewRouter(store)
	router.Register("sess1", conn)

	msg, err := router.SendMessage(context.Background(), "sess1", sender(), types.MessageTypeText, "hello", nil)
	if err != nil {
		t.Fatalf("Push failure after persist must not surface: %v", err)
	}
	if msg == nil {
		t.Fatal("Persisted message should be returned")
	}
	if len(store.messages) != 1 {
		t.Error("Message should still be persisted")
	}
}

func TestRouter_ReplyCarriesParent(t *testing.T) {
	store := newMockStore()
	conn := &mockSender{}
	router := NewRouter(store)
	router.Register("sess1", conn)
	ctx := context.Background()

	parent, err := router.SendMessage(ctx, "sess1", sender(), types.MessageTypeText, "question", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	reply, err := router.ReplyToMessage(ctx, "sess1", sender(), types.MessageTypeText, "answer", parent.ID)
	if err != nil {
		t.Fatalf("ReplyToMessage failed: %v", err)
	}
	if reply.ReplyTo == nil || *reply.ReplyTo != parent.ID {
		t.Error("Reply should reference the parent message")
	}
}

func TestRouter_ReactionAppendsAndNotifies(t *testing.T) {
	store := newMockStore()
	conn := &mockSender{}
	router := NewRouter(store)
	router.Register("sess1", conn)
	ctx := context.Background()

	parent, err := router.SendMessage(ctx, "sess1", sender(), types.MessageTypeText, "announcement", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if err := router.AddReaction(ctx, "sess1", parent.ID, sender(), "🎉"); err != nil {
		t.Fatalf("AddReaction failed: %v", err)
	}

	if len(store.reactions[parent.ID]) != 1 {
		t.Error("Reaction should be appended to the parent message")
	}

	pushed := conn.pushed()
	if len(pushed) != 2 {
		t.Fatalf("Expected message push plus reaction notice, got %d", len(pushed))
	}

	var notice types.Message
	if err := json.Unmarshal(pushed[1].Data, &notice); err != nil {
		t.Fatalf("Reaction notice should decode: %v", err)
	}
	if notice.Type != types.MessageTypeReaction {
		t.Errorf("Expected reaction notice, got %s", notice.Type)
	}
	if len(store.messages) != 1 {
		t.Error("The reaction notice itself must not be persisted")
	}
}

func TestRouter_DocumentChangePersistsUnapplied(t *testing.T) {
	store := newMockStore()
	conn := &mockSender{}
	router := NewRouter(store)
	router.Register("sess1", conn)
	ctx := context.Background()

	change, err := router.ApplyDocumentChange(ctx, "sess1", sender(), types.ChangeTypeInsert, 42, 0, "new text")
	if err != nil {
		t.Fatalf("ApplyDocumentChange failed: %v", err)
	}
	if change.Applied {
		t.Error("Change should persist with applied=false")
	}
	if change.Timestamp.IsZero() {
		t.Error("Store should assign the change timestamp")
	}

	pushed := conn.pushed()
	if len(pushed) != 1 || pushed[0].Type != types.EventTypeDocumentChange {
		t.Fatalf("Expected one document_change push, got %v", pushed)
	}

	if err := router.ConfirmChangeApplied(ctx, change.ID); err != nil {
		t.Fatalf("ConfirmChangeApplied failed: %v", err)
	}
	if !store.applied[change.ID] {
		t.Error("Confirmation should mark the change applied in the store")
	}
}

func TestRouter_PresencePublishRequiresConnection(t *testing.T) {
	router := NewRouter(newMockStore())

	err := router.PublishPresence(types.PresenceUpdate{SessionID: "sess1", UserID: "user1"})
	if err != ErrNoConnection {
		t.Errorf("Expected ErrNoConnection, got %v", err)
	}

	conn := &mockSender{}
	router.Register("sess1", conn)
	if err := router.PublishPresence(types.PresenceUpdate{SessionID: "sess1", UserID: "user1", Status: types.ParticipantStatusActive}); err != nil {
		t.Fatalf("PublishPresence failed: %v", err)
	}

	pushed := conn.pushed()
	if len(pushed) != 1 || pushed[0].Type != types.EventTypePresence {
		t.Fatalf("Expected one presence push, got %v", pushed)
	}
}

func TestRouter_UnregisterStopsPushes(t *testing.T) {
	store := newMockStore()
	conn := &mockSender{}
	router := NewRouter(store)
	router.Register("sess1", conn)
	router.Unregister("sess1")

	msg, err := router.SendMessage(context.Background(), "sess1", sender(), types.MessageTypeText, "hello", nil)
	if err != nil {
		t.Fatalf("SendMessage should persist without a connection: %v", err)
	}
	if msg == nil {
		t.Fatal("Message should be returned")
	}
	if len(conn.pushed()) != 0 {
		t.Error("No push may reach an unregistered connection")
	}
}
