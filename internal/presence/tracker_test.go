package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studysync/pkg/types"
)

// Mock store for tracker tests. Only participant status writes matter here.
type mockStore struct {
	mu            sync.Mutex
	statusWrites  []string
	shouldFailUpd bool
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) UpdateParticipantStatus(ctx context.Context, sessionID, userID, status string) error {
	if m.shouldFailUpd {
		return errors.New("store write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusWrites = append(m.statusWrites, sessionID+"/"+userID+"/"+status)
	return nil
}

func (m *mockStore) writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.statusWrites))
	copy(out, m.statusWrites)
	return out
}

func (m *mockStore) CreateSession(ctx context.Context, session *types.Session) error { return nil }
func (m *mockStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return nil, types.ErrSessionNotFound
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
func (m *mockStore) UpdateParticipantPermissions(ctx context.Context, sessionID, userID string, perms types.Permissions) error {
	return nil
}
func (m *mockStore) StoreMessage(ctx context.Context, message *types.Message) error { return nil }
func (m *mockStore) ListSessionMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	return nil, nil
}
func (m *mockStore) AppendReaction(ctx context.Context, messageID string, reaction types.Reaction) error {
	return nil
}
func (m *mockStore) MarkMessageEdited(ctx context.Context, messageID string, editedAt time.Time) error {
	return nil
}
func (m *mockStore) StoreDocumentChange(ctx context.Context, change *types.DocumentChange) error {
	return nil
}
func (m *mockStore) MarkChangeApplied(ctx context.Context, changeID string) error { return nil }
func (m *mockStore) ListDocumentChanges(ctx context.Context, sessionID string) ([]*types.DocumentChange, error) {
	return nil, nil
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

// Mock notifier which records published updates.
type mockNotifier struct {
	mu       sync.Mutex
	presence []types.PresenceUpdate
	cursors  []types.CursorUpdate
}

func (m *mockNotifier) PublishPresence(update types.PresenceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence = append(m.presence, update)
	return nil
}

func (m *mockNotifier) PublishCursor(update types.CursorUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors = append(m.cursors, update)
	return nil
}

func (m *mockNotifier) presenceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.presence)
}

func TestTracker_StatusWritesThroughAndAnnounces(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{}
	tracker := NewTracker(store, notifier)

	tracker.UpdateStatus(context.Background(), "sess1", "user1", types.ParticipantStatusActive)

	writes := store.writes()
	if len(writes) != 1 || writes[0] != "sess1/user1/active" {
		t.Errorf("Expected one write-through, got %v", writes)
	}
	if notifier.presenceCount() != 1 {
		t.Errorf("Expected one presence announcement, got %d", notifier.presenceCount())
	}
	if got := tracker.Status("sess1", "user1"); got != types.ParticipantStatusActive {
		t.Errorf("Expected tracked status active, got %s", got)
	}
}

func TestTracker_NoAnnouncementWhenStatusUnchanged(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{}
	tracker := NewTracker(store, notifier)

	tracker.UpdateStatus(context.Background(), "sess1", "user1", types.ParticipantStatusActive)
	tracker.UpdateStatus(context.Background(), "sess1", "user1", types.ParticipantStatusActive)

	if notifier.presenceCount() != 1 {
		t.Errorf("Repeated status should announce once, got %d", notifier.presenceCount())
	}
	// The write-through still happens each time.
	if len(store.writes()) != 2 {
		t.Errorf("Expected 2 write-throughs, got %d", len(store.writes()))
	}
}

func TestTracker_StoreFailureSwallowed(t *testing.T) {
	store := newMockStore()
	store.shouldFailUpd = true
	notifier := &mockNotifier{}
	tracker := NewTracker(store, notifier)

	// Must not panic or surface the store error.
	tracker.UpdateStatus(context.Background(), "sess1", "user1", types.ParticipantStatusIdle)

	if got := tracker.Status("sess1", "user1"); got != types.ParticipantStatusIdle {
		t.Errorf("In-memory state should update despite store failure, got %s", got)
	}
	if notifier.presenceCount() != 1 {
		t.Error("Announcement should still fire when the store write fails")
	}
}

func TestTracker_CursorIsTransportOnly(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{}
	tracker := NewTracker(store, notifier)

	cursor := &types.CursorPosition{Line: 10, Column: 4}
	tracker.UpdateCursor("sess1", "user1", cursor, nil)

	if len(store.writes()) != 0 {
		t.Error("Cursor updates must never touch the store")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.cursors) != 1 {
		t.Fatalf("Expected one cursor publication, got %d", len(notifier.cursors))
	}
	if notifier.cursors[0].Cursor.Line != 10 {
		t.Errorf("Expected cursor line 10, got %d", notifier.cursors[0].Cursor.Line)
	}
}

func TestTracker_UnknownParticipantIsOffline(t *testing.T) {
	tracker := NewTracker(newMockStore(), nil)

	if got := tracker.Status("nope", "nobody"); got != types.ParticipantStatusOffline {
		t.Errorf("Unknown participant should read offline, got %s", got)
	}
}

func TestTracker_SnapshotAndDrop(t *testing.T) {
	store := newMockStore()
	tracker := NewTracker(store, nil)
	ctx := context.Background()

	tracker.UpdateStatus(ctx, "sess1", "user1", types.ParticipantStatusActive)
	tracker.UpdateStatus(ctx, "sess1", "user2", types.ParticipantStatusIdle)

	snap := tracker.Snapshot("sess1")
	if len(snap) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(snap))
	}
	if snap["user2"] != types.ParticipantStatusIdle {
		t.Errorf("Expected user2 idle, got %s", snap["user2"])
	}

	tracker.Drop("sess1")
	if len(tracker.Snapshot("sess1")) != 0 {
		t.Error("Snapshot after drop should be empty")
	}
}

func TestTracker_ConcurrentStatusUpdatesLastWriteWins(t *testing.T) {
	store := newMockStore()
	tracker := NewTracker(store, &mockNotifier{})
	ctx := context.Background()

	var wg sync.WaitGroup
	statuses := []string{
		types.ParticipantStatusActive,
		types.ParticipantStatusIdle,
		types.ParticipantStatusAway,
		types.ParticipantStatusOffline,
	}
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(status string) {
			defer wg.Done()
			tracker.UpdateStatus(ctx, "sess1", "user1", status)
		}(statuses[i%len(statuses)])
	}
	wg.Wait()

	// Whatever won, it must be one of the written statuses.
	final := tracker.Status("sess1", "user1")
	found := false
	for _, s := range statuses {
		if final == s {
			found = true
		}
	}
	if !found {
		t.Errorf("Final status %q is not one of the written statuses", final)
	}
}
