package session

import (
	"context"
	"errors"
	"testing"

	"studysync/pkg/types"
)

// setupShareSession creates an active session with a joined student and
// returns the manager pieces the share tests need.
func setupShareSession(t *testing.T) (*Manager, *mockStore, *mockIdentity, *types.Session) {
	t.Helper()

	store := newMockStore()
	identity := &mockIdentity{}
	identity.set(teacher())
	manager := newTestManager(store, identity)

	session, err := manager.CreateSession(context.Background(), "Demo class", types.SessionTypeLiveClass, nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	identity.set(student())
	if _, err := manager.JoinSession(context.Background(), session.ID); err != nil {
		t.Fatalf("JoinSession failed: %v", err)
	}
	t.Cleanup(func() {
		manager.LeaveSession(context.Background(), session.ID)
	})

	return manager, store, identity, session
}

func TestScreenShare_StartRequiresPermission(t *testing.T) {
	manager, _, identity, session := setupShareSession(t)
	ctx := context.Background()

	// Student in a live class holds no share permission.
	_, err := manager.StartScreenShare(ctx, session.ID, "", false)
	if !errors.Is(err, types.ErrPermissionDenied) {
		t.Errorf("Student share should be denied, got %v", err)
	}

	identity.set(teacher())
	share, err := manager.StartScreenShare(ctx, session.ID, "", true)
	if err != nil {
		t.Fatalf("Teacher share failed: %v", err)
	}
	if share.Status != types.ScreenShareStatusActive {
		t.Errorf("Fresh share should be active, got %s", share.Status)
	}
	if share.Quality != "auto" {
		t.Errorf("Quality should default to auto, got %s", share.Quality)
	}
	if !share.AudioEnabled {
		t.Error("Audio flag should carry through")
	}
	if share.PresenterID != "teacher1" {
		t.Errorf("Presenter should be the caller, got %s", share.PresenterID)
	}
}

func TestScreenShare_ExplicitGrantHonored(t *testing.T) {
	manager, store, identity, session := setupShareSession(t)
	ctx := context.Background()

	// Teacher grants the student screen share.
	identity.set(teacher())
	participant, _ := store.GetParticipant(ctx, session.ID, "student1")
	perms := participant.Permissions
	perms.CanShareScreen = true
	if err := manager.GrantPermissions(ctx, session.ID, "student1", perms); err != nil {
		t.Fatalf("GrantPermissions failed: %v", err)
	}

	identity.set(student())
	share, err := manager.StartScreenShare(ctx, session.ID, "high", false)
	if err != nil {
		t.Fatalf("Granted student share should succeed: %v", err)
	}
	if share.Quality != "high" {
		t.Errorf("Explicit quality should stick, got %s", share.Quality)
	}
}

func TestScreenShare_SingleActiveSharePerSession(t *testing.T) {
	manager, _, identity, session := setupShareSession(t)
	ctx := context.Background()

	identity.set(teacher())
	first, err := manager.StartScreenShare(ctx, session.ID, "", false)
	if err != nil {
		t.Fatalf("First share failed: %v", err)
	}

	// A second start is rejected, not a replacement.
	_, err = manager.StartScreenShare(ctx, session.ID, "", false)
	if !errors.Is(err, types.ErrScreenShareActive) {
		t.Errorf("Expected ErrScreenShareActive, got %v", err)
	}

	// Stopping frees the slot.
	if err := manager.StopScreenShare(ctx, first.ID); err != nil {
		t.Fatalf("StopScreenShare failed: %v", err)
	}
	if _, err := manager.StartScreenShare(ctx, session.ID, "", false); err != nil {
		t.Fatalf("Share after stop should succeed: %v", err)
	}
}

func TestScreenShare_PauseResumeStop(t *testing.T) {
	manager, store, identity, session := setupShareSession(t)
	ctx := context.Background()

	identity.set(teacher())
	share, err := manager.StartScreenShare(ctx, session.ID, "", false)
	if err != nil {
		t.Fatalf("StartScreenShare failed: %v", err)
	}

	if err := manager.PauseScreenShare(ctx, share.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	got, _ := store.GetScreenShare(ctx, share.ID)
	if got.Status != types.ScreenShareStatusPaused {
		t.Errorf("Share should be paused, got %s", got.Status)
	}

	// Paused cannot pause again.
	if err := manager.PauseScreenShare(ctx, share.ID); !errors.Is(err, ErrInvalidShareTransition) {
		t.Errorf("Double pause should fail, got %v", err)
	}

	if err := manager.ResumeScreenShare(ctx, share.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got, _ = store.GetScreenShare(ctx, share.ID)
	if got.Status != types.ScreenShareStatusActive {
		t.Errorf("Share should be active again, got %s", got.Status)
	}

	if err := manager.StopScreenShare(ctx, share.ID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	got, _ = store.GetScreenShare(ctx, share.ID)
	if got.Status != types.ScreenShareStatusStopped {
		t.Errorf("Share should be stopped, got %s", got.Status)
	}
	if got.EndedAt == nil {
		t.Error("Stopped share should carry its end time")
	}

	// Stopped is terminal.
	if err := manager.ResumeScreenShare(ctx, share.ID); !errors.Is(err, ErrInvalidShareTransition) {
		t.Errorf("Resuming a stopped share should fail, got %v", err)
	}
}

func TestScreenShare_OnlyPresenterOrModeratorControls(t *testing.T) {
	manager, store, identity, session := setupShareSession(t)
	ctx := context.Background()

	// Grant the student share permission and let them present.
	identity.set(teacher())
	participant, _ := store.GetParticipant(ctx, session.ID, "student1")
	perms := participant.Permissions
	perms.CanShareScreen = true
	if err := manager.GrantPermissions(ctx, session.ID, "student1", perms); err != nil {
		t.Fatalf("GrantPermissions failed: %v", err)
	}

	identity.set(student())
	share, err := manager.StartScreenShare(ctx, session.ID, "", false)
	if err != nil {
		t.Fatalf("StartScreenShare failed: %v", err)
	}

	// Another student without moderator rights cannot touch the share.
	other := &types.Identity{ID: "student2", Name: "Student Two", Role: types.RoleStudent}
	identity.set(other)
	if _, err := manager.JoinSession(ctx, session.ID); err != nil {
		t.Fatalf("Second join failed: %v", err)
	}
	if err := manager.StopScreenShare(ctx, share.ID); !errors.Is(err, types.ErrPermissionDenied) {
		t.Errorf("Non-presenter stop should be denied, got %v", err)
	}

	// A moderator may stop someone else's share.
	identity.set(teacher())
	if err := manager.StopScreenShare(ctx, share.ID); err != nil {
		t.Errorf("Moderator stop failed: %v", err)
	}
}

func TestScreenShare_SessionMustBeActive(t *testing.T) {
	manager, _, identity, session := setupShareSession(t)
	ctx := context.Background()

	identity.set(teacher())
	if err := manager.PauseSession(ctx, session.ID); err != nil {
		t.Fatalf("PauseSession failed: %v", err)
	}

	_, err := manager.StartScreenShare(ctx, session.ID, "", false)
	if !errors.Is(err, types.ErrSessionNotActive) {
		t.Errorf("Share in a paused session should fail, got %v", err)
	}
}
