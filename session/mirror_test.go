package session

import (
	"context"
	"testing"
	"time"

	storagefile "github.com/cartstack/backoffice-go/storage/file"
)

// Two stores over the same storage root stand in for two back-office
// windows: a logout in one must log the other out too.
func TestMirrorExternalAdoptsLogout(t *testing.T) {
	dir := t.TempDir()

	stA, err := storagefile.New(dir)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	defer stA.Close()
	stB, err := storagefile.New(dir)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	defer stB.Close()

	a := NewStore(stA)
	b := NewStore(stB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = a.Restore(ctx)
	_ = b.Restore(ctx)
	if err := a.Login(ctx, LoginPayload{Token: "abc", Role: "admin"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_ = b.Restore(ctx)
	if b.State() != StateAuthenticated {
		t.Fatalf("second store did not see login: %v", b.State())
	}

	if err := b.MirrorExternal(ctx); err != nil {
		t.Fatalf("MirrorExternal: %v", err)
	}

	if err := a.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for b.State() != StateUnauthenticated {
		if time.Now().After(deadline) {
			t.Fatalf("mirroring store never adopted logout, state=%v", b.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMirrorExternalNoWatcherBackend(t *testing.T) {
	s, _ := newTestStore(t)
	// The memory backend has no watch support; mirroring is a no-op.
	if err := s.MirrorExternal(testContext(t)); err != nil {
		t.Fatalf("MirrorExternal on non-watching backend: %v", err)
	}
}
