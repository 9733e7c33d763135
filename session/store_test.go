package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cartstack/backoffice-go/storage"
	storagememory "github.com/cartstack/backoffice-go/storage/memory"
)

func newTestStore(t *testing.T) (*Store, storage.Storage) {
	t.Helper()
	st, err := storagememory.New(16)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewStore(st), st
}

// durableSession reads the raw durable record back, or nil when absent.
func durableSession(t *testing.T, st storage.Storage) *Session {
	t.Helper()
	item, err := st.Get(context.Background(), DefaultKey)
	if err != nil {
		t.Fatalf("storage get: %v", err)
	}
	if item == nil {
		return nil
	}
	var sess Session
	if err := json.Unmarshal(item.Data, &sess); err != nil {
		t.Fatalf("durable record not JSON: %v", err)
	}
	return &sess
}

func TestStoreStartsLoading(t *testing.T) {
	s, _ := newTestStore(t)
	if got := s.State(); got != StateLoading {
		t.Fatalf("State before Restore = %v, want %v", got, StateLoading)
	}
}

func TestRestoreEmptyStorage(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Restore(testContext(t)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := s.State(); got != StateUnauthenticated {
		t.Fatalf("State = %v, want %v", got, StateUnauthenticated)
	}
}

func TestRestoreMalformedRecordIsLoggedOut(t *testing.T) {
	s, st := newTestStore(t)
	ctx := testContext(t)

	if err := st.Set(ctx, DefaultKey, []byte("{definitely not json")); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore of malformed record returned error: %v", err)
	}
	if got := s.State(); got != StateUnauthenticated {
		t.Fatalf("State = %v, want %v", got, StateUnauthenticated)
	}
	if rec := durableSession(t, st); rec != nil {
		t.Fatalf("malformed durable record not discarded: %+v", rec)
	}
}

func TestRestorePartialRecordIsLoggedOut(t *testing.T) {
	s, st := newTestStore(t)
	ctx := testContext(t)

	// Authenticated flag set but no token violates the population invariant.
	if err := st.Set(ctx, DefaultKey, []byte(`{"isAuthenticated":true,"token":""}`)); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := s.State(); got != StateUnauthenticated {
		t.Fatalf("State = %v, want %v", got, StateUnauthenticated)
	}
}

func TestLoginPopulatesMemoryAndDurable(t *testing.T) {
	s, st := newTestStore(t)
	ctx := testContext(t)
	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	err := s.Login(ctx, LoginPayload{
		Token:       "abc",
		Role:        "admin",
		Permissions: []string{"superadmin"},
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	got := s.Current()
	if !got.IsAuthenticated || got.Token != "abc" || got.Role != "admin" {
		t.Fatalf("Current = %+v", got)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "superadmin" {
		t.Fatalf("Permissions = %v", got.Permissions)
	}
	if got := s.State(); got != StateAuthenticated {
		t.Fatalf("State = %v, want %v", got, StateAuthenticated)
	}

	rec := durableSession(t, st)
	if rec == nil {
		t.Fatal("no durable record after Login")
	}
	if !rec.equal(got) {
		t.Fatalf("durable record %+v != in-memory session %+v", *rec, got)
	}
}

func TestLoginWithoutToken(t *testing.T) {
	s, st := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)

	if err := s.Login(ctx, LoginPayload{Role: "admin"}); err != ErrMissingToken {
		t.Fatalf("Login without token: err=%v, want %v", err, ErrMissingToken)
	}
	if rec := durableSession(t, st); rec != nil {
		t.Fatalf("durable record written for rejected login: %+v", rec)
	}
}

func TestLoginLogoutSequenceKeepsCopiesEqual(t *testing.T) {
	s, st := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)

	for i := 0; i < 3; i++ {
		if err := s.Login(ctx, LoginPayload{Token: "tok", Role: "admin"}); err != nil {
			t.Fatalf("Login: %v", err)
		}
		mem := s.Current()
		rec := durableSession(t, st)
		if rec == nil || !rec.equal(mem) {
			t.Fatalf("after Login: durable=%+v memory=%+v", rec, mem)
		}

		if err := s.Logout(ctx); err != nil {
			t.Fatalf("Logout: %v", err)
		}
		if s.State() != StateUnauthenticated {
			t.Fatalf("State after Logout = %v", s.State())
		}
		if rec := durableSession(t, st); rec != nil {
			t.Fatalf("durable record survives Logout: %+v", rec)
		}
	}
}

func TestUpdateUserMergesOnlyGivenFields(t *testing.T) {
	s, st := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)

	err := s.Login(ctx, LoginPayload{
		Token:       "abc",
		Role:        "admin",
		Permissions: []string{"superadmin"},
		User:        map[string]any{"name": "Dana"},
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	tok := "xyz"
	if err := s.UpdateUser(ctx, Update{Token: &tok}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	got := s.Current()
	if got.Token != "xyz" {
		t.Fatalf("Token = %q, want %q", got.Token, "xyz")
	}
	if got.Role != "admin" || len(got.Permissions) != 1 || got.Permissions[0] != "superadmin" {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if got.User["name"] != "Dana" {
		t.Fatalf("User = %v", got.User)
	}

	// The merged token survives a restart.
	rec := durableSession(t, st)
	if rec == nil || rec.Token != "xyz" {
		t.Fatalf("durable record = %+v", rec)
	}
}

func TestUpdateUserMergesProfileFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)
	_ = s.Login(ctx, LoginPayload{Token: "abc", User: map[string]any{"name": "Dana", "shop": "north"}})

	if err := s.UpdateUser(ctx, Update{User: map[string]any{"name": "Dana R."}}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	got := s.Current()
	if got.User["name"] != "Dana R." || got.User["shop"] != "north" {
		t.Fatalf("User = %v", got.User)
	}
}

func TestUpdateUserWithoutSession(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.Restore(testContext(t))

	tok := "xyz"
	if err := s.UpdateUser(testContext(t), Update{Token: &tok}); err != ErrNoSession {
		t.Fatalf("UpdateUser on empty store: err=%v, want %v", err, ErrNoSession)
	}
}

func TestInvalidateIsExactlyOnce(t *testing.T) {
	s, st := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)
	_ = s.Login(ctx, LoginPayload{Token: "abc"})

	if !s.Invalidate(ctx, "expired") {
		t.Fatal("first Invalidate reported no clear")
	}
	if s.Invalidate(ctx, "expired") {
		t.Fatal("second Invalidate reported a clear")
	}
	if s.State() != StateUnauthenticated {
		t.Fatalf("State = %v", s.State())
	}
	if rec := durableSession(t, st); rec != nil {
		t.Fatalf("durable record survives Invalidate: %+v", rec)
	}
}

func TestGenerationBumpsOnClear(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)
	_ = s.Login(ctx, LoginPayload{Token: "abc"})

	before := s.Generation()
	s.Invalidate(ctx, "expired")
	if s.Generation() == before {
		t.Fatal("Generation unchanged across Invalidate")
	}
}

func TestWatchDeliversTransitions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Watch(ctx)

	// First delivery is the current (loading) snapshot.
	snap := recvSnapshot(t, ch)
	if snap.State != StateLoading {
		t.Fatalf("initial snapshot state = %v, want %v", snap.State, StateLoading)
	}

	_ = s.Restore(ctx)
	snap = recvSnapshot(t, ch)
	if snap.State != StateUnauthenticated {
		t.Fatalf("post-restore state = %v, want %v", snap.State, StateUnauthenticated)
	}

	_ = s.Login(ctx, LoginPayload{Token: "abc", Role: "admin"})
	snap = recvSnapshot(t, ch)
	if snap.State != StateAuthenticated || snap.Session.Token != "abc" {
		t.Fatalf("post-login snapshot = %+v", snap)
	}

	_ = s.Logout(ctx)
	snap = recvSnapshot(t, ch)
	if snap.State != StateUnauthenticated {
		t.Fatalf("post-logout state = %v, want %v", snap.State, StateUnauthenticated)
	}
}

func TestWatcherCannotMutateStore(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)
	_ = s.Login(ctx, LoginPayload{Token: "abc", Permissions: []string{"superadmin"}})

	got := s.Current()
	got.Permissions[0] = "mutated"
	got.Token = "mutated"

	if cur := s.Current(); cur.Token != "abc" || cur.Permissions[0] != "superadmin" {
		t.Fatalf("store state leaked to caller copy: %+v", cur)
	}
}

func recvSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

// flakyStorage wraps a backend and fails writes or deletes on demand, to
// exercise the store's behavior when durable storage is down.
type flakyStorage struct {
	storage.Storage
	failSet    bool
	failDelete bool
}

var errStorageDown = errors.New("storage backend down")

func (f *flakyStorage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	if f.failSet {
		return errStorageDown
	}
	return f.Storage.Set(ctx, key, data, opts...)
}

func (f *flakyStorage) Delete(ctx context.Context, opts ...storage.Option) error {
	if f.failDelete {
		return errStorageDown
	}
	return f.Storage.Delete(ctx, opts...)
}

func TestUpdateUserFailedWriteLeavesMemoryUnchanged(t *testing.T) {
	inner, err := storagememory.New(16)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	st := &flakyStorage{Storage: inner}
	s := NewStore(st)
	ctx := testContext(t)
	_ = s.Restore(ctx)

	if err := s.Login(ctx, LoginPayload{Token: "abc", Role: "admin"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	st.failSet = true
	tok := "xyz"
	if err := s.UpdateUser(ctx, Update{Token: &tok}); !errors.Is(err, errStorageDown) {
		t.Fatalf("UpdateUser with failing storage: err=%v, want %v", err, errStorageDown)
	}

	// Memory must still agree with the durable copy: both on the old token.
	if got := s.Token(); got != "abc" {
		t.Fatalf("memory Token = %q after failed write, want %q", got, "abc")
	}
	rec := durableSession(t, st)
	if rec == nil || rec.Token != "abc" {
		t.Fatalf("durable record = %+v, want token %q", rec, "abc")
	}

	// Once storage recovers the merge goes through on both sides.
	st.failSet = false
	if err := s.UpdateUser(ctx, Update{Token: &tok}); err != nil {
		t.Fatalf("UpdateUser after recovery: %v", err)
	}
	if got := s.Token(); got != "xyz" {
		t.Fatalf("memory Token = %q, want %q", got, "xyz")
	}
	if rec := durableSession(t, st); rec == nil || rec.Token != "xyz" {
		t.Fatalf("durable record = %+v, want token %q", rec, "xyz")
	}
}

func TestLogoutFailedDeleteStillClearsMemory(t *testing.T) {
	inner, err := storagememory.New(16)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	st := &flakyStorage{Storage: inner}
	s := NewStore(st)
	ctx := testContext(t)
	_ = s.Restore(ctx)
	_ = s.Login(ctx, LoginPayload{Token: "abc"})

	st.failDelete = true
	if err := s.Logout(ctx); !errors.Is(err, errStorageDown) {
		t.Fatalf("Logout with failing storage: err=%v, want %v", err, errStorageDown)
	}

	// The process is signed out regardless; the surfaced error is the
	// signal that the durable record may survive a restart.
	if got := s.State(); got != StateUnauthenticated {
		t.Fatalf("State = %v after Logout, want %v", got, StateUnauthenticated)
	}
	if rec := durableSession(t, st); rec == nil || rec.Token != "abc" {
		t.Fatalf("durable record = %+v, expected the stale record to remain", rec)
	}

	st.failDelete = false
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout retry: %v", err)
	}
	if rec := durableSession(t, st); rec != nil {
		t.Fatalf("durable record survived retried Logout: %+v", rec)
	}
}
