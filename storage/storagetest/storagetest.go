// Package storagetest provides a reusable conformance suite for
// storage.Storage implementations. Every backend in this module runs the
// same suite so behavioral drift between backends is caught early.
package storagetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cartstack/backoffice-go/storage"
)

// Factory creates a fresh Storage instance for testing. The instance is
// closed by the suite when the subtest finishes.
type Factory func(t *testing.T) storage.Storage

// RunStorageTests runs the complete Storage conformance suite against the
// provided factory.
func RunStorageTests(t *testing.T, factory Factory) {
	t.Run("SetThenGet", func(t *testing.T) { testSetThenGet(t, factory) })
	t.Run("GetMissingIsNilNil", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("OverwriteReplacesData", func(t *testing.T) { testOverwrite(t, factory) })
	t.Run("TTLExpiry", func(t *testing.T) { testTTLExpiry(t, factory) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, factory) })
	t.Run("DeleteKeyIsIdempotent", func(t *testing.T) { testDeleteIdempotent(t, factory) })
	t.Run("DeleteProfileRemovesAllKeys", func(t *testing.T) { testDeleteProfile(t, factory) })
	t.Run("ProfileIsolation", func(t *testing.T) { testProfileIsolation(t, factory) })
}

func newStorage(t *testing.T, factory Factory) storage.Storage {
	t.Helper()
	s := factory(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSetThenGet(t *testing.T, factory Factory) {
	s := newStorage(t, factory)
	ctx := context.Background()

	want := []byte(`{"token":"abc"}`)
	if err := s.Set(ctx, "session", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	item, err := s.Get(ctx, "session")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil {
		t.Fatal("Get returned nil item for existing key")
	}
	if !bytes.Equal(item.Data, want) {
		t.Fatalf("Get data = %q, want %q", item.Data, want)
	}
	if item.CreatedAt.IsZero() {
		t.Fatal("Get returned zero CreatedAt")
	}
	if item.ExpiresAt != nil {
		t.Fatalf("Get returned ExpiresAt %v for item stored without TTL", item.ExpiresAt)
	}
}

func testGetMissing(t *testing.T, factory Factory) {
	s := newStorage(t, factory)

	item, err := s.Get(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("Get of missing key returned error: %v", err)
	}
	if item != nil {
		t.Fatalf("Get of missing key returned item: %+v", item)
	}
}

func testOverwrite(t *testing.T, factory Factory) {
	s := newStorage(t, factory)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}

	item, err := s.Get(ctx, "k")
	if err != nil || item == nil {
		t.Fatalf("Get: item=%v err=%v", item, err)
	}
	if string(item.Data) != "second" {
		t.Fatalf("Get data = %q, want %q", item.Data, "second")
	}
}

func testTTLExpiry(t *testing.T, factory Factory) {
	s := newStorage(t, factory)
	ctx := context.Background()

	if err := s.Set(ctx, "ephemeral", []byte("x"), storage.WithTTL(25*time.Millisecond)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	item, err := s.Get(ctx, "ephemeral")
	if err != nil || item == nil {
		t.Fatalf("Get before expiry: item=%v err=%v", item, err)
	}
	if item.ExpiresAt == nil {
		t.Fatal("item stored with TTL has nil ExpiresAt")
	}

	time.Sleep(60 * time.Millisecond)

	item, err = s.Get(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if item != nil {
		t.Fatalf("Get after expiry returned item: %+v", item)
	}
}

func testDeleteKey(t *testing.T, factory Factory) {
	s := newStorage(t, factory)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(ctx, storage.WithKey("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	item, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if item != nil {
		t.Fatalf("Get after delete returned item: %+v", item)
	}
}

func testDeleteIdempotent(t *testing.T, factory Factory) {
	s := newStorage(t, factory)
	ctx := context.Background()

	if err := s.Delete(ctx, storage.WithKey("absent")); err != nil {
		t.Fatalf("Delete of absent key: %v", err)
	}
	if err := s.Delete(ctx, storage.WithKey("absent")); err != nil {
		t.Fatalf("repeat Delete of absent key: %v", err)
	}
}

func testDeleteProfile(t *testing.T, factory Factory) {
	s := newStorage(t, factory)
	ctx := context.Background()

	prof := storage.WithProfile("alice")
	if err := s.Set(ctx, "session", []byte("a"), prof); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "prefs", []byte("b"), prof); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "session", []byte("keep"), storage.WithProfile("bob")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := s.Delete(ctx, prof); err != nil {
		t.Fatalf("Delete profile: %v", err)
	}

	for _, key := range []string{"session", "prefs"} {
		item, err := s.Get(ctx, key, prof)
		if err != nil {
			t.Fatalf("Get %q after profile delete: %v", key, err)
		}
		if item != nil {
			t.Fatalf("key %q survived profile delete", key)
		}
	}

	item, err := s.Get(ctx, "session", storage.WithProfile("bob"))
	if err != nil || item == nil {
		t.Fatalf("other profile's key lost: item=%v err=%v", item, err)
	}
	if string(item.Data) != "keep" {
		t.Fatalf("other profile's data = %q, want %q", item.Data, "keep")
	}
}

func testProfileIsolation(t *testing.T, factory Factory) {
	s := newStorage(t, factory)
	ctx := context.Background()

	if err := s.Set(ctx, "session", []byte("default")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "session", []byte("alice"), storage.WithProfile("alice")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	item, err := s.Get(ctx, "session")
	if err != nil || item == nil {
		t.Fatalf("Get default: item=%v err=%v", item, err)
	}
	if string(item.Data) != "default" {
		t.Fatalf("default profile data = %q, want %q", item.Data, "default")
	}

	item, err = s.Get(ctx, "session", storage.WithProfile("alice"))
	if err != nil || item == nil {
		t.Fatalf("Get alice: item=%v err=%v", item, err)
	}
	if string(item.Data) != "alice" {
		t.Fatalf("alice profile data = %q, want %q", item.Data, "alice")
	}
}
