package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cartstack/backoffice-go/storage"
	"github.com/cartstack/backoffice-go/storage/storagetest"
	goredis "github.com/redis/go-redis/v9"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	s, err := New(Config{Client: client})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestRedisStorage(t *testing.T) {
	storagetest.RunStorageTests(t, func(t *testing.T) storage.Storage {
		return newTestStorage(t)
	})
}

func TestRedisStorageKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	s, err := New(Config{Client: client, KeyPrefix: "bo:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := testContext(t)
	if err := s.Set(ctx, "session", []byte("x"), storage.WithProfile("ops")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if !mr.Exists("bo:profile:ops:session") {
		t.Fatalf("expected key %q, got keys %v", "bo:profile:ops:session", mr.Keys())
	}
}
