// Package memory provides an in-memory implementation of the storage
// interface using github.com/hashicorp/golang-lru/v2 for bounded caching
// with TTL support. It is intended for tests and ephemeral embeddings; a
// session stored here does not survive a process restart.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cartstack/backoffice-go/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Storage implements the storage.Storage interface in memory.
type Storage struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, *storage.Item]
}

// New creates a new in-memory storage implementation bounded to maxItems.
func New(maxItems int) (*Storage, error) {
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &Storage{cache: cache}, nil
}

// Get retrieves the item stored under key within the configured profile.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	storageKey := buildKey(options.Profile, key)

	s.mu.RLock()
	item, exists := s.cache.Get(storageKey)
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	if item.IsExpired() {
		s.mu.Lock()
		s.cache.Remove(storageKey)
		s.mu.Unlock()
		return nil, nil
	}

	return item, nil
}

// Set stores data under key within the configured profile.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	now := time.Now()
	item := &storage.Item{
		Data:      make([]byte, len(data)),
		CreatedAt: now,
	}
	copy(item.Data, data)

	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		item.ExpiresAt = &expiresAt
	}

	s.mu.Lock()
	s.cache.Add(buildKey(options.Profile, key), item)
	s.mu.Unlock()

	return nil
}

// Delete removes data within the configured profile.
func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if options.Key != nil {
		s.cache.Remove(buildKey(options.Profile, *options.Key))
		return nil
	}

	// Delete the entire profile. The LRU cache doesn't support prefix
	// iteration, so scan all keys.
	prefix := buildPrefix(options.Profile)
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Remove(key)
		}
	}

	return nil
}

// Close closes the storage backend and releases resources.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

func buildKey(profile, key string) string {
	return buildPrefix(profile) + "key:" + key
}

func buildPrefix(profile string) string {
	if profile == "" {
		return "default:"
	}
	return "profile:" + profile + ":"
}

// Compile-time interface check
var _ storage.Storage = (*Storage)(nil)
