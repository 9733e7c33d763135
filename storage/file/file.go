// Package file provides a filesystem-backed implementation of the storage
// interface. Each key maps to one JSON document under the root directory,
// written atomically (temp file + rename) so a crashed process never leaves
// a torn session record behind.
//
// The backend also implements storage.Watcher via fsnotify: a write or
// removal performed by another process sharing the same root is surfaced to
// the handler, which is how one back-office window observes a logout
// performed in another.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cartstack/backoffice-go/storage"
	"github.com/fsnotify/fsnotify"
)

// Storage implements storage.Storage on the local filesystem.
type Storage struct {
	root string
}

// document is the on-disk representation of a stored item.
type document struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a file-backed storage rooted at dir, creating it if needed.
func New(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("file storage root is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Storage{root: dir}, nil
}

// Get retrieves the item stored under key within the configured profile.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	path := s.keyPath(options.Profile, key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	item := &storage.Item{
		Data:      doc.Data,
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
	}
	if item.IsExpired() {
		_ = os.Remove(path)
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
	doc := document{
		Data:      data,
		CreatedAt: now,
	}
	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		doc.ExpiresAt = &expiresAt
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	path := s.keyPath(options.Profile, key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}

// Delete removes data within the configured profile.
func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Key != nil {
		path := s.keyPath(options.Profile, *options.Key)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		return nil
	}

	dir := s.profileDir(options.Profile)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove profile dir: %w", err)
	}
	return nil
}

// Close closes the storage backend. The file backend holds no persistent
// resources outside of Watch goroutines, which are bound to their contexts.
func (s *Storage) Close() error {
	return nil
}

// Watch invokes handler whenever the file behind key is created, written,
// or removed, until ctx is cancelled. It returns once the underlying
// watcher is registered, so a caller-side mutation performed after Watch
// returns will be observed.
func (s *Storage) Watch(ctx context.Context, key string, handler storage.ChangeHandlerFunction, opts ...storage.Option) error {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	dir := s.profileDir(options.Profile)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := s.keyPath(options.Profile, key)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					handler(ctx, key)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
				// Watch errors are not fatal to the storage itself;
				// the next explicit Get still reads the truth on disk.
			}
		}
	}()

	return nil
}

func (s *Storage) profileDir(profile string) string {
	if profile == "" {
		return filepath.Join(s.root, "default")
	}
	return filepath.Join(s.root, "profile-"+sanitize(profile))
}

func (s *Storage) keyPath(profile, key string) string {
	return filepath.Join(s.profileDir(profile), sanitize(key)+".json")
}

// sanitize maps an arbitrary key or profile name onto a safe file name.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Compile-time interface checks
var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Watcher = (*Storage)(nil)
)
