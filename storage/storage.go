// Package storage defines the durable key-value contract used to persist
// back-office client state (most importantly the session record) across
// process restarts.
package storage

import (
	"context"
	"errors"
	"time"
)

// Storage is the primary durable key-value interface.
type Storage interface {
	// Get retrieves the item stored under key within the configured profile.
	// Returns a nil Item if the key doesn't exist or has expired.
	// Returns an error only for legitimate storage system failures.
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data under key within the configured profile.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes data within the configured profile.
	// If no key is specified via WithKey, the entire profile is removed.
	Delete(ctx context.Context, opts ...Option) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// Item represents a stored piece of data with metadata.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// IsExpired checks if the item has expired.
func (it *Item) IsExpired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// ChangeHandlerFunction is invoked by a Watcher whenever the watched key is
// written or removed by any writer, including other processes.
type ChangeHandlerFunction func(ctx context.Context, key string)

// Watcher is an optional interface for backends that can observe external
// writes to a key. The file backend implements it so a logout performed by
// one process is seen by every other process sharing the same storage root.
type Watcher interface {
	Watch(ctx context.Context, key string, handler ChangeHandlerFunction, opts ...Option) error
}

// Option configures storage operations.
type Option func(*Options)

// Options contains configuration for storage operations.
type Options struct {
	Profile string         // Optional: account profile namespace ("" = default)
	Key     *string        // Optional: specific key (for Delete operations)
	TTL     *time.Duration // Optional: time-to-live for the data
}

// WithProfile scopes the operation to a named account profile. Profiles are
// fully isolated from each other; the empty string is the default profile.
func WithProfile(name string) Option {
	return func(opts *Options) {
		opts.Profile = name
	}
}

// WithKey specifies a specific key for Delete operations.
// If not provided, Delete removes the entire profile.
func WithKey(key string) Option {
	return func(opts *Options) {
		opts.Key = &key
	}
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}

var (
	// ErrInvalidOptions is returned when incompatible options are provided.
	ErrInvalidOptions = errors.New("storage: invalid option combination")
)
