// Package redis provides a Redis-backed implementation of the storage
// interface for shared back-office deployments (several operator machines
// or kiosk terminals sharing one session namespace).
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cartstack/backoffice-go/storage"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration for the Redis storage. Defaults can be
// loaded from the environment via NewFromEnv.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: BACKOFFICE_REDIS_ADDR
	RedisAddr string `env:"BACKOFFICE_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: BACKOFFICE_STORAGE_KEY_PREFIX
	KeyPrefix string `env:"BACKOFFICE_STORAGE_KEY_PREFIX,default=backoffice:storage:"`

	// Client, when non-nil, is used instead of dialing RedisAddr.
	Client *redis.Client `env:"-"`
}

// Storage implements the storage.Storage interface using Redis.
type Storage struct {
	client    *redis.Client
	keyPrefix string
}

// storedItem is the structure stored in Redis.
type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a Redis-backed storage instance.
func New(cfg Config) (*Storage, error) {
	cl := cfg.Client
	if cl == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		cl = redis.NewClient(&redis.Options{Addr: addr})
		if err := cl.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "backoffice:storage:"
	}

	return &Storage{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Storage using envdecode to populate Config.
func NewFromEnv() (*Storage, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Get retrieves the item stored under key within the configured profile.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	redisKey := s.buildKey(options.Profile, key)
	result := s.client.Get(ctx, redisKey)
	if result.Err() != nil {
		if result.Err() == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, result.Err())
	}

	var doc storedItem
	if err := json.Unmarshal([]byte(result.Val()), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}

	item := &storage.Item{
		Data:      doc.Data,
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
	}
	if item.IsExpired() {
		s.client.Del(ctx, redisKey)
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
	doc := storedItem{
		Data:      data,
		CreatedAt: now,
	}

	var redisTTL time.Duration
	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		doc.ExpiresAt = &expiresAt
		redisTTL = *options.TTL
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal storage item: %w", err)
	}

	redisKey := s.buildKey(options.Profile, key)
	if err := s.client.Set(ctx, redisKey, raw, redisTTL).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, err)
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
		redisKey := s.buildKey(options.Profile, *options.Key)
		if err := s.client.Del(ctx, redisKey).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
		}
		return nil
	}

	pattern := s.buildKey(options.Profile, "*")
	keys, err := s.scanKeys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
	}

	return nil
}

// Close closes the storage backend and releases resources.
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) buildKey(profile, key string) string {
	if profile == "" {
		return s.keyPrefix + "default:" + key
	}
	return s.keyPrefix + "profile:" + profile + ":" + key
}

// scanKeys uses Redis SCAN to find all keys matching a pattern.
func (s *Storage) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		result := s.client.Scan(ctx, cursor, pattern, 100)
		if result.Err() != nil {
			return nil, result.Err()
		}

		batch, next := result.Val()
		keys = append(keys, batch...)
		cursor = next

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Compile-time interface check
var _ storage.Storage = (*Storage)(nil)
