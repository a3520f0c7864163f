// Package redis provides a storage backend on github.com/redis/go-redis/v9,
// letting several replay workers share identity and batch state.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key the inspector writes.
const DefaultKeyPrefix = "schemainspector:"

// Config contains configuration options for the Redis storage.
type Config struct {
	// Client is the Redis client instance. Required.
	Client *redis.Client

	// KeyPrefix is prepended to every key. Default: DefaultKeyPrefix.
	KeyPrefix string
}

// Storage is a key-value store over plain Redis strings.
type Storage struct {
	client    *redis.Client
	keyPrefix string
}

// New wraps an existing client.
func New(config Config) (*Storage, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	return &Storage{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

// Open dials the server named by a redis:// or rediss:// URL and checks it
// answers PING. A ?prefix= query parameter overrides the key prefix.
func Open(ctx context.Context, rawURL string) (*Storage, error) {
	prefix, cleaned, err := splitPrefix(rawURL)
	if err != nil {
		return nil, err
	}
	opts, err := redis.ParseURL(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return New(Config{Client: client, KeyPrefix: prefix})
}

// IsInitialized reports whether the server answers PING.
func (s *Storage) IsInitialized(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// GetItem returns the value for key.
func (s *Storage) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return v, true, nil
}

// SetItem stores value without expiry.
func (s *Storage) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key.
func (s *Storage) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close closes the client.
func (s *Storage) Close() error {
	return s.client.Close()
}
