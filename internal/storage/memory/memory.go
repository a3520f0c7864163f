// Package memory provides an in-process storage backend on
// github.com/hashicorp/golang-lru/v2. Values do not survive a restart; the
// LRU bound keeps a long-running replay from growing without limit.
package memory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the capacity of a memory:// store without ?size=.
const DefaultSize = 1024

// Storage is an in-memory key-value store. Safe for concurrent use.
type Storage struct {
	cache *lru.Cache[string, string]
}

// New creates a store holding at most size keys.
func New(size int) (*Storage, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Storage{cache: cache}, nil
}

// IsInitialized is always true.
func (s *Storage) IsInitialized(context.Context) bool { return true }

// GetItem returns the value for key.
func (s *Storage) GetItem(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	return v, ok, nil
}

// SetItem stores value, evicting the least recently used key when full.
func (s *Storage) SetItem(_ context.Context, key, value string) error {
	s.cache.Add(key, value)
	return nil
}

// RemoveItem deletes key.
func (s *Storage) RemoveItem(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// Len reports the number of stored keys.
func (s *Storage) Len() int { return s.cache.Len() }

// Close drops all keys.
func (s *Storage) Close() error {
	s.cache.Purge()
	return nil
}
