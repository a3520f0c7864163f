package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// KV is a key-value store over the kv_items table. It satisfies
// storage.Storage for sqlite:// and postgres:// URLs.
type KV struct {
	db *sqlx.DB
	q  *Queries
}

// NewKV wraps an open, migrated connection.
func NewKV(db *sqlx.DB) (*KV, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &KV{db: db, q: q}, nil
}

// IsInitialized reports whether the kv_items table is reachable.
func (s *KV) IsInitialized(ctx context.Context) bool {
	var n int64
	return s.q.Get(ctx, "count-items", &n) == nil
}

// GetItem returns the stored value and whether key exists.
func (s *KV) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q.Get(ctx, "get-item", &value, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem inserts or replaces the value for key.
func (s *KV) SetItem(ctx context.Context, key, value string) error {
	_, err := s.q.Exec(ctx, "upsert-item", key, value, timestampArg(s.db.DriverName(), time.Now()))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (s *KV) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.q.Exec(ctx, "delete-item", key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in lexical order.
func (s *KV) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.q.Select(ctx, "list-keys", &keys); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Close closes the underlying connection pool.
func (s *KV) Close() error {
	return s.db.Close()
}
