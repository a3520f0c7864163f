// Package storage defines the persistent key-value interface the inspector
// keeps its identity, session and batch state in, and opens a backend from a
// URL.
//
// Backends:
//
//	memory://?size=N       in-process LRU (lost on exit)
//	sqlite://path/to.db    internal/core/db over go-sqlite3
//	postgres://...         internal/core/db over lib/pq
//	redis://host:port/db   internal/storage/redis over go-redis
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/solatis/schemainspector/internal/core/db"
	"github.com/solatis/schemainspector/internal/storage/memory"
	"github.com/solatis/schemainspector/internal/storage/redis"
	"github.com/solatis/schemainspector/internal/types"
)

// Storage is a string key-value store. Callers log and swallow errors;
// a failing backend degrades the inspector but never stops it.
type Storage interface {
	// IsInitialized reports whether the backend is ready for reads.
	IsInitialized(ctx context.Context) bool

	// GetItem returns the value for key and whether it exists.
	GetItem(ctx context.Context, key string) (string, bool, error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Missing keys are not an error.
	RemoveItem(ctx context.Context, key string) error
}

// Backend is a Storage that owns resources.
type Backend interface {
	Storage
	io.Closer
}

// DefaultURL is used when no storage URL is configured.
const DefaultURL = "memory://"

// Open creates the backend named by rawURL. SQL backends are migrated
// before they are returned.
func Open(ctx context.Context, rawURL string) (Backend, error) {
	if rawURL == "" {
		rawURL = DefaultURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		size := memory.DefaultSize
		if s := u.Query().Get("size"); s != "" {
			if size, err = strconv.Atoi(s); err != nil {
				return nil, fmt.Errorf("invalid memory storage size %q: %w", s, err)
			}
		}
		return memory.New(size)

	case "sqlite", "postgres", "postgresql":
		conn, err := db.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if _, err := db.MigrateUp(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate storage: %w", err)
		}
		kv, err := db.NewKV(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return kv, nil

	case "redis", "rediss":
		return redis.Open(ctx, rawURL)

	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedStorage, u.Scheme)
	}
}
