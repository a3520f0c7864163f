// Package session tracks inspector sessions: a session ends after a period
// of inactivity and the next tracked event starts a new one.
package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/solatis/schemainspector/internal/storage"
	"github.com/solatis/schemainspector/internal/types"
)

// Storage keys for the persisted session state.
const (
	LastActivityKey = "avo_inspector_session_start_key"
	SessionIDKey    = "avo_inspector_session_id_key"
)

// Tracker decides when a session starts. Safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	timeout      time.Duration
	store        storage.Storage
	now          func() time.Time
	logger       *slog.Logger
	sessionID    string
	lastActivity time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeout sets the inactivity period that ends a session.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.timeout = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a tracker and restores the persisted session, if any.
// A nil store keeps state in memory only.
func New(ctx context.Context, store storage.Storage, opts ...Option) *Tracker {
	t := &Tracker{
		timeout: types.DefaultSessionTimeout,
		store:   store,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.restore(ctx)
	if t.sessionID == "" {
		t.sessionID = types.NewSessionID()
		t.persist(ctx, SessionIDKey, t.sessionID)
	}
	return t
}

// StartOrProlong records activity at the current time. It reports true when
// the gap since the previous activity exceeded the timeout, in which case a
// new session ID was generated and the caller should emit a session start.
func (t *Tracker) StartOrProlong(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	started := t.lastActivity.IsZero() || now.Sub(t.lastActivity) > t.timeout
	if started {
		t.sessionID = types.NewSessionID()
		t.persist(ctx, SessionIDKey, t.sessionID)
	}

	t.lastActivity = now
	t.persist(ctx, LastActivityKey, strconv.FormatInt(now.UnixMilli(), 10))
	return started
}

// SessionID returns the current session ID.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// LastActivity returns the time of the most recent StartOrProlong, or the
// restored value. Zero when no activity was ever recorded.
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

func (t *Tracker) restore(ctx context.Context) {
	if t.store == nil || !t.store.IsInitialized(ctx) {
		return
	}
	if id, ok, err := t.store.GetItem(ctx, SessionIDKey); err != nil {
		t.logger.Warn("failed to read session id", "error", err)
	} else if ok {
		t.sessionID = id
	}

	raw, ok, err := t.store.GetItem(ctx, LastActivityKey)
	if err != nil {
		t.logger.Warn("failed to read session activity", "error", err)
		return
	}
	if !ok {
		return
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		t.logger.Warn("ignoring malformed session activity", "value", raw)
		return
	}
	t.lastActivity = time.UnixMilli(ms)
}

func (t *Tracker) persist(ctx context.Context, key, value string) {
	if t.store == nil {
		return
	}
	if err := t.store.SetItem(ctx, key, value); err != nil {
		t.logger.Warn("failed to persist session state", "key", key, "error", err)
	}
}
