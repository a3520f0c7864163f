package session

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/solatis/schemainspector/internal/storage/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newStore(t *testing.T) *memory.Storage {
	t.Helper()
	s, err := memory.New(16)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStartOrProlong(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := New(ctx, newStore(t), WithClock(clock.now), WithTimeout(5*time.Minute))

	if !tr.StartOrProlong(ctx) {
		t.Fatal("first activity did not start a session")
	}
	first := tr.SessionID()

	tests := []struct {
		name        string
		advance     time.Duration
		wantStarted bool
	}{
		{name: "within timeout", advance: time.Minute, wantStarted: false},
		{name: "exactly at timeout", advance: 5 * time.Minute, wantStarted: false},
		{name: "past timeout", advance: 5*time.Minute + time.Millisecond, wantStarted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tr.SessionID()
			clock.advance(tt.advance)
			if got := tr.StartOrProlong(ctx); got != tt.wantStarted {
				t.Errorf("StartOrProlong() = %v, want %v", got, tt.wantStarted)
			}
			changed := tr.SessionID() != before
			if changed != tt.wantStarted {
				t.Errorf("session id changed = %v, want %v", changed, tt.wantStarted)
			}
		})
	}

	if tr.SessionID() == first {
		t.Error("session id never rotated")
	}
}

func TestTracker_RestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}

	tr := New(ctx, store, WithClock(clock.now))
	tr.StartOrProlong(ctx)
	id := tr.SessionID()

	raw, ok, _ := store.GetItem(ctx, LastActivityKey)
	if !ok || raw != strconv.FormatInt(clock.t.UnixMilli(), 10) {
		t.Errorf("persisted activity = %q, %v", raw, ok)
	}

	// Restart shortly after: same session continues.
	clock.advance(time.Minute)
	restarted := New(ctx, store, WithClock(clock.now))
	if restarted.SessionID() != id {
		t.Errorf("restored SessionID() = %q, want %q", restarted.SessionID(), id)
	}
	if restarted.StartOrProlong(ctx) {
		t.Error("StartOrProlong() after quick restart started a new session")
	}
}

func TestTracker_MalformedActivityStartsSession(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_ = store.SetItem(ctx, LastActivityKey, "yesterday")

	tr := New(ctx, store)
	if !tr.LastActivity().IsZero() {
		t.Errorf("LastActivity() = %v, want zero", tr.LastActivity())
	}
	if !tr.StartOrProlong(ctx) {
		t.Error("StartOrProlong() = false, want new session")
	}
}

func TestTracker_NilStore(t *testing.T) {
	ctx := context.Background()
	tr := New(ctx, nil)
	if tr.SessionID() == "" {
		t.Fatal("SessionID() = empty")
	}
	if !tr.StartOrProlong(ctx) || tr.StartOrProlong(ctx) {
		t.Error("nil store: want start then prolong")
	}
}
