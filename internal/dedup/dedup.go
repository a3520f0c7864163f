// internal/dedup/dedup.go
package dedup

/*
 * Cross-origin event deduplication.
 *
 * The same logical event can reach the inspector twice within milliseconds:
 * once from generated tracking code (automated origin) and once from the
 * host's own call (manual origin). Deduplicator suppresses the second report
 * of such a pair.
 *
 * Per origin it keeps the last params seen for each event name together with
 * the observation time. On every call:
 *   1. Purge entries older than the window from both origins
 *   2. Record the call under its own origin
 *   3. Look for the same name with deep-equal params in the opposite origin
 *   4. On a match, consume the name from both origins and suppress
 *
 * A matched pair is consumed as a whole, so a third identical report inside
 * the window registers again. Same-origin repeats never suppress each other.
 *
 * Concurrency: one mutex guards both origins; every exported method holds it
 * for its full duration.
 */

import (
	"sync"
	"time"

	"github.com/solatis/schemainspector/internal/schema"
	"github.com/solatis/schemainspector/internal/types"
)

// Origin identifies which code path reported an event.
type Origin int

const (
	OriginManual Origin = iota
	OriginAutomated
)

func (o Origin) opposite() Origin {
	if o == OriginAutomated {
		return OriginManual
	}
	return OriginAutomated
}

type observation struct {
	params types.Value
	at     time.Time
}

// Deduplicator suppresses duplicate reports arriving from both origins.
type Deduplicator struct {
	mu        sync.Mutex
	window    time.Duration
	now       func() time.Time
	extractor *schema.Extractor
	seen      [2]map[string]observation
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithWindow overrides types.DefaultDedupWindow.
func WithWindow(d time.Duration) Option {
	return func(dd *Deduplicator) { dd.window = d }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(dd *Deduplicator) { dd.now = now }
}

// New creates a Deduplicator with an empty history.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		window:    types.DefaultDedupWindow,
		now:       time.Now,
		extractor: schema.NewExtractor(nil, false),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.reset()
	return d
}

// ShouldRegister records an event and reports whether it should be tracked.
// Returns false when the opposite origin reported the same name with
// deep-equal params inside the window.
func (d *Deduplicator) ShouldRegister(eventName string, params types.Value, fromAutomated bool) bool {
	origin := OriginManual
	if fromAutomated {
		origin = OriginAutomated
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.purge(now)
	d.seen[origin][eventName] = observation{params: params, at: now}

	other, ok := d.seen[origin.opposite()][eventName]
	if !ok || !Equal(params, other.params) {
		return true
	}

	delete(d.seen[OriginManual], eventName)
	delete(d.seen[OriginAutomated], eventName)
	return false
}

// ShouldRegisterSchema reports whether a manually supplied schema should be
// tracked. Returns false, consuming the automated entry, when the automated
// origin recently reported the same event with params of the same schema.
func (d *Deduplicator) ShouldRegisterSchema(eventName string, props map[string]schema.Type) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.purge(d.now())

	other, ok := d.seen[OriginAutomated][eventName]
	if !ok {
		return true
	}
	if !schema.SchemaEqual(props, d.extractor.ExtractAll(other.params)) {
		return true
	}
	delete(d.seen[OriginAutomated], eventName)
	return false
}

// Clear drops all recorded observations.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// Len returns the number of recorded observations across both origins.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen[OriginManual]) + len(d.seen[OriginAutomated])
}

func (d *Deduplicator) reset() {
	d.seen[OriginManual] = make(map[string]observation)
	d.seen[OriginAutomated] = make(map[string]observation)
}

// purge removes observations older than the window. Caller holds mu.
func (d *Deduplicator) purge(now time.Time) {
	for _, byName := range d.seen {
		for name, obs := range byName {
			if now.Sub(obs.at) > d.window {
				delete(byName, name)
			}
		}
	}
}
