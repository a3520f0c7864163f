package eventspec

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/types"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache() (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewCache(WithCacheClock(clock.now)), clock
}

func testSpec(schemaID string) *types.EventSpecResponse {
	return &types.EventSpecResponse{
		Events:   []types.EventSpecEntry{{BaseEventID: "evt_1"}},
		Metadata: &types.EventSpecMetadata{SchemaID: schemaID, BranchID: "main", LatestActionID: "a1"},
	}
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache()

	if _, ok := c.Get("k", "s", "e"); ok {
		t.Fatalf("Get() on empty cache ok = true, want false")
	}

	spec := testSpec("sch")
	c.Set("k", "s", "e", spec)

	got, ok := c.Get("k", "s", "e")
	if !ok || got != spec {
		t.Errorf("Get() = %v, %v, want stored spec, true", got, ok)
	}
	if _, ok := c.Get("k", "s", "other"); ok {
		t.Errorf("Get() for other event ok = true, want false")
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestCache_NilSpecIsCached(t *testing.T) {
	c, _ := newTestCache()
	c.Set("k", "s", "e", nil)

	got, ok := c.Get("k", "s", "e")
	if !ok {
		t.Fatalf("Get() ok = false for cached nil spec")
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil", got)
	}
	if !c.Contains("k", "s", "e") {
		t.Errorf("Contains() = false for cached nil spec")
	}
}

func TestCache_TTL(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		wantHit bool
	}{
		{name: "fresh", age: 0, wantHit: true},
		{name: "at ttl", age: TTL, wantHit: true},
		{name: "past ttl", age: TTL + time.Millisecond, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock := newTestCache()
			c.Set("k", "s", "e", testSpec("sch"))
			clock.advance(tt.age)

			if got := c.Contains("k", "s", "e"); got != tt.wantHit {
				t.Errorf("Contains() = %v, want %v", got, tt.wantHit)
			}
			if _, ok := c.Get("k", "s", "e"); ok != tt.wantHit {
				t.Errorf("Get() ok = %v, want %v", ok, tt.wantHit)
			}
			if !tt.wantHit && c.Size() != 0 {
				t.Errorf("expired entry not removed, Size() = %d", c.Size())
			}
		})
	}
}

func TestCache_PerEntryHitCap(t *testing.T) {
	c, _ := newTestCache()
	c.Set("k", "s", "e", testSpec("sch"))

	// The global sweep fires on the 50th hit too; with a single entry it
	// evicts that entry, so either rule yields a miss on hit 51.
	for i := 0; i < MaxEventCount-1; i++ {
		if _, ok := c.Get("k", "s", "e"); !ok {
			t.Fatalf("Get() #%d ok = false, want true", i+1)
		}
	}
	if _, ok := c.Get("k", "s", "e"); !ok {
		t.Fatalf("Get() #%d ok = false, want true", MaxEventCount)
	}
	if _, ok := c.Get("k", "s", "e"); ok {
		t.Errorf("Get() after %d hits ok = true, want false", MaxEventCount)
	}
}

func TestCache_GlobalSweepEvictsLeastRecentlyAccessed(t *testing.T) {
	c, clock := newTestCache()

	c.Set("k", "s", "old", testSpec("old"))
	clock.advance(time.Millisecond)
	for i := 0; i < 5; i++ {
		c.Set("k", "s", fmt.Sprintf("e%d", i), testSpec("x"))
	}

	// Touch every entry except "old" until the global counter reaches the cap.
	hits := 0
	for hits < MaxEventCount {
		clock.advance(time.Millisecond)
		c.Get("k", "s", fmt.Sprintf("e%d", hits%5))
		hits++
	}

	if c.Contains("k", "s", "old") {
		t.Errorf("least recently accessed entry survived the sweep")
	}
	if c.Size() != 5 {
		t.Errorf("Size() = %d, want 5", c.Size())
	}

	// Counter reset: the next hit does not sweep again.
	c.Get("k", "s", "e0")
	if c.Size() != 5 {
		t.Errorf("Size() after reset = %d, want 5", c.Size())
	}
}

func TestCache_Clear(t *testing.T) {
	c, _ := newTestCache()
	c.Set("k", "s", "a", testSpec("a"))
	c.Set("k", "s", "b", nil)
	c.Clear()

	if c.Size() != 0 {
		t.Errorf("Size() after Clear() = %d, want 0", c.Size())
	}
	if c.Contains("k", "s", "a") {
		t.Errorf("Contains() after Clear() = true")
	}
}

func TestCache_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewCache(WithCacheClock(clock.now), WithCacheMetrics(m))

	c.Get("k", "s", "e")
	c.Set("k", "s", "e", nil)
	c.Get("k", "s", "e")
	clock.advance(TTL + time.Second)
	c.Get("k", "s", "e")

	expected := `
# HELP schemainspector_spec_cache_lookups_total Event spec cache lookups, by result.
# TYPE schemainspector_spec_cache_lookups_total counter
schemainspector_spec_cache_lookups_total{result="expired"} 1
schemainspector_spec_cache_lookups_total{result="hit"} 1
schemainspector_spec_cache_lookups_total{result="miss"} 1
# HELP schemainspector_spec_cache_evictions_total Event spec cache evictions, by reason.
# TYPE schemainspector_spec_cache_evictions_total counter
schemainspector_spec_cache_evictions_total{reason="ttl"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"schemainspector_spec_cache_lookups_total",
		"schemainspector_spec_cache_evictions_total")
	if err != nil {
		t.Errorf("GatherAndCompare() error = %v, want nil", err)
	}
}
