// Package metrics exposes Prometheus counters for the inspector pipeline.
//
// All methods are safe on a nil *Metrics, so components accept an optional
// recorder without branching at every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Track paths recorded by EventTracked.
const (
	PathValidated    = "validated"
	PathBatched      = "batched"
	PathDeduplicated = "deduplicated"
)

// Cache lookup results recorded by CacheLookup.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
)

// Cache eviction reasons recorded by CacheEvicted.
const (
	EvictTTL    = "ttl"
	EvictHitCap = "hit_cap"
	EvictLRU    = "lru"
	EvictBranch = "branch_change"
)

// Fetch outcomes recorded by SpecFetched.
const (
	FetchSuccess   = "success"
	FetchFailed    = "failed"
	FetchTimeout   = "timeout"
	FetchMalformed = "malformed"
	FetchSkipped   = "skipped"
)

// Metrics holds the inspector's Prometheus collectors.
type Metrics struct {
	eventsTracked      *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	cacheEvictions     *prometheus.CounterVec
	specFetches        *prometheus.CounterVec
	validationFailures prometheus.Counter
	encryptionFailures prometheus.Counter
	batchSends         *prometheus.CounterVec
	batchDropped       prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves the collectors unregistered, which tests use to read
// values without a global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsTracked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemainspector",
			Name:      "events_tracked_total",
			Help:      "Events accepted by the inspector, by delivery path.",
		}, []string{"path"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemainspector",
			Name:      "spec_cache_lookups_total",
			Help:      "Event spec cache lookups, by result.",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemainspector",
			Name:      "spec_cache_evictions_total",
			Help:      "Event spec cache evictions, by reason.",
		}, []string{"reason"}),
		specFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemainspector",
			Name:      "spec_fetches_total",
			Help:      "Tracking plan fetches, by outcome.",
		}, []string{"outcome"}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemainspector",
			Name:      "property_validation_failures_total",
			Help:      "Top-level properties whose validation reported failed event IDs.",
		}),
		encryptionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemainspector",
			Name:      "encryption_failures_total",
			Help:      "Property values omitted because encryption failed.",
		}),
		batchSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemainspector",
			Name:      "batch_sends_total",
			Help:      "Batch transmissions, by outcome.",
		}, []string{"outcome"}),
		batchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemainspector",
			Name:      "batch_records_dropped_total",
			Help:      "Queued records dropped by the stored-events cap.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.eventsTracked,
			m.cacheLookups,
			m.cacheEvictions,
			m.specFetches,
			m.validationFailures,
			m.encryptionFailures,
			m.batchSends,
			m.batchDropped,
		)
	}
	return m
}

// EventTracked counts an event delivered on path.
func (m *Metrics) EventTracked(path string) {
	if m == nil {
		return
	}
	m.eventsTracked.WithLabelValues(path).Inc()
}

// CacheLookup counts a spec cache lookup.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// CacheEvicted counts evicted cache entries.
func (m *Metrics) CacheEvicted(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.WithLabelValues(reason).Add(float64(n))
}

// SpecFetched counts a completed tracking plan fetch.
func (m *Metrics) SpecFetched(outcome string) {
	if m == nil {
		return
	}
	m.specFetches.WithLabelValues(outcome).Inc()
}

// ValidationFailed counts properties with failing constraints.
func (m *Metrics) ValidationFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.validationFailures.Add(float64(n))
}

// EncryptionFailed counts a value omitted after an encryption error.
func (m *Metrics) EncryptionFailed() {
	if m == nil {
		return
	}
	m.encryptionFailures.Inc()
}

// BatchSent counts a batch transmission attempt.
func (m *Metrics) BatchSent(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.batchSends.WithLabelValues(outcome).Inc()
}

// BatchDropped counts records dropped by the stored-events cap.
func (m *Metrics) BatchDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchDropped.Add(float64(n))
}
