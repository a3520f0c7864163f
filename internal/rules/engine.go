// internal/rules/engine.go
package rules

import (
	"log/slog"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/types"
)

/*
 * Validator checks observed property values against a tracking plan.
 *
 * Only value constraints are checked: pinned values, allowed values, regex
 * patterns and numeric ranges. Declared type and required-ness are not
 * validated; Required only decides whether a null is checked at all.
 *
 * Each property reports the event IDs it failed or passed, whichever list is
 * smaller (see buildResult). Properties absent from the plan report an empty
 * result.
 *
 * Compiled regexes and parsed allowed-value sets are held in bounded LRU
 * caches owned by the Validator, so repeated events skip recompilation.
 * Patterns that fail to compile are cached as nil and skipped.
 *
 * Thread-safety: Validate may be called concurrently; the LRU caches are
 * internally synchronized and no other state is mutated.
 */

const (
	// DefaultCacheSize bounds each of the regex and allowed-value caches.
	DefaultCacheSize = 512
)

// Validator validates event properties against EventSpecResponse constraints.
type Validator struct {
	maxDepth int
	regexes  *lru.Cache[string, *regexp.Regexp]
	allowed  *lru.Cache[string, map[string]struct{}]
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxDepth overrides types.DefaultMaxValidationDepth.
// Depth 0 is the top-level property; recursion stops at maxDepth.
func WithMaxDepth(depth int) Option {
	return func(v *Validator) {
		if depth > 0 {
			v.maxDepth = depth
		}
	}
}

// WithLogger sets the logger for malformed constraint warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics counts failing properties per validation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator creates a Validator with empty caches.
func NewValidator(opts ...Option) *Validator {
	// lru.New only fails for a non-positive size.
	regexes, _ := lru.New[string, *regexp.Regexp](DefaultCacheSize)
	allowed, _ := lru.New[string, map[string]struct{}](DefaultCacheSize)

	v := &Validator{
		maxDepth: types.DefaultMaxValidationDepth,
		regexes:  regexes,
		allowed:  allowed,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks every top-level property of properties against spec.
// A non-map properties value validates as an event without properties.
// Returns nil when spec is nil.
func (v *Validator) Validate(properties types.Value, spec *types.EventSpecResponse) *types.ValidationResult {
	if spec == nil {
		return nil
	}

	scope := newScope(collectEventIDs(spec.Events))
	constraints := mergeConstraints(spec.Events)

	result := &types.ValidationResult{
		Metadata:        spec.Metadata,
		PropertyResults: make(map[string]*types.PropertyValidationResult, properties.Len()),
	}

	failing := 0
	for _, name := range properties.Keys() {
		c, ok := constraints[name]
		if !ok || c == nil {
			result.PropertyResults[name] = &types.PropertyValidationResult{}
			continue
		}
		value, _ := properties.Field(name)
		pr := v.validateProperty(value, c, scope, 0)
		if len(pr.FailedEventIDs) > 0 || len(pr.PassedEventIDs) > 0 {
			failing++
		}
		result.PropertyResults[name] = pr
	}

	v.metrics.ValidationFailed(failing)
	return result
}

// ClearCaches drops compiled regexes and parsed allowed-value sets.
func (v *Validator) ClearCaches() {
	v.regexes.Purge()
	v.allowed.Purge()
}
