// Package types provides domain models shared across schemainspector components.
//
// Minimal-dependency design: value.go, spec.go and errors.go use only the
// standard library. The structpb adapter in adapt.go and the uuid helpers in
// ids.go are the only files that pull in third-party modules.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Env identifies the deployment environment an inspector reports for.
// Controls whether spec fetches happen and how panics are handled.
type Env string

const (
	EnvProd    Env = "prod"
	EnvDev     Env = "dev"
	EnvStaging Env = "staging"
)

// ParseEnv converts a config string to Env. Matching is case-insensitive.
func ParseEnv(s string) (Env, error) {
	switch Env(strings.ToLower(strings.TrimSpace(s))) {
	case EnvProd:
		return EnvProd, nil
	case EnvDev:
		return EnvDev, nil
	case EnvStaging:
		return EnvStaging, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEnv, s)
	}
}

// IsDevelopment reports whether the environment fetches tracking plans and
// surfaces internal panics. Only dev and staging qualify.
func (e Env) IsDevelopment() bool {
	return e == EnvDev || e == EnvStaging
}

// Limits and defaults shared by the pipeline stages.
const (
	// DefaultDedupWindow bounds how long an observed event can suppress its
	// counterpart from the other origin. Matches the lag between a generated
	// tracking call and the manual call it mirrors.
	DefaultDedupWindow = 300 * time.Millisecond

	// DefaultMaxValidationDepth caps recursive constraint checking.
	// Top level is depth 0, first level of children is depth 1.
	DefaultMaxValidationDepth = 2

	// MaxAdaptDepth stops FromGo on cyclic or absurdly deep host data.
	// Anything nested further becomes an unknown value.
	MaxAdaptDepth = 64

	// DefaultRequestTimeout applies to each tracking-plan HTTP request.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultBatchSize triggers a batch flush every N queued records.
	DefaultBatchSize = 30

	// DefaultBatchFlushInterval triggers a flush once this much time passed
	// since the last flush attempt.
	DefaultBatchFlushInterval = 30 * time.Second

	// MaxStoredEvents caps the persisted batch so an offline host cannot grow
	// storage without bound. Oldest records are dropped first.
	MaxStoredEvents = 1000

	// DefaultSessionTimeout ends a session after this much inactivity.
	DefaultSessionTimeout = 5 * time.Minute
)
