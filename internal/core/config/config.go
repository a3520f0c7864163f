// Package config provides configuration management for the schema inspector.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/solatis/schemainspector/internal/encryption"
	"github.com/solatis/schemainspector/internal/eventspec"
	"github.com/solatis/schemainspector/internal/storage"
	"github.com/solatis/schemainspector/internal/transport"
	"github.com/solatis/schemainspector/internal/types"
)

// PrivateKeyEnv names the only accepted source of the decryption key.
const PrivateKeyEnv = "SI_PRIVATE_KEY"

// InspectorConfig holds the settings of one inspector instance.
type InspectorConfig struct {
	APIKey     string
	Env        types.Env
	AppName    string
	AppVersion string

	BaseURL  string
	TrackURL string

	RequestTimeout time.Duration
	// WallTimeout bounds a whole fetch including callback delivery.
	// Zero means twice RequestTimeout.
	WallTimeout time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
	MaxStoredEvents    int

	SessionTimeout     time.Duration
	DedupWindow        time.Duration
	MaxValidationDepth int

	// PublicEncryptionKey enables value encryption in dev and staging.
	PublicEncryptionKey string
	Verbose             bool

	StorageURL string

	// KafkaBrokers, when set, routes records to KafkaTopic instead of
	// TrackURL. Comma-separated host:port list.
	KafkaBrokers string
	KafkaTopic   string
}

// DefaultInspectorConfig returns configuration with default values.
// APIKey has no default and must be supplied.
func DefaultInspectorConfig() *InspectorConfig {
	return &InspectorConfig{
		Env:                types.EnvDev,
		BaseURL:            eventspec.DefaultBaseURL,
		TrackURL:           transport.DefaultTrackURL,
		RequestTimeout:     types.DefaultRequestTimeout,
		BatchSize:          types.DefaultBatchSize,
		BatchFlushInterval: types.DefaultBatchFlushInterval,
		MaxStoredEvents:    types.MaxStoredEvents,
		SessionTimeout:     types.DefaultSessionTimeout,
		DedupWindow:        types.DefaultDedupWindow,
		MaxValidationDepth: types.DefaultMaxValidationDepth,
		StorageURL:         storage.DefaultURL,
	}
}

// EffectiveWallTimeout resolves the zero default of WallTimeout.
func (c *InspectorConfig) EffectiveWallTimeout() time.Duration {
	if c.WallTimeout > 0 {
		return c.WallTimeout
	}
	return 2 * c.RequestTimeout
}

// PrivateKey reads the hex decryption key from SI_PRIVATE_KEY.
// Returns types.ErrMissingKey when unset.
func PrivateKey() (string, error) {
	val := strings.TrimSpace(os.Getenv(PrivateKeyEnv))
	if val == "" {
		return "", fmt.Errorf("%s: %w", PrivateKeyEnv, types.ErrMissingKey)
	}
	if _, err := encryption.ParsePrivateKey(val); err != nil {
		return "", fmt.Errorf("%s: %w", PrivateKeyEnv, err)
	}
	return val, nil
}
