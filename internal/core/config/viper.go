package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/schemainspector/internal/encryption"
	"github.com/solatis/schemainspector/internal/types"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*InspectorConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultInspectorConfig
	d := DefaultInspectorConfig()
	v.SetDefault("inspector.api_key", "")
	v.SetDefault("inspector.env", string(d.Env))
	v.SetDefault("inspector.app_name", "")
	v.SetDefault("inspector.app_version", "")
	v.SetDefault("inspector.base_url", d.BaseURL)
	v.SetDefault("inspector.track_url", d.TrackURL)
	v.SetDefault("inspector.request_timeout", d.RequestTimeout.String())
	v.SetDefault("inspector.wall_timeout", "0s")
	v.SetDefault("inspector.batch_size", d.BatchSize)
	v.SetDefault("inspector.batch_flush_interval", d.BatchFlushInterval.String())
	v.SetDefault("inspector.max_stored_events", d.MaxStoredEvents)
	v.SetDefault("inspector.session_timeout", d.SessionTimeout.String())
	v.SetDefault("inspector.dedup_window", d.DedupWindow.String())
	v.SetDefault("inspector.max_validation_depth", d.MaxValidationDepth)
	v.SetDefault("inspector.public_encryption_key", "")
	v.SetDefault("inspector.verbose", false)
	v.SetDefault("storage.url", d.StorageURL)
	v.SetDefault("transport.kafka_brokers", "")
	v.SetDefault("transport.kafka_topic", "")

	// Bind environment variables with SI_ prefix
	v.SetEnvPrefix("SI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	env, err := types.ParseEnv(v.GetString("inspector.env"))
	if err != nil {
		return nil, err
	}

	cfg := &InspectorConfig{
		APIKey:              strings.TrimSpace(v.GetString("inspector.api_key")),
		Env:                 env,
		AppName:             v.GetString("inspector.app_name"),
		AppVersion:          v.GetString("inspector.app_version"),
		BaseURL:             v.GetString("inspector.base_url"),
		TrackURL:            v.GetString("inspector.track_url"),
		RequestTimeout:      v.GetDuration("inspector.request_timeout"),
		WallTimeout:         v.GetDuration("inspector.wall_timeout"),
		BatchSize:           v.GetInt("inspector.batch_size"),
		BatchFlushInterval:  v.GetDuration("inspector.batch_flush_interval"),
		MaxStoredEvents:     v.GetInt("inspector.max_stored_events"),
		SessionTimeout:      v.GetDuration("inspector.session_timeout"),
		DedupWindow:         v.GetDuration("inspector.dedup_window"),
		MaxValidationDepth:  v.GetInt("inspector.max_validation_depth"),
		PublicEncryptionKey: strings.TrimSpace(v.GetString("inspector.public_encryption_key")),
		Verbose:             v.GetBool("inspector.verbose"),
		StorageURL:          v.GetString("storage.url"),
		KafkaBrokers:        strings.TrimSpace(v.GetString("transport.kafka_brokers")),
		KafkaTopic:          strings.TrimSpace(v.GetString("transport.kafka_topic")),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields, positive sizes and timeouts, URL shape
// and the public encryption key. Used by LoadConfig and by callers that
// build an InspectorConfig after applying flag overrides.
func Validate(cfg *InspectorConfig) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("api_key is required (set SI_INSPECTOR_API_KEY)")
	}
	if _, err := types.ParseEnv(string(cfg.Env)); err != nil {
		return err
	}
	if err := validateHTTPURL("base_url", cfg.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPURL("track_url", cfg.TrackURL); err != nil {
		return err
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.WallTimeout < 0 {
		return fmt.Errorf("wall_timeout must not be negative, got %v", cfg.WallTimeout)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.BatchFlushInterval <= 0 {
		return fmt.Errorf("batch_flush_interval must be positive, got %v", cfg.BatchFlushInterval)
	}
	if cfg.MaxStoredEvents <= 0 {
		return fmt.Errorf("max_stored_events must be positive, got %d", cfg.MaxStoredEvents)
	}
	if cfg.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %v", cfg.SessionTimeout)
	}
	if cfg.DedupWindow < 0 {
		return fmt.Errorf("dedup_window must not be negative, got %v", cfg.DedupWindow)
	}
	if cfg.MaxValidationDepth < 0 {
		return fmt.Errorf("max_validation_depth must not be negative, got %d", cfg.MaxValidationDepth)
	}
	if cfg.PublicEncryptionKey != "" {
		if _, err := encryption.ParsePublicKey(cfg.PublicEncryptionKey); err != nil {
			return fmt.Errorf("public_encryption_key: %w", err)
		}
	}
	if cfg.KafkaBrokers != "" && cfg.KafkaTopic == "" {
		return fmt.Errorf("kafka_topic is required when kafka_brokers is set")
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
// InConfig inspects the file only, so SI_PRIVATE_KEY in the environment passes.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("private_key") || v.InConfig("inspector.private_key") {
		return fmt.Errorf("private keys not allowed in config files (use %s environment variable)", PrivateKeyEnv)
	}
	return nil
}
