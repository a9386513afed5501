package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/solwatch/accountwatch/service/apperr"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Stream Client configuration
	StreamEndpoint    string
	StreamBearerToken string

	// Target account, the single address being watched. Validated as base58.
	TargetAccount string
	IncludeFailed bool

	// Sink configuration
	SinkDatabaseURL string

	// Enrichment Client configuration. EnrichmentEndpointOverride, when set,
	// replaces EnrichmentEndpoint entirely (used in tests against a fixture
	// server).
	EnrichmentEndpoint         string
	EnrichmentEndpointOverride string

	// Observability
	LogLevel    string
	MetricsPort int

	// Shutdown
	ShutdownGrace time.Duration

	// Event Fanout, optional. Empty NATSURL disables fanout entirely.
	NATSURL string

	// Reconciliation Workflow, optional. Empty TemporalHost disables the
	// workflow and its worker.
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	ReconcileInterval time.Duration
	UpstreamRPCURL    string
}

// Load reads configuration from environment variables and validates all
// required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.StreamEndpoint = os.Getenv("STREAM_ENDPOINT")
	if cfg.StreamEndpoint == "" {
		errs = append(errs, &apperr.ConfigError{Field: "STREAM_ENDPOINT", Cause: fmt.Errorf("required")})
	} else if err := validateWSURL(cfg.StreamEndpoint); err != nil {
		errs = append(errs, &apperr.ConfigError{Field: "STREAM_ENDPOINT", Cause: err})
	}

	cfg.StreamBearerToken = os.Getenv("STREAM_BEARER_TOKEN")

	cfg.TargetAccount = os.Getenv("TARGET_ACCOUNT")
	if cfg.TargetAccount == "" {
		errs = append(errs, &apperr.ConfigError{Field: "TARGET_ACCOUNT", Cause: fmt.Errorf("required")})
	} else if err := validateBase58(cfg.TargetAccount); err != nil {
		errs = append(errs, &apperr.ConfigError{Field: "TARGET_ACCOUNT", Cause: err})
	}

	includeFailed, err := parseBool("INCLUDE_FAILED", true)
	if err != nil {
		errs = append(errs, &apperr.ConfigError{Field: "INCLUDE_FAILED", Cause: err})
	}
	cfg.IncludeFailed = includeFailed

	cfg.SinkDatabaseURL = os.Getenv("SINK_DATABASE_URL")
	if cfg.SinkDatabaseURL == "" {
		errs = append(errs, &apperr.ConfigError{Field: "SINK_DATABASE_URL", Cause: fmt.Errorf("required")})
	}

	cfg.EnrichmentEndpoint = getEnvOrDefault("ENRICHMENT_ENDPOINT", "https://api.mainnet-beta.solana.com")
	cfg.EnrichmentEndpointOverride = os.Getenv("ENRICHMENT_ENDPOINT_OVERRIDE")

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	metricsPort, err := parseInt("METRICS_PORT", 9090)
	if err != nil {
		errs = append(errs, &apperr.ConfigError{Field: "METRICS_PORT", Cause: err})
	}
	cfg.MetricsPort = metricsPort

	shutdownGrace, err := parseDuration("SHUTDOWN_GRACE", "10s")
	if err != nil {
		errs = append(errs, &apperr.ConfigError{Field: "SHUTDOWN_GRACE", Cause: err})
	}
	cfg.ShutdownGrace = shutdownGrace

	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.TemporalHost = os.Getenv("TEMPORAL_HOST")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "accountwatch-reconcile")

	reconcileInterval, err := parseDuration("RECONCILE_INTERVAL", "15m")
	if err != nil {
		errs = append(errs, &apperr.ConfigError{Field: "RECONCILE_INTERVAL", Cause: err})
	}
	cfg.ReconcileInterval = reconcileInterval

	cfg.UpstreamRPCURL = getEnvOrDefault("UPSTREAM_RPC_URL", "https://api.mainnet-beta.solana.com")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid. Useful for
// binary entrypoints where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks an already-populated Config without re-reading the
// environment. Useful for constructing a Config in tests.
func (c *Config) Validate() error {
	var errs []error

	if c.StreamEndpoint == "" {
		errs = append(errs, fmt.Errorf("StreamEndpoint is required"))
	} else if err := validateWSURL(c.StreamEndpoint); err != nil {
		errs = append(errs, err)
	}

	if c.TargetAccount == "" {
		errs = append(errs, fmt.Errorf("TargetAccount is required"))
	} else if err := validateBase58(c.TargetAccount); err != nil {
		errs = append(errs, err)
	}

	if c.SinkDatabaseURL == "" {
		errs = append(errs, fmt.Errorf("SinkDatabaseURL is required"))
	}

	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("MetricsPort must be a valid port number"))
	}

	if c.ShutdownGrace <= 0 {
		errs = append(errs, fmt.Errorf("ShutdownGrace must be positive"))
	}

	if c.TemporalHost != "" && c.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("ReconcileInterval must be positive when TemporalHost is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// EnrichmentBaseURL returns the override when set, else the default endpoint.
func (c *Config) EnrichmentBaseURL() string {
	if c.EnrichmentEndpointOverride != "" {
		return c.EnrichmentEndpointOverride
	}
	return c.EnrichmentEndpoint
}

// FanoutEnabled reports whether the Event Fanout component should start.
func (c *Config) FanoutEnabled() bool {
	return c.NATSURL != ""
}

// ReconciliationEnabled reports whether the Reconciliation Workflow and its
// worker should start.
func (c *Config) ReconciliationEnabled() bool {
	return c.TemporalHost != ""
}

func validateBase58(address string) error {
	decoded, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("not valid base58: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("decodes to %d bytes, want 32", len(decoded))
	}
	return nil
}

func validateWSURL(endpoint string) error {
	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		return fmt.Errorf("must start with ws:// or wss://, got %q", endpoint)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
