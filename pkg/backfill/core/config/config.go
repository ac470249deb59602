package config

// Package config provides structures and defaults for the refill configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed
// from main. It is used when loading configuration from an embedded source.
type EmbeddedConfig []byte

// BackfillConfig holds the execution defaults for backfill runs.
type BackfillConfig struct {
	// ChunkHours is the default chunk duration when not given per invocation.
	ChunkHours int `yaml:"chunk_hours"`
	// MaxRetriesPerChunk is the number of attempts per chunk before it is
	// recorded as permanently failed.
	MaxRetriesPerChunk int `yaml:"max_retries_per_chunk"`
	// RetryDelayMs is the initial backoff interval in milliseconds; the delay
	// doubles on every subsequent attempt.
	RetryDelayMs int `yaml:"retry_delay_ms"`
	// MaxParallelChunks is carried for forward compatibility. Chunk dispatch
	// is strictly sequential regardless of this value: per-chunk checkpoint
	// writes must stay on the single owning goroutine to preserve the
	// crash-safety invariant.
	MaxParallelChunks int `yaml:"max_parallel_chunks"`
	// TimeColumn is the global default window-filter column.
	TimeColumn string `yaml:"time_column"`
	// StateRoot is the directory holding plans/, runs/ and events/.
	StateRoot string `yaml:"state_root"`
}

// PolicyConfig holds the precondition toggles and limits the policy guard enforces.
type PolicyConfig struct {
	// RequireExplicitWindow rejects invocations with implicit/auto windows.
	RequireExplicitWindow bool `yaml:"require_explicit_window"`
	// RequireDryRunBeforeRun requires a persisted plan before run executes.
	RequireDryRunBeforeRun bool `yaml:"require_dry_run_before_run"`
	// BlockOverlappingRuns rejects starting a run for a target that already
	// has a non-terminal run, unless overridden per invocation.
	BlockOverlappingRuns bool `yaml:"block_overlapping_runs"`
	// FailOnPending makes the CI check fail when a plan has no completed run.
	FailOnPending bool `yaml:"fail_on_pending"`
	// MaxWindowHours caps the backfill window. Zero disables the cap.
	MaxWindowHours int `yaml:"max_window_hours"`
	// MinChunkMinutes is the smallest permitted chunk duration.
	MinChunkMinutes int `yaml:"min_chunk_minutes"`
}

// StoreConfig holds the connection settings for the analytical store.
// It is bound from a loosely-typed map so unknown keys are rejected at the
// boundary (see Config.Store).
type StoreConfig struct {
	Addr               string `yaml:"addr"`
	Database           string `yaml:"database"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds"`
	// Debug enables driver-level logging of executed statements.
	Debug bool `yaml:"debug"`
}

// TableConfig holds per-table overrides from the schema-level configuration.
type TableConfig struct {
	// TimeColumn overrides time-column resolution for this table.
	TimeColumn string `yaml:"time_column"`
}

// SchemaConfig points at the schema metadata snapshot and per-table overrides.
type SchemaConfig struct {
	// Path is the metadata snapshot file (tables, ordering keys, views).
	Path string `yaml:"path"`
	// Tables maps "database.table" to per-table overrides.
	Tables map[string]TableConfig `yaml:"tables"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	// Enabled turns span export on. When off, a no-op tracer is used.
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP/gRPC collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`
	// ServiceName is reported as the otel service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone. Window arithmetic is always UTC;
	// this only affects rendered report timestamps.
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
	// Tracing is the span export configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// RefillConfig holds all configuration under the "refill" top-level key.
type RefillConfig struct {
	// Backfill contains execution defaults.
	Backfill BackfillConfig `yaml:"backfill"`
	// Policies contains the guard toggles and limits.
	Policies PolicyConfig `yaml:"policies"`
	// StoreRaw is the store connection map, bound lazily via Store().
	StoreRaw map[string]interface{} `yaml:"store"`
	// Schema points at the metadata snapshot and per-table overrides.
	Schema SchemaConfig `yaml:"schema"`
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	// Refill contains the top-level configuration for refill.
	Refill RefillConfig `yaml:"refill"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// TableConfigFor returns the per-table override for the given "db.table" key.
func (c *Config) TableConfigFor(target string) TableConfig {
	if c.Refill.Schema.Tables == nil {
		return TableConfig{}
	}
	return c.Refill.Schema.Tables[target]
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Refill: RefillConfig{
			Backfill: BackfillConfig{
				ChunkHours:         24,
				MaxRetriesPerChunk: 3,
				RetryDelayMs:       1000,
				MaxParallelChunks:  1,
				StateRoot:          ".refill",
			},
			Policies: PolicyConfig{
				RequireExplicitWindow:  true,
				RequireDryRunBeforeRun: true,
				BlockOverlappingRuns:   true,
				FailOnPending:          true,
				MaxWindowHours:         2160, // 90 days
				MinChunkMinutes:        60,
			},
			StoreRaw: map[string]interface{}{},
			Schema: SchemaConfig{
				Tables: map[string]TableConfig{},
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
				Tracing: TracingConfig{
					Endpoint:    "localhost:4317",
					ServiceName: "refill",
				},
			},
		},
	}
}
