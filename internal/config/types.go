package config

// PipelineConfig is the full runtime configuration tree: every key
// below the `pipeline` prefix. Sources merge into one of these in
// ascending ordinal; the zero value is unusable, start from Default.
type PipelineConfig struct {
	Defaults       DefaultsConfig          `yaml:"defaults"`
	Parallelism    string                  `yaml:"parallelism" validate:"oneof=AUTO SEQUENTIAL PARALLEL"`
	MaxConcurrency int                     `yaml:"max-concurrency" validate:"gte=1"`
	Step           map[string]StepOverride `yaml:"step" validate:"dive"`
	Health         HealthConfig            `yaml:"health"`
	Cache          CacheConfig             `yaml:"cache"`
	KillSwitch     KillSwitchConfig        `yaml:"kill-switch"`
	Telemetry      TelemetryConfig         `yaml:"telemetry"`
	Clients        map[string]ClientConfig `yaml:"clients" validate:"dive"`
	Server         ServerConfig            `yaml:"server"`
}

// DefaultsConfig carries the profile-wide step tunables. Durations are
// strings in time.ParseDuration syntax, except the retry wait which
// stays in milliseconds for parity with the template tunables.
type DefaultsConfig struct {
	RetryLimit       int    `yaml:"retry-limit" validate:"gte=1"`
	RetryWaitMs      int    `yaml:"retry-wait-ms" validate:"gte=0"`
	MaxBackoff       string `yaml:"max-backoff" validate:"omitempty,duration"`
	Jitter           bool   `yaml:"jitter"`
	RecoverOnFailure bool   `yaml:"recover-on-failure"`
	BufferCapacity   int    `yaml:"backpressure-buffer-capacity" validate:"gte=1"`
	Strategy         string `yaml:"backpressure-strategy" validate:"oneof=BUFFER DROP"`
}

// StepOverride carries the per-step tunables keyed by fully-qualified
// step name. Nil fields inherit the profile defaults; the most
// specific setting wins.
type StepOverride struct {
	RetryLimit       *int    `yaml:"retry-limit" validate:"omitempty,gte=1"`
	RetryWaitMs      *int    `yaml:"retry-wait-ms" validate:"omitempty,gte=0"`
	MaxBackoff       *string `yaml:"max-backoff" validate:"omitempty,duration"`
	Jitter           *bool   `yaml:"jitter"`
	RecoverOnFailure *bool   `yaml:"recover-on-failure"`
	BufferCapacity   *int    `yaml:"backpressure-buffer-capacity" validate:"omitempty,gte=1"`
	Strategy         *string `yaml:"backpressure-strategy" validate:"omitempty,oneof=BUFFER DROP"`
	Parallel         *string `yaml:"parallel" validate:"omitempty,oneof=AUTO SEQUENTIAL PARALLEL"`
}

// HealthConfig tunes the startup readiness gate.
type HealthConfig struct {
	StartupTimeout string `yaml:"startup-timeout" validate:"omitempty,duration"`
	ProbeInterval  string `yaml:"probe-interval" validate:"omitempty,duration"`
}

// CacheConfig selects the cache provider and the default per-request
// policy.
type CacheConfig struct {
	Provider string      `yaml:"provider" validate:"oneof=none memory redis"`
	Policy   string      `yaml:"policy" validate:"oneof=PREFER_CACHE CACHE_ONLY SKIP_IF_PRESENT REQUIRE_CACHE BYPASS_CACHE"`
	TTL      string      `yaml:"ttl" validate:"omitempty,duration"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig is the redis provider subtree.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// KillSwitchConfig groups the runtime watchdogs.
type KillSwitchConfig struct {
	RetryAmplification RetryAmplificationConfig `yaml:"retry-amplification"`
}

// RetryAmplificationConfig tunes the retry-amplification guard.
type RetryAmplificationConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Window                 string  `yaml:"window" validate:"omitempty,duration"`
	InflightSlopeThreshold float64 `yaml:"inflight-slope-threshold"`
	RetryRateThreshold     float64 `yaml:"retry-rate-threshold"`
	Mode                   string  `yaml:"mode" validate:"oneof=fail-fast log-only"`
}

// TelemetryConfig selects the metrics backend and tracing scope.
type TelemetryConfig struct {
	Enabled bool          `yaml:"enabled"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig enables the prometheus backend; disabled selects noop.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig enables run spans, and per-item spans when PerItem is
// set.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	PerItem bool `yaml:"per-item"`
}

// ClientConfig wires one orchestrator client module to its remote
// service. Populated by the generated properties resource.
type ClientConfig struct {
	URL     string `yaml:"url" validate:"omitempty,url"`
	Timeout string `yaml:"timeout" validate:"omitempty,duration"`
}

// ServerConfig tunes the development host.
type ServerConfig struct {
	Address string `yaml:"address"`
}
