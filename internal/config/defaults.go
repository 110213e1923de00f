package config

import (
	"time"

	"tpf/internal/health"
	"tpf/internal/pipectx"
	"tpf/internal/step"
	"tpf/internal/telemetry"
)

// Default returns the built-in configuration, ordinal 0 of the source
// ladder. Every other source overrides it.
func Default() PipelineConfig {
	guard := telemetry.DefaultGuardConfig()
	return PipelineConfig{
		Defaults: DefaultsConfig{
			RetryLimit:       step.DefaultRetryLimit,
			RetryWaitMs:      int(step.DefaultRetryWait / time.Millisecond),
			MaxBackoff:       step.DefaultMaxBackoff.String(),
			Jitter:           false,
			RecoverOnFailure: false,
			BufferCapacity:   step.DefaultBufferCapacity,
			Strategy:         string(step.Buffer),
		},
		Parallelism:    string(step.ParallelismAuto),
		MaxConcurrency: step.DefaultMaxConcurrency,
		Health: HealthConfig{
			StartupTimeout: health.DefaultStartupTimeout.String(),
			ProbeInterval:  health.DefaultProbeInterval.String(),
		},
		Cache: CacheConfig{
			Provider: "none",
			Policy:   string(pipectx.PolicyPreferCache),
			TTL:      "10m",
		},
		KillSwitch: KillSwitchConfig{
			RetryAmplification: RetryAmplificationConfig{
				Enabled:                guard.Enabled,
				Window:                 guard.Window.String(),
				InflightSlopeThreshold: guard.InflightSlopeThreshold,
				RetryRateThreshold:     guard.RetryRateThreshold,
				Mode:                   string(guard.Mode),
			},
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{Enabled: false, PerItem: false},
		},
		Server: ServerConfig{
			Address: "localhost:8420",
		},
	}
}
