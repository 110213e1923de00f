package config

import (
	"time"

	"tpf/internal/health"
	"tpf/internal/pipectx"
	"tpf/internal/step"
	"tpf/internal/telemetry"
)

// parseDuration trusts Validate; empty or malformed values fall back.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// StepConfigs resolves the effective tunables per step: the profile
// defaults overlaid with the step's own overrides. The returned
// function is what the runner consumes.
func (c PipelineConfig) StepConfigs() func(fqn string) step.Config {
	base := c.baseStepConfig()
	return func(fqn string) step.Config {
		cfg := base
		ov, ok := c.Step[fqn]
		if !ok {
			return cfg
		}
		if ov.RetryLimit != nil {
			cfg.RetryLimit = *ov.RetryLimit
		}
		if ov.RetryWaitMs != nil {
			cfg.RetryWait = time.Duration(*ov.RetryWaitMs) * time.Millisecond
		}
		if ov.MaxBackoff != nil {
			cfg.MaxBackoff = parseDuration(*ov.MaxBackoff, cfg.MaxBackoff)
		}
		if ov.Jitter != nil {
			cfg.Jitter = *ov.Jitter
		}
		if ov.RecoverOnFailure != nil {
			cfg.RecoverOnFailure = *ov.RecoverOnFailure
		}
		if ov.BufferCapacity != nil {
			cfg.BufferCapacity = *ov.BufferCapacity
		}
		if ov.Strategy != nil {
			cfg.Strategy = step.BackpressureStrategy(*ov.Strategy)
		}
		if ov.Parallel != nil {
			p := step.Parallelism(*ov.Parallel)
			cfg.Parallel = &p
		}
		return cfg
	}
}

func (c PipelineConfig) baseStepConfig() step.Config {
	cfg := step.DefaultConfig()
	cfg.RetryLimit = c.Defaults.RetryLimit
	cfg.RetryWait = time.Duration(c.Defaults.RetryWaitMs) * time.Millisecond
	cfg.MaxBackoff = parseDuration(c.Defaults.MaxBackoff, step.DefaultMaxBackoff)
	cfg.Jitter = c.Defaults.Jitter
	cfg.RecoverOnFailure = c.Defaults.RecoverOnFailure
	cfg.BufferCapacity = c.Defaults.BufferCapacity
	cfg.Strategy = step.BackpressureStrategy(c.Defaults.Strategy)
	return cfg
}

// ProfileParallelism returns the pipeline-wide scheduling policy.
func (c PipelineConfig) ProfileParallelism() step.Parallelism {
	return step.Parallelism(c.Parallelism)
}

// GuardConfig maps the kill-switch subtree onto the telemetry guard.
func (c PipelineConfig) GuardConfig() telemetry.GuardConfig {
	ra := c.KillSwitch.RetryAmplification
	def := telemetry.DefaultGuardConfig()
	return telemetry.GuardConfig{
		Enabled:                ra.Enabled,
		Window:                 parseDuration(ra.Window, def.Window),
		InflightSlopeThreshold: ra.InflightSlopeThreshold,
		RetryRateThreshold:     ra.RetryRateThreshold,
		Mode:                   telemetry.GuardMode(ra.Mode),
	}
}

// GateConfig maps the health subtree onto the startup gate.
func (c PipelineConfig) GateConfig() health.GateConfig {
	return health.GateConfig{
		StartupTimeout: parseDuration(c.Health.StartupTimeout, health.DefaultStartupTimeout),
		ProbeInterval:  parseDuration(c.Health.ProbeInterval, health.DefaultProbeInterval),
	}
}

// CachePolicy returns the configured default per-request policy.
func (c PipelineConfig) CachePolicy() pipectx.CachePolicy {
	return pipectx.CachePolicy(c.Cache.Policy)
}

// CacheTTL returns the configured entry lifetime.
func (c PipelineConfig) CacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 10*time.Minute)
}

// RequestTimeout returns the per-call budget of one client module.
func (c ClientConfig) RequestTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}
