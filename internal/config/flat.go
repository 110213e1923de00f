package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

type propEntry struct {
	key   string
	value string
}

// parseProperties reads key/value lines. Blank lines and lines opening
// with # or ! are skipped.
func parseProperties(text string) ([]propEntry, error) {
	var entries []propEntry
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '=' in %q", n+1, line)
		}
		entries = append(entries, propEntry{
			key:   strings.TrimSpace(key),
			value: strings.TrimSpace(value),
		})
	}
	return entries, nil
}

// canonicalKey folds the spellings of one configuration key into a
// single form: properties use dots and dashes, environment variables
// use upper snake case.
func canonicalKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, ".", "-")
	return key
}

// applyFlat sets one dotted configuration key, coercing the raw string
// to the field's type. Unknown keys fail so a typo never silently
// keeps a default.
func applyFlat(cfg *PipelineConfig, key, value string) error {
	if rest, ok := strings.CutPrefix(key, "step."); ok {
		fqn, tunable, err := splitStepKey(rest)
		if err != nil {
			return err
		}
		return applyStepKey(cfg, fqn, tunable, value)
	}
	canon := canonicalKey(key)
	if set, ok := flatSetters[canon]; ok {
		return set(cfg, value)
	}
	if rest, ok := strings.CutPrefix(canon, "clients-"); ok {
		return applyClientKey(cfg, rest, value)
	}
	return fmt.Errorf("unknown configuration key %q", key)
}

// splitStepKey separates the fully-qualified step name from the
// tunable. The name may be quoted; unquoted names end at the last dot.
func splitStepKey(rest string) (string, string, error) {
	if strings.HasPrefix(rest, `"`) {
		end := strings.Index(rest[1:], `"`)
		if end < 0 {
			return "", "", fmt.Errorf("unterminated quoted step name in %q", rest)
		}
		fqn := rest[1 : 1+end]
		tunable, ok := strings.CutPrefix(rest[end+2:], ".")
		if !ok || tunable == "" {
			return "", "", fmt.Errorf("missing tunable after step name in %q", rest)
		}
		return fqn, tunable, nil
	}
	i := strings.LastIndex(rest, ".")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("step key %q needs a fully-qualified name and a tunable", rest)
	}
	return rest[:i], rest[i+1:], nil
}

func applyStepKey(cfg *PipelineConfig, fqn, tunable, raw string) error {
	if cfg.Step == nil {
		cfg.Step = map[string]StepOverride{}
	}
	ov := cfg.Step[fqn]
	switch canonicalKey(tunable) {
	case "retry-limit":
		v, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		ov.RetryLimit = &v
	case "retry-wait-ms":
		v, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		ov.RetryWaitMs = &v
	case "max-backoff":
		v := raw
		ov.MaxBackoff = &v
	case "jitter":
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		ov.Jitter = &v
	case "recover-on-failure":
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		ov.RecoverOnFailure = &v
	case "backpressure-buffer-capacity":
		v, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		ov.BufferCapacity = &v
	case "backpressure-strategy":
		v := raw
		ov.Strategy = &v
	case "parallel":
		v := raw
		ov.Parallel = &v
	default:
		return fmt.Errorf("unknown step tunable %q for %s", tunable, fqn)
	}
	cfg.Step[fqn] = ov
	return nil
}

func applyClientKey(cfg *PipelineConfig, key, value string) error {
	if cfg.Clients == nil {
		cfg.Clients = map[string]ClientConfig{}
	}
	switch {
	case strings.HasSuffix(key, "-url"):
		module := strings.TrimSuffix(key, "-url")
		cc := cfg.Clients[module]
		cc.URL = value
		cfg.Clients[module] = cc
	case strings.HasSuffix(key, "-timeout"):
		module := strings.TrimSuffix(key, "-timeout")
		cc := cfg.Clients[module]
		cc.Timeout = value
		cfg.Clients[module] = cc
	default:
		return fmt.Errorf("unknown client key %q", key)
	}
	return nil
}

type flatSetter func(*PipelineConfig, string) error

func setString(assign func(*PipelineConfig, string)) flatSetter {
	return func(c *PipelineConfig, raw string) error {
		assign(c, raw)
		return nil
	}
}

func setInt(assign func(*PipelineConfig, int)) flatSetter {
	return func(c *PipelineConfig, raw string) error {
		v, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		assign(c, v)
		return nil
	}
}

func setBool(assign func(*PipelineConfig, bool)) flatSetter {
	return func(c *PipelineConfig, raw string) error {
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		assign(c, v)
		return nil
	}
}

func setFloat(assign func(*PipelineConfig, float64)) flatSetter {
	return func(c *PipelineConfig, raw string) error {
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return err
		}
		assign(c, v)
		return nil
	}
}

var flatSetters = map[string]flatSetter{
	"defaults-retry-limit":                  setInt(func(c *PipelineConfig, v int) { c.Defaults.RetryLimit = v }),
	"defaults-retry-wait-ms":                setInt(func(c *PipelineConfig, v int) { c.Defaults.RetryWaitMs = v }),
	"defaults-max-backoff":                  setString(func(c *PipelineConfig, v string) { c.Defaults.MaxBackoff = v }),
	"defaults-jitter":                       setBool(func(c *PipelineConfig, v bool) { c.Defaults.Jitter = v }),
	"defaults-recover-on-failure":           setBool(func(c *PipelineConfig, v bool) { c.Defaults.RecoverOnFailure = v }),
	"defaults-backpressure-buffer-capacity": setInt(func(c *PipelineConfig, v int) { c.Defaults.BufferCapacity = v }),
	"defaults-backpressure-strategy":        setString(func(c *PipelineConfig, v string) { c.Defaults.Strategy = v }),

	"parallelism":     setString(func(c *PipelineConfig, v string) { c.Parallelism = v }),
	"max-concurrency": setInt(func(c *PipelineConfig, v int) { c.MaxConcurrency = v }),

	"health-startup-timeout": setString(func(c *PipelineConfig, v string) { c.Health.StartupTimeout = v }),
	"health-probe-interval":  setString(func(c *PipelineConfig, v string) { c.Health.ProbeInterval = v }),

	"cache-provider":       setString(func(c *PipelineConfig, v string) { c.Cache.Provider = v }),
	"cache-policy":         setString(func(c *PipelineConfig, v string) { c.Cache.Policy = v }),
	"cache-ttl":            setString(func(c *PipelineConfig, v string) { c.Cache.TTL = v }),
	"cache-redis-addr":     setString(func(c *PipelineConfig, v string) { c.Cache.Redis.Addr = v }),
	"cache-redis-password": setString(func(c *PipelineConfig, v string) { c.Cache.Redis.Password = v }),
	"cache-redis-db":       setInt(func(c *PipelineConfig, v int) { c.Cache.Redis.DB = v }),

	"kill-switch-retry-amplification-enabled":                  setBool(func(c *PipelineConfig, v bool) { c.KillSwitch.RetryAmplification.Enabled = v }),
	"kill-switch-retry-amplification-window":                   setString(func(c *PipelineConfig, v string) { c.KillSwitch.RetryAmplification.Window = v }),
	"kill-switch-retry-amplification-inflight-slope-threshold": setFloat(func(c *PipelineConfig, v float64) { c.KillSwitch.RetryAmplification.InflightSlopeThreshold = v }),
	"kill-switch-retry-amplification-retry-rate-threshold":     setFloat(func(c *PipelineConfig, v float64) { c.KillSwitch.RetryAmplification.RetryRateThreshold = v }),
	"kill-switch-retry-amplification-mode":                     setString(func(c *PipelineConfig, v string) { c.KillSwitch.RetryAmplification.Mode = v }),

	"telemetry-enabled":          setBool(func(c *PipelineConfig, v bool) { c.Telemetry.Enabled = v }),
	"telemetry-metrics-enabled":  setBool(func(c *PipelineConfig, v bool) { c.Telemetry.Metrics.Enabled = v }),
	"telemetry-tracing-enabled":  setBool(func(c *PipelineConfig, v bool) { c.Telemetry.Tracing.Enabled = v }),
	"telemetry-tracing-per-item": setBool(func(c *PipelineConfig, v bool) { c.Telemetry.Tracing.PerItem = v }),

	"server-address": setString(func(c *PipelineConfig, v string) { c.Server.Address = v }),
}
