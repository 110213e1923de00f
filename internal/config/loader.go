package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"tpf/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Source ordinals of the standard ladder. Sources apply in ascending
// order; a later source overrides an earlier one key by key.
const (
	OrdinalDefaults   = 0
	OrdinalFile       = 50
	OrdinalProperties = 90
	OrdinalEnv        = 100
)

// EnvPrefix marks the environment variables the env source consumes.
const EnvPrefix = "TPF_PIPELINE_"

// Source is one configuration layer.
type Source struct {
	Name    string
	Ordinal int
	Apply   func(cfg *PipelineConfig) error
}

// LoadOptions names the inputs of Load. Every field is optional.
type LoadOptions struct {
	// File is the YAML configuration file. A named file that does not
	// exist is skipped; a malformed one fails the load.
	File string

	// Properties is the orchestrator client wiring resource the
	// compiler emits. Missing files are skipped.
	Properties string

	// Environ supplies the process environment. Nil uses os.Environ.
	Environ []string

	// Extra sources merge into the ladder at their own ordinal.
	Extra []Source
}

// Load merges the standard source ladder over the built-in defaults
// and validates the result: defaults (0), YAML file (50), generated
// properties (90), environment (100).
func Load(opts LoadOptions) (PipelineConfig, error) {
	cfg := Default()

	sources := []Source{
		{Name: "config file", Ordinal: OrdinalFile, Apply: fileSource(opts.File)},
		{Name: "orchestrator-clients.properties", Ordinal: OrdinalProperties, Apply: propertiesSource(opts.Properties)},
		{Name: "environment", Ordinal: OrdinalEnv, Apply: envSource(opts.Environ)},
	}
	sources = append(sources, opts.Extra...)
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Ordinal < sources[j].Ordinal })

	for _, src := range sources {
		if err := src.Apply(&cfg); err != nil {
			return PipelineConfig{}, fmt.Errorf("applying %s: %w", src.Name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return PipelineConfig{}, err
	}
	return cfg, nil
}

// fileSource unmarshals a YAML file over the accumulated configuration
// so absent keys keep their previous values.
func fileSource(path string) func(*PipelineConfig) error {
	return func(cfg *PipelineConfig) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logging.Info("Config", "No configuration file at %s, continuing with lower sources", path)
				return nil
			}
			return err
		}
		var root struct {
			Pipeline *PipelineConfig `yaml:"pipeline"`
		}
		root.Pipeline = cfg
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		logging.Info("Config", "Loaded configuration from %s", path)
		return nil
	}
}

// propertiesSource applies the key/value lines of the generated wiring
// resource. Keys outside the pipeline prefix are ignored; unknown
// pipeline keys fail the load.
func propertiesSource(path string) func(*PipelineConfig) error {
	return func(cfg *PipelineConfig) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logging.Debug("Config", "No properties resource at %s", path)
				return nil
			}
			return err
		}
		entries, err := parseProperties(string(data))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		for _, e := range entries {
			key, ok := strings.CutPrefix(e.key, "pipeline.")
			if !ok {
				logging.Debug("Config", "Ignoring non-pipeline property %q", e.key)
				continue
			}
			if err := applyFlat(cfg, key, e.value); err != nil {
				return fmt.Errorf("property %q: %w", e.key, err)
			}
		}
		logging.Info("Config", "Applied %d generated propert(ies) from %s", len(entries), path)
		return nil
	}
}

// envSource applies TPF_PIPELINE_ variables. The variable name maps to
// a configuration key by lowercasing and reading underscores as the
// key separators, so TPF_PIPELINE_DEFAULTS_RETRY_LIMIT sets
// defaults.retry-limit.
func envSource(environ []string) func(*PipelineConfig) error {
	return func(cfg *PipelineConfig) error {
		if environ == nil {
			environ = os.Environ()
		}
		for _, kv := range environ {
			name, value, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			key, ok := strings.CutPrefix(name, EnvPrefix)
			if !ok || key == "" {
				continue
			}
			if err := applyFlat(cfg, key, value); err != nil {
				return fmt.Errorf("environment variable %s: %w", name, err)
			}
		}
		return nil
	}
}
