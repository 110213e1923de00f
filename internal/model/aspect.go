package model

import "fmt"

// AspectPosition says on which side of the step subset an aspect applies.
type AspectPosition string

const (
	PositionBeforeStep AspectPosition = "BEFORE_STEP"
	PositionAfterStep  AspectPosition = "AFTER_STEP"
)

// AspectScope selects the steps an aspect attaches to. ScopeGlobal means
// every step; any other value is interpreted as a comma-free list of step
// names carried in AspectModel.Steps.
type AspectScope string

const (
	ScopeGlobal AspectScope = "GLOBAL"
	ScopeSteps  AspectScope = "STEPS"
)

// AspectCategory groups aspects by the concern they implement. Cache and
// persistence aspects placed AFTER_STEP are expanded into synthetic
// side-effect steps during semantic analysis.
type AspectCategory string

const (
	CategoryCache       AspectCategory = "cache"
	CategoryPersistence AspectCategory = "persistence"
	CategoryLogging     AspectCategory = "logging"
	CategoryCustom      AspectCategory = "custom"
)

// AspectModel describes one cross-cutting concern declared in the template.
type AspectModel struct {
	Name     string                 `json:"name" yaml:"name"`
	Enabled  bool                   `json:"enabled" yaml:"enabled"`
	Position AspectPosition         `json:"position" yaml:"position"`
	Scope    AspectScope            `json:"scope" yaml:"scope"`
	Steps    []string               `json:"steps,omitempty" yaml:"steps,omitempty"`
	Order    int                    `json:"order" yaml:"order"`
	Category AspectCategory         `json:"category" yaml:"category"`
	Config   map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// Validate checks the declaration-level invariants.
func (a *AspectModel) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("aspect with empty name")
	}
	switch a.Position {
	case PositionBeforeStep, PositionAfterStep:
	default:
		return fmt.Errorf("aspect %s has unknown position %q", a.Name, a.Position)
	}
	switch a.Scope {
	case ScopeGlobal:
		if len(a.Steps) > 0 {
			return fmt.Errorf("aspect %s is GLOBAL but names steps", a.Name)
		}
	case ScopeSteps:
		if len(a.Steps) == 0 {
			return fmt.Errorf("aspect %s is step-scoped but names no steps", a.Name)
		}
	default:
		return fmt.Errorf("aspect %s has unknown scope %q", a.Name, a.Scope)
	}
	return nil
}

// Expandable reports whether the aspect turns into a synthetic side-effect
// step: enabled, placed after the step, and in a cache or persistence
// category.
func (a *AspectModel) Expandable() bool {
	if !a.Enabled || a.Position != PositionAfterStep {
		return false
	}
	return a.Category == CategoryCache || a.Category == CategoryPersistence
}

// AppliesTo reports whether the aspect attaches to the named step.
func (a *AspectModel) AppliesTo(stepName string) bool {
	if a.Scope == ScopeGlobal {
		return true
	}
	for _, s := range a.Steps {
		if s == stepName {
			return true
		}
	}
	return false
}
