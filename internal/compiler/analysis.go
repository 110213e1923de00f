package compiler

import (
	"tpf/internal/model"
	"tpf/internal/step"
	"tpf/pkg/logging"
)

const defaultStepPackage = "steps"

// analyze maps each declaration to its semantic model draft, expands
// enabled cache and persistence AFTER_STEP aspects into synthetic
// side-effect steps at their declared positions, decides whether an
// orchestrator artifact is required and rejects scheduling-hint conflicts.
// No bindings are constructed and no renderer runs here.
func (c *Compiler) analyze(round *Round) error {
	doc := round.Template
	diags := round.Diagnostics

	expandable := expandableAspects(round.Aspects)

	for i := range doc.Steps {
		decl := &doc.Steps[i]
		entry, ok := c.analyzeStep(round, decl)
		if !ok {
			continue
		}
		round.analyzed = append(round.analyzed, entry)

		for _, a := range expandable {
			if !a.AppliesTo(decl.Name) {
				continue
			}
			round.analyzed = append(round.analyzed, syntheticEffect(entry, a))
			logging.Debug("Compiler", "aspect %s expands into a side-effect step after %s", a.Name, decl.Name)
		}
	}
	if diags.HasErrors() {
		return nil
	}

	c.resolveOrchestrator(round)
	return nil
}

// analyzeStep builds the semantic draft for one declaration.
func (c *Compiler) analyzeStep(round *Round, decl *StepDecl) (*analyzedStep, bool) {
	diags := round.Diagnostics

	shape, err := model.Cardinality(decl.Cardinality).Shape()
	if err != nil {
		diags.Errorf(PhaseAnalysis, decl.Name, "%v", err)
		return nil, false
	}

	hints := model.DefaultHints()
	if decl.Ordering != "" {
		hints.Ordering = model.Ordering(decl.Ordering)
	}
	if decl.ThreadSafety != "" {
		hints.Safety = model.ThreadSafety(decl.ThreadSafety)
	}
	if conflict := hintConflict(shape, hints, decl.Parallel); conflict != "" {
		diags.Errorf(PhaseAnalysis, decl.Name, "%s", conflict)
		return nil, false
	}

	mode := model.ModeReactive
	if decl.ExecutionMode != "" {
		mode = model.ExecutionMode(decl.ExecutionMode)
	}

	pkg := decl.Package
	if pkg == "" {
		pkg = defaultStepPackage
	}

	entry := &analyzedStep{
		decl:   decl,
		module: decl.Module,
		model: model.StepModel{
			Identity: model.ServiceIdentity{
				Package:  pkg,
				Name:     decl.Name,
				TypeName: exportedName(decl.Name),
			},
			Shape:  shape,
			Input:  inputMapping(decl),
			Output: outputMapping(decl),
			Mode:   mode,
			Hints:  hints,
			Plugin: decl.Plugin != nil,
		},
	}
	return entry, true
}

// hintConflict reports why the declared parallelism cannot be honored, or
// empty when the combination is legal. Only shapes with a unary input run
// per-item concurrent, so stream-input steps tolerate any policy.
func hintConflict(shape model.StreamingShape, hints model.ParallelismHints, parallel string) string {
	if step.Parallelism(parallel) != step.ParallelismParallel || shape.StreamInput() {
		return ""
	}
	if hints.Safety == model.ThreadUnsafe {
		return "declares parallel=PARALLEL but the step is marked UNSAFE"
	}
	if hints.Ordering == model.OrderingStrictRequired {
		return "declares parallel=PARALLEL but requires STRICT_REQUIRED ordering"
	}
	return ""
}

// expandableAspects filters the round's aspects down to the ones semantic
// analysis turns into synthetic steps, preserving their sorted order.
func expandableAspects(aspects []*model.AspectModel) []*model.AspectModel {
	var out []*model.AspectModel
	for _, a := range aspects {
		if a.Expandable() {
			out = append(out, a)
		}
	}
	return out
}

// syntheticEffect builds the synthetic side-effect entry an aspect inserts
// after its host step. Both sides carry the host's output element type, so
// the effect observes exactly what the next step would consume.
func syntheticEffect(host *analyzedStep, a *model.AspectModel) *analyzedStep {
	elem := host.model.Output.DomainType
	return &analyzedStep{
		aspect: a,
		module: host.module,
		model: model.StepModel{
			Identity: model.ServiceIdentity{
				Package:  host.model.Identity.Package,
				Name:     host.model.Identity.Name + "+" + a.Name,
				TypeName: host.model.Identity.TypeName + exportedName(a.Name),
			},
			Shape:        model.ShapeSideEffect,
			Input:        model.TypeMapping{DomainType: elem},
			Output:       model.TypeMapping{DomainType: elem},
			Mode:         model.ModeReactive,
			Hints:        model.DefaultHints(),
			Synthetic:    true,
			OwningAspect: a.Name,
		},
	}
}

// resolveOrchestrator decides whether the round generates an orchestrator
// artifact: either the template declares one or the CLI forces it. Module
// assignments without an orchestrator are inert and only warned about.
func (c *Compiler) resolveOrchestrator(round *Round) {
	doc := round.Template
	decl := doc.Orchestrator

	required := decl != nil || c.opts.ForceOrchestrator
	if !required {
		for i := range doc.Steps {
			if doc.Steps[i].Module != "" {
				round.Diagnostics.Warnf(PhaseAnalysis, doc.Steps[i].Name,
					"module assignment has no effect without an orchestrator")
			}
		}
		return
	}

	o := &model.OrchestratorModel{}
	if decl != nil {
		o.FirstInputType = decl.FirstInputType
		o.GenerateCLI = decl.GenerateCLI
		o.Modules = decl.Modules
	} else {
		// Forced by flag: the entry type is the first step's input.
		o.FirstInputType = doc.Steps[0].InputTypeName
		o.GenerateCLI = c.opts.ForceOrchestrator
	}
	if len(o.Modules) == 0 {
		o.Modules = deriveModules(round, doc.AppName)
	}
	round.Orchestrator = o
	logging.Debug("Compiler", "orchestrator required: entry=%s modules=%v", o.FirstInputType, o.Modules)
}

// deriveModules collects the distinct module assignments in declaration
// order, falling back to a single module named after the application.
func deriveModules(round *Round, appName string) []string {
	var modules []string
	seen := map[string]struct{}{}
	for _, entry := range round.analyzed {
		if entry.module == "" {
			continue
		}
		if _, ok := seen[entry.module]; ok {
			continue
		}
		seen[entry.module] = struct{}{}
		modules = append(modules, entry.module)
	}
	if len(modules) == 0 {
		modules = []string{appName}
	}
	return modules
}
