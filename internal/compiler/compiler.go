// Package compiler turns a pipeline template into per-role artifacts and
// the wiring resources the runtime consumes. Phases run strictly in
// order over a shared round context: Discovery, Semantic Analysis, Target
// Resolution, Binding Construction, Rendering, Order Emission. A phase
// never mutates models created by an earlier phase; any validation
// failure halts the round and nothing is written.
package compiler

import (
	"fmt"

	"tpf/internal/compiler/render"
	"tpf/internal/model"
	"tpf/pkg/logging"
)

// Options configure a compiler instance.
type Options struct {
	// OutputDir is the root the staged artifacts are flushed into.
	OutputDir string
	// SourceRoots are additional roots scanned alongside the template.
	SourceRoots []string
	// ForceOrchestrator generates the orchestrator artifacts even when
	// the template does not declare one.
	ForceOrchestrator bool
}

// Result is the outcome of a successful round.
type Result struct {
	Round     *Round
	Artifacts []render.Artifact
	Written   []string
}

// Compiler drives the phases over a shared round context. Instances are
// stateless between rounds and safe to reuse.
type Compiler struct {
	opts      Options
	renderers *render.Registry
}

// New builds a compiler with the default renderer registry.
func New(opts Options) *Compiler {
	return NewWithRegistry(opts, render.Default())
}

// NewWithRegistry builds a compiler over a custom renderer registry.
func NewWithRegistry(opts Options, reg *render.Registry) *Compiler {
	return &Compiler{opts: opts, renderers: reg}
}

type phaseFunc struct {
	name Phase
	run  func(*Round) error
}

// Compile runs a full round and flushes the staged artifacts to the
// output directory. On validation failure it returns a CompileError
// wrapping the collected diagnostics and writes nothing.
func (c *Compiler) Compile(templatePath string) (*Result, error) {
	round := newRound(templatePath, c.opts.SourceRoots)
	staging := render.NewStaging()

	phases := []phaseFunc{
		{PhaseDiscovery, c.discover},
		{PhaseAnalysis, c.analyze},
		{PhaseTargets, c.resolveTargets},
		{PhaseBindings, c.buildBindings},
		{PhaseRender, func(r *Round) error { return c.renderAll(r, staging) }},
		{PhaseEmit, func(r *Round) error { return c.emitOrder(r, staging) }},
	}
	for _, p := range phases {
		if err := p.run(round); err != nil {
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
		if round.Diagnostics.HasErrors() {
			logging.Warn("Compiler", "round halted in %s with %d error(s)",
				p.name, len(round.Diagnostics.Errors()))
			return nil, &CompileError{Diagnostics: round.Diagnostics}
		}
	}

	written, err := staging.Flush(c.opts.OutputDir)
	if err != nil {
		return nil, err
	}
	logging.Info("Compiler", "compiled %s: %d step(s), %d artifact(s)",
		templatePath, len(round.Models), staging.Len())
	return &Result{Round: round, Artifacts: staging.Artifacts(), Written: written}, nil
}

// Validate runs Discovery and Semantic Analysis only and returns the
// round with its diagnostics. Warnings do not fail validation.
func (c *Compiler) Validate(templatePath string) (*Round, error) {
	round := newRound(templatePath, c.opts.SourceRoots)
	for _, p := range []phaseFunc{
		{PhaseDiscovery, c.discover},
		{PhaseAnalysis, c.analyze},
	} {
		if err := p.run(round); err != nil {
			return round, fmt.Errorf("%s: %w", p.name, err)
		}
		if round.Diagnostics.HasErrors() {
			return round, &CompileError{Diagnostics: round.Diagnostics}
		}
	}
	return round, nil
}

// renderAll dispatches each binding to its registered renderer. Renderers
// stage their artifacts; nothing touches disk here.
func (c *Compiler) renderAll(round *Round, out *render.Staging) error {
	ctx := render.Context{
		AppName:     round.Template.AppName,
		BasePackage: round.Template.BasePackage,
	}
	for _, b := range round.Bindings {
		ren, ok := c.renderers.Lookup(b.Target())
		if !ok {
			round.Diagnostics.Errorf(PhaseRender, string(b.Target()), "no renderer registered for target")
			continue
		}
		if err := ren.Render(ctx, b, out); err != nil {
			round.Diagnostics.Errorf(PhaseRender, bindingSubject(b), "%v", err)
		}
	}
	logging.Debug("Render", "staged %d artifact(s)", out.Len())
	return nil
}

func bindingSubject(b model.Binding) string {
	if m := b.Model(); m != nil {
		return m.Identity.Name
	}
	return string(b.Target())
}
