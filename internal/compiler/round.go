package compiler

import (
	"tpf/internal/model"
)

// Transport is the template-level transport selection.
type Transport string

const (
	TransportGRPC Transport = "GRPC"
	TransportREST Transport = "REST"
)

// Valid reports whether the transport is a known value.
func (t Transport) Valid() bool {
	return t == TransportGRPC || t == TransportREST
}

// Round is the shared compilation context. Phases run strictly in order;
// each phase reads what earlier phases produced and adds its own output,
// never mutating models created before it.
type Round struct {
	TemplatePath string
	SourceRoots  []string

	// Discovery output.
	Template  *TemplateDoc
	Transport Transport
	Aspects   []*model.AspectModel

	// Semantic analysis output. Entries are in pipeline order with
	// synthetic side-effect steps already inserted.
	analyzed []*analyzedStep

	// Orchestrator is non-nil when an orchestrator artifact must be
	// generated (declared in the template or forced by the CLI flag).
	Orchestrator *model.OrchestratorModel

	// Target resolution output: the final immutable IR in pipeline order.
	Models []*model.StepModel

	// Binding construction output.
	Bindings []model.Binding

	// Order emission output.
	Order model.OrderedStepList

	Diagnostics *Diagnostics
}

// analyzedStep pairs a semantic model draft with the declaration context
// later phases need. Synthetic steps carry a nil decl and the aspect that
// produced them.
type analyzedStep struct {
	model  model.StepModel
	decl   *StepDecl
	aspect *model.AspectModel
	module string
}

func newRound(templatePath string, sourceRoots []string) *Round {
	return &Round{
		TemplatePath: templatePath,
		SourceRoots:  sourceRoots,
		Diagnostics:  &Diagnostics{},
	}
}

// StepModels returns the final IR; nil until target resolution has run.
func (r *Round) StepModels() []*model.StepModel {
	return r.Models
}

// StepDrafts returns copies of the analyzed step models in pipeline order,
// synthetic side-effect steps included. Available after semantic analysis,
// which makes it usable on rounds produced by Validate.
func (r *Round) StepDrafts() []model.StepModel {
	out := make([]model.StepModel, 0, len(r.analyzed))
	for _, e := range r.analyzed {
		out = append(out, e.model)
	}
	return out
}

// PlannedOrder returns the fully qualified step names in execution order,
// computed from the analyzed entries rather than the emitted order file.
func (r *Round) PlannedOrder() model.OrderedStepList {
	out := make(model.OrderedStepList, 0, len(r.analyzed))
	for _, e := range r.analyzed {
		out = append(out, e.model.Identity.FQN())
	}
	return out
}

// findModel returns the resolved model with the given logical name.
func (r *Round) findModel(name string) *model.StepModel {
	for _, m := range r.Models {
		if m.Identity.Name == name {
			return m
		}
	}
	return nil
}
