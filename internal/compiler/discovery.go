package compiler

import (
	"fmt"
	"os"
	"sort"

	sigsyaml "sigs.k8s.io/yaml"

	"tpf/internal/model"
	"tpf/pkg/logging"
)

// discover loads the template document, validates it against the embedded
// schema, decodes it strictly and runs the struct-level checks. On success
// the round carries the raw declarations, the normalized aspects, the
// transport selection and the orchestrator declaration if present.
func (c *Compiler) discover(round *Round) error {
	raw, err := os.ReadFile(round.TemplatePath)
	if err != nil {
		return fmt.Errorf("reading pipeline template: %w", err)
	}

	jsonDoc, err := sigsyaml.YAMLToJSON(raw)
	if err != nil {
		round.Diagnostics.Errorf(PhaseDiscovery, round.TemplatePath, "template is not valid YAML: %v", err)
		return nil
	}
	if err := validateDocument(jsonDoc, round.TemplatePath, round.Diagnostics); err != nil {
		return err
	}
	if round.Diagnostics.HasErrors() {
		return nil
	}

	var doc TemplateDoc
	if err := sigsyaml.UnmarshalStrict(raw, &doc); err != nil {
		round.Diagnostics.Errorf(PhaseDiscovery, round.TemplatePath, "decoding template: %v", err)
		return nil
	}

	c.checkDocument(round, &doc)
	if round.Diagnostics.HasErrors() {
		return nil
	}

	round.Template = &doc
	round.Transport = Transport(doc.Transport)
	round.Aspects = normalizeAspects(doc.Aspects)
	logging.Debug("Discovery", "loaded template %s: app=%s transport=%s steps=%d aspects=%d",
		round.TemplatePath, doc.AppName, doc.Transport, len(doc.Steps), len(round.Aspects))
	return nil
}

// checkDocument runs the struct-level checks the schema cannot express.
func (c *Compiler) checkDocument(round *Round, doc *TemplateDoc) {
	diags := round.Diagnostics

	if doc.AppName == "" {
		diags.Errorf(PhaseDiscovery, round.TemplatePath, "missing required field appName")
	}
	if doc.BasePackage == "" {
		diags.Errorf(PhaseDiscovery, round.TemplatePath, "missing required field basePackage")
	}
	if !Transport(doc.Transport).Valid() {
		diags.Errorf(PhaseDiscovery, round.TemplatePath, "unknown transport %q (want GRPC or REST)", doc.Transport)
	}
	if len(doc.Steps) == 0 {
		diags.Errorf(PhaseDiscovery, round.TemplatePath, "template declares no steps")
	}

	seen := make(map[string]struct{}, len(doc.Steps))
	for i := range doc.Steps {
		c.checkStepDecl(round, &doc.Steps[i], seen)
	}

	for name, decl := range doc.Aspects {
		c.checkAspectDecl(round, name, decl, seen)
	}

	if doc.Orchestrator != nil {
		c.checkOrchestratorDecl(round, doc)
	}
}

func (c *Compiler) checkStepDecl(round *Round, decl *StepDecl, seen map[string]struct{}) {
	diags := round.Diagnostics

	if decl.Name == "" {
		diags.Errorf(PhaseDiscovery, round.TemplatePath, "step with missing required field name")
		return
	}
	if _, dup := seen[decl.Name]; dup {
		diags.Errorf(PhaseDiscovery, decl.Name, "duplicate step name")
	}
	seen[decl.Name] = struct{}{}

	if decl.Cardinality == "" {
		diags.Errorf(PhaseDiscovery, decl.Name, "missing required field cardinality")
	}
	if decl.InputTypeName == "" {
		diags.Errorf(PhaseDiscovery, decl.Name, "missing required field inputTypeName")
	}
	if decl.OutputTypeName == "" {
		diags.Errorf(PhaseDiscovery, decl.Name, "missing required field outputTypeName")
	}

	if err := inputMapping(decl).Validate(); err != nil {
		diags.Errorf(PhaseDiscovery, decl.Name, "input: %v", err)
	}
	if err := outputMapping(decl).Validate(); err != nil {
		diags.Errorf(PhaseDiscovery, decl.Name, "output: %v", err)
	}

	for _, f := range decl.InputFields {
		if f.Name == "" || f.Type == "" {
			diags.Errorf(PhaseDiscovery, decl.Name, "input field needs both name and type")
		}
	}
	for _, f := range decl.OutputFields {
		if f.Name == "" || f.Type == "" {
			diags.Errorf(PhaseDiscovery, decl.Name, "output field needs both name and type")
		}
	}

	if decl.Plugin != nil && decl.Plugin.Implementation == "" {
		diags.Errorf(PhaseDiscovery, decl.Name, "plugin declaration needs an implementation")
	}
}

func (c *Compiler) checkAspectDecl(round *Round, name string, decl AspectDecl, steps map[string]struct{}) {
	a := aspectModel(name, decl)
	if err := a.Validate(); err != nil {
		round.Diagnostics.Errorf(PhaseDiscovery, name, "%v", err)
		return
	}
	for _, s := range a.Steps {
		if _, ok := steps[s]; !ok {
			round.Diagnostics.Errorf(PhaseDiscovery, name, "aspect names unknown step %q", s)
		}
	}
}

func (c *Compiler) checkOrchestratorDecl(round *Round, doc *TemplateDoc) {
	o := doc.Orchestrator
	if o.FirstInputType == "" {
		round.Diagnostics.Errorf(PhaseDiscovery, round.TemplatePath, "orchestrator is missing firstInputType")
	}
	if len(o.Modules) == 0 {
		return
	}
	known := make(map[string]struct{}, len(o.Modules))
	for _, m := range o.Modules {
		known[m] = struct{}{}
	}
	for i := range doc.Steps {
		decl := &doc.Steps[i]
		if decl.Module == "" {
			continue
		}
		if _, ok := known[decl.Module]; !ok {
			round.Diagnostics.Errorf(PhaseDiscovery, decl.Name,
				"step assigned to module %q which the orchestrator does not declare", decl.Module)
		}
	}
}

// inputMapping builds the input-side type mapping of a declaration.
func inputMapping(decl *StepDecl) model.TypeMapping {
	return model.TypeMapping{
		DomainType: decl.InputTypeName,
		WireType:   decl.InputWireType,
		Mapper:     decl.InputMapper,
	}
}

// outputMapping builds the output-side type mapping of a declaration.
func outputMapping(decl *StepDecl) model.TypeMapping {
	return model.TypeMapping{
		DomainType: decl.OutputTypeName,
		WireType:   decl.OutputWireType,
		Mapper:     decl.OutputMapper,
	}
}

// aspectModel normalizes one aspect declaration. Scope defaults to STEPS
// when step names are listed and GLOBAL otherwise; category defaults to
// custom.
func aspectModel(name string, decl AspectDecl) *model.AspectModel {
	scope := model.AspectScope(decl.Scope)
	if decl.Scope == "" {
		if len(decl.Steps) > 0 {
			scope = model.ScopeSteps
		} else {
			scope = model.ScopeGlobal
		}
	}
	category := model.AspectCategory(decl.Category)
	if decl.Category == "" {
		category = model.CategoryCustom
	}
	return &model.AspectModel{
		Name:     name,
		Enabled:  decl.IsEnabled(),
		Position: model.AspectPosition(decl.Position),
		Scope:    scope,
		Steps:    decl.Steps,
		Order:    decl.Order,
		Category: category,
		Config:   decl.Config,
	}
}

// normalizeAspects converts the declaration map into models sorted by
// order, then name for a stable tie-break.
func normalizeAspects(decls map[string]AspectDecl) []*model.AspectModel {
	out := make([]*model.AspectModel, 0, len(decls))
	for name, decl := range decls {
		out = append(out, aspectModel(name, decl))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}
