package render

import (
	"fmt"

	"tpf/internal/model"
)

var (
	orchestratorTmpl    = mustTemplate("orchestrator.go.tmpl")
	orchestratorCLITmpl = mustTemplate("orchestrator_cli.go.tmpl")
)

type orchestratorData struct {
	Context
	Orchestrator *model.OrchestratorModel
	ModuleOrder  []string
	ModuleSteps  map[string][]*model.StepModel
	Defaults     model.ClientDefaults
	Entry        *model.StepModel
}

// OrchestratorRenderer emits the pipeline entry point into
// orchestrator-client/: the module-walking client, plus a CLI wrapper when
// the template asks for one.
type OrchestratorRenderer struct{}

func NewOrchestratorRenderer() *OrchestratorRenderer { return &OrchestratorRenderer{} }

func (r *OrchestratorRenderer) Target() model.Target { return model.TargetOrchestrator }

func (r *OrchestratorRenderer) Render(ctx Context, b model.Binding, out *Staging) error {
	ob, ok := b.(*model.OrchestratorBinding)
	if !ok {
		return fmt.Errorf("orchestrator renderer cannot handle %T", b)
	}
	data := orchestratorData{
		Context:      ctx,
		Orchestrator: ob.Orchestrator,
		ModuleOrder:  ob.ModuleOrder,
		ModuleSteps:  ob.ModuleSteps,
		Defaults:     ob.ClientDefaults,
		Entry:        ob.Entry,
	}
	dir := model.RoleOrchestratorClient.OutputDir()

	content, err := execute(orchestratorTmpl, data)
	if err != nil {
		return fmt.Errorf("rendering orchestrator: %w", err)
	}
	if err := out.Add(rolePath(dir, "", "orchestrator.go"), content); err != nil {
		return err
	}

	if !ob.Orchestrator.GenerateCLI {
		return nil
	}
	cli, err := execute(orchestratorCLITmpl, data)
	if err != nil {
		return fmt.Errorf("rendering orchestrator CLI: %w", err)
	}
	return out.Add(rolePath(dir, "", "cli.go"), cli)
}
