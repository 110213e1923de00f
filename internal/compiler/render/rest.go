package render

import (
	"fmt"

	"tpf/internal/model"
)

var (
	restServerTmpl = mustTemplate("rest_server.go.tmpl")
	restClientTmpl = mustTemplate("rest_client.go.tmpl")
)

type restData struct {
	Context
	Model        *model.StepModel
	Path         string
	KeyGenerator string
}

// RestRenderer emits the route glue for one REST binding: the handler into
// rest-server/, the orchestrator-role client into orchestrator-client/.
type RestRenderer struct {
	client bool
}

func NewRestServerRenderer() *RestRenderer { return &RestRenderer{} }
func NewRestClientRenderer() *RestRenderer { return &RestRenderer{client: true} }

func (r *RestRenderer) Target() model.Target {
	if r.client {
		return model.TargetRestClient
	}
	return model.TargetRestServer
}

func (r *RestRenderer) Render(ctx Context, b model.Binding, out *Staging) error {
	rb, ok := b.(*model.RestBinding)
	if !ok {
		return fmt.Errorf("rest renderer cannot handle %T", b)
	}
	data := restData{
		Context:      ctx,
		Model:        rb.StepModel,
		Path:         rb.Path,
		KeyGenerator: rb.CacheKeyGenerator,
	}
	tmpl, dir, suffix := restServerTmpl, model.RoleRestServer.OutputDir(), "_handler.go"
	if r.client {
		tmpl, dir, suffix = restClientTmpl, model.RoleOrchestratorClient.OutputDir(), "_client.go"
	}
	content, err := execute(tmpl, data)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", rb.StepModel.Identity.FQN(), err)
	}
	id := rb.StepModel.Identity
	return out.Add(rolePath(dir, id.Package, fileBase(id.Name)+suffix), content)
}
