package render

import (
	"fmt"

	"tpf/internal/model"
)

var (
	pluginServerTmpl = mustTemplate("plugin_server.go.tmpl")
	pluginClientTmpl = mustTemplate("plugin_client.go.tmpl")
)

type pluginData struct {
	Context
	Model    *model.StepModel
	Children []model.PluginChildBinding
}

// PluginRenderer emits the host glue for a plugin step: server handlers
// delegating to the plugin implementation into plugin-server/, the calling
// stub into plugin-client/.
type PluginRenderer struct {
	client bool
}

func NewPluginServerRenderer() *PluginRenderer { return &PluginRenderer{} }
func NewPluginClientRenderer() *PluginRenderer { return &PluginRenderer{client: true} }

func (r *PluginRenderer) Target() model.Target {
	if r.client {
		return model.TargetPluginClient
	}
	return model.TargetPluginServer
}

func (r *PluginRenderer) Render(ctx Context, b model.Binding, out *Staging) error {
	pb, ok := b.(*model.PluginBinding)
	if !ok {
		return fmt.Errorf("plugin renderer cannot handle %T", b)
	}
	data := pluginData{
		Context:  ctx,
		Model:    pb.StepModel,
		Children: pb.Children,
	}
	tmpl, dir := pluginServerTmpl, model.RolePluginServer.OutputDir()
	if r.client {
		tmpl, dir = pluginClientTmpl, model.RolePluginClient.OutputDir()
	}
	content, err := execute(tmpl, data)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", pb.StepModel.Identity.FQN(), err)
	}
	id := pb.StepModel.Identity
	return out.Add(rolePath(dir, id.Package, fileBase(id.Name)+"_plugin.go"), content)
}
