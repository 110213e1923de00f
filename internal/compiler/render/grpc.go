package render

import (
	"fmt"

	"tpf/internal/model"
)

var (
	grpcServerTmpl = mustTemplate("grpc_server.go.tmpl")
	grpcClientTmpl = mustTemplate("grpc_client.go.tmpl")
)

type grpcData struct {
	Context
	Model        *model.StepModel
	Service      model.GrpcServiceDescriptor
	Method       model.GrpcMethodDescriptor
	KeyGenerator string
}

// GrpcRenderer emits the service glue for one gRPC binding: the server
// side into pipeline-server/, the orchestrator-role client stub into
// orchestrator-client/.
type GrpcRenderer struct {
	client bool
}

func NewGrpcServerRenderer() *GrpcRenderer { return &GrpcRenderer{} }
func NewGrpcClientRenderer() *GrpcRenderer { return &GrpcRenderer{client: true} }

func (r *GrpcRenderer) Target() model.Target {
	if r.client {
		return model.TargetGrpcClient
	}
	return model.TargetGrpcServer
}

func (r *GrpcRenderer) Render(ctx Context, b model.Binding, out *Staging) error {
	gb, ok := b.(*model.GrpcBinding)
	if !ok {
		return fmt.Errorf("grpc renderer cannot handle %T", b)
	}
	data := grpcData{
		Context:      ctx,
		Model:        gb.StepModel,
		Service:      gb.Service,
		Method:       gb.Method,
		KeyGenerator: gb.CacheKeyGenerator,
	}
	tmpl, dir, suffix := grpcServerTmpl, model.RolePipelineServer.OutputDir(), "_service.go"
	if r.client {
		tmpl, dir, suffix = grpcClientTmpl, model.RoleOrchestratorClient.OutputDir(), "_client.go"
	}
	content, err := execute(tmpl, data)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", gb.StepModel.Identity.FQN(), err)
	}
	id := gb.StepModel.Identity
	return out.Add(rolePath(dir, id.Package, fileBase(id.Name)+suffix), content)
}
