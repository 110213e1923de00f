package model

// Binding is a transport-specific view derived from a StepModel. Bindings
// are immutable, constructed during binding construction, and consumed by
// exactly one renderer each. They never flow back into the IR.
type Binding interface {
	// Target is the generation target this binding belongs to.
	Target() Target
	// Model returns the step model the binding was derived from.
	Model() *StepModel
}

// GrpcServiceDescriptor names the gRPC service a step is exposed as.
type GrpcServiceDescriptor struct {
	Package string
	Name    string
}

// GrpcMethodDescriptor names the step's RPC method and its streaming
// semantics on both sides.
type GrpcMethodDescriptor struct {
	Name            string
	ClientStreaming bool
	ServerStreaming bool
}

// GrpcBinding binds a step to a gRPC service and method descriptor. Used
// both by the server renderer and by the orchestrator-side client
// renderer.
type GrpcBinding struct {
	StepModel *StepModel
	Service   GrpcServiceDescriptor
	Method    GrpcMethodDescriptor
	// CacheKeyGenerator is the resolved key-generator identity: the global
	// default unless the step declared its own.
	CacheKeyGenerator string
	// Client is true for the orchestrator-role client binding of the same
	// descriptor pair.
	Client bool
}

func (b *GrpcBinding) Target() Target {
	if b.Client {
		return TargetGrpcClient
	}
	return TargetGrpcServer
}

func (b *GrpcBinding) Model() *StepModel { return b.StepModel }

// RestBinding binds a step to a REST route.
type RestBinding struct {
	StepModel *StepModel
	// Path is the route, derived from the step name unless overridden.
	Path              string
	CacheKeyGenerator string
	Client            bool
}

func (b *RestBinding) Target() Target {
	if b.Client {
		return TargetRestClient
	}
	return TargetRestServer
}

func (b *RestBinding) Model() *StepModel { return b.StepModel }

// PluginChildBinding is one delegated handler produced by plugin host
// expansion. The generated server-side handler forwards to the plugin
// implementation named by Delegate.
type PluginChildBinding struct {
	HandlerName string
	Delegate    string
}

// PluginBinding binds a plugin host step to its generated client and
// server glue, including the expanded child handlers.
type PluginBinding struct {
	StepModel *StepModel
	Children  []PluginChildBinding
	Client    bool
}

func (b *PluginBinding) Target() Target {
	if b.Client {
		return TargetPluginClient
	}
	return TargetPluginServer
}

func (b *PluginBinding) Model() *StepModel { return b.StepModel }

// OrchestratorBinding binds the orchestrator declaration to the full
// module layout: for each downstream module the ordered steps it serves,
// plus the client defaults written into the wiring resource.
type OrchestratorBinding struct {
	Orchestrator *OrchestratorModel
	// ModuleSteps maps module name to the steps it hosts, in pipeline
	// order.
	ModuleSteps map[string][]*StepModel
	// ModuleOrder preserves the declaration order of modules.
	ModuleOrder    []string
	ClientDefaults ClientDefaults
	// Entry is the first step of the pipeline; the orchestrator feeds
	// FirstInputType into it.
	Entry *StepModel
}

func (b *OrchestratorBinding) Target() Target { return TargetOrchestrator }

func (b *OrchestratorBinding) Model() *StepModel { return b.Entry }
