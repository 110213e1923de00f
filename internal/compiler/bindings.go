package compiler

import (
	"strings"

	"github.com/spf13/cast"

	"tpf/internal/model"
)

// Connection defaults written into the orchestrator wiring resource when
// the template does not override them.
const (
	defaultClientURLTemplate = "http://{module}:8080"
	defaultClientTimeoutMS   = 5000
)

// defaultKeyGenerator names the built-in cache key generator; generated
// glue maps it to the runtime's default (app, step FQN, item hash).
const defaultKeyGenerator = "default"

// buildBindings derives one binding per (step, target) pair, plus the
// orchestrator binding when the round requires one. Bindings are
// renderer-private and never flow back into the IR.
func (c *Compiler) buildBindings(round *Round) error {
	byName := make(map[string]*analyzedStep, len(round.analyzed))
	for _, e := range round.analyzed {
		byName[e.model.Identity.Name] = e
	}

	for _, m := range round.Models {
		entry := byName[m.Identity.Name]
		for _, t := range m.Targets {
			b := c.bindTarget(round, m, entry, t)
			if b == nil {
				round.Diagnostics.Errorf(PhaseBindings, m.Identity.Name, "no binding for target %s", t)
				continue
			}
			round.Bindings = append(round.Bindings, b)
		}
	}
	if round.Diagnostics.HasErrors() {
		return nil
	}

	if round.Orchestrator != nil {
		round.Bindings = append(round.Bindings, orchestratorBinding(round, byName))
	}
	return nil
}

func (c *Compiler) bindTarget(round *Round, m *model.StepModel, entry *analyzedStep, t model.Target) model.Binding {
	switch t {
	case model.TargetGrpcServer, model.TargetGrpcClient:
		return &model.GrpcBinding{
			StepModel:         m,
			Service:           grpcService(round, m),
			Method:            grpcMethod(m),
			CacheKeyGenerator: resolveKeyGenerator(round, entry),
			Client:            t == model.TargetGrpcClient,
		}
	case model.TargetRestServer, model.TargetRestClient:
		return &model.RestBinding{
			StepModel:         m,
			Path:              restPath(entry, m),
			CacheKeyGenerator: resolveKeyGenerator(round, entry),
			Client:            t == model.TargetRestClient,
		}
	case model.TargetPluginServer, model.TargetPluginClient:
		return &model.PluginBinding{
			StepModel: m,
			Children:  pluginChildren(entry, m),
			Client:    t == model.TargetPluginClient,
		}
	default:
		return nil
	}
}

func grpcService(round *Round, m *model.StepModel) model.GrpcServiceDescriptor {
	return model.GrpcServiceDescriptor{
		Package: round.Template.BasePackage + "." + m.Identity.Package,
		Name:    m.Identity.TypeName + "Service",
	}
}

func grpcMethod(m *model.StepModel) model.GrpcMethodDescriptor {
	return model.GrpcMethodDescriptor{
		Name:            m.Shape.Operation(),
		ClientStreaming: m.Shape.StreamInput(),
		ServerStreaming: m.Shape.StreamOutput(),
	}
}

// restPath derives the route from the step name unless the declaration
// overrides it. Synthetic steps nest under their host's segment.
func restPath(entry *analyzedStep, m *model.StepModel) string {
	if entry.decl != nil && entry.decl.Path != "" {
		return entry.decl.Path
	}
	return "/" + strings.ReplaceAll(routeName(m.Identity.Name), "+", "/")
}

// resolveKeyGenerator picks the cache key generator identity: the step's
// own declaration wins, then the template default, then the built-in.
// Synthetic steps may carry one in their owning aspect's config.
func resolveKeyGenerator(round *Round, entry *analyzedStep) string {
	if entry.decl != nil && entry.decl.CacheKeyGenerator != "" {
		return entry.decl.CacheKeyGenerator
	}
	if entry.aspect != nil {
		if g := cast.ToString(entry.aspect.Config["cacheKeyGenerator"]); g != "" {
			return g
		}
	}
	if round.Template.CacheKeyGenerator != "" {
		return round.Template.CacheKeyGenerator
	}
	return defaultKeyGenerator
}

// pluginChildren expands a plugin host into its delegated handlers. A host
// without explicit handlers gets a single one named after the step.
func pluginChildren(entry *analyzedStep, m *model.StepModel) []model.PluginChildBinding {
	if entry.decl == nil || entry.decl.Plugin == nil {
		return nil
	}
	p := entry.decl.Plugin
	handlers := p.Handlers
	if len(handlers) == 0 {
		handlers = []string{m.Identity.Name}
	}
	out := make([]model.PluginChildBinding, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, model.PluginChildBinding{
			HandlerName: exportedName(h),
			Delegate:    p.Implementation + "." + exportedName(h),
		})
	}
	return out
}

// orchestratorBinding lays out the downstream modules: each module's steps
// in pipeline order, unassigned steps in the first module.
func orchestratorBinding(round *Round, byName map[string]*analyzedStep) *model.OrchestratorBinding {
	o := round.Orchestrator
	defaults := model.ClientDefaults{
		URLTemplate: defaultClientURLTemplate,
		TimeoutMS:   defaultClientTimeoutMS,
	}
	if decl := round.Template.Orchestrator; decl != nil && decl.Clients != nil {
		if decl.Clients.URLTemplate != "" {
			defaults.URLTemplate = decl.Clients.URLTemplate
		}
		if decl.Clients.TimeoutMS > 0 {
			defaults.TimeoutMS = decl.Clients.TimeoutMS
		}
	}

	moduleSteps := make(map[string][]*model.StepModel, len(o.Modules))
	for _, m := range round.Models {
		module := byName[m.Identity.Name].module
		if module == "" {
			module = o.Modules[0]
		}
		moduleSteps[module] = append(moduleSteps[module], m)
	}

	return &model.OrchestratorBinding{
		Orchestrator:   o,
		ModuleSteps:    moduleSteps,
		ModuleOrder:    o.Modules,
		ClientDefaults: defaults,
		Entry:          round.Models[0],
	}
}
