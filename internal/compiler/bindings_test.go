package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpf/internal/model"
)

// compileRound runs a full round into a throwaway directory and returns it.
func compileRound(t *testing.T, tmpl string) *Round {
	t.Helper()
	result, err := New(Options{OutputDir: t.TempDir()}).Compile(writeTemplate(t, tmpl))
	require.NoError(t, err)
	return result.Round
}

// grpcBinding returns the gRPC binding for the named step on the given side.
func grpcBinding(t *testing.T, round *Round, name string, client bool) *model.GrpcBinding {
	t.Helper()
	for _, b := range round.Bindings {
		gb, ok := b.(*model.GrpcBinding)
		if ok && gb.StepModel.Identity.Name == name && gb.Client == client {
			return gb
		}
	}
	t.Fatalf("no gRPC binding for %s (client=%v)", name, client)
	return nil
}

func restBinding(t *testing.T, round *Round, name string, client bool) *model.RestBinding {
	t.Helper()
	for _, b := range round.Bindings {
		rb, ok := b.(*model.RestBinding)
		if ok && rb.StepModel.Identity.Name == name && rb.Client == client {
			return rb
		}
	}
	t.Fatalf("no REST binding for %s (client=%v)", name, client)
	return nil
}

func TestBindings_GrpcDescriptors(t *testing.T) {
	round := compileRound(t, `appName: flow
basePackage: com.acme.flow
transport: GRPC
steps:
  - name: fanOut
    cardinality: EXPANSION
    inputTypeName: Batch
    outputTypeName: Item
  - name: fold
    cardinality: REDUCTION
    inputTypeName: Item
    outputTypeName: Summary
`)

	server := grpcBinding(t, round, "fanOut", false)
	assert.Equal(t, "com.acme.flow.steps", server.Service.Package)
	assert.Equal(t, "FanOutService", server.Service.Name)
	assert.Equal(t, "Expand", server.Method.Name)
	assert.False(t, server.Method.ClientStreaming)
	assert.True(t, server.Method.ServerStreaming)

	fold := grpcBinding(t, round, "fold", true)
	assert.Equal(t, "Reduce", fold.Method.Name)
	assert.True(t, fold.Method.ClientStreaming)
	assert.False(t, fold.Method.ServerStreaming)
	assert.Same(t, round.findModel("fold"), fold.StepModel)
}

func TestBindings_RestPaths(t *testing.T) {
	round := compileRound(t, `appName: flow
basePackage: com.acme.flow
transport: REST
steps:
  - name: fetchUser
    cardinality: ONE_TO_ONE
    inputTypeName: UserQuery
    outputTypeName: User
  - name: audit
    cardinality: SIDE_EFFECT
    inputTypeName: User
    outputTypeName: User
    path: /internal/audit
aspects:
  resultCache:
    position: AFTER_STEP
    category: cache
    steps: [fetchUser]
`)

	assert.Equal(t, "/fetch-user", restBinding(t, round, "fetchUser", false).Path)
	assert.Equal(t, "/internal/audit", restBinding(t, round, "audit", false).Path)
	// Synthetic routes nest under the host's segment.
	assert.Equal(t, "/fetch-user/result-cache", restBinding(t, round, "fetchUser+resultCache", false).Path)
}

func TestBindings_KeyGeneratorResolution(t *testing.T) {
	round := compileRound(t, `appName: flow
basePackage: com.acme.flow
transport: GRPC
cacheKeyGenerator: sha256
steps:
  - name: plain
    cardinality: ONE_TO_ONE
    inputTypeName: A
    outputTypeName: B
  - name: custom
    cardinality: ONE_TO_ONE
    inputTypeName: B
    outputTypeName: C
    cacheKeyGenerator: murmur
aspects:
  resultCache:
    position: AFTER_STEP
    category: cache
    steps: [plain]
    config:
      cacheKeyGenerator: aspectGen
`)

	assert.Equal(t, "sha256", grpcBinding(t, round, "plain", false).CacheKeyGenerator)
	assert.Equal(t, "murmur", grpcBinding(t, round, "custom", false).CacheKeyGenerator)
	assert.Equal(t, "aspectGen", grpcBinding(t, round, "plain+resultCache", false).CacheKeyGenerator)
}

func TestBindings_KeyGeneratorFallsBackToBuiltin(t *testing.T) {
	round := compileRound(t, `appName: flow
basePackage: com.acme.flow
transport: GRPC
steps:
  - name: plain
    cardinality: ONE_TO_ONE
    inputTypeName: A
    outputTypeName: B
`)

	assert.Equal(t, "default", grpcBinding(t, round, "plain", false).CacheKeyGenerator)
}

func TestBindings_PluginChildren(t *testing.T) {
	round := compileRound(t, `appName: flow
basePackage: com.acme.flow
transport: GRPC
steps:
  - name: legacyBridge
    cardinality: ONE_TO_ONE
    inputTypeName: Record
    outputTypeName: Record
    plugin:
      implementation: legacy.Adapter
      handlers: [parse_header, emitRecord]
  - name: soloHost
    cardinality: ONE_TO_ONE
    inputTypeName: Record
    outputTypeName: Record
    plugin:
      implementation: legacy.Solo
`)

	var server, client *model.PluginBinding
	for _, b := range round.Bindings {
		pb, ok := b.(*model.PluginBinding)
		if !ok || pb.StepModel.Identity.Name != "legacyBridge" {
			continue
		}
		if pb.Client {
			client = pb
		} else {
			server = pb
		}
	}
	require.NotNil(t, server)
	require.NotNil(t, client)

	assert.Equal(t, []model.PluginChildBinding{
		{HandlerName: "ParseHeader", Delegate: "legacy.Adapter.ParseHeader"},
		{HandlerName: "EmitRecord", Delegate: "legacy.Adapter.EmitRecord"},
	}, server.Children)
	assert.Equal(t, server.Children, client.Children)

	for _, b := range round.Bindings {
		pb, ok := b.(*model.PluginBinding)
		if ok && pb.StepModel.Identity.Name == "soloHost" && !pb.Client {
			require.Len(t, pb.Children, 1)
			assert.Equal(t, "SoloHost", pb.Children[0].HandlerName)
			assert.Equal(t, "legacy.Solo.SoloHost", pb.Children[0].Delegate)
		}
	}
}

func TestBindings_OrchestratorModuleLayout(t *testing.T) {
	round := compileRound(t, `appName: shop
basePackage: com.acme.shop
transport: GRPC
steps:
  - name: ingest
    cardinality: ONE_TO_ONE
    inputTypeName: A
    outputTypeName: B
  - name: bill
    cardinality: ONE_TO_ONE
    inputTypeName: B
    outputTypeName: C
    module: billing
orchestrator:
  firstInputType: A
  modules: [gateway, billing]
  clients:
    urlTemplate: http://svc-{module}.local:9000
    timeoutMs: 2500
`)

	var ob *model.OrchestratorBinding
	for _, b := range round.Bindings {
		if found, ok := b.(*model.OrchestratorBinding); ok {
			ob = found
		}
	}
	require.NotNil(t, ob)

	assert.Equal(t, []string{"gateway", "billing"}, ob.ModuleOrder)
	// Unassigned steps land in the first module.
	require.Len(t, ob.ModuleSteps["gateway"], 1)
	assert.Equal(t, "ingest", ob.ModuleSteps["gateway"][0].Identity.Name)
	require.Len(t, ob.ModuleSteps["billing"], 1)
	assert.Equal(t, "bill", ob.ModuleSteps["billing"][0].Identity.Name)

	assert.Equal(t, "http://svc-{module}.local:9000", ob.ClientDefaults.URLTemplate)
	assert.Equal(t, 2500, ob.ClientDefaults.TimeoutMS)
	assert.Equal(t, "ingest", ob.Entry.Identity.Name)
}

func TestBindings_TargetsPerRole(t *testing.T) {
	round := compileRound(t, `appName: flow
basePackage: com.acme.flow
transport: GRPC
steps:
  - name: enrich
    cardinality: ONE_TO_ONE
    inputTypeName: A
    outputTypeName: B
aspects:
  writeThrough:
    position: AFTER_STEP
    category: persistence
    steps: [enrich]
`)

	host := round.findModel("enrich")
	require.NotNil(t, host)
	assert.True(t, host.Targets.Has(model.TargetGrpcServer))
	assert.True(t, host.Targets.Has(model.TargetGrpcClient))
	assert.Equal(t, model.RolePipelineServer, host.Role)

	// Synthetic steps serve in-process only: no orchestrator client.
	synth := round.findModel("enrich+writeThrough")
	require.NotNil(t, synth)
	assert.True(t, synth.Targets.Has(model.TargetGrpcServer))
	assert.False(t, synth.Targets.Has(model.TargetGrpcClient))
}
