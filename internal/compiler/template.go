package compiler

import (
	"strings"
	"unicode"
)

// TemplateDoc is the pipeline template as authored in YAML. Field tags are
// JSON because the document is decoded strictly through sigs.k8s.io/yaml,
// which round-trips YAML through encoding/json.
type TemplateDoc struct {
	AppName     string `json:"appName"`
	BasePackage string `json:"basePackage"`
	Transport   string `json:"transport"`

	Steps   []StepDecl            `json:"steps"`
	Aspects map[string]AspectDecl `json:"aspects,omitempty"`

	Orchestrator *OrchestratorDecl `json:"orchestrator,omitempty"`

	// CacheKeyGenerator is the global default key generator; a step may
	// override it with its own declaration.
	CacheKeyGenerator string `json:"cacheKeyGenerator,omitempty"`
}

// StepDecl is one step entry of the template. Declaration order is the
// pipeline order.
type StepDecl struct {
	Name        string `json:"name"`
	Cardinality string `json:"cardinality"`

	InputTypeName  string      `json:"inputTypeName"`
	InputFields    []FieldDecl `json:"inputFields,omitempty"`
	OutputTypeName string      `json:"outputTypeName"`
	OutputFields   []FieldDecl `json:"outputFields,omitempty"`

	// Wire types and mappers. A mapper must be declared exactly when the
	// wire type differs from the domain type.
	InputWireType  string `json:"inputWireType,omitempty"`
	InputMapper    string `json:"inputMapper,omitempty"`
	OutputWireType string `json:"outputWireType,omitempty"`
	OutputMapper   string `json:"outputMapper,omitempty"`

	// Package is the package segment relative to basePackage. Empty means
	// the default "steps" package.
	Package string `json:"package,omitempty"`

	// Module assigns the step to an orchestrator downstream module.
	Module string `json:"module,omitempty"`

	// Parallel overrides the profile parallelism for this step.
	Parallel string `json:"parallel,omitempty"`

	// Scheduling hints; defaults are RELAXED ordering and SAFE thread
	// safety.
	Ordering     string `json:"ordering,omitempty"`
	ThreadSafety string `json:"threadSafety,omitempty"`

	ExecutionMode string `json:"executionMode,omitempty"`

	// Path overrides the derived REST route.
	Path string `json:"path,omitempty"`

	CacheKeyGenerator string `json:"cacheKeyGenerator,omitempty"`

	Plugin *PluginDecl `json:"plugin,omitempty"`

	// Config carries free-form per-step tunables merged over the profile
	// defaults at runtime.
	Config map[string]interface{} `json:"config,omitempty"`
}

// FieldDecl describes one field of a step's input or output type.
type FieldDecl struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ProtoType string `json:"protoType,omitempty"`
}

// PluginDecl marks a step as a plugin host. Handlers name the delegated
// operations; empty means a single handler named after the step.
type PluginDecl struct {
	Implementation string   `json:"implementation"`
	Handlers       []string `json:"handlers,omitempty"`
}

// AspectDecl declares a cross-cutting concern. The map key in the template
// is the aspect name. Enabled defaults to true when omitted.
type AspectDecl struct {
	Enabled  *bool                  `json:"enabled,omitempty"`
	Position string                 `json:"position"`
	Scope    string                 `json:"scope,omitempty"`
	Steps    []string               `json:"steps,omitempty"`
	Order    int                    `json:"order,omitempty"`
	Category string                 `json:"category,omitempty"`
	Config   map[string]interface{} `json:"config,omitempty"`
}

// IsEnabled resolves the tri-state enabled flag.
func (a AspectDecl) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// OrchestratorDecl requests generation of the orchestrator client.
type OrchestratorDecl struct {
	FirstInputType string      `json:"firstInputType"`
	GenerateCLI    bool        `json:"generateCli,omitempty"`
	Modules        []string    `json:"modules,omitempty"`
	Clients        *ClientDecl `json:"clients,omitempty"`
}

// ClientDecl overrides the connection defaults written into the
// orchestrator client wiring resource.
type ClientDecl struct {
	URLTemplate string `json:"urlTemplate,omitempty"`
	TimeoutMS   int    `json:"timeoutMs,omitempty"`
}

// exportedName turns a template step name into the canonical exported Go
// type name: fetch_user, fetch-user and fetchUser all become FetchUser.
func exportedName(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// routeName turns a step name into its derived REST route segment.
func routeName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteRune('-')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == '_' || r == ' ' || r == '.':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
