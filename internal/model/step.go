package model

import (
	"fmt"
)

// StreamingShape classifies a step by the cardinality of its input and
// output sides.
type StreamingShape string

const (
	ShapeUnaryToUnary   StreamingShape = "UNARY_IN_UNARY_OUT"
	ShapeUnaryToStream  StreamingShape = "UNARY_IN_STREAM_OUT"
	ShapeStreamToUnary  StreamingShape = "STREAM_IN_UNARY_OUT"
	ShapeStreamToStream StreamingShape = "STREAM_IN_STREAM_OUT"
	ShapeSideEffect     StreamingShape = "SIDE_EFFECT"
)

// Valid reports whether the shape is one of the known values.
func (s StreamingShape) Valid() bool {
	switch s {
	case ShapeUnaryToUnary, ShapeUnaryToStream, ShapeStreamToUnary, ShapeStreamToStream, ShapeSideEffect:
		return true
	}
	return false
}

// StreamInput reports whether the step consumes a stream rather than a
// single value.
func (s StreamingShape) StreamInput() bool {
	return s == ShapeStreamToUnary || s == ShapeStreamToStream
}

// Operation names the single apply operation a step of this shape
// exposes.
func (s StreamingShape) Operation() string {
	switch s {
	case ShapeUnaryToStream:
		return "Expand"
	case ShapeStreamToUnary:
		return "Reduce"
	case ShapeStreamToStream:
		return "Transform"
	case ShapeSideEffect:
		return "Effect"
	default:
		return "Apply"
	}
}

// StreamOutput reports whether the step produces a stream rather than a
// single value.
func (s StreamingShape) StreamOutput() bool {
	return s == ShapeUnaryToStream || s == ShapeStreamToStream
}

// Cardinality is the template-level declaration that Semantic Analysis maps
// onto a StreamingShape.
type Cardinality string

const (
	CardinalityOneToOne   Cardinality = "ONE_TO_ONE"
	CardinalityExpansion  Cardinality = "EXPANSION"
	CardinalityReduction  Cardinality = "REDUCTION"
	CardinalitySideEffect Cardinality = "SIDE_EFFECT"
	CardinalityManyToMany Cardinality = "MANY_TO_MANY"
)

// Shape returns the streaming shape implied by the cardinality.
func (c Cardinality) Shape() (StreamingShape, error) {
	switch c {
	case CardinalityOneToOne:
		return ShapeUnaryToUnary, nil
	case CardinalityExpansion:
		return ShapeUnaryToStream, nil
	case CardinalityReduction:
		return ShapeStreamToUnary, nil
	case CardinalityManyToMany:
		return ShapeStreamToStream, nil
	case CardinalitySideEffect:
		return ShapeSideEffect, nil
	default:
		return "", fmt.Errorf("unknown cardinality %q", string(c))
	}
}

// ExecutionMode describes how the user implementation yields its result.
type ExecutionMode string

const (
	ModeReactive ExecutionMode = "REACTIVE"
	ModeFuture   ExecutionMode = "FUTURE"
	ModeBlocking ExecutionMode = "BLOCKING"
)

// Target is a generation target the compiler can enable for a step.
type Target string

const (
	TargetGrpcServer   Target = "GRPC_SERVER"
	TargetGrpcClient   Target = "GRPC_CLIENT"
	TargetRestServer   Target = "REST_SERVER"
	TargetRestClient   Target = "REST_CLIENT"
	TargetPluginServer Target = "PLUGIN_SERVER"
	TargetPluginClient Target = "PLUGIN_CLIENT"
	TargetOrchestrator Target = "ORCHESTRATOR"
)

// TargetSet is an ordered set of generation targets. Order is the
// declaration order, kept stable so renderer output is deterministic.
type TargetSet []Target

// Has reports whether t is part of the set.
func (s TargetSet) Has(t Target) bool {
	for _, candidate := range s {
		if candidate == t {
			return true
		}
	}
	return false
}

// Add returns the set with t appended when not already present.
func (s TargetSet) Add(t Target) TargetSet {
	if s.Has(t) {
		return s
	}
	return append(s, t)
}

// DeploymentRole is the deployment bucket a generated artifact belongs to.
// Each role maps to exactly one output directory.
type DeploymentRole string

const (
	RolePipelineServer     DeploymentRole = "PIPELINE_SERVER"
	RoleOrchestratorClient DeploymentRole = "ORCHESTRATOR_CLIENT"
	RolePluginServer       DeploymentRole = "PLUGIN_SERVER"
	RolePluginClient       DeploymentRole = "PLUGIN_CLIENT"
	RoleRestServer         DeploymentRole = "REST_SERVER"
)

// OutputDir returns the role-specific output directory name renderers
// write into.
func (r DeploymentRole) OutputDir() string {
	switch r {
	case RolePipelineServer:
		return "pipeline-server"
	case RoleOrchestratorClient:
		return "orchestrator-client"
	case RolePluginServer:
		return "plugin-server"
	case RolePluginClient:
		return "plugin-client"
	case RoleRestServer:
		return "rest-server"
	default:
		return string(r)
	}
}

// emittableBy lists the targets that may emit artifacts for each role.
var emittableBy = map[DeploymentRole][]Target{
	RolePipelineServer:     {TargetGrpcServer, TargetRestServer, TargetPluginServer},
	RoleOrchestratorClient: {TargetGrpcClient, TargetRestClient, TargetOrchestrator},
	RolePluginServer:       {TargetPluginServer},
	RolePluginClient:       {TargetPluginClient},
	RoleRestServer:         {TargetRestServer},
}

// Ordering is the per-step ordering hint.
type Ordering string

const (
	OrderingStrictRequired Ordering = "STRICT_REQUIRED"
	OrderingStrictAdvised  Ordering = "STRICT_ADVISED"
	OrderingRelaxed        Ordering = "RELAXED"
)

// ThreadSafety declares whether a step instance tolerates concurrent
// per-item invocations.
type ThreadSafety string

const (
	ThreadSafe   ThreadSafety = "SAFE"
	ThreadUnsafe ThreadSafety = "UNSAFE"
)

// ParallelismHints carries the two per-step scheduling hints.
type ParallelismHints struct {
	Ordering Ordering     `json:"ordering" yaml:"ordering"`
	Safety   ThreadSafety `json:"threadSafety" yaml:"threadSafety"`
}

// DefaultHints returns the hints assumed when a step declares none.
func DefaultHints() ParallelismHints {
	return ParallelismHints{Ordering: OrderingRelaxed, Safety: ThreadSafe}
}

// ServiceIdentity names a step across build and run time.
type ServiceIdentity struct {
	// Package is the Go package path segment relative to the base package.
	Package string `json:"package" yaml:"package"`
	// Name is the logical step name from the template.
	Name string `json:"name" yaml:"name"`
	// TypeName is the canonical exported type name of the step.
	TypeName string `json:"typeName" yaml:"typeName"`
}

// FQN returns the fully-qualified step name used in order.json and for
// per-step config overrides.
func (id ServiceIdentity) FQN() string {
	if id.Package == "" {
		return id.TypeName
	}
	return id.Package + "." + id.TypeName
}

// TypeMapping describes one side of a step signature: the domain type the
// user works with and, when the wire representation differs, the mapper
// that converts between them.
type TypeMapping struct {
	DomainType string `json:"domainType" yaml:"domainType"`
	WireType   string `json:"wireType" yaml:"wireType"`
	// Mapper is set exactly when WireType differs from DomainType.
	Mapper string `json:"mapper,omitempty" yaml:"mapper,omitempty"`
}

// Validate checks the mapper-presence invariant.
func (m TypeMapping) Validate() error {
	if m.DomainType == "" {
		return fmt.Errorf("type mapping is missing a domain type")
	}
	wire := m.WireType
	if wire == "" {
		wire = m.DomainType
	}
	needsMapper := wire != m.DomainType
	if needsMapper && m.Mapper == "" {
		return fmt.Errorf("domain type %s differs from wire type %s but no mapper is declared", m.DomainType, wire)
	}
	if !needsMapper && m.Mapper != "" {
		return fmt.Errorf("mapper %s declared but domain and wire types are identical (%s)", m.Mapper, m.DomainType)
	}
	return nil
}

// StepModel is the immutable semantic description of a single step.
// Construct through NewStepModel; treat as read-only afterwards.
type StepModel struct {
	Identity ServiceIdentity  `json:"identity" yaml:"identity"`
	Shape    StreamingShape   `json:"shape" yaml:"shape"`
	Input    TypeMapping      `json:"input" yaml:"input"`
	Output   TypeMapping      `json:"output" yaml:"output"`
	Mode     ExecutionMode    `json:"executionMode" yaml:"executionMode"`
	Targets  TargetSet        `json:"enabledTargets" yaml:"enabledTargets"`
	Role     DeploymentRole   `json:"deploymentRole" yaml:"deploymentRole"`
	Hints    ParallelismHints `json:"parallelismHints" yaml:"parallelismHints"`

	// Plugin marks the step as a plugin host; its bindings expand into
	// child bindings delegating to the plugin implementation.
	Plugin bool `json:"plugin,omitempty" yaml:"plugin,omitempty"`

	// Synthetic marks models inserted by aspect expansion. OwningAspect
	// names the aspect that produced them.
	Synthetic    bool   `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
	OwningAspect string `json:"owningAspect,omitempty" yaml:"owningAspect,omitempty"`
}

// NewStepModel validates the structural invariants and returns the model.
func NewStepModel(m StepModel) (*StepModel, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate enforces the IR invariants. It is called by NewStepModel and by
// phases that receive externally supplied models.
func (m *StepModel) Validate() error {
	if m.Identity.Name == "" || m.Identity.TypeName == "" {
		return fmt.Errorf("step %q is missing identity fields", m.Identity.Name)
	}
	if !m.Shape.Valid() {
		return fmt.Errorf("step %s has unknown streaming shape %q", m.Identity.FQN(), m.Shape)
	}
	if err := m.Input.Validate(); err != nil {
		return fmt.Errorf("step %s input: %w", m.Identity.FQN(), err)
	}
	if err := m.Output.Validate(); err != nil {
		return fmt.Errorf("step %s output: %w", m.Identity.FQN(), err)
	}
	if m.Shape == ShapeSideEffect && m.Input.DomainType != m.Output.DomainType {
		return fmt.Errorf("side-effect step %s must keep its domain type (%s != %s)",
			m.Identity.FQN(), m.Input.DomainType, m.Output.DomainType)
	}
	if m.Role != "" {
		allowed, ok := emittableBy[m.Role]
		if !ok {
			return fmt.Errorf("step %s has unknown deployment role %q", m.Identity.FQN(), m.Role)
		}
		if len(m.Targets) > 0 {
			emittable := false
			for _, t := range allowed {
				if m.Targets.Has(t) {
					emittable = true
					break
				}
			}
			if !emittable {
				return fmt.Errorf("step %s: deployment role %s cannot be emitted by targets %v",
					m.Identity.FQN(), m.Role, m.Targets)
			}
		}
	}
	return nil
}
