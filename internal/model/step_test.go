package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validModel() StepModel {
	return StepModel{
		Identity: ServiceIdentity{Package: "steps", Name: "enrich", TypeName: "EnrichStep"},
		Shape:    ShapeUnaryToUnary,
		Input:    TypeMapping{DomainType: "Order", WireType: "Order"},
		Output:   TypeMapping{DomainType: "EnrichedOrder", WireType: "EnrichedOrder"},
		Mode:     ModeReactive,
		Targets:  TargetSet{TargetGrpcServer, TargetGrpcClient},
		Role:     RolePipelineServer,
		Hints:    DefaultHints(),
	}
}

func TestCardinality_Shape(t *testing.T) {
	tests := []struct {
		cardinality Cardinality
		shape       StreamingShape
		wantErr     bool
	}{
		{CardinalityOneToOne, ShapeUnaryToUnary, false},
		{CardinalityExpansion, ShapeUnaryToStream, false},
		{CardinalityReduction, ShapeStreamToUnary, false},
		{CardinalityManyToMany, ShapeStreamToStream, false},
		{CardinalitySideEffect, ShapeSideEffect, false},
		{Cardinality("FAN_IN"), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.cardinality), func(t *testing.T) {
			shape, err := tt.cardinality.Shape()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.shape, shape)
		})
	}
}

func TestTypeMapping_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mapping TypeMapping
		wantErr string
	}{
		{
			name:    "identical types need no mapper",
			mapping: TypeMapping{DomainType: "Order", WireType: "Order"},
		},
		{
			name:    "empty wire type defaults to domain type",
			mapping: TypeMapping{DomainType: "Order"},
		},
		{
			name:    "differing types require a mapper",
			mapping: TypeMapping{DomainType: "Order", WireType: "OrderProto"},
			wantErr: "no mapper is declared",
		},
		{
			name:    "differing types with mapper are fine",
			mapping: TypeMapping{DomainType: "Order", WireType: "OrderProto", Mapper: "OrderMapper"},
		},
		{
			name:    "mapper on identical types is rejected",
			mapping: TypeMapping{DomainType: "Order", WireType: "Order", Mapper: "OrderMapper"},
			wantErr: "domain and wire types are identical",
		},
		{
			name:    "missing domain type",
			mapping: TypeMapping{WireType: "OrderProto"},
			wantErr: "missing a domain type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestStepModel_Validate(t *testing.T) {
	t.Run("valid model passes", func(t *testing.T) {
		m := validModel()
		_, err := NewStepModel(m)
		assert.NoError(t, err)
	})

	t.Run("unknown shape is rejected", func(t *testing.T) {
		m := validModel()
		m.Shape = StreamingShape("TRIANGULAR")
		_, err := NewStepModel(m)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown streaming shape")
	})

	t.Run("side effect must preserve domain type", func(t *testing.T) {
		m := validModel()
		m.Shape = ShapeSideEffect
		m.Input = TypeMapping{DomainType: "Order"}
		m.Output = TypeMapping{DomainType: "Receipt"}
		_, err := NewStepModel(m)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must keep its domain type")
	})

	t.Run("role must be emittable by an enabled target", func(t *testing.T) {
		m := validModel()
		m.Role = RoleRestServer
		m.Targets = TargetSet{TargetGrpcServer}
		_, err := NewStepModel(m)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be emitted")
	})

	t.Run("missing identity is rejected", func(t *testing.T) {
		m := validModel()
		m.Identity.TypeName = ""
		_, err := NewStepModel(m)
		assert.Error(t, err)
	})
}

func TestServiceIdentity_FQN(t *testing.T) {
	id := ServiceIdentity{Package: "billing", Name: "charge", TypeName: "ChargeStep"}
	assert.Equal(t, "billing.ChargeStep", id.FQN())

	bare := ServiceIdentity{Name: "charge", TypeName: "ChargeStep"}
	assert.Equal(t, "ChargeStep", bare.FQN())
}

func TestTargetSet(t *testing.T) {
	var s TargetSet
	s = s.Add(TargetGrpcServer)
	s = s.Add(TargetGrpcClient)
	s = s.Add(TargetGrpcServer) // duplicate ignored

	assert.Len(t, s, 2)
	assert.True(t, s.Has(TargetGrpcServer))
	assert.True(t, s.Has(TargetGrpcClient))
	assert.False(t, s.Has(TargetRestServer))
}

func TestDeploymentRole_OutputDir(t *testing.T) {
	assert.Equal(t, "pipeline-server", RolePipelineServer.OutputDir())
	assert.Equal(t, "orchestrator-client", RoleOrchestratorClient.OutputDir())
	assert.Equal(t, "plugin-server", RolePluginServer.OutputDir())
	assert.Equal(t, "plugin-client", RolePluginClient.OutputDir())
	assert.Equal(t, "rest-server", RoleRestServer.OutputDir())
}
