package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpf/internal/model"
	"tpf/internal/step"
)

func namedStep(name string) *step.Func {
	return step.OneToOne(name, func(ctx context.Context, x int) (int, error) { return x, nil })
}

func TestResolveParallel(t *testing.T) {
	hints := func(o model.Ordering, s model.ThreadSafety) model.ParallelismHints {
		return model.ParallelismHints{Ordering: o, Safety: s}
	}
	tests := []struct {
		name     string
		hints    model.ParallelismHints
		policy   step.Parallelism
		shape    model.StreamingShape
		parallel bool
		wantErr  bool
	}{
		{
			name:    "unsafe step under AUTO is a configuration error",
			hints:   hints(model.OrderingRelaxed, model.ThreadUnsafe),
			policy:  step.ParallelismAuto,
			shape:   model.ShapeUnaryToUnary,
			wantErr: true,
		},
		{
			name:    "unsafe step under PARALLEL is a configuration error",
			hints:   hints(model.OrderingRelaxed, model.ThreadUnsafe),
			policy:  step.ParallelismParallel,
			shape:   model.ShapeUnaryToUnary,
			wantErr: true,
		},
		{
			name:     "unsafe step under SEQUENTIAL runs sequentially",
			hints:    hints(model.OrderingRelaxed, model.ThreadUnsafe),
			policy:   step.ParallelismSequential,
			shape:    model.ShapeUnaryToUnary,
			parallel: false,
		},
		{
			name:    "strict-required ordering under PARALLEL is a configuration error",
			hints:   hints(model.OrderingStrictRequired, model.ThreadSafe),
			policy:  step.ParallelismParallel,
			shape:   model.ShapeUnaryToUnary,
			wantErr: true,
		},
		{
			name:    "strict-required ordering under AUTO is a configuration error",
			hints:   hints(model.OrderingStrictRequired, model.ThreadSafe),
			policy:  step.ParallelismAuto,
			shape:   model.ShapeUnaryToStream,
			wantErr: true,
		},
		{
			name:     "strict-required ordering under SEQUENTIAL runs sequentially",
			hints:    hints(model.OrderingStrictRequired, model.ThreadSafe),
			policy:   step.ParallelismSequential,
			shape:    model.ShapeUnaryToUnary,
			parallel: false,
		},
		{
			name:     "strict-advised yields under AUTO",
			hints:    hints(model.OrderingStrictAdvised, model.ThreadSafe),
			policy:   step.ParallelismAuto,
			shape:    model.ShapeUnaryToStream,
			parallel: false,
		},
		{
			name:     "strict-advised is overridden by PARALLEL",
			hints:    hints(model.OrderingStrictAdvised, model.ThreadSafe),
			policy:   step.ParallelismParallel,
			shape:    model.ShapeUnaryToUnary,
			parallel: true,
		},
		{
			name:     "relaxed under PARALLEL runs parallel",
			hints:    model.DefaultHints(),
			policy:   step.ParallelismParallel,
			shape:    model.ShapeUnaryToUnary,
			parallel: true,
		},
		{
			name:     "AUTO parallelizes expansions",
			hints:    model.DefaultHints(),
			policy:   step.ParallelismAuto,
			shape:    model.ShapeUnaryToStream,
			parallel: true,
		},
		{
			name:     "AUTO keeps one-to-one sequential",
			hints:    model.DefaultHints(),
			policy:   step.ParallelismAuto,
			shape:    model.ShapeUnaryToUnary,
			parallel: false,
		},
		{
			name:     "empty policy means AUTO",
			hints:    model.DefaultHints(),
			policy:   "",
			shape:    model.ShapeUnaryToStream,
			parallel: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parallel, err := resolveParallel("steps.Probe", tt.hints, tt.policy, tt.shape)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.parallel, parallel)
		})
	}
}

func TestResolveOrder_AppliesCanonicalOrder(t *testing.T) {
	steps := []step.Step{namedStep("c.Third"), namedStep("a.First"), namedStep("b.Second")}
	order := model.OrderedStepList{"a.First", "b.Second", "c.Third"}

	got := resolveOrder(steps, order)

	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{"a.First", "b.Second", "c.Third"}, names)
}

func TestResolveOrder_UnknownStepKeepsCallerOrder(t *testing.T) {
	steps := []step.Step{namedStep("c.Third"), namedStep("x.Stray"), namedStep("a.First")}
	order := model.OrderedStepList{"a.First", "c.Third"}

	got := resolveOrder(steps, order)

	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{"c.Third", "x.Stray", "a.First"}, names)
}

func TestResolveOrder_EmptyOrderKeepsCallerOrder(t *testing.T) {
	steps := []step.Step{namedStep("b.Second"), namedStep("a.First")}

	got := resolveOrder(steps, nil)

	assert.Equal(t, "b.Second", got[0].Name())
	assert.Equal(t, "a.First", got[1].Name())
}

func TestNew_RejectsEmptyPipeline(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestNew_RejectsDuplicateSteps(t *testing.T) {
	_, err := New([]step.Step{namedStep("a.First"), namedStep("a.First")}, Options{})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "a.First")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	bad := step.DefaultConfig()
	bad.RetryLimit = 0
	_, err := New([]step.Step{namedStep("a.First")}, Options{
		Configs: func(string) step.Config { return bad },
	})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

type shapeOnlyStep struct {
	name  string
	shape model.StreamingShape
}

func (s shapeOnlyStep) Name() string                { return s.name }
func (s shapeOnlyStep) Shape() model.StreamingShape { return s.shape }

func TestNew_RejectsShapeWithoutImplementation(t *testing.T) {
	_, err := New([]step.Step{shapeOnlyStep{name: "steps.Hollow", shape: model.ShapeUnaryToUnary}}, Options{})
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
	assert.Contains(t, err.Error(), "steps.Hollow")
}

func TestNew_RejectsUnknownShape(t *testing.T) {
	_, err := New([]step.Step{shapeOnlyStep{name: "steps.Weird", shape: "SIDEWAYS"}}, Options{})
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
}

func TestOutputIsStream_ShapeAlgebra(t *testing.T) {
	expand := step.ExpandSlice("steps.Fan", func(ctx context.Context, x int) ([]int, error) {
		return []int{x, x}, nil
	})
	reduce := step.Fold("steps.Sum", 0, func(ctx context.Context, acc, x int) (int, error) {
		return acc + x, nil
	})

	tests := []struct {
		name         string
		steps        []step.Step
		sourceStream bool
		wantStream   bool
	}{
		{"one-to-one keeps unary", []step.Step{namedStep("a.Id")}, false, false},
		{"one-to-one keeps stream", []step.Step{namedStep("a.Id")}, true, true},
		{"expansion always streams", []step.Step{expand}, false, true},
		{"reduction always collapses", []step.Step{reduce}, true, false},
		{"expansion then reduction collapses", []step.Step{expand, reduce}, true, false},
		{"reduction then expansion streams", []step.Step{reduce, expand}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner(t, tt.steps, Options{})
			assert.Equal(t, tt.wantStream, r.OutputIsStream(tt.sourceStream))
		})
	}
}

func TestStages_DescribesPlan(t *testing.T) {
	cfg := step.DefaultConfig()
	cfg.RetryLimit = 5
	r := newRunner(t, []step.Step{namedStep("a.First"), namedStep("b.Second")}, Options{
		Order:   model.OrderedStepList{"b.Second", "a.First"},
		Configs: configsWith(map[string]step.Config{"b.Second": cfg}),
	})

	stages := r.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "b.Second", stages[0].Name)
	assert.Equal(t, model.ShapeUnaryToUnary, stages[0].Shape)
	assert.Equal(t, 5, stages[0].Config.RetryLimit)
	assert.False(t, stages[0].Parallel)
	assert.Equal(t, "a.First", stages[1].Name)
}

func TestNew_PerStepParallelOverridesPolicy(t *testing.T) {
	seq := step.ParallelismSequential
	cfg := step.DefaultConfig()
	cfg.Parallel = &seq

	r := newRunner(t, []step.Step{namedStep("a.Pinned"), namedStep("b.Free")}, Options{
		Parallelism: step.ParallelismParallel,
		Configs:     configsWith(map[string]step.Config{"a.Pinned": cfg}),
	})

	stages := r.Stages()
	assert.False(t, stages[0].Parallel)
	assert.True(t, stages[1].Parallel)
}

func TestNew_BlockingHintPicksBlockingVariant(t *testing.T) {
	blocking := step.ExpandSlice("steps.Bulk", func(ctx context.Context, x int) ([]int, error) {
		return []int{x}, nil
	})
	r := newRunner(t, []step.Step{blocking}, Options{})

	require.Len(t, r.plan, 1)
	assert.NotNil(t, r.plan[0].expandAll)
	assert.Nil(t, r.plan[0].expand)

	lazy := step.Expand("steps.Lazy", func(ctx context.Context, x int, emit func(int) error) error {
		return emit(x)
	})
	r = newRunner(t, []step.Step{lazy}, Options{})

	require.Len(t, r.plan, 1)
	assert.Nil(t, r.plan[0].expandAll)
	assert.NotNil(t, r.plan[0].expand)
}
