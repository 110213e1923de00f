package step

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpf/internal/model"
)

func TestOneToOne_TypedApply(t *testing.T) {
	s := OneToOne("math.Increment", func(ctx context.Context, in int) (int, error) {
		return in + 1, nil
	})

	assert.Equal(t, "math.Increment", s.Name())
	assert.Equal(t, model.ShapeUnaryToUnary, s.Shape())

	out, err := s.Apply(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestOneToOne_TypeMismatch(t *testing.T) {
	s := OneToOne("math.Increment", func(ctx context.Context, in int) (int, error) {
		return in + 1, nil
	})

	_, err := s.Apply(context.Background(), "not-an-int")
	require.Error(t, err)

	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "math.Increment", mismatch.StepName)
}

func TestExpand_EmitsLazily(t *testing.T) {
	s := Expand("fan.Triple", func(ctx context.Context, in int, emit func(int) error) error {
		for i := 0; i < 3; i++ {
			if err := emit(in); err != nil {
				return err
			}
		}
		return nil
	})

	assert.Equal(t, model.ShapeUnaryToStream, s.Shape())

	var got []any
	err := s.Expand(context.Background(), 7, func(item any) error {
		got = append(got, item)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{7, 7, 7}, got)
}

func TestExpand_StopsOnEmitError(t *testing.T) {
	cancelled := errors.New("downstream gone")
	emitted := 0
	s := Expand("fan.Triple", func(ctx context.Context, in int, emit func(int) error) error {
		for i := 0; i < 3; i++ {
			if err := emit(in); err != nil {
				return err
			}
			emitted++
		}
		return nil
	})

	err := s.Expand(context.Background(), 1, func(item any) error { return cancelled })
	assert.ErrorIs(t, err, cancelled)
	assert.Equal(t, 0, emitted)
}

func TestExpandSlice_Materializes(t *testing.T) {
	s := ExpandSlice("fan.Pair", func(ctx context.Context, in string) ([]string, error) {
		return []string{in, in}, nil
	})

	items, err := s.ExpandAll(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "a"}, items)
}

func TestFold_ReducesInOrder(t *testing.T) {
	s := Fold("agg.Sum", 0, func(ctx context.Context, acc, in int) (int, error) {
		return acc + in, nil
	})
	assert.Equal(t, model.ShapeStreamToUnary, s.Shape())

	in := make(chan any, 4)
	for _, v := range []int{1, 1, 2, 2} {
		in <- v
	}
	close(in)

	out, err := s.Reduce(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 6, out)
}

func TestReduceSlice_TypedCollection(t *testing.T) {
	s := ReduceSlice("agg.Join", func(ctx context.Context, in []string) (string, error) {
		joined := ""
		for _, v := range in {
			joined += v
		}
		return joined, nil
	})

	out, err := s.ReduceAll(context.Background(), []any{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "abc", out)
}

func TestTransform_StreamsThrough(t *testing.T) {
	s := Transform("filter.Positive", func(ctx context.Context, in <-chan int, emit func(int) error) error {
		for v := range in {
			if v > 0 {
				if err := emit(v); err != nil {
					return err
				}
			}
		}
		return nil
	})
	assert.Equal(t, model.ShapeStreamToStream, s.Shape())

	in := make(chan any, 4)
	for _, v := range []int{-1, 2, -3, 4} {
		in <- v
	}
	close(in)

	var got []any
	err := s.Transform(context.Background(), in, func(item any) error {
		got = append(got, item)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4}, got)
}

func TestSideEffect_ObservesOnly(t *testing.T) {
	var seen []string
	s := SideEffect("audit.Log", func(ctx context.Context, in string) error {
		seen = append(seen, in)
		return nil
	})
	assert.Equal(t, model.ShapeSideEffect, s.Shape())

	require.NoError(t, s.Effect(context.Background(), "a"))
	require.NoError(t, s.Effect(context.Background(), "b"))
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestHintsOf(t *testing.T) {
	plain := OneToOne("plain", func(ctx context.Context, in int) (int, error) { return in, nil })
	assert.Equal(t, model.DefaultHints(), HintsOf(plain))

	hinted := OneToOne("hinted", func(ctx context.Context, in int) (int, error) { return in, nil }).
		WithHints(model.OrderingStrictRequired, model.ThreadUnsafe)
	hints := HintsOf(hinted)
	assert.Equal(t, model.OrderingStrictRequired, hints.Ordering)
	assert.Equal(t, model.ThreadUnsafe, hints.Safety)
}

func TestRecoveryOf(t *testing.T) {
	plain := OneToOne("plain", func(ctx context.Context, in int) (int, error) { return in, nil })
	assert.Nil(t, RecoveryOf(plain))

	recovered := OneToOne("recovered", func(ctx context.Context, in int) (int, error) { return in, nil }).
		WithRecovery(func(ctx context.Context, in any, cause error) (any, bool, error) {
			return -1, true, nil
		})

	handler := RecoveryOf(recovered)
	require.NotNil(t, handler)

	sub, ok, err := handler.Recover(context.Background(), 5, errors.New("boom"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1, sub)
}
