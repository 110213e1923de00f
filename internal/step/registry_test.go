package step

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityStep(name string) *Func {
	return OneToOne(name, func(ctx context.Context, in int) (int, error) { return in, nil })
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(identityStep("a.First")))
	require.NoError(t, r.Register(identityStep("b.Second")))

	s, ok := r.Lookup("a.First")
	require.True(t, ok)
	assert.Equal(t, "a.First", s.Name())

	_, ok = r.Lookup("c.Missing")
	assert.False(t, ok)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a.First", "b.Second"}, r.Names())
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(identityStep("a.First")))

	err := r.Register(identityStep("a.First"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(identityStep("")))
}

func TestRegistry_Freeze(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(identityStep("a.First")))

	r.Freeze()

	err := r.Register(identityStep("b.Second"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")

	// Lookups still work after freezing.
	_, ok := r.Lookup("a.First")
	assert.True(t, ok)
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(identityStep("a.First"))

	assert.Panics(t, func() {
		r.MustRegister(identityStep("a.First"))
	})
}
