package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpf/internal/step"
)

func TestBackoffDelay_DoublesAndCaps(t *testing.T) {
	cfg := step.DefaultConfig()
	cfg.RetryWait = 10 * time.Millisecond
	cfg.MaxBackoff = 100 * time.Millisecond
	cfg.Jitter = false

	expected := []time.Duration{
		10 * time.Millisecond,  // after attempt 1
		20 * time.Millisecond,  // after attempt 2
		40 * time.Millisecond,  // after attempt 3
		80 * time.Millisecond,  // after attempt 4
		100 * time.Millisecond, // capped
		100 * time.Millisecond, // stays capped
	}
	for i, want := range expected {
		assert.Equal(t, want, backoffDelay(cfg, i+1), "attempt %d", i+1)
	}
}

func TestBackoffDelay_ZeroWaitMeansNoDelay(t *testing.T) {
	cfg := step.DefaultConfig()
	cfg.RetryWait = 0

	assert.Equal(t, time.Duration(0), backoffDelay(cfg, 1))
	assert.Equal(t, time.Duration(0), backoffDelay(cfg, 10))
}

func TestBackoffDelay_NoOverflowOnDeepAttempts(t *testing.T) {
	cfg := step.DefaultConfig()
	cfg.RetryWait = time.Second
	cfg.MaxBackoff = time.Minute

	assert.Equal(t, time.Minute, backoffDelay(cfg, 80))
}

func TestBackoffDelay_JitterStaysInBounds(t *testing.T) {
	cfg := step.DefaultConfig()
	cfg.RetryWait = 100 * time.Millisecond
	cfg.MaxBackoff = time.Second
	cfg.Jitter = true

	for i := 0; i < 200; i++ {
		d := backoffDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.Less(t, d, 150*time.Millisecond)
	}
}

func TestInvokeGuarded_PassesThroughResults(t *testing.T) {
	err := invokeGuarded(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)

	want := errors.New("boom")
	err = invokeGuarded(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestInvokeGuarded_CapturesPanics(t *testing.T) {
	err := invokeGuarded(context.Background(), func(context.Context) error {
		panic("unexpected state")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected state")
	assert.True(t, retryable(err))
}

func TestInvokeGuarded_NilDereferenceIsPermanent(t *testing.T) {
	err := invokeGuarded(context.Background(), func(context.Context) error {
		var p *int
		_ = *p
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil pointer dereference")
	assert.False(t, retryable(err))
}

func TestRetryable_Classification(t *testing.T) {
	assert.False(t, retryable(nil))
	assert.False(t, retryable(Permanent(errors.New("broken contract"))))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(context.DeadlineExceeded))
	assert.False(t, retryable(&step.TypeMismatchError{StepName: "a.B", Want: "int", Got: "x"}))
	assert.True(t, retryable(errors.New("transient")))
}

func TestPermanent_NilStaysNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
