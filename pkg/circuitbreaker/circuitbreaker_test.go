package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEngineDown = errors.New("engine down")

func failing() error { return errEngineDown }

func fastConfig() Config {
	return Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		Timeout:             50 * time.Millisecond,
		MaxRequestsHalfOpen: 2,
	}
}

func TestCircuitBreaker_PassesErrorsThrough(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), failing)
	assert.Same(t, errEngineDown, err)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 1, cb.GetStats().FailureCount)

	assert.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, 0, cb.GetStats().FailureCount)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(fastConfig())
	ctx := context.Background()

	for range 2 {
		_ = cb.Execute(ctx, failing)
	}
	require.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New(fastConfig())
	ctx := context.Background()
	for range 2 {
		_ = cb.Execute(ctx, failing)
	}

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.GetState())
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(fastConfig())
	ctx := context.Background()
	for range 2 {
		_ = cb.Execute(ctx, failing)
	}
	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(ctx, failing)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb := New(fastConfig())
	ctx := context.Background()
	for range 2 {
		_ = cb.Execute(ctx, failing)
	}
	time.Sleep(60 * time.Millisecond)

	release := make(chan struct{})
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(ctx, func() error { <-release; return nil })
		}()
	}
	require.Eventually(t, func() bool { return cb.GetStats().HalfOpenRequests == 2 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, cb.Execute(ctx, func() error { return nil }), ErrOpen)
	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_CancellationIsNotFailure(t *testing.T) {
	cb := New(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 5 {
		err := cb.Execute(ctx, func() error { return ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().FailureCount)
}

func TestCall_ReturnsResult(t *testing.T) {
	cb := New(DefaultConfig())
	n, err := Call(context.Background(), cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb := New(fastConfig())
	changes := make(chan [2]State, 4)
	cb.OnStateChange(func(from, to State) { changes <- [2]State{from, to} })

	for range 2 {
		_ = cb.Execute(context.Background(), failing)
	}

	select {
	case c := <-changes:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, c)
	case <-time.After(time.Second):
		t.Fatal("no state change reported")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New(fastConfig())
	for range 2 {
		_ = cb.Execute(context.Background(), failing)
	}
	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().FailureCount)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
