package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker("chat", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&clock)
	boom := &UpstreamError{Service: "chat", StatusCode: 502, Err: errors.New("bad gateway")}

	require.NoError(t, cb.Allow())
	cb.Mark(boom)
	assert.Equal(t, StateClosed, cb.State())
	cb.Mark(boom)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&clock)
	boom := errors.New("connection reset")

	cb.Mark(boom)
	cb.Mark(nil)
	cb.Mark(boom)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&clock)
	boom := errors.New("timeout")
	cb.Mark(boom)
	cb.Mark(boom)
	require.Equal(t, StateOpen, cb.State())

	clock = clock.Add(time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.Mark(boom)
	assert.Equal(t, StateOpen, cb.State())
	assert.Error(t, cb.Allow())

	clock = clock.Add(time.Minute)
	require.NoError(t, cb.Allow())
	cb.Mark(nil)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenAdmitsOneProbe(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&clock)
	boom := errors.New("timeout")
	cb.Mark(boom)
	cb.Mark(boom)
	require.Equal(t, StateOpen, cb.State())

	clock = clock.Add(time.Minute)
	admitted := 0
	for i := 0; i < 5; i++ {
		if cb.Allow() == nil {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
	err := cb.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// A client-side outcome frees the slot without closing the circuit.
	cb.Mark(context.Canceled)
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Allow())
	assert.Error(t, cb.Allow())

	cb.Mark(nil)
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Allow())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreakerIgnoresClientSideErrors(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&clock)
	for i := 0; i < 5; i++ {
		cb.Mark(context.Canceled)
		cb.Mark(NewValidationError("bad image"))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestNilCircuitBreakerAllowsEverything(t *testing.T) {
	var cb *CircuitBreaker
	assert.NoError(t, cb.Allow())
	cb.Mark(errors.New("ignored"))
	assert.Equal(t, StateClosed, cb.State())
}
