package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cafescout/cafescout/pkg/fn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func passing(context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	assert.ErrorIs(t, b.Call(context.Background(), failing), errBoom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Call(context.Background(), failing), errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Call(context.Background(), passing), ErrCircuitOpen)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	var transitions []string
	b := NewBreaker(BreakerOpts{
		FailThreshold: 1,
		Timeout:       time.Second,
		OnStateChange: func(from, to State) { transitions = append(transitions, from.String()+">"+to.String()) },
	})
	b.now = func() time.Time { return now }

	_ = b.Call(context.Background(), failing)
	require.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, b.Call(context.Background(), passing))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	b.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), failing)
	}
	now = now.Add(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	_ = b.Call(context.Background(), failing)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	ignored := errors.New("caller cancelled")
	b := NewBreaker(BreakerOpts{
		FailThreshold: 1,
		IsFailure:     func(err error) bool { return !errors.Is(err, ignored) },
	})
	_ = b.Call(context.Background(), func(context.Context) error { return ignored })
	assert.Equal(t, StateClosed, b.State())
}

func TestCallResult(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1})
	r := CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Ok(3) })
	v, err := r.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	r = CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Err[int](errBoom) })
	assert.True(t, r.IsErr())

	r = CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Ok(4) })
	_, err = r.Unwrap()
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestNewBreakerDefaults(t *testing.T) {
	b := NewBreaker(BreakerOpts{})
	assert.Equal(t, DefaultBreakerOpts.FailThreshold, b.opts.FailThreshold)
	assert.Equal(t, DefaultBreakerOpts.Timeout, b.opts.Timeout)
	assert.Equal(t, "unknown", State(9).String())
}
