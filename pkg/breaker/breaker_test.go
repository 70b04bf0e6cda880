package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/longbridgeapp/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/pkg/breaker"
)

var errDependency = ewrap.New("dependency exploded")

// fakeClock advances manually.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func failing(_ context.Context) error { return errDependency }

func succeeding(_ context.Context) error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	cb := breaker.New("redis",
		breaker.WithFailureThreshold(3),
		breaker.WithTimeout(time.Second),
		breaker.WithClock(clock.now),
	)

	ctx := context.Background()

	for range 3 {
		require.ErrorIs(t, cb.Execute(ctx, failing), errDependency)
	}

	assert.Equal(t, "OPEN", cb.GetStatus().State)

	// before cooldown: rejected without invoking the operation
	invoked := false
	err := cb.Execute(ctx, func(_ context.Context) error {
		invoked = true

		return nil
	})
	require.ErrorIs(t, err, sentinel.ErrBreakerOpen)
	assert.False(t, invoked)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	cb := breaker.New("redis",
		breaker.WithFailureThreshold(3),
		breaker.WithTimeout(time.Second),
		breaker.WithClock(clock.now),
	)

	ctx := context.Background()

	for range 3 {
		_ = cb.Execute(ctx, failing)
	}

	clock.advance(time.Second)

	// first call after cooldown is attempted (HALF_OPEN)
	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, "HALF_OPEN", cb.GetStatus().State)

	require.NoError(t, cb.Execute(ctx, succeeding))
	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, "CLOSED", cb.GetStatus().State)
}

func TestBreakerHalfOpenSingleFailureReopens(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	cb := breaker.New("redis",
		breaker.WithFailureThreshold(3),
		breaker.WithTimeout(time.Second),
		breaker.WithClock(clock.now),
	)

	ctx := context.Background()

	for range 3 {
		_ = cb.Execute(ctx, failing)
	}

	clock.advance(time.Second)

	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, "HALF_OPEN", cb.GetStatus().State)

	require.ErrorIs(t, cb.Execute(ctx, failing), errDependency)
	assert.Equal(t, "OPEN", cb.GetStatus().State)

	// fresh cooldown applies
	require.ErrorIs(t, cb.Execute(ctx, succeeding), sentinel.ErrBreakerOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := breaker.New("redis", breaker.WithFailureThreshold(3))

	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	require.NoError(t, cb.Execute(ctx, succeeding))

	// two more failures are below the threshold again
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	assert.Equal(t, "CLOSED", cb.GetStatus().State)
}

func TestBreakerPassesOriginalError(t *testing.T) {
	cb := breaker.New("redis")

	err := cb.Execute(context.Background(), failing)
	require.ErrorIs(t, err, errDependency)
	assert.False(t, errors.Is(err, sentinel.ErrBreakerOpen))
}
