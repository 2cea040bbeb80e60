package domestictransfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour}, nil, nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Failure()
	}
	assert.Equal(t, BreakerClosed, b.state)

	require.NoError(t, b.Allow())
	b.Failure()
	assert.Equal(t, BreakerOpen, b.state)

	err := b.Allow()
	assert.Error(t, err)
	assert.IsType(t, ErrBreakerOpen{}, err)
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond}, nil, nil)

	require.NoError(t, b.Allow())
	b.Failure()
	assert.Equal(t, BreakerOpen, b.state)

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Allow()) // claims the half-open probe slot
	assert.Equal(t, BreakerHalfOpen, b.state)

	// A second caller arriving while the probe is in flight is rejected.
	err := b.Allow()
	assert.Error(t, err)
}

func TestBreaker_SuccessClosesFromHalfOpen(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Millisecond}, nil, nil)

	require.NoError(t, b.Allow())
	b.Failure()
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.state)

	b.Success()
	assert.Equal(t, BreakerClosed, b.state)

	require.NoError(t, b.Allow())
}

func TestBreaker_FailureDuringHalfOpenReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Millisecond}, nil, nil)

	require.NoError(t, b.Allow())
	b.Failure()
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.Failure()
	assert.Equal(t, BreakerOpen, b.state)
}
