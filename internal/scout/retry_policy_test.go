package scout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(0)
	require.Equal(t, 3, p.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, p.BaseDelay)
	require.Equal(t, 5*time.Second, p.MaxDelay)
}

func TestExhausted(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3)
	require.False(t, p.Exhausted(0))
	require.False(t, p.Exhausted(2))
	require.True(t, p.Exhausted(3))
	require.True(t, p.Exhausted(7))
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5)
	for attempt := 0; attempt < 10; attempt++ {
		for i := 0; i < 20; i++ {
			d := p.Backoff(attempt)
			require.Greater(t, d, time.Duration(0))
			require.LessOrEqual(t, d, p.MaxDelay)
		}
	}
}

func TestBackoffGrowsWithAttempts(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5)
	// The deterministic half of the delay doubles per attempt until it
	// hits the cap, so the floor of attempt 3 exceeds the ceiling of
	// attempt 0.
	require.Greater(t, p.Backoff(3), p.BaseDelay/2)
}
