package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed_Delay(t *testing.T) {
	// Given a fixed backoff strategy with 100ms delay
	fixed := NewFixed(100 * time.Millisecond)

	// When Delay() is called for different attempts
	delay1 := fixed.Delay(1)
	delay2 := fixed.Delay(2)
	delay3 := fixed.Delay(3)

	// Then all delays should be the same
	assert.Equal(t, 100*time.Millisecond, delay1)
	assert.Equal(t, 100*time.Millisecond, delay2)
	assert.Equal(t, 100*time.Millisecond, delay3)
}

func TestExponential_DelayIncreasesCorrectly(t *testing.T) {
	// Given an exponential backoff strategy with 100ms base delay
	exponential := NewExponential(100*time.Millisecond, 2.0, 0)

	// Then delays should increase exponentially: 100ms, 200ms, 400ms, 800ms
	assert.Equal(t, 100*time.Millisecond, exponential.Delay(1))
	assert.Equal(t, 200*time.Millisecond, exponential.Delay(2))
	assert.Equal(t, 400*time.Millisecond, exponential.Delay(3))
	assert.Equal(t, 800*time.Millisecond, exponential.Delay(4))
}

func TestExponential_WithMaxDelay(t *testing.T) {
	// Given an exponential backoff with max delay cap
	exponential := NewExponential(100*time.Millisecond, 2.0, 300*time.Millisecond)

	// Then delays should be capped at max delay
	assert.Equal(t, 100*time.Millisecond, exponential.Delay(1))
	assert.Equal(t, 200*time.Millisecond, exponential.Delay(2))
	assert.Equal(t, 300*time.Millisecond, exponential.Delay(3))
	assert.Equal(t, 300*time.Millisecond, exponential.Delay(4))
}

func TestExponential_WithCustomMultiplier(t *testing.T) {
	exponential := NewExponential(100*time.Millisecond, 1.5, 0)

	assert.Equal(t, 100*time.Millisecond, exponential.Delay(1))
	assert.Equal(t, 150*time.Millisecond, exponential.Delay(2))
	assert.Equal(t, 225*time.Millisecond, exponential.Delay(3))
}

func TestExponential_EdgeCases(t *testing.T) {
	exponential := NewExponential(100*time.Millisecond, 2.0, 0)

	// Attempt 0 and negative attempts fall back to the base delay
	assert.Equal(t, 100*time.Millisecond, exponential.Delay(0))
	assert.Equal(t, 100*time.Millisecond, exponential.Delay(-1))
}

func TestExponential_SaturatesOnHugeAttempts(t *testing.T) {
	capped := NewExponential(time.Second, 10, time.Minute)
	uncapped := NewExponential(time.Second, 10, 0)

	assert.Equal(t, time.Minute, capped.Delay(500))
	assert.Greater(t, uncapped.Delay(500), time.Duration(0))
}

func TestSchedule_NonDecreasingAndCapped(t *testing.T) {
	// Given several exponential configurations
	strategies := []Strategy{
		NewExponential(50*time.Millisecond, 1.0, 0),
		NewExponential(50*time.Millisecond, 1.7, time.Second),
		NewExponential(time.Second, 3.0, 10*time.Second),
		NewFixed(250 * time.Millisecond),
	}

	for _, s := range strategies {
		// When computing the delays between ten attempts
		delays := Schedule(s, 10)

		// Then there is one delay per retry and they never decrease
		require.Len(t, delays, 9)
		for i := 1; i < len(delays); i++ {
			assert.GreaterOrEqual(t, delays[i], delays[i-1])
		}
		if e, ok := s.(*Exponential); ok && e.MaxDelay > 0 {
			assert.LessOrEqual(t, delays[len(delays)-1], e.MaxDelay)
		}
	}
}

func TestSchedule_SingleAttemptHasNoDelays(t *testing.T) {
	assert.Empty(t, Schedule(NewFixed(time.Second), 1))
}

func TestNew_ByName(t *testing.T) {
	s, err := New("exponential", time.Second, 2, 5*time.Second)
	require.NoError(t, err)
	assert.IsType(t, &Exponential{}, s)

	s, err = New("fixed", time.Second, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.Delay(7))

	s, err = New("", time.Second, 2, 0)
	require.NoError(t, err)
	assert.IsType(t, &Exponential{}, s)

	_, err = New("fibonacci", time.Second, 2, 0)
	assert.Error(t, err)
}
