package backoff

import (
	"fmt"
	"math"
	"time"
)

// Strategy defines the interface for backoff strategies
type Strategy interface {
	// Delay returns the duration to wait before the next attempt
	// attempt is 1-based (1 for first retry, 2 for second retry, etc.)
	Delay(attempt int) time.Duration
}

// Strategy names accepted by New
const (
	NameFixed       = "fixed"
	NameExponential = "exponential"
)

// New creates a strategy by name
func New(name string, baseDelay time.Duration, multiplier float64, maxDelay time.Duration) (Strategy, error) {
	switch name {
	case NameExponential, "":
		return NewExponential(baseDelay, multiplier, maxDelay), nil
	case NameFixed:
		return NewFixed(baseDelay), nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", name)
	}
}

// Fixed implements a fixed delay strategy
type Fixed struct {
	Duration time.Duration
}

// NewFixed creates a new Fixed backoff strategy
func NewFixed(duration time.Duration) *Fixed {
	return &Fixed{
		Duration: duration,
	}
}

// Delay returns the fixed duration for any attempt
func (f *Fixed) Delay(attempt int) time.Duration {
	return f.Duration
}

// Exponential implements an exponential backoff strategy
type Exponential struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// NewExponential creates a new Exponential backoff strategy
// baseDelay is the initial delay, multiplier is the factor to increase by each attempt
// maxDelay is the maximum delay (0 means no limit)
func NewExponential(baseDelay time.Duration, multiplier float64, maxDelay time.Duration) *Exponential {
	return &Exponential{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
	}
}

// Delay returns the exponentially increasing delay for the given attempt
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return e.BaseDelay
	}

	// baseDelay * multiplier^(attempt-1)
	delay := float64(e.BaseDelay) * math.Pow(e.Multiplier, float64(attempt-1))

	// Saturate before converting so huge attempts cannot overflow into negative durations
	if delay >= float64(math.MaxInt64) {
		if e.MaxDelay > 0 {
			return e.MaxDelay
		}
		return time.Duration(math.MaxInt64)
	}

	result := time.Duration(delay)

	if e.MaxDelay > 0 && result > e.MaxDelay {
		result = e.MaxDelay
	}

	return result
}

// Schedule returns the delays a strategy produces between maxAttempts attempts
func Schedule(s Strategy, maxAttempts int) []time.Duration {
	if maxAttempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, maxAttempts-1)
	for attempt := 1; attempt < maxAttempts; attempt++ {
		delays = append(delays, s.Delay(attempt))
	}
	return delays
}
