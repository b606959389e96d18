package executor

import (
	"context"
	"errors"
	"time"

	"github.com/shaneisley/wishful/pkg/backoff"
	"github.com/shaneisley/wishful/pkg/logging"
	"github.com/shaneisley/wishful/pkg/metrics"
	"github.com/shaneisley/wishful/pkg/outcome"
)

// Operation performs one attempt; a non-nil error is a transport failure
type Operation func(ctx context.Context) (outcome.Outcome, error)

// Executor runs operations with retry logic
type Executor struct {
	MaxAttempts     int
	BackoffStrategy backoff.Strategy
	Logger          *logging.Logger
	Metrics         *metrics.Metrics
}

// NewExecutor creates a new Executor with the given attempt budget and backoff strategy
func NewExecutor(maxAttempts int, strategy backoff.Strategy) *Executor {
	switch {
	case maxAttempts < 1:
		maxAttempts = DefaultMaxAttempts
	case maxAttempts > MaxAttemptsLimit:
		maxAttempts = MaxAttemptsLimit
	}
	return &Executor{
		MaxAttempts:     maxAttempts,
		BackoffStrategy: strategy,
		Logger:          logging.Discard(),
	}
}

// Result represents the outcome of one retried operation
type Result struct {
	Outcome      outcome.Outcome
	AttemptCount int
	// Delays holds the backoff waits scheduled between attempts
	Delays []time.Duration
	// LastErr is the last transport error seen, if any
	LastErr error
}

// retryState is local to a single Execute call
type retryState struct {
	attempt int
	elapsed time.Duration
	lastErr error
	delays  []time.Duration
}

func (s *retryState) result(o outcome.Outcome) Result {
	return Result{
		Outcome:      o,
		AttemptCount: s.attempt,
		Delays:       s.delays,
		LastErr:      s.lastErr,
	}
}

// Execute runs op until it yields a terminal outcome or the attempts are exhausted.
// Cancellation during an attempt or a backoff wait yields Incomplete.
func (e *Executor) Execute(ctx context.Context, accountID string, op Operation) Result {
	maxAttempts := e.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := e.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithAccount(accountID)

	state := &retryState{}
	last := outcome.New(outcome.Incomplete, "not started")

	for state.attempt < maxAttempts {
		if err := ctx.Err(); err != nil {
			return state.result(outcome.Newf(outcome.Incomplete, "cancelled before attempt %d", state.attempt+1))
		}

		state.attempt++
		o, err := op(ctx)

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				e.Metrics.ObserveAttempt(outcome.Incomplete.String())
				return state.result(outcome.Newf(outcome.Incomplete, "cancelled during attempt %d", state.attempt))
			}
			state.lastErr = err
			e.Metrics.ObserveAttempt("transport_error")
			o = outcome.New(outcome.TransientFailure, err.Error())
		} else {
			e.Metrics.ObserveAttempt(o.Kind.String())
		}
		last = o

		if o.Kind.Terminal() {
			return state.result(o)
		}

		if state.attempt == maxAttempts {
			break
		}

		var delay time.Duration
		if e.BackoffStrategy != nil {
			delay = e.BackoffStrategy.Delay(state.attempt)
		}
		state.delays = append(state.delays, delay)

		logger.Warn("attempt failed, retrying",
			"attempt", state.attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"reason", o.Detail)

		if err := Wait(ctx, delay); err != nil {
			return state.result(outcome.Newf(outcome.Incomplete, "cancelled during backoff after attempt %d", state.attempt))
		}
		state.elapsed += delay
	}

	logger.Warn("attempts exhausted",
		"attempts", state.attempt,
		"backoff_total", state.elapsed,
		"reason", last.Detail)
	return state.result(last)
}

// Wait blocks for d or until ctx is done, whichever comes first
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
