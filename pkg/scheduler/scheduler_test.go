package scheduler

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shaneisley/wishful/pkg/account"
	"github.com/shaneisley/wishful/pkg/logging"
	"github.com/shaneisley/wishful/pkg/outcome"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func accounts(names ...string) []account.Account {
	list := make([]account.Account, 0, len(names))
	for _, n := range names {
		list = append(list, account.New(n, "UID="+n))
	}
	return list
}

func TestScheduler_RecordsInConfiguredOrder(t *testing.T) {
	// Given accounts that finish in reverse order
	delays := map[string]time.Duration{"a": 40 * time.Millisecond, "b": 20 * time.Millisecond, "c": 0}
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		time.Sleep(delays[a.Name])
		return outcome.AccountResult{Account: a.Name, Outcome: outcome.New(outcome.Succeeded, ""), Attempts: 1}
	})
	s := New(runner, Options{Concurrency: 3}, nil, nil)

	// When the run executes
	summary := s.RunOnce(context.Background(), accounts("a", "b", "c"))

	// Then results follow configuration, not completion
	require.Len(t, summary.Results, 3)
	assert.Equal(t, "a", summary.Results[0].Account)
	assert.Equal(t, "b", summary.Results[1].Account)
	assert.Equal(t, "c", summary.Results[2].Account)
	assert.NotEmpty(t, summary.RunID)
	assert.True(t, summary.Healthy())
	assert.True(t, summary.Complete())
}

func TestScheduler_MixedOutcomesTallies(t *testing.T) {
	// Given three accounts where the second already wished
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		kind := outcome.Succeeded
		if a.Name == "two" {
			kind = outcome.AlreadyCompleted
		}
		return outcome.AccountResult{Outcome: outcome.New(kind, "")}
	})
	s := New(runner, Options{Concurrency: 1}, nil, nil)

	// When the run executes
	summary := s.RunOnce(context.Background(), accounts("one", "two", "three"))

	// Then the tallies add up to the enabled accounts
	assert.Equal(t, []outcome.Kind{outcome.Succeeded, outcome.AlreadyCompleted, outcome.Succeeded}, summary.Kinds())
	assert.Equal(t, 3, summary.Total())
	assert.Equal(t, 2, summary.Count(outcome.Succeeded))
	assert.Equal(t, 1, summary.Count(outcome.AlreadyCompleted))
	assert.Equal(t, "two", summary.Results[1].Account, "missing names are filled in")
	assert.True(t, summary.Healthy())
}

func TestScheduler_DisabledAccountsAreSkipped(t *testing.T) {
	var calls int32
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		atomic.AddInt32(&calls, 1)
		return outcome.AccountResult{Account: a.Name, Outcome: outcome.New(outcome.Succeeded, "")}
	})
	list := accounts("on", "off", "also-on")
	list[1].Enabled = false

	summary := New(runner, Options{Concurrency: 2}, nil, nil).RunOnce(context.Background(), list)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 2, summary.Total())
	assert.Equal(t, "also-on", summary.Results[1].Account)
}

func TestScheduler_PanicIsIsolated(t *testing.T) {
	// Given a cycle that panics for one account
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		if a.Name == "bad" {
			panic("boom")
		}
		return outcome.AccountResult{Account: a.Name, Outcome: outcome.New(outcome.Succeeded, "")}
	})
	s := New(runner, Options{Concurrency: 2}, nil, nil)

	// When the run executes
	summary := s.RunOnce(context.Background(), accounts("good", "bad", "fine"))

	// Then only that account failed
	assert.Equal(t, []outcome.Kind{outcome.Succeeded, outcome.PermanentFailure, outcome.Succeeded}, summary.Kinds())
	assert.Contains(t, summary.Results[1].Outcome.Detail, "boom")
	assert.False(t, summary.Healthy())
}

func TestScheduler_AuthExpiredDoesNotStopOthers(t *testing.T) {
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		if a.Name == "stale" {
			return outcome.AccountResult{Account: a.Name, Outcome: outcome.New(outcome.AuthExpired, "login required"), Attempts: 1}
		}
		return outcome.AccountResult{Account: a.Name, Outcome: outcome.New(outcome.Succeeded, ""), Attempts: 1}
	})

	summary := New(runner, Options{}, nil, nil).RunOnce(context.Background(), accounts("stale", "fresh"))

	assert.Equal(t, []outcome.Kind{outcome.AuthExpired, outcome.Succeeded}, summary.Kinds())
	assert.False(t, summary.Healthy())
}

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	// Given five accounts and a limit of two
	var current, peak int32
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return outcome.AccountResult{Account: a.Name, Outcome: outcome.New(outcome.Succeeded, "")}
	})
	s := New(runner, Options{Concurrency: 2}, nil, nil)

	// When the run executes
	summary := s.RunOnce(context.Background(), accounts("a", "b", "c", "d", "e"))

	// Then never more than two ran at once and all five were recorded
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 5, summary.Total())
	assert.Equal(t, 5, summary.Count(outcome.Succeeded))
}

func TestScheduler_BetweenAccountsDelay(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return outcome.AccountResult{Account: a.Name, Outcome: outcome.New(outcome.Succeeded, "")}
	})
	s := New(runner, Options{Concurrency: 1, BetweenAccounts: 30 * time.Millisecond}, nil, nil)

	s.RunOnce(context.Background(), accounts("a", "b", "c"))

	require.Len(t, starts, 3)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), 30*time.Millisecond)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), 30*time.Millisecond)
}

func TestScheduler_CancellationMarksIncomplete(t *testing.T) {
	// Given a long pause between accounts and a cancellation after the first one
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		return outcome.AccountResult{Account: a.Name, Outcome: outcome.New(outcome.Succeeded, "")}
	})
	s := New(runner, Options{Concurrency: 1, BetweenAccounts: time.Hour}, nil, nil)
	time.AfterFunc(30*time.Millisecond, cancel)

	// When the run executes
	start := time.Now()
	summary := s.RunOnce(ctx, accounts("a", "b", "c"))

	// Then it stops promptly and the rest are Incomplete
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []outcome.Kind{outcome.Succeeded, outcome.Incomplete, outcome.Incomplete}, summary.Kinds())
	assert.False(t, summary.Complete())
	assert.True(t, summary.Healthy())
}

func TestScheduler_LogsOneLinePerAccount(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger("wishful", logging.LogLevelInfo, logging.FormatText, &buf)
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		if a.Name == "stale" {
			return outcome.AccountResult{Outcome: outcome.New(outcome.AuthExpired, "login required")}
		}
		return outcome.AccountResult{Outcome: outcome.New(outcome.Succeeded, "")}
	})

	New(runner, Options{}, logger, nil).RunOnce(context.Background(), accounts("main", "stale"))

	logs := buf.String()
	assert.Contains(t, logs, "level=INFO msg=\"account finished\"")
	assert.Contains(t, logs, "level=ERROR msg=\"account finished\"")
	assert.Contains(t, logs, "outcome=auth_expired")
	assert.Contains(t, logs, "run_id=")
	assert.NotContains(t, logs, "UID=")
}

func TestScheduler_EmptyRun(t *testing.T) {
	runner := CycleFunc(func(ctx context.Context, a account.Account) outcome.AccountResult {
		t.Fatal("no account should run")
		return outcome.AccountResult{}
	})

	summary := New(runner, Options{Concurrency: 4}, nil, nil).RunOnce(context.Background(), nil)

	assert.Equal(t, 0, summary.Total())
	assert.True(t, summary.Healthy())
}
