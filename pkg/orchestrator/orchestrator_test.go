package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shaneisley/wishful/pkg/account"
	"github.com/shaneisley/wishful/pkg/outcome"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner records passes and returns a fixed outcome per account
type fakeRunner struct {
	mu      sync.Mutex
	passes  int
	kind    outcome.Kind
	started []time.Time
	hold    time.Duration
}

func (f *fakeRunner) RunOnce(ctx context.Context, accounts []account.Account) *outcome.RunSummary {
	f.mu.Lock()
	f.passes++
	f.started = append(f.started, time.Now())
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	results := make([]outcome.AccountResult, 0, len(accounts))
	for _, a := range account.Enabled(accounts) {
		results = append(results, outcome.AccountResult{Account: a.Name, Outcome: outcome.New(f.kind, "")})
	}
	return outcome.NewRunSummary("run", time.Now(), results)
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passes
}

func testAccounts() []account.Account {
	return []account.Account{account.New("a", "UID=a"), account.New("b", "UID=b")}
}

func TestOrchestrator_OnceRunsSinglePass(t *testing.T) {
	// Given a one-shot schedule
	runner := &fakeRunner{kind: outcome.Succeeded}
	o := New(runner, testAccounts(), Schedule{Mode: ModeOnce}, nil, nil)
	assert.Equal(t, Idle, o.State())

	// When Run() is called
	summary, err := o.Run(context.Background())

	// Then exactly one pass ran and the orchestrator terminated
	require.NoError(t, err)
	assert.Equal(t, 1, runner.count())
	assert.Equal(t, 2, summary.Total())
	assert.Equal(t, Terminated, o.State())
}

func TestOrchestrator_NoEnabledAccounts(t *testing.T) {
	list := testAccounts()
	for i := range list {
		list[i].Enabled = false
	}
	runner := &fakeRunner{}
	o := New(runner, list, Schedule{Mode: ModeOnce}, nil, nil)

	summary, err := o.Run(context.Background())

	assert.ErrorIs(t, err, ErrNoAccounts)
	assert.Nil(t, summary)
	assert.Equal(t, 0, runner.count())
}

func TestOrchestrator_DuplicateAccountNames(t *testing.T) {
	list := []account.Account{account.New("a", "UID=1"), account.New("a", "UID=2")}
	runner := &fakeRunner{}
	o := New(runner, list, Schedule{Mode: ModeOnce}, nil, nil)

	_, err := o.Run(context.Background())

	assert.ErrorIs(t, err, account.ErrDuplicateName)
	assert.Equal(t, 0, runner.count())
}

func TestOrchestrator_InvalidSchedule(t *testing.T) {
	o := New(&fakeRunner{}, testAccounts(), Schedule{Mode: "hourly"}, nil, nil)

	_, err := o.Run(context.Background())

	assert.Error(t, err)
}

func TestOrchestrator_IntervalRepeatsUntilCancelled(t *testing.T) {
	// Given a short interval
	runner := &fakeRunner{kind: outcome.Succeeded}
	o := New(runner, testAccounts(), Schedule{Mode: ModeInterval, Interval: 20 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	// When it runs for a while
	done := make(chan struct{})
	var summary *outcome.RunSummary
	var err error
	go func() {
		defer close(done)
		summary, err = o.Run(ctx)
	}()

	require.Eventually(t, func() bool { return runner.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// Then cancellation is a clean stop carrying the last summary
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, Terminated, o.State())
	assert.GreaterOrEqual(t, o.Passes(), 3)
}

func TestOrchestrator_SleepsBetweenPasses(t *testing.T) {
	runner := &fakeRunner{kind: outcome.Succeeded}
	o := New(runner, testAccounts(), Schedule{Mode: ModeInterval, Interval: time.Hour}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Run(ctx)
	}()

	require.Eventually(t, func() bool { return o.State() == Sleeping }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, runner.count())

	cancel()
	<-done
	assert.Equal(t, Terminated, o.State())
}

func TestOrchestrator_LongPassDefersNextTrigger(t *testing.T) {
	// Given passes that take longer than the interval
	runner := &fakeRunner{kind: outcome.Succeeded, hold: 40 * time.Millisecond}
	o := New(runner, testAccounts(), Schedule{Mode: ModeInterval, Interval: 10 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Run(ctx)
	}()

	require.Eventually(t, func() bool { return runner.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// Then passes never overlap: each starts after the previous one ended plus the interval
	runner.mu.Lock()
	defer runner.mu.Unlock()
	for i := 1; i < len(runner.started); i++ {
		assert.GreaterOrEqual(t, runner.started[i].Sub(runner.started[i-1]), 50*time.Millisecond)
	}
}

func TestOrchestrator_DailyWaitsForTrigger(t *testing.T) {
	// Given a daily schedule without run_on_start
	runner := &fakeRunner{kind: outcome.Succeeded}
	clock := time.Now().Add(2 * time.Hour).Format("15:04")
	o := New(runner, testAccounts(), Schedule{Mode: ModeDaily, DailyAt: clock}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Run(ctx)
	}()

	// Then it sleeps without running a pass
	require.Eventually(t, func() bool { return o.State() == Sleeping }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, runner.count())

	cancel()
	<-done
}

func TestOrchestrator_DailyRunOnStart(t *testing.T) {
	runner := &fakeRunner{kind: outcome.AuthExpired}
	o := New(runner, testAccounts(), Schedule{Mode: ModeDaily, DailyAt: "03:00", RunOnStart: true}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var summary *outcome.RunSummary
	go func() {
		defer close(done)
		summary, _ = o.Run(ctx)
	}()

	require.Eventually(t, func() bool { return o.State() == Sleeping }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, runner.count())
	require.NotNil(t, summary)
	assert.False(t, summary.Healthy())
}
