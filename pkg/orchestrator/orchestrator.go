package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shaneisley/wishful/pkg/account"
	"github.com/shaneisley/wishful/pkg/executor"
	"github.com/shaneisley/wishful/pkg/logging"
	"github.com/shaneisley/wishful/pkg/metrics"
	"github.com/shaneisley/wishful/pkg/outcome"
)

// ErrNoAccounts is returned when no enabled account is configured
var ErrNoAccounts = errors.New("no enabled accounts configured")

// State is the lifecycle of the orchestrator
type State int

const (
	Idle State = iota
	Running
	Sleeping
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Runner executes one pass over the accounts
type Runner interface {
	RunOnce(ctx context.Context, accounts []account.Account) *outcome.RunSummary
}

// Orchestrator triggers scheduler passes according to a Schedule
type Orchestrator struct {
	runner   Runner
	accounts []account.Account
	schedule Schedule
	logger   *logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu     sync.RWMutex
	state  State
	passes int
}

// New creates an orchestrator over the configured accounts
func New(runner Runner, accounts []account.Account, schedule Schedule, logger *logging.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	if schedule.Mode == "" {
		schedule.Mode = ModeOnce
	}
	return &Orchestrator{
		runner:   runner,
		accounts: accounts,
		schedule: schedule,
		logger:   logger.WithComponent("orchestrator"),
		metrics:  m,
		now:      time.Now,
	}
}

// State returns the current lifecycle state
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Passes returns how many passes have finished
func (o *Orchestrator) Passes() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.passes
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

// Run executes passes until the schedule is exhausted or ctx is cancelled and returns the last summary.
// In repeating mode cancellation is a normal stop and yields a nil error.
func (o *Orchestrator) Run(ctx context.Context) (*outcome.RunSummary, error) {
	defer o.setState(Terminated)

	if len(account.Enabled(o.accounts)) == 0 {
		return nil, ErrNoAccounts
	}
	if err := account.ValidateSet(o.accounts); err != nil {
		return nil, err
	}
	if err := o.schedule.Validate(); err != nil {
		return nil, err
	}

	o.logger.Info("orchestrator started",
		"mode", string(o.schedule.Mode),
		"accounts", len(o.accounts),
		"enabled", len(account.Enabled(o.accounts)))

	if !o.schedule.Repeating() {
		return o.pass(ctx), nil
	}

	var last *outcome.RunSummary
	if o.schedule.Mode == ModeInterval || o.schedule.RunOnStart {
		last = o.pass(ctx)
	}

	for ctx.Err() == nil {
		next, err := NextTrigger(o.schedule, o.now())
		if err != nil {
			return last, err
		}

		o.setState(Sleeping)
		o.logger.Info("next run scheduled", "at", next.Format(time.RFC3339), "in", next.Sub(o.now()).Round(time.Second))
		if err := executor.Wait(ctx, next.Sub(o.now())); err != nil {
			break
		}

		last = o.pass(ctx)
	}

	o.logger.Info("orchestrator stopped", "passes", o.Passes())
	return last, nil
}

// pass runs the scheduler once and logs its summary
func (o *Orchestrator) pass(ctx context.Context) *outcome.RunSummary {
	o.setState(Running)

	summary := o.runner.RunOnce(ctx, o.accounts)

	o.mu.Lock()
	o.passes++
	o.mu.Unlock()

	o.metrics.ObserveRun(summary)

	switch {
	case !summary.Healthy():
		o.logger.Error("run finished with failures", summary.LogAttrs()...)
	case !summary.Complete():
		o.logger.Warn("run interrupted", summary.LogAttrs()...)
	default:
		o.logger.Info("run finished", summary.LogAttrs()...)
	}
	return summary
}
