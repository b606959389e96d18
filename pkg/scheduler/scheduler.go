package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaneisley/wishful/pkg/account"
	"github.com/shaneisley/wishful/pkg/executor"
	"github.com/shaneisley/wishful/pkg/logging"
	"github.com/shaneisley/wishful/pkg/metrics"
	"github.com/shaneisley/wishful/pkg/outcome"
)

// MaxConcurrency bounds the worker pool
const MaxConcurrency = 64

// CycleRunner runs one account's wish-cycle
type CycleRunner interface {
	RunCycle(ctx context.Context, a account.Account) outcome.AccountResult
}

// CycleFunc adapts a function to CycleRunner
type CycleFunc func(ctx context.Context, a account.Account) outcome.AccountResult

// RunCycle calls f
func (f CycleFunc) RunCycle(ctx context.Context, a account.Account) outcome.AccountResult {
	return f(ctx, a)
}

// Options configures a Scheduler
type Options struct {
	// Concurrency is the number of accounts processed at once
	Concurrency int
	// BetweenAccounts is the pause a worker takes before its next account
	BetweenAccounts time.Duration
}

// Scheduler fans a run out over the enabled accounts
type Scheduler struct {
	runner  CycleRunner
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New creates a scheduler
func New(runner CycleRunner, opts Options, logger *logging.Logger, m *metrics.Metrics) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Concurrency > MaxConcurrency {
		opts.Concurrency = MaxConcurrency
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		runner:  runner,
		opts:    opts,
		logger:  logger.WithComponent("scheduler"),
		metrics: m,
	}
}

// job is one account at its configured position
type job struct {
	index   int
	account account.Account
}

// workerPool runs jobs on a fixed set of workers and records results by position
type workerPool struct {
	workers  int
	jobQueue chan job
	workerWg sync.WaitGroup
	results  []outcome.AccountResult
	finished []bool
}

func newWorkerPool(workers int, jobs []job) *workerPool {
	if workers > len(jobs) {
		workers = len(jobs)
	}
	queue := make(chan job, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	return &workerPool{
		workers:  workers,
		jobQueue: queue,
		results:  make([]outcome.AccountResult, len(jobs)),
		finished: make([]bool, len(jobs)),
	}
}

// RunOnce processes every enabled account once and returns the summary in configured order.
// Accounts not finished when ctx is cancelled are recorded as Incomplete.
func (s *Scheduler) RunOnce(ctx context.Context, accounts []account.Account) *outcome.RunSummary {
	runID := uuid.New().String()
	startedAt := time.Now()
	logger := s.logger.WithRun(runID)

	var jobs []job
	for _, a := range accounts {
		if !a.Enabled {
			logger.Debug("skipping disabled account", "account", a.Name)
			continue
		}
		jobs = append(jobs, job{index: len(jobs), account: a})
	}

	logger.Info("run started", "accounts", len(jobs), "concurrency", s.opts.Concurrency)

	pool := newWorkerPool(s.opts.Concurrency, jobs)
	for i := 0; i < pool.workers; i++ {
		pool.workerWg.Add(1)
		go s.worker(ctx, pool, i, logger)
	}
	pool.workerWg.Wait()

	for i, j := range jobs {
		if pool.finished[i] {
			continue
		}
		result := outcome.AccountResult{
			Account: j.account.Name,
			Outcome: outcome.New(outcome.Incomplete, "run cancelled before the account finished"),
		}
		pool.results[i] = result
		s.record(logger, result)
	}

	return outcome.NewRunSummary(runID, startedAt, pool.results)
}

// worker is the main worker loop
func (s *Scheduler) worker(ctx context.Context, pool *workerPool, id int, logger *logging.Logger) {
	defer pool.workerWg.Done()

	logger.Debug("worker started", "worker_id", id)
	defer logger.Debug("worker stopped", "worker_id", id)

	first := true
	for j := range pool.jobQueue {
		if !first {
			if err := executor.Wait(ctx, s.opts.BetweenAccounts); err != nil {
				return
			}
		}
		first = false

		if ctx.Err() != nil {
			return
		}

		logger.Info("processing account", "account", j.account.Name, "position", j.index+1, "worker_id", id)
		result := s.runCycle(ctx, j.account)
		pool.results[j.index] = result
		pool.finished[j.index] = true
		s.record(logger, result)
	}
}

// runCycle isolates one account; a panic becomes a permanent failure of that account only
func (s *Scheduler) runCycle(ctx context.Context, a account.Account) (result outcome.AccountResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = outcome.AccountResult{
				Account:  a.Name,
				Outcome:  outcome.New(outcome.PermanentFailure, fmt.Sprintf("panic: %v", r)),
				Duration: time.Since(start),
			}
		}
	}()

	result = s.runner.RunCycle(ctx, a)
	if result.Account == "" {
		result.Account = a.Name
	}
	return result
}

// record logs and counts the final outcome of one account
func (s *Scheduler) record(logger *logging.Logger, result outcome.AccountResult) {
	s.metrics.ObserveOutcome(result.Outcome.Kind)

	args := []any{
		"account", result.Account,
		"outcome", result.Outcome.Kind.String(),
		"attempts", result.Attempts,
		"duration", result.Duration.Round(time.Millisecond),
	}
	if result.Outcome.Detail != "" {
		args = append(args, "detail", result.Outcome.Detail)
	}
	if result.Assist != (outcome.AssistStats{}) {
		args = append(args, "aided", result.Assist.Aided, "adopted", result.Assist.Adopted, "assist_failed", result.Assist.Failed)
	}

	switch kind := result.Outcome.Kind; {
	case kind.Unhealthy():
		logger.Error("account finished", args...)
	case kind.SuccessLike():
		logger.Info("account finished", args...)
	default:
		logger.Warn("account finished", args...)
	}
}
