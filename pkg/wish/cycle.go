package wish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shaneisley/wishful/pkg/account"
	"github.com/shaneisley/wishful/pkg/executor"
	"github.com/shaneisley/wishful/pkg/interpret"
	"github.com/shaneisley/wishful/pkg/logging"
	"github.com/shaneisley/wishful/pkg/metrics"
	"github.com/shaneisley/wishful/pkg/outcome"
	"github.com/shaneisley/wishful/pkg/provider"
)

// Assist step names used in logs and metrics
const (
	StepList  = "list"
	StepInfo  = "info"
	StepAid   = "aid"
	StepAdopt = "adopt"
)

// Sender issues one request to the provider
type Sender interface {
	Send(ctx context.Context, req provider.Request, timeout time.Duration) (*provider.RawResponse, error)
}

// Delays paces the assist flow
type Delays struct {
	// ReviewWait runs after a fresh wish, before its pending list is read
	ReviewWait time.Duration
	// AidSettle runs between aiding a wish and adopting the aid
	AidSettle time.Duration
	// BetweenAids runs between two pending wishes
	BetweenAids time.Duration
}

// AssistOptions configures how the coordinator aids pending wishes
type AssistOptions struct {
	Enabled  bool
	Content  string
	PageSize int
}

// Options configures a Cycle
type Options struct {
	Wish        provider.WishOptions
	Assist      AssistOptions
	Coordinator account.Account
	Timeout     time.Duration
	Delays      Delays
}

// Cycle runs one account's wish-cycle: the retried wish and the assist flow
type Cycle struct {
	sender      Sender
	interpreter *interpret.Interpreter
	executor    *executor.Executor
	opts        Options
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewCycle creates a wish-cycle runner
func NewCycle(sender Sender, interpreter *interpret.Interpreter, exec *executor.Executor, opts Options, logger *logging.Logger, m *metrics.Metrics) *Cycle {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cycle{
		sender:      sender,
		interpreter: interpreter,
		executor:    exec,
		opts:        opts,
		logger:      logger.WithComponent("wish"),
		metrics:     m,
	}
}

// RunCycle wishes for one account and then aids its pending wishes, unless the account's
// session is gone or the run was interrupted
func (c *Cycle) RunCycle(ctx context.Context, a account.Account) outcome.AccountResult {
	start := time.Now()
	logger := c.logger.WithAccount(a.Name)

	logger.Debug("making wish", "cookie", a.MaskedCookie())
	result := c.executor.Execute(ctx, a.Name, c.wishOperation(a))

	accountResult := outcome.AccountResult{
		Account:  a.Name,
		Outcome:  result.Outcome,
		Attempts: result.AttemptCount,
	}

	if result.Outcome.Kind == outcome.Succeeded {
		logger.Info("wish created", "wish_id", result.Outcome.WishID, "attempts", result.AttemptCount)
	}

	if c.assistEnabled() && assistAfter(a, result.Outcome.Kind) {
		accountResult.Assist = c.assist(ctx, a, result.Outcome.Kind == outcome.Succeeded)
	}

	accountResult.Duration = time.Since(start)
	return accountResult
}

func (c *Cycle) wishOperation(a account.Account) executor.Operation {
	return func(ctx context.Context) (outcome.Outcome, error) {
		resp, err := c.sender.Send(ctx, provider.NewWishRequest(a, c.opts.Wish), c.opts.Timeout)
		if errors.Is(err, provider.ErrInvalidRequest) {
			return outcome.New(outcome.PermanentFailure, err.Error()), nil
		}
		if err != nil {
			return outcome.Outcome{}, err
		}
		return c.interpreter.Interpret(resp.StatusCode, resp.Body), nil
	}
}

func (c *Cycle) assistEnabled() bool {
	return c.opts.Assist.Enabled && c.opts.Coordinator.Cookie != ""
}

// assistAfter reports whether older pending wishes are still worth aiding after the wish outcome
func assistAfter(a account.Account, kind outcome.Kind) bool {
	if a.Cookie == "" {
		return false
	}
	return kind != outcome.AuthExpired && kind != outcome.Incomplete
}

// assist aids and adopts every pending wish of the account; failures only count in the stats
func (c *Cycle) assist(ctx context.Context, a account.Account, fresh bool) outcome.AssistStats {
	var stats outcome.AssistStats
	logger := c.logger.WithAccount(a.Name)

	if fresh {
		logger.Debug("waiting before reading pending wishes", "delay", c.opts.Delays.ReviewWait)
		if err := executor.Wait(ctx, c.opts.Delays.ReviewWait); err != nil {
			return stats
		}
	}

	body, err := c.call(ctx, StepList, provider.NewMyDesireRequest(a, c.opts.Assist.PageSize))
	var desires []interpret.Desire
	if err == nil {
		desires, err = interpret.DecodeDesireList(body)
	}
	c.metrics.ObserveAssist(StepList, err == nil)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("failed to list pending wishes", "error", err)
			stats.Failed++
		}
		return stats
	}

	pending := interpret.Pending(desires)
	stats.Pending = len(pending)
	if len(pending) == 0 {
		logger.Debug("no pending wishes")
		return stats
	}
	logger.Info("found pending wishes", "count", len(pending))

	for i, d := range pending {
		if i > 0 {
			if err := executor.Wait(ctx, c.opts.Delays.BetweenAids); err != nil {
				return stats
			}
		}
		c.assistOne(ctx, a, d, &stats)
		if ctx.Err() != nil {
			return stats
		}
	}

	logger.Info("assist finished",
		"pending", stats.Pending, "aided", stats.Aided, "adopted", stats.Adopted, "failed", stats.Failed)
	return stats
}

func (c *Cycle) assistOne(ctx context.Context, a account.Account, d interpret.Desire, stats *outcome.AssistStats) {
	logger := c.logger.WithAccount(a.Name)
	coordinator := c.opts.Coordinator

	fail := func(step string, err error) {
		c.metrics.ObserveAssist(step, false)
		if ctx.Err() != nil {
			return
		}
		stats.Failed++
		logger.Warn("assist step failed", "step", step, "wish", d.Code, "error", err)
	}

	body, err := c.call(ctx, StepInfo, provider.NewDesireInfoRequest(coordinator, d.Code))
	var desireCode string
	if err == nil {
		desireCode, err = interpret.DecodeDesireCode(body)
	}
	if err != nil {
		fail(StepInfo, err)
		return
	}
	c.metrics.ObserveAssist(StepInfo, true)

	body, err = c.call(ctx, StepAid, provider.NewAidRequest(coordinator, desireCode, c.opts.Assist.Content))
	var aidID string
	if err == nil {
		aidID, err = interpret.DecodeAidID(body)
	}
	if err != nil {
		fail(StepAid, err)
		return
	}
	c.metrics.ObserveAssist(StepAid, true)
	stats.Aided++
	logger.Info("wish aided", "wish", d.Code, "aid_id", aidID)

	if err := executor.Wait(ctx, c.opts.Delays.AidSettle); err != nil {
		return
	}

	body, err = c.call(ctx, StepAdopt, provider.NewAdoptRequest(a, d.Code, aidID))
	if err == nil {
		_, err = interpret.DecodeEnvelope(body)
	}
	if err != nil {
		fail(StepAdopt, err)
		return
	}
	c.metrics.ObserveAssist(StepAdopt, true)
	stats.Adopted++
	logger.Info("aid adopted", "wish", d.Code, "aid_id", aidID)
}

// call sends one assist request without retries
func (c *Cycle) call(ctx context.Context, step string, req provider.Request) ([]byte, error) {
	resp, err := c.sender.Send(ctx, req, c.opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", step, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s request failed: http %d", step, resp.StatusCode)
	}
	return resp.Body, nil
}
