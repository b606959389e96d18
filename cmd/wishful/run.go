package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaneisley/wishful/pkg/config"
	"github.com/shaneisley/wishful/pkg/executor"
	"github.com/shaneisley/wishful/pkg/interpret"
	"github.com/shaneisley/wishful/pkg/logging"
	"github.com/shaneisley/wishful/pkg/metrics"
	"github.com/shaneisley/wishful/pkg/orchestrator"
	"github.com/shaneisley/wishful/pkg/outcome"
	"github.com/shaneisley/wishful/pkg/provider"
	"github.com/shaneisley/wishful/pkg/scheduler"
	"github.com/shaneisley/wishful/pkg/ui"
	"github.com/shaneisley/wishful/pkg/wish"
)

// runFlags maps CLI flag names onto configuration keys
var runFlags = map[string]string{
	"concurrency":    "concurrency",
	"max-attempts":   "retry.max_attempts",
	"schedule":       "schedule.mode",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"log-dir":        "log.dir",
	"metrics-listen": "metrics.listen",
}

func newRunCmd(opts *options) *cobra.Command {
	var flagConfig config.Config
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the wish-cycle for every enabled account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, opts, &flagConfig)
			if err != nil {
				return withExitCode(ExitConfig, err)
			}
			return runWishes(cmd.Context(), cfg, opts, quiet)
		},
	}

	// CLI flags (these will override config file and environment values)
	cmd.Flags().IntVar(&flagConfig.Concurrency, "concurrency", 0, "Accounts processed at once (default: 1)")
	cmd.Flags().IntVar(&flagConfig.Retry.MaxAttempts, "max-attempts", 0, "Wish attempts per account (default: 3, range: 1-100)")
	cmd.Flags().StringVar(&flagConfig.Schedule.Mode, "schedule", "", "Schedule mode: once, interval or daily (default: once)")
	cmd.Flags().StringVar(&flagConfig.Log.Level, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	cmd.Flags().StringVar(&flagConfig.Log.Format, "log-format", "", "Log format: text or json (default: text)")
	cmd.Flags().StringVar(&flagConfig.Log.Dir, "log-dir", "", "Directory of the dated log file, empty disables it (default: logs)")
	cmd.Flags().StringVar(&flagConfig.Metrics.Listen, "metrics-listen", "", "Serve prometheus metrics on this address in repeating mode, e.g. :9090")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the run headline")

	return cmd
}

// loadConfiguration loads configuration with full precedence support
func loadConfiguration(cmd *cobra.Command, opts *options, flagConfig *config.Config) (*config.Config, error) {
	explicitFields := make(map[string]bool)
	for flag, key := range runFlags {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			explicitFields[key] = true
		}
	}
	cfg, err := config.Load(opts.configFile, flagConfig, explicitFields)
	if errors.Is(err, config.ErrNoConfig) {
		return nil, fmt.Errorf("%w (create one with: wishful init)", err)
	}
	return cfg, err
}

// runWishes wires the engine from configuration and runs it until the schedule ends or ctx is cancelled
func runWishes(ctx context.Context, cfg *config.Config, opts *options, quiet bool) error {
	logOpts := cfg.LogOptions()
	logOpts.Console = opts.stderr
	logger, closeLog, err := logging.Open("wishful", logOpts)
	if err != nil {
		return withExitCode(ExitConfig, err)
	}
	defer closeLog()

	strategy, err := cfg.BackoffStrategy()
	if err != nil {
		return withExitCode(ExitConfig, err)
	}

	m := metrics.New()
	client := provider.NewClient(provider.Options{
		BaseURL:     cfg.HTTP.BaseURL,
		UserAgent:   cfg.HTTP.UserAgent,
		MaxInFlight: cfg.Concurrency,
		Metrics:     m,
	})

	exec := executor.NewExecutor(cfg.Retry.MaxAttempts, strategy)
	exec.Logger = logger.WithComponent("executor")
	exec.Metrics = m

	cycle := wish.NewCycle(client, interpret.New(cfg.Codes()), exec, wish.Options{
		Wish: provider.WishOptions{
			Content:     cfg.Wish.Content,
			RewardSpace: cfg.Wish.RewardSpace,
		},
		Assist: wish.AssistOptions{
			Enabled:  cfg.Assist.Enabled,
			Content:  cfg.Assist.Content,
			PageSize: cfg.Assist.PageSize,
		},
		Coordinator: cfg.CoordinatorAccount(),
		Timeout:     cfg.HTTP.Timeout,
		Delays: wish.Delays{
			ReviewWait:  cfg.Delays.ReviewWait,
			AidSettle:   cfg.Delays.AidSettle,
			BetweenAids: cfg.Delays.BetweenAids,
		},
	}, logger, m)

	sched := scheduler.New(cycle, cfg.SchedulerOptions(), logger, m)
	schedule := cfg.ScheduleSpec()
	orch := orchestrator.New(sched, cfg.AccountList(), schedule, logger, m)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	var summary *outcome.RunSummary
	g.Go(func() error {
		defer stop()
		var runErr error
		summary, runErr = orch.Run(gctx)
		return runErr
	})

	if cfg.Metrics.Listen != "" && schedule.Repeating() {
		logger.Info("serving metrics", "listen", cfg.Metrics.Listen)
		g.Go(func() error {
			return m.Serve(gctx, cfg.Metrics.Listen)
		})
	}

	// Startup failures, including orchestrator.ErrNoAccounts and a busy metrics address
	if err := g.Wait(); err != nil {
		logger.LogError("run", err, "mode", string(schedule.Mode))
		return withExitCode(ExitConfig, err)
	}

	if schedule.Repeating() {
		return nil
	}

	reporter := ui.NewReporter(opts.stdout)
	reporter.SetQuiet(quiet)
	reporter.FinalSummary(summary)

	if summary == nil || !summary.Healthy() || !summary.Complete() {
		return withExitCode(ExitUnhealthy, nil)
	}
	return nil
}
