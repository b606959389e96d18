package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaneisley/wishful/pkg/backoff"
	"github.com/shaneisley/wishful/pkg/config"
	"github.com/shaneisley/wishful/pkg/ui"
)

func newInitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a default configuration file with placeholder cookies.

The file is written to --config, or config.yaml in the working directory.
An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configFile
			if path == "" {
				path = config.DefaultFileName
			}

			if err := config.WriteDefault(path); err != nil {
				if errors.Is(err, os.ErrExist) {
					return withExitCode(ExitConfig, fmt.Errorf("%s already exists", path))
				}
				return withExitCode(ExitConfig, err)
			}

			fmt.Fprintf(opts.stdout, "Created %s\n", path)
			fmt.Fprintf(opts.stdout, "Fill in the account cookies, then run: wishful validate\n")
			return nil
		},
	}
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without contacting the portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, opts, nil)
			if err != nil {
				return withExitCode(ExitConfig, err)
			}

			reporter := ui.NewReporter(opts.stdout)
			reporter.AccountList(cfg.AccountList(), cfg.CoordinatorAccount())
			strategy, err := cfg.BackoffStrategy()
			if err != nil {
				return withExitCode(ExitConfig, err)
			}
			waits := backoff.Schedule(strategy, cfg.Retry.MaxAttempts)
			fmt.Fprintf(opts.stdout, "Retry: %s, %s, waits %s\n",
				cfg.Retry.Strategy, plural(cfg.Retry.MaxAttempts, "attempt"), joinDurations(waits))
			fmt.Fprintf(opts.stdout, "Schedule: %s\n", cfg.Schedule.Mode)
			fmt.Fprintf(opts.stdout, "Configuration is valid.\n")
			return nil
		},
	}
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(opts.stdout, "wishful %s\n", version)
		},
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func joinDurations(delays []time.Duration) string {
	if len(delays) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(delays))
	for _, d := range delays {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, ", ")
}
