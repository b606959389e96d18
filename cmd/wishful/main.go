package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Exit codes of the wishful binary
const (
	ExitOK        = 0
	ExitUnhealthy = 1
	ExitConfig    = 2
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// options holds the flags shared by the subcommands
type options struct {
	configFile string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "wishful",
		Short: "Make the daily 115 wish for every configured account",
		Long: `wishful replays the daily wish of the 115 activity portal for a list of sub-accounts,
using a pre-captured session cookie per account, and lets one coordinator account aid and
adopt the wishes still waiting for help.

Configuration precedence (highest to lowest):
1. CLI flags
2. Environment variables (WISHFUL_*, e.g. WISHFUL_CONCURRENCY, WISHFUL_LOG_LEVEL)
3. Configuration file (config.yaml in the working directory, or --config)
4. Default values

Exit codes:
  0  every account is done (or a repeating schedule was stopped)
  1  an account needs attention (expired cookie, permanent failure) or the run was interrupted
  2  configuration or startup error

EXAMPLES:
  # Create a configuration file to fill in
  wishful init

  # Check the configuration without contacting the portal
  wishful validate

  # Run once for every enabled account
  wishful run

  # Run every day at 09:00 and expose prometheus metrics
  wishful run --schedule daily --metrics-listen :9090`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newInitCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(opts),
	)
	return rootCmd
}

// execute runs the CLI and returns the process exit code
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
		}
		return exitErr.code
	}

	// Flag and argument errors from cobra
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitConfig
}

// signalContext is cancelled by the first signal; later signals get the default behaviour again
func signalContext(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, signals...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

func main() {
	ctx, stop := signalContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
