package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaneisley/wishful/pkg/account"
	"github.com/shaneisley/wishful/pkg/outcome"
)

// Reporter handles status reporting and terminal output
type Reporter struct {
	writer io.Writer
	quiet  bool
}

// NewReporter creates a new status reporter
func NewReporter(writer io.Writer) *Reporter {
	return &Reporter{
		writer: writer,
		quiet:  false,
	}
}

// SetQuiet enables or disables quiet mode (only the headline is printed)
func (r *Reporter) SetQuiet(quiet bool) {
	r.quiet = quiet
}

// FinalSummary reports the outcome of a run and its per-account results
func (r *Reporter) FinalSummary(summary *outcome.RunSummary) {
	if summary == nil {
		return
	}

	total := summary.Total()
	switch {
	case !summary.Healthy():
		failed := summary.Count(outcome.AuthExpired) + summary.Count(outcome.PermanentFailure)
		fmt.Fprintf(r.writer, "❌ [wishful] Run finished: %d of %s need attention.\n", failed, plural(total, "account"))
	case !summary.Complete():
		fmt.Fprintf(r.writer, "⚠️  [wishful] Run interrupted: %d of %s not finished.\n", summary.Count(outcome.Incomplete), plural(total, "account"))
	default:
		fmt.Fprintf(r.writer, "✅ [wishful] Run finished: %s done.\n", plural(total, "account"))
	}

	if r.quiet {
		return
	}

	fmt.Fprintf(r.writer, "\nAccounts:\n")
	tw := tabwriter.NewWriter(r.writer, 0, 0, 2, ' ', 0)
	for _, result := range summary.Results {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
			result.Account,
			result.Outcome.Kind,
			fmt.Sprintf("%s, %s", plural(result.Attempts, "attempt"), r.formatDuration(result.Duration)),
			describe(result))
	}
	tw.Flush()

	fmt.Fprintf(r.writer, "\nRun Statistics:\n")
	fmt.Fprintf(r.writer, "  Run ID: %s\n", summary.RunID)
	fmt.Fprintf(r.writer, "  Accounts: %d\n", total)
	for _, kind := range outcome.Kinds {
		if n := summary.Count(kind); n > 0 {
			fmt.Fprintf(r.writer, "  %s: %d\n", kind, n)
		}
	}
	fmt.Fprintf(r.writer, "  Total Duration: %s\n", r.formatDuration(summary.Duration()))
}

// AccountList prints the configured accounts with masked cookies
func (r *Reporter) AccountList(accounts []account.Account, coordinator account.Account) {
	fmt.Fprintf(r.writer, "Accounts:\n")
	tw := tabwriter.NewWriter(r.writer, 0, 0, 2, ' ', 0)
	for i, a := range accounts {
		state := "enabled"
		if !a.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(tw, "  %d.\t%s\t%s\t%s\n", i+1, a.Name, state, a.MaskedCookie())
	}
	tw.Flush()

	if coordinator.Cookie == "" {
		fmt.Fprintf(r.writer, "Coordinator: none (assist disabled)\n")
		return
	}
	fmt.Fprintf(r.writer, "Coordinator: %s %s\n", coordinator.Name, coordinator.MaskedCookie())
}

func describe(result outcome.AccountResult) string {
	var parts []string
	if result.Outcome.WishID != "" {
		parts = append(parts, "wish "+result.Outcome.WishID)
	}
	if result.Outcome.Detail != "" && !result.Outcome.Kind.SuccessLike() {
		parts = append(parts, result.Outcome.Detail)
	}
	if a := result.Assist; a != (outcome.AssistStats{}) {
		parts = append(parts, fmt.Sprintf("aided %d/%d, adopted %d", a.Aided, a.Pending, a.Adopted))
		if a.Failed > 0 {
			parts = append(parts, fmt.Sprintf("%d assist steps failed", a.Failed))
		}
	}
	return strings.Join(parts, "; ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// formatDuration formats a duration in a human-readable way
func (r *Reporter) formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	// Handle sub-second durations
	if d < time.Second {
		return fmt.Sprintf("%.1fs", float64(d)/float64(time.Second))
	}

	if d < time.Minute {
		seconds := float64(d) / float64(time.Second)
		if seconds == float64(int(seconds)) {
			return fmt.Sprintf("%.0fs", seconds)
		}
		formatted := strings.TrimRight(fmt.Sprintf("%.2f", seconds), "0")
		return strings.TrimRight(formatted, ".") + "s"
	}

	return d.Round(time.Second).String()
}
