package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shaneisley/wishful/pkg/account"
	"github.com/shaneisley/wishful/pkg/outcome"
)

func summaryOf(results ...outcome.AccountResult) *outcome.RunSummary {
	return outcome.NewRunSummary("run-1", time.Now().Add(-2*time.Second), results)
}

func TestReporter_FinalSummary_Healthy(t *testing.T) {
	// Given a healthy run
	var buf bytes.Buffer
	reporter := NewReporter(&buf)
	summary := summaryOf(
		outcome.AccountResult{Account: "main", Outcome: outcome.Outcome{Kind: outcome.Succeeded, WishID: "42"}, Attempts: 1,
			Assist: outcome.AssistStats{Pending: 2, Aided: 2, Adopted: 2}},
		outcome.AccountResult{Account: "spare", Outcome: outcome.New(outcome.AlreadyCompleted, "already wished"), Attempts: 1},
	)

	// When reporting the summary
	reporter.FinalSummary(summary)

	// Then it should output the headline and every account
	output := buf.String()
	assert.Contains(t, output, "✅ [wishful] Run finished: 2 accounts done.")
	assert.Contains(t, output, "main")
	assert.Contains(t, output, "wish 42; aided 2/2, adopted 2")
	assert.Contains(t, output, "already_completed")
	assert.NotContains(t, output, "already wished", "details of success-like outcomes are noise")
	assert.Contains(t, output, "Run ID: run-1")
	assert.Contains(t, output, "succeeded: 1")
}

func TestReporter_FinalSummary_Unhealthy(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(&buf)
	summary := summaryOf(
		outcome.AccountResult{Account: "stale", Outcome: outcome.New(outcome.AuthExpired, "请先登录 (state=0, code=990001)"), Attempts: 1},
		outcome.AccountResult{Account: "main", Outcome: outcome.New(outcome.Succeeded, ""), Attempts: 3},
	)

	reporter.FinalSummary(summary)

	output := buf.String()
	assert.Contains(t, output, "❌ [wishful] Run finished: 1 of 2 accounts need attention.")
	assert.Contains(t, output, "code=990001")
	assert.Contains(t, output, "3 attempts")
}

func TestReporter_FinalSummary_Interrupted(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(&buf)
	summary := summaryOf(
		outcome.AccountResult{Account: "a", Outcome: outcome.New(outcome.Succeeded, ""), Attempts: 1},
		outcome.AccountResult{Account: "b", Outcome: outcome.New(outcome.Incomplete, "run cancelled")},
	)

	reporter.FinalSummary(summary)

	assert.Contains(t, buf.String(), "Run interrupted: 1 of 2 accounts not finished.")
}

func TestReporter_QuietPrintsHeadlineOnly(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(&buf)
	reporter.SetQuiet(true)

	reporter.FinalSummary(summaryOf(outcome.AccountResult{Account: "a", Outcome: outcome.New(outcome.Succeeded, ""), Attempts: 1}))

	assert.Contains(t, buf.String(), "1 account done.")
	assert.NotContains(t, buf.String(), "Run Statistics")
}

func TestReporter_AccountListMasksCookies(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(&buf)
	disabled := account.New("spare", "UID=987654; SEID=secretvalue")
	disabled.Enabled = false

	reporter.AccountList([]account.Account{account.New("main", "UID=123456"), disabled}, account.Account{})

	output := buf.String()
	assert.Contains(t, output, "UID=12***")
	assert.Contains(t, output, "disabled")
	assert.NotContains(t, output, "secretvalue")
	assert.Contains(t, output, "Coordinator: none")
}

func TestReporter_FormatDuration(t *testing.T) {
	reporter := NewReporter(nil)

	assert.Equal(t, "0s", reporter.formatDuration(0))
	assert.Equal(t, "0.5s", reporter.formatDuration(500*time.Millisecond))
	assert.Equal(t, "2s", reporter.formatDuration(2*time.Second))
	assert.Equal(t, "4.5s", reporter.formatDuration(4500*time.Millisecond))
	assert.Equal(t, "1m30s", reporter.formatDuration(90*time.Second))
	assert.Equal(t, "1h0m0s", reporter.formatDuration(time.Hour))
}
