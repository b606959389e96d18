package outcome

import (
	"fmt"
	"time"
)

// Kind classifies the result of one account's wish-cycle
type Kind int

const (
	Succeeded Kind = iota
	AlreadyCompleted
	AuthExpired
	RateLimited
	TransientFailure
	PermanentFailure
	// Incomplete marks an account that had not finished when the run was cancelled
	Incomplete
)

// Kinds lists every kind in tally order
var Kinds = []Kind{Succeeded, AlreadyCompleted, AuthExpired, RateLimited, TransientFailure, PermanentFailure, Incomplete}

func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case AlreadyCompleted:
		return "already_completed"
	case AuthExpired:
		return "auth_expired"
	case RateLimited:
		return "rate_limited"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Terminal reports whether the kind ends a wish-cycle without further retries
func (k Kind) Terminal() bool {
	return k != TransientFailure
}

// SuccessLike reports whether the account's wish for the day is done
func (k Kind) SuccessLike() bool {
	return k == Succeeded || k == AlreadyCompleted
}

// Unhealthy reports whether the kind makes a run unhealthy
func (k Kind) Unhealthy() bool {
	return k == AuthExpired || k == PermanentFailure
}

// Outcome is the tagged result of interpreting one provider response
type Outcome struct {
	Kind   Kind
	Detail string
	// WishID is the provider's identifier of a newly created wish
	WishID string
}

// New creates an outcome with a detail message
func New(kind Kind, detail string) Outcome {
	return Outcome{Kind: kind, Detail: detail}
}

// Newf creates an outcome with a formatted detail message
func Newf(kind Kind, format string, args ...any) Outcome {
	return Outcome{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (o Outcome) String() string {
	if o.Detail == "" {
		return o.Kind.String()
	}
	return o.Kind.String() + ": " + o.Detail
}

// AssistStats counts the steps of the assist flow of one cycle
type AssistStats struct {
	Pending int
	Aided   int
	Adopted int
	Failed  int
}

// AccountResult is the recorded result of one account within a run
type AccountResult struct {
	Account  string
	Outcome  Outcome
	Attempts int
	Duration time.Duration
	Assist   AssistStats
}

// RunSummary aggregates the account results of one scheduler pass
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	Results   []AccountResult
	Counts    map[Kind]int
}

// NewRunSummary creates a summary from results in configured account order
func NewRunSummary(runID string, startedAt time.Time, results []AccountResult) *RunSummary {
	counts := make(map[Kind]int, len(Kinds))
	for _, r := range results {
		counts[r.Outcome.Kind]++
	}
	return &RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
		Results:   results,
		Counts:    counts,
	}
}

// Total returns the number of recorded accounts
func (s *RunSummary) Total() int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// Count returns the number of accounts with the given kind
func (s *RunSummary) Count(kind Kind) int {
	return s.Counts[kind]
}

// Healthy is true when no account produced AuthExpired or PermanentFailure
func (s *RunSummary) Healthy() bool {
	for _, r := range s.Results {
		if r.Outcome.Kind.Unhealthy() {
			return false
		}
	}
	return true
}

// Complete is true when every account finished before cancellation
func (s *RunSummary) Complete() bool {
	return s.Counts[Incomplete] == 0
}

// Duration returns the wall time of the pass
func (s *RunSummary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Kinds returns the outcome kinds in account order
func (s *RunSummary) Kinds() []Kind {
	kinds := make([]Kind, len(s.Results))
	for i, r := range s.Results {
		kinds[i] = r.Outcome.Kind
	}
	return kinds
}

// LogAttrs returns the tallies as key/value pairs for structured logging
func (s *RunSummary) LogAttrs() []any {
	attrs := []any{"run_id", s.RunID, "accounts", s.Total(), "healthy", s.Healthy(), "duration", s.Duration().String()}
	for _, k := range Kinds {
		if n := s.Counts[k]; n > 0 {
			attrs = append(attrs, k.String(), n)
		}
	}
	return attrs
}
