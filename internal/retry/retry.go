// Package retry decides what happens to a task whose session failed:
// one more attempt with the error folded into the brief, or a pause
// that waits for the operator.
package retry

import (
	"fmt"

	"github.com/randalmurphal/tc/internal/core"
)

// MaxErrorContext bounds how much of the agent's error output is carried
// into retry briefs and the task row.
const MaxErrorContext = 2000

// Outcome is the policy verdict for one failed task.
type Outcome string

const (
	// OutcomeRetry re-queues the task with incremented retry_count.
	OutcomeRetry Outcome = "retry"
	// OutcomePause parks the task until the operator intervenes.
	OutcomePause Outcome = "pause"
)

// Policy caps automatic retries per task.
type Policy struct {
	maxRetries int
}

// NewPolicy clamps maxRetries into [0, core.MaxRetryCount]. A zero policy
// pauses on first failure.
func NewPolicy(maxRetries int) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxRetries > core.MaxRetryCount {
		maxRetries = core.MaxRetryCount
	}
	return Policy{maxRetries: maxRetries}
}

// MaxRetries returns the clamped cap.
func (p Policy) MaxRetries() int { return p.maxRetries }

// Decide returns OutcomeRetry while the task has attempts left and
// OutcomePause once they are spent.
func (p Policy) Decide(task core.Task) Outcome {
	if task.RetryCount < p.maxRetries {
		return OutcomeRetry
	}
	return OutcomePause
}

// Clamp truncates agent error output to MaxErrorContext bytes so a
// runaway stack trace cannot bloat the store or the brief.
func Clamp(errOutput string) string {
	if len(errOutput) > MaxErrorContext {
		return errOutput[:MaxErrorContext]
	}
	return errOutput
}

// FailureContext formats the previous attempt's error for inclusion in a
// retry brief. attempt is 1-based.
func FailureContext(attempt int, errOutput string) string {
	return fmt.Sprintf(
		"PREVIOUS ATTEMPT FAILED (attempt %d):\nError: %s\n\nPlease address this error and try a different approach if needed.",
		attempt, Clamp(errOutput),
	)
}
