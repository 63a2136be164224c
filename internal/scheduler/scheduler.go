// Package scheduler decides what the engine should do next. Schedule is a
// pure function over one snapshot and the engine's pane view; it performs
// no I/O, so every case is testable with an in-memory snapshot.
package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/tc/internal/core"
)

// DecisionKind enumerates scheduler outcomes.
type DecisionKind string

const (
	// DecisionDispatchCoding runs a coding task on pane 0.
	DecisionDispatchCoding DecisionKind = "dispatch_coding"
	// DecisionDispatchReview runs a review task on pane 1.
	DecisionDispatchReview DecisionKind = "dispatch_review"
	// DecisionIdle means nothing to start, but work is still in flight or
	// the operator has paused dispatch.
	DecisionIdle DecisionKind = "idle"
	// DecisionComplete means every task is completed or skipped.
	DecisionComplete DecisionKind = "complete"
	// DecisionDeadlock means tasks remain but none can ever run.
	DecisionDeadlock DecisionKind = "deadlock"
)

// Decision is the scheduler verdict for one tick.
type Decision struct {
	Kind    DecisionKind
	Task    *core.Task     // set for dispatch decisions
	Reason  string         // human-readable deadlock diagnostic
	Blocked []BlockedTask  // per-task unmet dependencies on deadlock
}

// BlockedTask names a task that cannot run and why.
type BlockedTask struct {
	TaskID    string   `json:"task_id"`
	UnmetDeps []string `json:"unmet_deps,omitempty"`
}

// EngineState is the engine's view passed into Schedule.
type EngineState struct {
	Pane0Busy bool
	Pane1Busy bool
	// Paused suppresses coding dispatch; reviews still run.
	Paused bool
	// PendingReviewFor optionally names a review task the control plane
	// enqueued; it wins pane 1 if runnable.
	PendingReviewFor string
}

// Schedule picks exactly one action for this tick. Selection order: a
// queued review on a free pane 1, then the lowest-sequence runnable
// coding task of the earliest unfinished phase on a free pane 0.
func Schedule(snap *core.Snapshot, es EngineState) Decision {
	if len(snap.Tasks) == 0 {
		return Decision{Kind: DecisionDeadlock, Reason: "plan has no tasks"}
	}

	if snap.AllFinished() {
		return Decision{Kind: DecisionComplete}
	}

	current := currentPhase(snap)

	var reviews, coding []core.Task
	if current != nil {
		for _, t := range runnableTasks(snap, current.ID) {
			if t.Kind == core.KindReview {
				reviews = append(reviews, t)
			} else {
				coding = append(coding, t)
			}
		}
	}

	if len(reviews) > 0 && !es.Pane1Busy {
		pick := reviews[0]
		if es.PendingReviewFor != "" {
			for _, r := range reviews {
				if r.ID == es.PendingReviewFor {
					pick = r
					break
				}
			}
		}
		return Decision{Kind: DecisionDispatchReview, Task: &pick}
	}

	if len(coding) > 0 && !es.Pane0Busy {
		if es.Paused {
			return Decision{Kind: DecisionIdle}
		}
		pick := coding[0]
		return Decision{Kind: DecisionDispatchCoding, Task: &pick}
	}

	// Something dispatchable exists but its pane is occupied.
	if len(reviews) > 0 || len(coding) > 0 {
		return Decision{Kind: DecisionIdle}
	}

	if es.Pane0Busy || es.Pane1Busy || len(snap.RunningTasks()) > 0 {
		return Decision{Kind: DecisionIdle}
	}

	// Paused tasks wait for the operator; that is idleness, not deadlock.
	if es.Paused || anyPaused(snap) {
		return Decision{Kind: DecisionIdle}
	}

	blocked := blockedTasks(snap)
	return Decision{
		Kind:    DecisionDeadlock,
		Reason:  deadlockReason(blocked),
		Blocked: blocked,
	}
}

// currentPhase returns the earliest phase still holding unfinished work,
// or nil when every phase is done.
func currentPhase(snap *core.Snapshot) *core.Phase {
	phases := append([]core.Phase{}, snap.Phases...)
	sort.Slice(phases, func(i, j int) bool { return phases[i].Sequence < phases[j].Sequence })

	for i := range phases {
		if phaseFinished(snap, phases[i]) {
			continue
		}
		return &phases[i]
	}
	return nil
}

// phaseFinished reports whether a phase gates nothing: it was skipped, or
// every task in it is completed or skipped. Empty phases never block.
func phaseFinished(snap *core.Snapshot, p core.Phase) bool {
	if p.Status == core.PhaseSkipped {
		return true
	}
	tasks := snap.TasksForPhase(p.ID)
	if len(tasks) == 0 {
		return true
	}
	for _, t := range tasks {
		if !t.Status.IsFinished() {
			return false
		}
	}
	return true
}

// runnableTasks returns the phase's pending tasks whose dependencies are
// all completed or skipped, in ascending sequence order.
func runnableTasks(snap *core.Snapshot, phaseID string) []core.Task {
	tasks := snap.TasksForPhase(phaseID)
	var out []core.Task
	for _, t := range tasks {
		if t.Status != core.TaskPending {
			continue
		}
		if len(snap.UnmetDependencies(t.ID)) > 0 {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func anyPaused(snap *core.Snapshot) bool {
	for _, t := range snap.Tasks {
		if t.Status == core.TaskPaused {
			return true
		}
	}
	return false
}

// blockedTasks collects every unfinished task with its unmet dependencies
// for the deadlock diagnostic.
func blockedTasks(snap *core.Snapshot) []BlockedTask {
	var blocked []BlockedTask
	for _, t := range snap.Tasks {
		if t.Status.IsFinished() {
			continue
		}
		blocked = append(blocked, BlockedTask{
			TaskID:    t.ID,
			UnmetDeps: snap.UnmetDependencies(t.ID),
		})
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].TaskID < blocked[j].TaskID })
	return blocked
}

func deadlockReason(blocked []BlockedTask) string {
	if len(blocked) == 0 {
		return "no runnable task and no active session"
	}
	parts := make([]string, 0, len(blocked))
	for _, b := range blocked {
		if len(b.UnmetDeps) == 0 {
			parts = append(parts, b.TaskID)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s waits on [%s]", b.TaskID, strings.Join(b.UnmetDeps, ", ")))
	}
	return "no runnable task and no active session: " + strings.Join(parts, "; ")
}
