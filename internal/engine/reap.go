package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/panes"
	"github.com/randalmurphal/tc/internal/retry"
)

// tailLines bounds the pane capture folded into synthetic error
// context.
const tailLines = 20

// reap closes out sessions whose process has exited. The result file a
// session writes on exit is the primary signal; the pane liveness probe
// covers sessions that died without one.
func (e *Engine) reap(ctx context.Context) error {
	sessions, err := e.store.RunningSessions(ctx)
	if err != nil {
		return tcerrors.ErrStoreUnavailable(err)
	}

	for _, sess := range sessions {
		exited, exitCode, err := e.probeSession(ctx, sess)
		if err != nil {
			return err
		}
		if !exited {
			continue
		}
		if err := e.reapSession(ctx, sess, exitCode); err != nil {
			return err
		}
	}
	return nil
}

// probeSession reports whether the session's process is gone and with
// what exit code.
func (e *Engine) probeSession(ctx context.Context, sess core.Session) (bool, int, error) {
	res, err := panes.ReadResult(e.paths.SessionResultPath(sess.ID))
	if err == nil && res.SessionID == sess.ID {
		return true, res.ExitCode, nil
	}
	if err != nil && !os.IsNotExist(err) {
		e.logger.Warn("unreadable session result", "session", sess.ID, "error", err)
	}

	busy, err := e.runner.Busy(ctx, sess.Pane)
	if err != nil {
		return false, 0, tcerrors.ErrPaneUnavailable(err)
	}
	if busy {
		return false, 0, nil
	}

	// Pane idle with no result file: the pipeline died early. The
	// trailing "exit code: N" echo is the last resort.
	tail, _ := e.runner.CaptureTail(ctx, sess.Pane, tailLines)
	if code, ok := panes.ParseExitCode(tail); ok {
		return true, code, nil
	}
	return true, 1, nil
}

// reapSession closes the session row and settles the task according to
// what the control plane heard while the session ran.
func (e *Engine) reapSession(ctx context.Context, sess core.Session, exitCode int) error {
	task, err := e.store.GetTask(ctx, sess.TaskID)
	if err != nil {
		return tcerrors.ErrStoreUnavailable(err)
	}

	sessStatus := core.SessionCompleted
	if exitCode != 0 {
		sessStatus = core.SessionFailed
	}

	switch task.Status {
	case core.TaskCompleted:
		// Completion already reported and applied.
		if err := e.store.FinishSession(ctx, sess.ID, &exitCode, sessStatus); err != nil {
			return tcerrors.ErrStoreUnavailable(err)
		}
		e.logger.Info("session reaped", "session", sess.ID, "task", task.ID, "exit", exitCode, "outcome", "completed")
		return nil

	case core.TaskFailed:
		// Failure already reported; close the session, then decide on
		// a retry.
		if err := e.store.FinishSession(ctx, sess.ID, &exitCode, sessStatus); err != nil {
			return tcerrors.ErrStoreUnavailable(err)
		}
		e.logger.Info("session reaped", "session", sess.ID, "task", task.ID, "exit", exitCode, "outcome", "failed")
		return e.applyRetryPolicy(ctx, task)

	case core.TaskRunning:
		// Exited without reporting: synthesize the failure.
		errCtx := fmt.Sprintf("session exited with code %d before reporting a result", exitCode)
		if tail, err := e.runner.CaptureTail(ctx, sess.Pane, tailLines); err == nil && tail != "" {
			errCtx += "\n" + tail
		}
		errCtx = retry.Clamp(errCtx)
		err := e.store.RunInTx(ctx, func(tx *db.TxOps) error {
			if err := db.FinishSessionTx(tx, sess.ID, &exitCode, sessStatus); err != nil {
				return err
			}
			return db.UpdateTaskStatusTx(tx, task.ID, db.StatusChange{
				To:           core.TaskFailed,
				ErrorContext: &errCtx,
				Reason:       fmt.Sprintf("session exited (%d) without a report", exitCode),
			})
		})
		if err != nil {
			return tcerrors.ErrStoreUnavailable(err)
		}
		e.logger.Warn("session exited silently", "session", sess.ID, "task", task.ID, "exit", exitCode)
		task.Status = core.TaskFailed
		task.ErrorContext = errCtx
		return e.applyRetryPolicy(ctx, task)

	default:
		// Operator reset or pause raced the exit; just close the row.
		if err := e.store.FinishSession(ctx, sess.ID, &exitCode, sessStatus); err != nil {
			return tcerrors.ErrStoreUnavailable(err)
		}
		return nil
	}
}

// sweepFailed settles failed tasks whose sessions are already closed.
// The reaper handles its own failures inline; this catches the ones it
// never sees, like an operator `tc kill` landing between ticks, so a
// killed task retries instead of reading as deadlock.
func (e *Engine) sweepFailed(ctx context.Context) error {
	tasks, err := e.store.ListProjectTasks(ctx, e.project.ID)
	if err != nil {
		return tcerrors.ErrStoreUnavailable(err)
	}
	for _, t := range tasks {
		if t.Status != core.TaskFailed {
			continue
		}
		_, live, err := e.store.RunningSessionForTask(ctx, t.ID)
		if err != nil {
			return tcerrors.ErrStoreUnavailable(err)
		}
		if live {
			// Failure reported but the session is still draining; the
			// reaper owns it.
			continue
		}
		if err := e.applyRetryPolicy(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// applyRetryPolicy runs the retry decision for a task that just turned
// failed. Retry sends it back to pending with the attempt counted;
// exhaustion parks the task and pauses the project for the operator.
func (e *Engine) applyRetryPolicy(ctx context.Context, task core.Task) error {
	switch e.policy.Decide(task) {
	case retry.OutcomeRetry:
		n := task.RetryCount + 1
		err := e.store.UpdateTaskStatus(ctx, task.ID, db.StatusChange{
			To:         core.TaskPending,
			RetryCount: &n,
			Reason:     fmt.Sprintf("auto retry %d of %d", n, e.policy.MaxRetries()),
		})
		if err != nil {
			return tcerrors.ErrStoreUnavailable(err)
		}
		e.logger.Info("task retrying", "task", task.ID, "attempt", n)
		return nil

	default:
		err := e.store.RunInTx(ctx, func(tx *db.TxOps) error {
			if err := db.UpdateTaskStatusTx(tx, task.ID, db.StatusChange{
				To:     core.TaskPaused,
				Reason: "retries exhausted",
			}); err != nil {
				return err
			}
			proj, err := db.GetProjectTx(tx, e.project.ID)
			if err != nil {
				return err
			}
			if proj.Status == core.ProjectRunning {
				return db.UpdateProjectStatusTx(tx, e.project.ID, core.ProjectPaused,
					fmt.Sprintf("task %s failed after %d retries", task.ID, task.RetryCount))
			}
			return nil
		})
		if err != nil {
			return tcerrors.ErrStoreUnavailable(err)
		}
		e.logger.Warn("task paused after retries", "task", task.ID, "retries", task.RetryCount)
		return nil
	}
}

// enforceTimeouts kills sessions that outlived their task's wall-clock
// budget. The kill is recorded as a killed session and a failed task;
// the retry policy then has its say.
func (e *Engine) enforceTimeouts(ctx context.Context) error {
	sessions, err := e.store.RunningSessions(ctx)
	if err != nil {
		return tcerrors.ErrStoreUnavailable(err)
	}

	now := time.Now().UTC()
	for _, sess := range sessions {
		task, err := e.store.GetTask(ctx, sess.TaskID)
		if err != nil {
			return tcerrors.ErrStoreUnavailable(err)
		}
		limit := time.Duration(task.TimeoutSecs) * time.Second
		if limit <= 0 {
			limit = e.settings.TimeoutFor(string(task.Kind))
		}
		if limit <= 0 || now.Sub(sess.StartedAt) <= limit {
			continue
		}

		e.logger.Warn("session exceeded wall clock",
			"session", sess.ID, "task", task.ID, "limit", limit)
		if err := e.runner.Kill(ctx, sess.Pane); err != nil {
			return tcerrors.ErrPaneUnavailable(err)
		}

		errCtx := fmt.Sprintf("killed: exceeded wall clock limit of %s", limit)
		txErr := e.store.RunInTx(ctx, func(tx *db.TxOps) error {
			if err := db.FinishSessionTx(tx, sess.ID, nil, core.SessionKilled); err != nil {
				return err
			}
			if task.Status != core.TaskRunning {
				return nil
			}
			return db.UpdateTaskStatusTx(tx, task.ID, db.StatusChange{
				To:           core.TaskFailed,
				ErrorContext: &errCtx,
				Reason:       "session killed on timeout",
			})
		})
		if txErr != nil {
			return tcerrors.ErrStoreUnavailable(txErr)
		}
		if task.Status == core.TaskRunning {
			task.Status = core.TaskFailed
			task.ErrorContext = errCtx
			if err := e.applyRetryPolicy(ctx, task); err != nil {
				return err
			}
		}
	}
	return nil
}
