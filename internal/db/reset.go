package db

import (
	"context"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// ResetTask returns a task to pending: any running session is marked
// killed, retry_count and error_context are cleared, and the owning phase
// is re-evaluated. The caller still owns terminating the live pane
// process the closed sessions leave behind.
func (s *Store) ResetTask(ctx context.Context, taskID string) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		return ResetTaskTx(tx, taskID)
	})
}

// ResetTaskTx is ResetTask within a caller transaction.
func ResetTaskTx(tx *TxOps, taskID string) error {
	t, err := TaskByIDTx(tx, taskID)
	if err != nil {
		return err
	}

	// A running task is failed first so the transition table holds:
	// running -> failed -> pending.
	if t.Status == core.TaskRunning {
		if err := killRunningSessionTx(tx, taskID); err != nil {
			return err
		}
		killed := "killed"
		if err := UpdateTaskStatusTx(tx, taskID, StatusChange{
			To:           core.TaskFailed,
			ErrorContext: &killed,
			Reason:       "reset",
		}); err != nil {
			return err
		}
		t.Status = core.TaskFailed
	}

	zero := 0
	empty := ""
	if t.Status == core.TaskPending {
		// Already pending; just clear the retry budget and error context.
		if _, err := tx.Exec(`
			UPDATE tasks SET retry_count = 0, error_context = NULL, updated_at = ? WHERE id = ?
		`, nowText(), taskID); err != nil {
			return err
		}
		return ReconcilePhaseTx(tx, t.PhaseID)
	}

	return UpdateTaskStatusTx(tx, taskID, StatusChange{
		To:           core.TaskPending,
		RetryCount:   &zero,
		ErrorContext: &empty,
		Reason:       "reset",
	})
}

// ResetPhase cascades ResetTask to every task in the phase.
func (s *Store) ResetPhase(ctx context.Context, phaseID string) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM phases WHERE id = ?`, phaseID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return tcerrors.ErrPhaseNotFound(phaseID)
		}
		tasks, err := listPhaseTasksTx(tx, phaseID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := ResetTaskTx(tx, t.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// RetryTask is the manual retry: allowed from failed or paused, it clears
// the retry budget and error context and marks the task pending so the
// scheduler picks it up again.
func (s *Store) RetryTask(ctx context.Context, taskID string) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		t, err := TaskByIDTx(tx, taskID)
		if err != nil {
			return err
		}
		if t.Status != core.TaskFailed && t.Status != core.TaskPaused {
			return tcerrors.ErrInvalidTransition("task", taskID, string(t.Status), string(core.TaskPending))
		}

		zero := 0
		empty := ""
		return UpdateTaskStatusTx(tx, taskID, StatusChange{
			To:           core.TaskPending,
			RetryCount:   &zero,
			ErrorContext: &empty,
			Reason:       "manual retry",
		})
	})
}

func killRunningSessionTx(tx *TxOps, taskID string) error {
	rows, err := tx.Query(`
		SELECT id FROM sessions WHERE task_id = ? AND status = 'running'
	`, taskID)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := FinishSessionTx(tx, id, nil, core.SessionKilled); err != nil {
			return err
		}
	}
	return nil
}
