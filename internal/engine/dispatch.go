package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/randalmurphal/tc/internal/brief"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/panes"
	"github.com/randalmurphal/tc/internal/retry"
	"github.com/randalmurphal/tc/internal/util"
)

// overviewLimit bounds how much of prd.md is folded into each brief.
const overviewLimit = 4000

// dispatch renders the brief, records the session, and spawns the
// Agent. The session id doubles as the control-plane token.
func (e *Engine) dispatch(ctx context.Context, snap *core.Snapshot, task core.Task) error {
	sessionID := uuid.NewString()

	briefPath, err := e.writeBrief(ctx, snap, task, sessionID)
	if err != nil {
		// A brief that cannot render is this task's failure, not an
		// engine fault.
		errCtx := retry.Clamp("brief render failed: " + err.Error())
		if uerr := e.store.RunInTx(ctx, func(tx *db.TxOps) error {
			if terr := db.UpdateTaskStatusTx(tx, task.ID, db.StatusChange{To: core.TaskRunning, Reason: "dispatch"}); terr != nil {
				return terr
			}
			return db.UpdateTaskStatusTx(tx, task.ID, db.StatusChange{
				To:           core.TaskFailed,
				ErrorContext: &errCtx,
				Reason:       "brief render failed",
			})
		}); uerr != nil {
			return tcerrors.ErrStoreUnavailable(uerr)
		}
		e.logger.Error("brief render failed", "task", task.ID, "error", err)
		refreshed, gerr := e.store.GetTask(ctx, task.ID)
		if gerr != nil {
			return tcerrors.ErrStoreUnavailable(gerr)
		}
		return e.applyRetryPolicy(ctx, refreshed)
	}

	if err := e.store.SetTaskBriefPath(ctx, task.ID, briefPath); err != nil {
		return tcerrors.ErrStoreUnavailable(err)
	}

	sess, err := core.NewSession(sessionID, task.ID, task.Kind.Pane(), 0)
	if err != nil {
		return err
	}
	if err := e.store.StartTask(ctx, task.ID, sess); err != nil {
		return tcerrors.ErrStoreUnavailable(err)
	}

	spec := panes.SpawnSpec{
		Pane:       task.Kind.Pane(),
		SessionID:  sessionID,
		AgentBin:   e.settings.AgentBin,
		ProjectDir: e.paths.Root,
		BriefPath:  briefPath,
		LogPath:    e.paths.SessionLogPath(sessionID),
		ResultPath: e.paths.SessionResultPath(sessionID),
	}
	if err := e.runner.Spawn(ctx, spec); err != nil {
		// The dispatch is recorded but nothing runs. This is a pane
		// fault, not the task's: settle the task back to pending with
		// its retry budget intact and let the infra failure counter
		// decide whether the engine keeps going.
		one := 1
		errCtx := retry.Clamp("spawn failed: " + err.Error())
		if uerr := e.store.RunInTx(ctx, func(tx *db.TxOps) error {
			if ferr := db.FinishSessionTx(tx, sessionID, &one, core.SessionFailed); ferr != nil {
				return ferr
			}
			if terr := db.UpdateTaskStatusTx(tx, task.ID, db.StatusChange{
				To:           core.TaskFailed,
				ErrorContext: &errCtx,
				Reason:       "spawn failed",
			}); terr != nil {
				return terr
			}
			return db.UpdateTaskStatusTx(tx, task.ID, db.StatusChange{
				To:     core.TaskPending,
				Reason: "requeued after spawn failure",
			})
		}); uerr != nil {
			e.logger.Error("unwind failed dispatch", "task", task.ID, "error", uerr)
		}
		return tcerrors.ErrPaneUnavailable(err)
	}

	e.logger.Info("task dispatched",
		"task", task.ID,
		"kind", task.Kind,
		"pane", task.Kind.Pane(),
		"session", sessionID,
		"attempt", task.RetryCount+1)
	return nil
}

// writeBrief assembles brief inputs from the snapshot and history and
// writes the rendered prompt under .tc/briefs.
func (e *Engine) writeBrief(ctx context.Context, snap *core.Snapshot, task core.Task, sessionID string) (string, error) {
	phase, ok := snap.PhaseByID(task.PhaseID)
	if !ok {
		return "", fmt.Errorf("task %s references unknown phase %s", task.ID, task.PhaseID)
	}

	in := brief.TaskBriefInputs{
		Task:            task,
		Phase:           phase,
		TotalPhases:     len(snap.Phases),
		ProjectName:     snap.Project.Name,
		ProjectOverview: e.projectOverview(),
		ControlEndpoint: e.Endpoint(),
		SessionToken:    sessionID,
	}

	// Finished dependencies, with what they reported.
	for _, depID := range snap.DependenciesOf(task.ID) {
		dep, ok := snap.TaskByID(depID)
		if !ok || dep.Status != core.TaskCompleted {
			continue
		}
		line := dep.Name
		if comp, err := e.store.TaskCompletion(ctx, dep.ID); err == nil && comp != nil && comp.Summary != "" {
			line += ": " + comp.Summary
		}
		in.CompletedTasks = append(in.CompletedTasks, line)
	}

	switch task.Kind {
	case core.KindReview:
		// The reviewed task is the review's dependency edge.
		deps := snap.DependenciesOf(task.ID)
		if len(deps) > 0 {
			if src, ok := snap.TaskByID(deps[0]); ok {
				in.SourceTask = &src
			}
			if comp, err := e.store.TaskCompletion(ctx, deps[0]); err == nil && comp != nil {
				in.CompletionSummary = comp.Summary
				in.FilesChanged = comp.FilesChanged
			}
		}
	case core.KindCoding:
		// Follow-up coding tasks carry their reviewer's findings.
		if findings, err := e.store.ReviewFindingsFor(ctx, task.ID); err == nil {
			in.ReviewFindings = findings
		}
	}

	return brief.WriteTaskBrief(e.paths.BriefsDir(), in)
}

// projectOverview returns the head of prd.md, enough to orient a
// session without blowing up every prompt.
func (e *Engine) projectOverview() string {
	data, err := os.ReadFile(e.paths.PRDPath())
	if err != nil {
		return ""
	}
	return util.Truncate(string(data), overviewLimit)
}
