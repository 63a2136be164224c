package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

func TestUpdateTaskStatus_LegalPath(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskCompleted}))

	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, got.Status)

	events, err := store.ReadEvents(ctx, EventQuery{Subject: "t1", Kinds: []core.EventKind{core.EventStatusChange}})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestUpdateTaskStatus_IllegalRejected(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	err := store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskCompleted})
	require.Error(t, err)

	var tcErr *tcerrors.TCError
	require.True(t, tcerrors.As(err, &tcErr))
	assert.Equal(t, tcerrors.CodeInvalidTransition, tcErr.Code)

	// State untouched, and rejected transitions never reach the log.
	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, got.Status)

	events, err := store.ReadEvents(ctx, EventQuery{Subject: "t1"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUpdateTaskStatus_SameStatusRejected(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))

	// A running->running write means the caller is working from a stale
	// read; it is rejected like any other illegal move.
	err := store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning})
	require.Error(t, err)

	var tcErr *tcerrors.TCError
	require.True(t, tcerrors.As(err, &tcErr))
	assert.Equal(t, tcerrors.CodeInvalidTransition, tcErr.Code)

	events, err := store.ReadEvents(ctx, EventQuery{Subject: "t1", Kinds: []core.EventKind{core.EventStatusChange}})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestUpdateTaskStatus_FailureStoresContext(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))

	msg := "syntax error in main.go"
	one := 1
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{
		To:           core.TaskFailed,
		ErrorContext: &msg,
		RetryCount:   &one,
	}))

	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, got.Status)
	assert.Equal(t, msg, got.ErrorContext)
	assert.Equal(t, 1, got.RetryCount)
}

func TestUpdateTaskStatus_RetryCountClamped(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))

	two := 2
	err := store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskFailed, RetryCount: &two})
	require.Error(t, err)

	got, _ := store.GetTask(ctx, "t1")
	assert.Equal(t, core.TaskRunning, got.Status, "rejected update must not mutate")
}

func TestUpdateTaskStatus_ClearsContext(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))
	msg := "boom"
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskFailed, ErrorContext: &msg}))

	empty := ""
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskPending, ErrorContext: &empty}))

	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, got.ErrorContext)
}

func TestUpdateTaskStatus_ReconcilesPhase(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	// Running task -> phase running.
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))
	ph, err := store.GetPhase(ctx, "ph1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseRunning, ph.Status)

	// All tasks finished -> phase completed.
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskCompleted}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t2", StatusChange{To: core.TaskRunning}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t2", StatusChange{To: core.TaskCompleted}))

	ph, err = store.GetPhase(ctx, "ph1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseCompleted, ph.Status)

	// Untouched later phase stays pending.
	ph2, err := store.GetPhase(ctx, "ph2")
	require.NoError(t, err)
	assert.Equal(t, core.PhasePending, ph2.Status)
}

func TestInsertTaskAtPhaseTail(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx *TxOps) error {
		seq, err := NextTaskSequenceTx(tx, "ph1")
		if err != nil {
			return err
		}
		assert.Equal(t, 3, seq)

		task, err := core.NewTask("t1-review", "ph1", seq, core.KindReview, "review: set up repo")
		if err != nil {
			return err
		}
		if err := InsertTaskTx(tx, task); err != nil {
			return err
		}
		return InsertDependencyTx(tx, core.Dependency{TaskID: "t1-review", DependsOn: "t1"})
	})
	require.NoError(t, err)

	tasks, err := store.ListPhaseTasks(ctx, "ph1")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "t1-review", tasks[2].ID)
	assert.Equal(t, core.KindReview, tasks[2].Kind)

	deps, err := store.ListDependencies(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, deps, 2)
}

func TestGetTask_NotFound(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)

	_, err := store.GetTask(context.Background(), "ghost")
	require.Error(t, err)

	var tcErr *tcerrors.TCError
	require.True(t, tcerrors.As(err, &tcErr))
	assert.Equal(t, tcerrors.CodeTaskNotFound, tcErr.Code)
}

func TestSetTaskBriefPath(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.NoError(t, store.SetTaskBriefPath(ctx, "t1", ".tc/briefs/t1.md"))
	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, ".tc/briefs/t1.md", got.BriefPath)

	require.Error(t, store.SetTaskBriefPath(ctx, "ghost", "x.md"))
}
