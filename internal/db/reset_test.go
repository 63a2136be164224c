package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tc/internal/core"
)

func TestResetTask_FromFailed(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	msg := "boom"
	one := 1
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskFailed, ErrorContext: &msg, RetryCount: &one}))

	require.NoError(t, store.ResetTask(ctx, "t1"))

	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.ErrorContext)
}

func TestResetTask_KillsRunningSession(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	sess, _ := core.NewSession("s1", "t1", core.PaneCoding, 7)
	require.NoError(t, store.StartTask(ctx, "t1", sess))

	require.NoError(t, store.ResetTask(ctx, "t1"))

	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, got.Status)

	s, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, core.SessionKilled, s.Status)
	assert.NotNil(t, s.EndedAt)
}

func TestResetTask_CompletedTask(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskCompleted}))

	require.NoError(t, store.ResetTask(ctx, "t1"))
	got, _ := store.GetTask(ctx, "t1")
	assert.Equal(t, core.TaskPending, got.Status)
}

func TestResetPhase_Cascades(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskCompleted}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t2", StatusChange{To: core.TaskRunning}))
	msg := "broken"
	require.NoError(t, store.UpdateTaskStatus(ctx, "t2", StatusChange{To: core.TaskFailed, ErrorContext: &msg}))

	require.NoError(t, store.ResetPhase(ctx, "ph1"))

	for _, id := range []string{"t1", "t2"} {
		got, err := store.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, core.TaskPending, got.Status, "task %s", id)
		assert.Equal(t, 0, got.RetryCount, "task %s", id)
		assert.Empty(t, got.ErrorContext, "task %s", id)
	}

	ph, err := store.GetPhase(ctx, "ph1")
	require.NoError(t, err)
	assert.Equal(t, core.PhasePending, ph.Status)
}

func TestResetPhase_UnknownPhase(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)

	require.Error(t, store.ResetPhase(context.Background(), "ghost"))
}

func TestRetryTask(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	msg := "persistent failure"
	one := 1
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskFailed, ErrorContext: &msg, RetryCount: &one}))
	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskPaused}))

	require.NoError(t, store.RetryTask(ctx, "t1"))

	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.ErrorContext)
}

func TestRetryTask_RejectsWrongState(t *testing.T) {
	t.Parallel()
	store := NewTestStore(t)
	seedPlan(t, store)
	ctx := context.Background()

	require.Error(t, store.RetryTask(ctx, "t1"), "pending task has nothing to retry")

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", StatusChange{To: core.TaskRunning}))
	require.Error(t, store.RetryTask(ctx, "t1"), "running task cannot be retried")
}
