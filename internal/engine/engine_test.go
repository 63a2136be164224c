package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/events"
	"github.com/randalmurphal/tc/internal/panes"
	"github.com/randalmurphal/tc/internal/project"
)

type testEngine struct {
	*Engine
	store  *db.Store
	runner *panes.FakeRunner
	bus    *events.Bus
	paths  project.Paths
	cfg    *config.Config
}

// newTestEngine builds an engine over an in-memory store and a fake
// runner, with project p1 created but no plan installed.
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	ctx := context.Background()

	store := db.NewTestStore(t)
	paths, err := project.NewPaths(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.PRDPath(), []byte("# Demo\n\nBuild a small demo service.\n"), 0o644))

	p, err := core.NewProject("p1", "demo", paths.Root)
	require.NoError(t, err)
	require.NoError(t, store.CreateProject(ctx, p))

	cfg := config.Default()
	cfg.TickIntervalMS = 20

	runner := panes.NewFakeRunner()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	eng := New(Config{
		Store:    store,
		Runner:   runner,
		Bus:      bus,
		Settings: cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Project:  p,
		Paths:    paths,
	})
	return &testEngine{Engine: eng, store: store, runner: runner, bus: bus, paths: paths, cfg: cfg}
}

// seedPlan installs the plan and walks the project to the given status.
func (te *testEngine) seedPlan(t *testing.T, until core.ProjectStatus, phases []core.Phase, tasks []core.Task, deps []core.Dependency) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, te.store.ReplacePlan(ctx, "p1", phases, tasks, deps))
	for _, st := range []core.ProjectStatus{core.ProjectPlanning, core.ProjectPlanned, core.ProjectRunning} {
		require.NoError(t, te.store.UpdateProjectStatus(ctx, "p1", st, "test setup"))
		if st == until {
			return
		}
	}
}

// codingPlan is one phase with t1 -> t2.
func codingPlan(t *testing.T) ([]core.Phase, []core.Task, []core.Dependency) {
	t.Helper()
	ph1, err := core.NewPhase("ph1", "p1", 1, "scaffold")
	require.NoError(t, err)
	t1, err := core.NewTask("t1", "ph1", 1, core.KindCoding, "set up repo")
	require.NoError(t, err)
	t2, err := core.NewTask("t2", "ph1", 2, core.KindCoding, "add config")
	require.NoError(t, err)
	return []core.Phase{ph1}, []core.Task{t1, t2}, []core.Dependency{{TaskID: "t2", DependsOn: "t1"}}
}

// singleTaskPlan is one phase with only t1.
func singleTaskPlan(t *testing.T) ([]core.Phase, []core.Task, []core.Dependency) {
	t.Helper()
	ph1, err := core.NewPhase("ph1", "p1", 1, "scaffold")
	require.NoError(t, err)
	t1, err := core.NewTask("t1", "ph1", 1, core.KindCoding, "set up repo")
	require.NoError(t, err)
	return []core.Phase{ph1}, []core.Task{t1}, nil
}

func (te *testEngine) task(t *testing.T, id string) core.Task {
	t.Helper()
	task, err := te.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (te *testEngine) projectStatus(t *testing.T) core.ProjectStatus {
	t.Helper()
	p, err := te.store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	return p.Status
}

func (te *testEngine) runningSession(t *testing.T) core.Session {
	t.Helper()
	sessions, err := te.store.RunningSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1, "expected exactly one running session")
	return sessions[0]
}

// writeResult simulates the pane pipeline leaving its result file.
func (te *testEngine) writeResult(t *testing.T, sessionID string, exitCode int) {
	t.Helper()
	path := te.paths.SessionResultPath(sessionID)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data := fmt.Sprintf(`{"session_id":%q,"exit_code":%d}`, sessionID, exitCode)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

// completeTask walks a pending task through running to completed, as if
// its session reported through the control plane.
func (te *testEngine) completeTask(t *testing.T, id, summary string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, te.store.UpdateTaskStatus(ctx, id, db.StatusChange{To: core.TaskRunning, Reason: "test"}))
	require.NoError(t, te.store.UpdateTaskStatus(ctx, id, db.StatusChange{
		To:         core.TaskCompleted,
		Reason:     "reported",
		Completion: &core.CompletionPayload{Summary: summary},
	}))
}

func TestTickDispatchesFirstRunnableTask(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := codingPlan(t)
	te.seedPlan(t, core.ProjectRunning, phases, tasks, deps)

	done, err := te.tick(context.Background())
	require.NoError(t, err)
	assert.False(t, done)

	task := te.task(t, "t1")
	assert.Equal(t, core.TaskRunning, task.Status)
	require.NotEmpty(t, task.BriefPath)

	sess := te.runningSession(t)
	assert.Equal(t, "t1", sess.TaskID)
	assert.Equal(t, core.PaneCoding, sess.Pane)

	spawned := te.runner.Spawned()
	require.Len(t, spawned, 1)
	spec := spawned[0]
	assert.Equal(t, core.PaneCoding, spec.Pane)
	assert.Equal(t, sess.ID, spec.SessionID)
	assert.Equal(t, te.cfg.AgentBin, spec.AgentBin)
	assert.Equal(t, te.paths.Root, spec.ProjectDir)
	assert.Equal(t, task.BriefPath, spec.BriefPath)
	assert.Equal(t, te.paths.SessionResultPath(sess.ID), spec.ResultPath)
	assert.Equal(t, te.paths.SessionLogPath(sess.ID), spec.LogPath)

	content, err := os.ReadFile(task.BriefPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "set up repo")
	assert.Contains(t, string(content), sess.ID, "brief should carry the session token")
	assert.Contains(t, string(content), "Build a small demo service")

	// t2 waits on t1.
	assert.Equal(t, core.TaskPending, te.task(t, "t2").Status)
}

func TestTickIdlesWhilePaneBusy(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	ph1, err := core.NewPhase("ph1", "p1", 1, "scaffold")
	require.NoError(t, err)
	t1, err := core.NewTask("t1", "ph1", 1, core.KindCoding, "set up repo")
	require.NoError(t, err)
	t2, err := core.NewTask("t2", "ph1", 2, core.KindCoding, "add config")
	require.NoError(t, err)
	te.seedPlan(t, core.ProjectRunning, []core.Phase{ph1}, []core.Task{t1, t2}, nil)

	ctx := context.Background()
	_, err = te.tick(ctx)
	require.NoError(t, err)

	// t2 is runnable but pane 0 is occupied by t1's session.
	done, err := te.tick(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Len(t, te.runner.Spawned(), 1)
	assert.Equal(t, core.TaskPending, te.task(t, "t2").Status)
}

func TestTickReapsCompletedSession(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := codingPlan(t)
	te.seedPlan(t, core.ProjectRunning, phases, tasks, deps)
	ctx := context.Background()

	_, err := te.tick(ctx)
	require.NoError(t, err)
	sess := te.runningSession(t)

	// The session reported completion, wrote its result, and exited.
	require.NoError(t, te.store.UpdateTaskStatus(ctx, "t1", db.StatusChange{
		To:         core.TaskCompleted,
		Reason:     "reported",
		Completion: &core.CompletionPayload{Summary: "repo scaffolded", FilesChanged: []string{"go.mod"}},
	}))
	te.writeResult(t, sess.ID, 0)
	te.runner.FinishPane(core.PaneCoding)

	done, err := te.tick(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	got, err := te.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SessionCompleted, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 0, *got.ExitCode)

	// The freed pane goes straight to t2, whose dependency is now met.
	assert.Equal(t, core.TaskRunning, te.task(t, "t2").Status)
	require.Len(t, te.runner.Spawned(), 2)
	assert.Equal(t, core.PaneCoding, te.runner.Spawned()[1].Pane)
}

func TestTickSilentExitRetriesThenPauses(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := singleTaskPlan(t)
	te.seedPlan(t, core.ProjectRunning, phases, tasks, deps)
	ctx := context.Background()

	_, err := te.tick(ctx)
	require.NoError(t, err)
	first := te.runningSession(t)

	// Session dies without reporting; only the pane echo remains.
	te.runner.FinishPane(core.PaneCoding)
	te.runner.SetTail(core.PaneCoding, "panic: boom\nexit code: 2")

	done, err := te.tick(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	closed, err := te.store.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SessionFailed, closed.Status)
	require.NotNil(t, closed.ExitCode)
	assert.Equal(t, 2, *closed.ExitCode)

	// One auto retry: the task is already running again on a fresh
	// session, carrying the synthetic error context.
	task := te.task(t, "t1")
	assert.Equal(t, core.TaskRunning, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Contains(t, task.ErrorContext, "session exited with code 2 before reporting a result")
	assert.Contains(t, task.ErrorContext, "panic: boom")
	require.Len(t, te.runner.Spawned(), 2)

	// Second silent death exhausts the budget.
	te.runner.FinishPane(core.PaneCoding)
	done, err = te.tick(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	task = te.task(t, "t1")
	assert.Equal(t, core.TaskPaused, task.Status)
	assert.Equal(t, core.ProjectPaused, te.projectStatus(t))
	assert.Len(t, te.runner.Spawned(), 2, "a paused task must not redispatch")
}

func TestTickReportedFailureKeepsAgentContext(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := singleTaskPlan(t)
	te.seedPlan(t, core.ProjectRunning, phases, tasks, deps)
	ctx := context.Background()

	_, err := te.tick(ctx)
	require.NoError(t, err)
	sess := te.runningSession(t)

	// The agent reported failure with its own context before exiting.
	agentCtx := "tests failed: TestParse wanted 3 got 4"
	require.NoError(t, te.store.UpdateTaskStatus(ctx, "t1", db.StatusChange{
		To:           core.TaskFailed,
		ErrorContext: &agentCtx,
		Reason:       "reported failure",
	}))
	te.writeResult(t, sess.ID, 1)
	te.runner.FinishPane(core.PaneCoding)

	_, err = te.tick(ctx)
	require.NoError(t, err)

	task := te.task(t, "t1")
	assert.Equal(t, core.TaskRunning, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Equal(t, agentCtx, task.ErrorContext, "retry must not overwrite what the agent reported")

	// The retry brief folds the previous failure in.
	content, err := os.ReadFile(task.BriefPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), agentCtx)
}

func TestTickKillsTimedOutSession(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	te.cfg.SessionTimeoutSecs = 60
	phases, tasks, deps := singleTaskPlan(t)
	te.seedPlan(t, core.ProjectRunning, phases, tasks, deps)
	ctx := context.Background()

	// Seed an aged running session by hand and occupy its pane so the
	// reaper sees a live process.
	sess, err := core.NewSession("s-old", "t1", core.PaneCoding, 0)
	require.NoError(t, err)
	sess.StartedAt = time.Now().UTC().Add(-10 * time.Minute)
	require.NoError(t, te.store.StartTask(ctx, "t1", sess))
	require.NoError(t, te.runner.Spawn(ctx, panes.SpawnSpec{Pane: core.PaneCoding, SessionID: "s-old"}))

	done, err := te.tick(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	assert.Equal(t, []int{core.PaneCoding}, te.runner.Killed())

	killed, err := te.store.GetSession(ctx, "s-old")
	require.NoError(t, err)
	assert.Equal(t, core.SessionKilled, killed.Status)
	assert.Nil(t, killed.ExitCode)

	task := te.task(t, "t1")
	assert.Equal(t, core.TaskRunning, task.Status, "timeout counts as a failure and retries")
	assert.Equal(t, 1, task.RetryCount)
	assert.Contains(t, task.ErrorContext, "exceeded wall clock limit")
	assert.Len(t, te.runner.Spawned(), 2)
}

func TestTickCompletesProject(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := codingPlan(t)
	te.seedPlan(t, core.ProjectRunning, phases, tasks, deps)

	te.completeTask(t, "t1", "scaffolded")
	te.completeTask(t, "t2", "configured")

	done, err := te.tick(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, core.ProjectCompleted, te.projectStatus(t))
}

func TestTickDeadlockFailsProject(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	ph1, err := core.NewPhase("ph1", "p1", 1, "scaffold")
	require.NoError(t, err)
	ph2, err := core.NewPhase("ph2", "p1", 2, "features")
	require.NoError(t, err)
	t1, err := core.NewTask("t1", "ph1", 1, core.KindCoding, "set up repo")
	require.NoError(t, err)
	t3, err := core.NewTask("t3", "ph2", 1, core.KindCoding, "build feature")
	require.NoError(t, err)
	// t1 waits on a later-phase task: nothing can ever run.
	te.seedPlan(t, core.ProjectRunning, []core.Phase{ph1, ph2}, []core.Task{t1, t3},
		[]core.Dependency{{TaskID: "t1", DependsOn: "t3"}})

	ctx := context.Background()
	done, err := te.tick(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, core.ProjectFailed, te.projectStatus(t))

	evs, err := te.store.ReadEvents(ctx, db.EventQuery{
		Subject: "p1",
		Kinds:   []core.EventKind{core.EventError},
	})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Contains(t, evs[0].Payload, "deadlock")
	assert.Contains(t, evs[0].Payload, "t1 waits on [t3]")
}

func TestTickPausedProjectRunsReviewsOnly(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	ph1, err := core.NewPhase("ph1", "p1", 1, "scaffold")
	require.NoError(t, err)
	t1, err := core.NewTask("t1", "ph1", 1, core.KindCoding, "set up repo")
	require.NoError(t, err)
	r1, err := core.NewTask("r1", "ph1", 2, core.KindReview, "Review: set up repo")
	require.NoError(t, err)
	t2, err := core.NewTask("t2", "ph1", 3, core.KindCoding, "add config")
	require.NoError(t, err)
	te.seedPlan(t, core.ProjectRunning, []core.Phase{ph1}, []core.Task{t1, r1, t2},
		[]core.Dependency{{TaskID: "r1", DependsOn: "t1"}})

	ctx := context.Background()
	te.completeTask(t, "t1", "scaffold done")
	require.NoError(t, te.store.UpdateProjectStatus(ctx, "p1", core.ProjectPaused, "operator pause"))

	done, err := te.tick(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	assert.Equal(t, core.TaskRunning, te.task(t, "r1").Status)
	assert.Equal(t, core.TaskPending, te.task(t, "t2").Status, "pause suppresses coding dispatch")

	spawned := te.runner.Spawned()
	require.Len(t, spawned, 1)
	assert.Equal(t, core.PaneReview, spawned[0].Pane)

	content, err := os.ReadFile(te.task(t, "r1").BriefPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "set up repo")
	assert.Contains(t, string(content), "scaffold done")
}

func TestTickHeartbeatStaysOffTheLog(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := singleTaskPlan(t)
	te.seedPlan(t, core.ProjectRunning, phases, tasks, deps)

	sub := te.bus.Subscribe(events.Filter{Kinds: []core.EventKind{core.EventEngineTick}})
	defer sub.Close()

	ctx := context.Background()
	_, err := te.tick(ctx)
	require.NoError(t, err)

	select {
	case ev := <-sub.C():
		assert.Equal(t, core.EventEngineTick, ev.Kind)
		var tick core.TickPayload
		require.NoError(t, json.Unmarshal([]byte(ev.Payload), &tick))
		assert.Equal(t, "dispatch_coding", tick.Decision)
		assert.Equal(t, 0, tick.Running)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat on the bus")
	}

	// Heartbeats are bus-only; the persisted log stays clean.
	evs, err := te.store.ReadEvents(ctx, db.EventQuery{Kinds: []core.EventKind{core.EventEngineTick}})
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestDispatchSpawnFailureRequeuesTask(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := singleTaskPlan(t)
	te.seedPlan(t, core.ProjectRunning, phases, tasks, deps)
	ctx := context.Background()

	te.runner.OnSpawn = func(panes.SpawnSpec) error {
		return fmt.Errorf("no tmux server running")
	}

	_, err := te.tick(ctx)
	require.Error(t, err)
	var tcErr *tcerrors.TCError
	require.True(t, tcerrors.As(err, &tcErr))
	assert.Equal(t, tcerrors.CodePaneUnavailable, tcErr.Code)

	// The pane fault does not consume the task's retry budget.
	task := te.task(t, "t1")
	assert.Equal(t, core.TaskPending, task.Status)
	assert.Equal(t, 0, task.RetryCount)
	assert.Contains(t, task.ErrorContext, "spawn failed")

	sessions, err := te.store.ListTaskSessions(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, core.SessionFailed, sessions[0].Status)

	// Once the pane is back the task dispatches normally.
	te.runner.OnSpawn = nil
	_, err = te.tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.TaskRunning, te.task(t, "t1").Status)
}

func TestRunRequiresPlan(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)

	err := te.Run(context.Background())
	require.Error(t, err)
	var tcErr *tcerrors.TCError
	require.True(t, tcerrors.As(err, &tcErr))
	assert.Equal(t, tcerrors.CodeNoPlan, tcErr.Code)
}

func TestRunRefusesSecondEngine(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := singleTaskPlan(t)
	te.seedPlan(t, core.ProjectPlanned, phases, tasks, deps)

	// A live foreign engine: the test's parent process stands in.
	require.NoError(t, os.MkdirAll(te.paths.DataDir(), 0o755))
	data, err := yaml.Marshal(RunInfo{
		PID:       os.Getppid(),
		Endpoint:  "http://127.0.0.1:1",
		StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(te.paths.RunFilePath(), data, 0o644))

	err = te.Run(context.Background())
	require.Error(t, err)
	var tcErr *tcerrors.TCError
	require.True(t, tcerrors.As(err, &tcErr))
	assert.Equal(t, tcerrors.CodeEngineRunning, tcErr.Code)

	// The foreign marker survives.
	info, err := ReadRunInfo(te.paths)
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), info.PID)
}

func TestRunDrivesSingleTaskToCompletion(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	phases, tasks, deps := singleTaskPlan(t)
	te.seedPlan(t, core.ProjectPlanned, phases, tasks, deps)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- te.Run(ctx) }()

	// Wait for the dispatch.
	require.Eventually(t, func() bool {
		task, err := te.store.GetTask(context.Background(), "t1")
		return err == nil && task.Status == core.TaskRunning
	}, 5*time.Second, 10*time.Millisecond, "task never dispatched")

	// The engine advertises itself while running.
	info, alive := LiveRunInfo(te.paths)
	require.True(t, alive)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Contains(t, info.Endpoint, "http://127.0.0.1:")

	mcp, err := project.ReadMCPConfig(te.paths)
	require.NoError(t, err)
	assert.Equal(t, info.Endpoint, mcp.ControlEndpoint())

	// Finish the task the way a real session would.
	sess := te.runningSession(t)
	require.NoError(t, te.store.UpdateTaskStatus(context.Background(), "t1", db.StatusChange{
		To:         core.TaskCompleted,
		Reason:     "reported",
		Completion: &core.CompletionPayload{Summary: "done"},
	}))
	te.writeResult(t, sess.ID, 0)
	te.runner.FinishPane(core.PaneCoding)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop after completion")
	}

	assert.Equal(t, core.ProjectCompleted, te.projectStatus(t))

	// The run file is released on exit.
	_, err = os.Stat(te.paths.RunFilePath())
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireRunFileCleansStaleMarker(t *testing.T) {
	t.Parallel()
	paths, err := project.NewPaths(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(paths.DataDir(), 0o755))

	// A PID above the kernel's pid space is never alive.
	stale, err := yaml.Marshal(RunInfo{PID: 1 << 30, Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.RunFilePath(), stale, 0o644))

	mine := RunInfo{PID: os.Getpid(), Endpoint: "http://127.0.0.1:2", StartedAt: time.Now().UTC()}
	require.NoError(t, acquireRunFile(paths, mine))

	got, err := ReadRunInfo(paths)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got.PID)
	assert.Equal(t, "http://127.0.0.1:2", got.Endpoint)

	releaseRunFile(paths)
	_, err = os.Stat(paths.RunFilePath())
	assert.True(t, os.IsNotExist(err))
}

func TestLiveRunInfoAbsentWithoutFile(t *testing.T) {
	t.Parallel()
	paths, err := project.NewPaths(t.TempDir())
	require.NoError(t, err)

	_, alive := LiveRunInfo(paths)
	assert.False(t, alive)
}
