// Package testutil provides shared fixtures for integration tests: a
// real on-disk project with its sqlite store, an engine wired to a fake
// pane runner, and a scripted stand-in for the Agent that talks to the
// control plane the way a live session would.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	"github.com/randalmurphal/tc/internal/engine"
	"github.com/randalmurphal/tc/internal/events"
	"github.com/randalmurphal/tc/internal/panes"
	"github.com/randalmurphal/tc/internal/project"
)

// waitFor bounds every Eventually in the scenario tests.
const waitFor = 10 * time.Second

// Project is a fully initialized tc project in a temp directory with an
// engine over a fake pane runner. The engine is constructed but not
// running; call StartEngine.
type Project struct {
	T      *testing.T
	ID     string
	Dir    string
	Paths  project.Paths
	Store  *db.Store
	Runner *panes.FakeRunner
	Bus    *events.Bus
	Cfg    *config.Config
	Engine *engine.Engine
}

// NewProject initializes a project on disk, opens its store, and wires
// an engine with a fast tick. Everything is cleaned up with the test.
func NewProject(t *testing.T) *Project {
	t.Helper()
	ctx := context.Background()

	srcDir := t.TempDir()
	prd := filepath.Join(srcDir, "prd.md")
	require.NoError(t, os.WriteFile(prd, []byte("# Demo\n\nBuild a small demo service.\n"), 0o644))

	dir := t.TempDir()
	res, err := project.Init(ctx, project.InitOptions{
		Dir:     dir,
		Name:    "it",
		PRDPath: prd,
	}, nil)
	require.NoError(t, err)

	store, err := db.OpenStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	proj, err := store.CurrentProject(ctx)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.TickIntervalMS = 10

	runner := panes.NewFakeRunner()
	bus := events.NewBus(events.WithBufferSize(cfg.EventBuffer))
	t.Cleanup(bus.Close)

	eng := engine.New(engine.Config{
		Store:    store,
		Runner:   runner,
		Bus:      bus,
		Settings: cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Project:  proj,
		Paths:    res.Paths,
	})

	return &Project{
		T:      t,
		ID:     proj.ID,
		Dir:    dir,
		Paths:  res.Paths,
		Store:  store,
		Runner: runner,
		Bus:    bus,
		Cfg:    cfg,
		Engine: eng,
	}
}

// SeedPlan installs the plan and walks the project to the given status.
func (p *Project) SeedPlan(until core.ProjectStatus, phases []core.Phase, tasks []core.Task, deps []core.Dependency) {
	p.T.Helper()
	ctx := context.Background()
	require.NoError(p.T, p.Store.ReplacePlan(ctx, p.ID, phases, tasks, deps))
	for _, st := range []core.ProjectStatus{core.ProjectPlanning, core.ProjectPlanned, core.ProjectRunning} {
		require.NoError(p.T, p.Store.UpdateProjectStatus(ctx, p.ID, st, "test setup"))
		if st == until {
			return
		}
	}
}

// Phase builds a phase for this project.
func (p *Project) Phase(id string, seq int, name string) core.Phase {
	p.T.Helper()
	ph, err := core.NewPhase(id, p.ID, seq, name)
	require.NoError(p.T, err)
	return ph
}

// Task builds a pending task.
func (p *Project) Task(id, phaseID string, seq int, kind core.TaskKind, name string) core.Task {
	p.T.Helper()
	tk, err := core.NewTask(id, phaseID, seq, kind, name)
	require.NoError(p.T, err)
	return tk
}

// StartEngine runs the engine until ctx ends or it finishes on its own.
// The returned channel carries Run's error exactly once.
func (p *Project) StartEngine(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- p.Engine.Run(ctx) }()

	// The scripts need the control endpoint, so wait for the bind.
	require.Eventually(p.T, func() bool {
		return p.Engine.Endpoint() != ""
	}, waitFor, 5*time.Millisecond, "control plane never bound")
	return errCh
}

// WaitEngine asserts the engine stops without error before the deadline.
func (p *Project) WaitEngine(errCh <-chan error) {
	p.T.Helper()
	select {
	case err := <-errCh:
		require.NoError(p.T, err)
	case <-time.After(waitFor):
		p.T.Fatal("engine did not stop")
	}
}

// GetTask fetches the current task row.
func (p *Project) GetTask(id string) core.Task {
	p.T.Helper()
	tk, err := p.Store.GetTask(context.Background(), id)
	require.NoError(p.T, err)
	return tk
}

// ProjectStatus fetches the current project status.
func (p *Project) ProjectStatus() core.ProjectStatus {
	p.T.Helper()
	proj, err := p.Store.GetProject(context.Background(), p.ID)
	require.NoError(p.T, err)
	return proj.Status
}

// WaitTaskStatus blocks until the task reaches the status.
func (p *Project) WaitTaskStatus(id string, want core.TaskStatus) {
	p.T.Helper()
	require.Eventually(p.T, func() bool {
		tk, err := p.Store.GetTask(context.Background(), id)
		return err == nil && tk.Status == want
	}, waitFor, 5*time.Millisecond, "task %s never reached %s", id, want)
}

// WaitProjectStatus blocks until the project reaches the status.
func (p *Project) WaitProjectStatus(want core.ProjectStatus) {
	p.T.Helper()
	require.Eventually(p.T, func() bool {
		return p.ProjectStatus() == want
	}, waitFor, 5*time.Millisecond, "project never reached %s", want)
}

// Events reads the persisted log for one subject.
func (p *Project) Events(subject string, kinds ...core.EventKind) []core.Event {
	p.T.Helper()
	evs, err := p.Store.ReadEvents(context.Background(), db.EventQuery{Subject: subject, Kinds: kinds})
	require.NoError(p.T, err)
	return evs
}

// RPC posts one control-plane call and decodes the JSON response. The
// test fails on transport errors; HTTP-level errors come back in the
// decoded body alongside the status code.
func (p *Project) RPC(method string, body any) (int, map[string]any) {
	p.T.Helper()
	payload, err := json.Marshal(body)
	require.NoError(p.T, err)

	url := p.Engine.Endpoint() + "/rpc/" + method
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(p.T, err, "POST %s", url)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	require.NoError(p.T, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

// WriteResult simulates the pane pipeline leaving its result file.
func (p *Project) WriteResult(sessionID string, exitCode int) {
	p.T.Helper()
	path := p.Paths.SessionResultPath(sessionID)
	require.NoError(p.T, os.MkdirAll(filepath.Dir(path), 0o755))
	data := fmt.Sprintf(`{"session_id":%q,"exit_code":%d}`, sessionID, exitCode)
	require.NoError(p.T, os.WriteFile(path, []byte(data), 0o644))
}
