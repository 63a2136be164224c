// Package engine runs the reconciliation loop that drives a project to
// completion: reap finished sessions, apply the retry policy, take a
// snapshot, schedule, actuate, heartbeat. It is the only writer of task
// state outside the control plane, and it owns both panes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/control"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/events"
	"github.com/randalmurphal/tc/internal/panes"
	"github.com/randalmurphal/tc/internal/project"
	"github.com/randalmurphal/tc/internal/retry"
	"github.com/randalmurphal/tc/internal/scheduler"
)

// relayInterval is the event relay's poll cadence; Notify nudges it
// sooner after control-plane writes.
const relayInterval = 250 * time.Millisecond

// Config holds engine dependencies.
type Config struct {
	Store    *db.Store
	Runner   panes.Runner
	Bus      *events.Bus
	Settings *config.Config
	Logger   *slog.Logger
	Project  core.Project
	Paths    project.Paths
}

// Engine is the single reconciliation loop for one project.
type Engine struct {
	store    *db.Store
	runner   panes.Runner
	bus      *events.Bus
	settings *config.Config
	logger   *slog.Logger
	project  core.Project
	paths    project.Paths
	policy   retry.Policy
	relay    *events.Relay
	srv      *control.Server

	// infraFailures counts consecutive tick failures; reset on any
	// successful tick.
	infraFailures int
}

// New assembles an engine. Run does the actual work.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	return &Engine{
		store:    cfg.Store,
		runner:   cfg.Runner,
		bus:      cfg.Bus,
		settings: settings,
		logger:   logger,
		project:  cfg.Project,
		paths:    cfg.Paths,
		policy:   retry.NewPolicy(settings.MaxRetries),
	}
}

// Endpoint returns the control-plane base URL once Run has bound it.
func (e *Engine) Endpoint() string {
	if e.srv == nil {
		return ""
	}
	return e.srv.Endpoint()
}

// Run owns the project until the plan completes, deadlocks, or ctx is
// cancelled. It claims the run file, brings up the panes, the control
// plane, and the event relay, then ticks.
func (e *Engine) Run(ctx context.Context) error {
	snap, err := e.store.Snapshot(ctx, e.project.ID)
	if err != nil {
		return tcerrors.ErrStoreUnavailable(err)
	}
	if len(snap.Tasks) == 0 {
		return tcerrors.ErrNoPlan(e.project.ID)
	}

	if err := e.runner.Setup(ctx); err != nil {
		return tcerrors.ErrPaneUnavailable(err)
	}

	e.relay = events.NewRelay(e.store, e.bus, relayInterval, e.logger)
	e.srv = control.New(control.Config{
		Store:      e.store,
		Bus:        e.bus,
		Relay:      e.relay,
		ProjectID:  e.project.ID,
		ProjectDir: e.paths.Root,
		Settings:   e.settings,
		Logger:     e.logger,
	})
	if err := e.srv.Listen(); err != nil {
		return fmt.Errorf("bind control plane: %w", err)
	}
	defer func() { _ = e.srv.Close() }()

	info := RunInfo{
		PID:       os.Getpid(),
		Endpoint:  e.srv.Endpoint(),
		StartedAt: time.Now().UTC(),
	}
	if t, ok := e.runner.(*panes.Tmux); ok {
		info.Session = t.SessionName()
	}
	if err := acquireRunFile(e.paths, info); err != nil {
		return err
	}
	defer releaseRunFile(e.paths)

	// Point Agent sessions at the live endpoint.
	if err := project.WriteMCPConfig(e.paths, e.srv.Endpoint()); err != nil {
		return err
	}

	if err := e.markStarted(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return e.srv.Serve(gctx)
	})
	g.Go(func() error {
		if err := e.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return e.loop(gctx)
	})

	err = g.Wait()
	if err != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// markStarted flips the project to running unless it is paused (a
// paused project resumes dispatching reviews only until `tc resume`).
func (e *Engine) markStarted(ctx context.Context) error {
	proj, err := e.store.GetProject(ctx, e.project.ID)
	if err != nil {
		return err
	}
	e.project = proj
	switch proj.Status {
	case core.ProjectRunning, core.ProjectPaused:
		return nil
	}
	if err := e.store.UpdateProjectStatus(ctx, proj.ID, core.ProjectRunning, "engine started"); err != nil {
		return err
	}
	e.project.Status = core.ProjectRunning
	return nil
}

// loop ticks until a terminal decision or cancellation. Infrastructure
// errors back off and retry; too many in a row fail the project.
func (e *Engine) loop(ctx context.Context) error {
	e.logger.Info("engine loop started",
		"project", e.project.ID,
		"tick", e.settings.TickInterval(),
		"endpoint", e.Endpoint())

	ticker := time.NewTicker(e.settings.TickInterval())
	defer ticker.Stop()

	for {
		done, err := e.tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.infraFailures++
			e.logger.Error("tick failed",
				"error", err,
				"consecutive", e.infraFailures,
				"max", e.settings.InfraMaxFailures)
			if e.infraFailures >= e.settings.InfraMaxFailures {
				e.failProject(ctx, fmt.Sprintf("engine stopped after %d consecutive infrastructure failures: %v", e.infraFailures, err))
				return err
			}
			if !e.backoff(ctx) {
				return nil
			}
		} else {
			e.infraFailures = 0
			if done {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// backoff sleeps proportionally to the failure streak, capped at five
// tick intervals. Returns false when ctx ends the wait.
func (e *Engine) backoff(ctx context.Context) bool {
	wait := time.Duration(e.infraFailures) * e.settings.TickInterval()
	if max := 5 * e.settings.TickInterval(); wait > max {
		wait = max
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// tick is one reconciliation pass. done reports a terminal decision.
func (e *Engine) tick(ctx context.Context) (bool, error) {
	if err := e.reap(ctx); err != nil {
		return false, err
	}
	if err := e.sweepFailed(ctx); err != nil {
		return false, err
	}
	if err := e.enforceTimeouts(ctx); err != nil {
		return false, err
	}

	snap, err := e.store.Snapshot(ctx, e.project.ID)
	if err != nil {
		return false, tcerrors.ErrStoreUnavailable(err)
	}
	running, err := e.store.RunningSessions(ctx)
	if err != nil {
		return false, tcerrors.ErrStoreUnavailable(err)
	}

	es := scheduler.EngineState{
		Paused: snap.Project.Status == core.ProjectPaused,
	}
	for _, sess := range running {
		switch sess.Pane {
		case core.PaneCoding:
			es.Pane0Busy = true
		case core.PaneReview:
			es.Pane1Busy = true
		}
	}

	dec := scheduler.Schedule(snap, es)

	var done bool
	switch dec.Kind {
	case scheduler.DecisionDispatchCoding, scheduler.DecisionDispatchReview:
		if err := e.dispatch(ctx, snap, *dec.Task); err != nil {
			return false, err
		}
	case scheduler.DecisionIdle:
		// Work in flight, or the operator paused dispatch.
	case scheduler.DecisionComplete:
		e.logger.Info("plan complete", "project", e.project.ID)
		if snap.Project.Status != core.ProjectCompleted {
			if err := e.store.UpdateProjectStatus(ctx, e.project.ID, core.ProjectCompleted, "all tasks finished"); err != nil {
				return false, tcerrors.ErrStoreUnavailable(err)
			}
		}
		done = true
	case scheduler.DecisionDeadlock:
		e.logger.Error("deadlock", "project", e.project.ID, "reason", dec.Reason)
		e.recordDeadlock(ctx, dec)
		done = true
	}

	e.heartbeat(dec, len(running))
	if e.relay != nil {
		e.relay.Notify()
	}
	return done, nil
}

// heartbeat publishes the tick event on the bus only. Heartbeats are
// liveness signals for watchers, not history; persisting one every two
// seconds would drown the log.
func (e *Engine) heartbeat(dec scheduler.Decision, running int) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(core.NewEvent(core.EventEngineTick, e.project.ID, core.MarshalPayload(core.TickPayload{
		Decision: string(dec.Kind),
		Running:  running,
		Reason:   dec.Reason,
	})))
}

// recordDeadlock marks the project failed with the scheduler's
// diagnostic so `tc status` can explain what is stuck.
func (e *Engine) recordDeadlock(ctx context.Context, dec scheduler.Decision) {
	err := e.store.RunInTx(ctx, func(tx *db.TxOps) error {
		if err := db.UpdateProjectStatusTx(tx, e.project.ID, core.ProjectFailed, dec.Reason); err != nil {
			return err
		}
		ev := core.NewEvent(core.EventError, e.project.ID, core.MarshalPayload(core.ErrorPayload{
			Message: "deadlock: " + dec.Reason,
			Context: core.MarshalPayload(dec.Blocked),
		}))
		_, err := db.AppendEventTx(tx, ev)
		return err
	})
	if err != nil {
		e.logger.Error("record deadlock", "error", err)
	}
}

// failProject is the terminal path for repeated infrastructure errors.
func (e *Engine) failProject(ctx context.Context, reason string) {
	if err := e.store.UpdateProjectStatus(ctx, e.project.ID, core.ProjectFailed, reason); err != nil {
		e.logger.Error("mark project failed", "error", err)
	}
}
