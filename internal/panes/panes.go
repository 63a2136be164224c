// Package panes drives the terminal multiplexer that hosts agent
// sessions. One tmux session per project, two panes: pane 0 runs coding
// tasks, pane 1 runs reviews. The engine talks to it through Runner so
// tests can substitute a fake.
package panes

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// SessionPrefix namespaces tmux sessions created here.
const SessionPrefix = "tc-"

// tmuxTimeout bounds every tmux / pgrep invocation.
const tmuxTimeout = 5 * time.Second

// SpawnSpec describes one agent session to start in a pane.
type SpawnSpec struct {
	Pane       int
	SessionID  string
	AgentBin   string
	ProjectDir string
	BriefPath  string
	LogPath    string
	ResultPath string
}

// Runner is the engine's view of the pane layer.
type Runner interface {
	// Setup ensures the project session exists with both panes.
	Setup(ctx context.Context) error
	// Spawn starts an agent in the given pane.
	Spawn(ctx context.Context, spec SpawnSpec) error
	// Busy reports whether the pane's shell has a live child.
	Busy(ctx context.Context, pane int) (bool, error)
	// Kill terminates whatever runs in the pane: SIGTERM, a grace
	// period, then SIGKILL.
	Kill(ctx context.Context, pane int) error
	// CaptureTail returns the last lines of pane output.
	CaptureTail(ctx context.Context, pane int, lines int) (string, error)
	// Teardown kills the project session.
	Teardown(ctx context.Context) error
}

// Tmux implements Runner against the tmux binary.
type Tmux struct {
	session    string
	projectDir string
	killGrace  time.Duration
	logger     *slog.Logger
}

// NewTmux creates a Runner for one project. killGrace is the SIGTERM to
// SIGKILL escalation window.
func NewTmux(projectName, projectDir string, killGrace time.Duration, logger *slog.Logger) *Tmux {
	if logger == nil {
		logger = slog.Default()
	}
	if killGrace <= 0 {
		killGrace = 10 * time.Second
	}
	return &Tmux{
		session:    SessionPrefix + projectName,
		projectDir: projectDir,
		killGrace:  killGrace,
		logger:     logger,
	}
}

// SessionName returns the tmux session this Runner owns.
func (t *Tmux) SessionName() string { return t.session }

// Setup creates the session detached if missing and splits the window
// until both panes exist. Idempotent.
func (t *Tmux) Setup(ctx context.Context) error {
	if !t.sessionExists(ctx) {
		if _, err := t.run(ctx, "new-session", "-d", "-s", t.session, "-c", t.projectDir); err != nil {
			return tcerrors.ErrPaneUnavailable(err).WithSubject(t.session)
		}
	}
	panes, err := t.listPanes(ctx)
	if err != nil {
		return err
	}
	for len(panes) < 2 {
		if _, err := t.run(ctx, "split-window", "-t", t.session, "-c", t.projectDir); err != nil {
			return tcerrors.ErrPaneUnavailable(err).WithSubject(t.session)
		}
		if panes, err = t.listPanes(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Spawn sends the agent command to the pane's shell.
func (t *Tmux) Spawn(ctx context.Context, spec SpawnSpec) error {
	if spec.Pane != core.PaneCoding && spec.Pane != core.PaneReview {
		return tcerrors.ErrPaneUnavailable(fmt.Errorf("no pane %d", spec.Pane))
	}
	busy, err := t.Busy(ctx, spec.Pane)
	if err != nil {
		return err
	}
	if busy {
		return tcerrors.ErrPaneUnavailable(fmt.Errorf("pane %s already busy", t.target(spec.Pane)))
	}
	cmd := BuildCommand(spec)
	// -l sends the command literally; the second call presses Enter.
	if _, err := t.run(ctx, "send-keys", "-t", t.target(spec.Pane), "-l", cmd); err != nil {
		return tcerrors.ErrPaneUnavailable(err).WithSubject(t.target(spec.Pane))
	}
	if _, err := t.run(ctx, "send-keys", "-t", t.target(spec.Pane), "Enter"); err != nil {
		return tcerrors.ErrPaneUnavailable(err).WithSubject(t.target(spec.Pane))
	}
	t.logger.Debug("spawned agent session",
		"pane", spec.Pane,
		"session_id", spec.SessionID,
		"brief", spec.BriefPath,
	)
	return nil
}

// Busy reports whether the pane shell has child processes, which is how
// a running pipeline looks from outside.
func (t *Tmux) Busy(ctx context.Context, pane int) (bool, error) {
	pid, err := t.panePID(ctx, pane)
	if err != nil {
		return false, err
	}
	return hasChildren(ctx, pid), nil
}

// Kill terminates the pane's child process group: SIGTERM first, then
// SIGKILL after the grace window.
func (t *Tmux) Kill(ctx context.Context, pane int) error {
	pid, err := t.panePID(ctx, pane)
	if err != nil {
		return err
	}
	children, err := childPIDs(ctx, pid)
	if err != nil || len(children) == 0 {
		return nil
	}
	for _, child := range children {
		_ = signalGroup(child, false)
	}

	deadline := time.Now().Add(t.killGrace)
	for time.Now().Before(deadline) {
		if !hasChildren(ctx, pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	children, _ = childPIDs(ctx, pid)
	for _, child := range children {
		_ = signalGroup(child, true)
	}
	t.logger.Warn("escalated pane kill to SIGKILL", "pane", pane)
	return nil
}

// CaptureTail returns up to lines of recent pane output.
func (t *Tmux) CaptureTail(ctx context.Context, pane int, lines int) (string, error) {
	if lines <= 0 {
		lines = 50
	}
	out, err := t.run(ctx, "capture-pane", "-p", "-t", t.target(pane), "-S", fmt.Sprintf("-%d", lines))
	if err != nil {
		return "", tcerrors.ErrPaneUnavailable(err).WithSubject(t.target(pane))
	}
	return out, nil
}

// Teardown kills the whole tmux session. Missing sessions are fine.
func (t *Tmux) Teardown(ctx context.Context) error {
	if !t.sessionExists(ctx) {
		return nil
	}
	_, err := t.run(ctx, "kill-session", "-t", t.session)
	return err
}

func (t *Tmux) sessionExists(ctx context.Context) bool {
	_, err := t.run(ctx, "has-session", "-t", t.session)
	return err == nil
}

func (t *Tmux) listPanes(ctx context.Context) ([]string, error) {
	out, err := t.run(ctx, "list-panes", "-t", t.session, "-F", "#{pane_index}")
	if err != nil {
		return nil, tcerrors.ErrPaneUnavailable(err).WithSubject(t.session)
	}
	var panes []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			panes = append(panes, line)
		}
	}
	return panes, nil
}

func (t *Tmux) panePID(ctx context.Context, pane int) (int, error) {
	out, err := t.run(ctx, "display-message", "-p", "-t", t.target(pane), "#{pane_pid}")
	if err != nil {
		return 0, tcerrors.ErrPaneUnavailable(err).WithSubject(t.target(pane))
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, tcerrors.ErrPaneUnavailable(err).WithSubject(t.target(pane))
	}
	return pid, nil
}

// target addresses a pane as session.index.
func (t *Tmux) target(pane int) string {
	return fmt.Sprintf("%s.%d", t.session, pane)
}

func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, tmuxTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "tmux", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// hasChildren reports whether pid has live children.
func hasChildren(ctx context.Context, pid int) bool {
	pids, err := childPIDs(ctx, pid)
	return err == nil && len(pids) > 0
}

// childPIDs lists direct children of pid via pgrep.
func childPIDs(ctx context.Context, pid int) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, tmuxTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		// pgrep exits 1 when nothing matches.
		return nil, nil
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		if p, convErr := strconv.Atoi(line); convErr == nil {
			pids = append(pids, p)
		}
	}
	return pids, nil
}
