// Package planner turns product requirements into a stored plan. One
// run renders the planning brief, drives the Agent in print mode,
// extracts the JSON plan from its response, validates it, and installs
// it through the store; the raw capture lands under .tc/plans/ either
// way.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/tc/internal/brief"
	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/project"
	"github.com/randalmurphal/tc/internal/util"
)

// stderrExcerpt bounds how much Agent stderr is carried into errors.
const stderrExcerpt = 500

// InvokeFunc runs the Agent with a planning prompt and returns its
// response. Tests substitute a canned one.
type InvokeFunc func(ctx context.Context, prompt string) (string, error)

// Config holds planner dependencies.
type Config struct {
	Store    *db.Store
	Settings *config.Config
	Logger   *slog.Logger
	Project  core.Project
	Paths    project.Paths
	// Invoke overrides the Agent invocation; nil runs the real binary.
	Invoke InvokeFunc
}

// Options steer one planning run.
type Options struct {
	// Replan replaces an existing plan wholesale.
	Replan bool
	// Reason is shown to the Agent when replanning.
	Reason string
}

// Result summarizes an installed plan.
type Result struct {
	Phases   int
	Tasks    int
	PlanPath string
	// StandardsWritten reports whether CLAUDE.md was rewritten.
	StandardsWritten bool
}

// Planner drives one planning run end to end.
type Planner struct {
	store    *db.Store
	settings *config.Config
	logger   *slog.Logger
	project  core.Project
	paths    project.Paths
	invoke   InvokeFunc
}

// New assembles a planner. Plan does the actual work.
func New(cfg Config) *Planner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	p := &Planner{
		store:    cfg.Store,
		settings: settings,
		logger:   logger,
		project:  cfg.Project,
		paths:    cfg.Paths,
		invoke:   cfg.Invoke,
	}
	if p.invoke == nil {
		p.invoke = p.runAgent
	}
	return p
}

// Plan runs the pipeline. The project moves through planning to planned;
// Agent and parse failures leave it failed, with the raw capture (when
// one was extracted) kept for inspection. A repeat plan without Replan
// is refused so a stored plan is never replaced by accident.
func (p *Planner) Plan(ctx context.Context, opts Options) (*Result, error) {
	existing, err := p.store.ListPhases(ctx, p.project.ID)
	if err != nil {
		return nil, tcerrors.ErrStoreUnavailable(err)
	}
	if len(existing) > 0 && !opts.Replan {
		return nil, tcerrors.ErrAlreadyPlanned(p.project.ID)
	}

	prompt, err := p.renderPrompt(ctx, opts)
	if err != nil {
		return nil, err
	}

	reason := "planning started"
	if opts.Replan {
		reason = "replanning started"
		if opts.Reason != "" {
			reason += ": " + opts.Reason
		}
	}
	if err := p.store.UpdateProjectStatus(ctx, p.project.ID, core.ProjectPlanning, reason); err != nil {
		return nil, err
	}

	p.logger.Info("planning",
		"agent", p.settings.AgentBin,
		"replan", opts.Replan,
		"timeout_secs", p.settings.PlanTimeoutSecs)
	response, err := p.invoke(ctx, prompt)
	if err != nil {
		return nil, p.fail(ctx, err)
	}

	doc, err := ExtractJSON(response)
	if err != nil {
		return nil, p.fail(ctx, tcerrors.ErrPlanInvalid(err.Error()))
	}
	planPath, err := p.saveCapture(doc)
	if err != nil {
		return nil, p.fail(ctx, err)
	}

	plan, err := ParsePlan(doc)
	if err != nil {
		return nil, p.fail(ctx, tcerrors.ErrPlanInvalid(err.Error()))
	}

	phases, tasks, deps, err := p.materialize(plan)
	if err != nil {
		return nil, p.fail(ctx, err)
	}
	if err := p.store.ReplacePlan(ctx, p.project.ID, phases, tasks, deps); err != nil {
		return nil, p.fail(ctx, err)
	}

	standards := p.writeStandards(plan.ClaudeMD)

	installed := fmt.Sprintf("plan installed: %d phases, %d tasks", len(phases), len(tasks))
	if err := p.store.UpdateProjectStatus(ctx, p.project.ID, core.ProjectPlanned, installed); err != nil {
		return nil, err
	}
	p.logger.Info("plan installed",
		"phases", len(phases),
		"tasks", len(tasks),
		"capture", planPath)

	return &Result{
		Phases:           len(phases),
		Tasks:            len(tasks),
		PlanPath:         planPath,
		StandardsWritten: standards,
	}, nil
}

// renderPrompt builds the planning or replanning brief. prd.md is
// required; bootstrap.md is optional context.
func (p *Planner) renderPrompt(ctx context.Context, opts Options) (string, error) {
	prd, err := os.ReadFile(p.paths.PRDPath())
	if err != nil {
		return "", tcerrors.ErrInvalidArgument(fmt.Sprintf("prd.md not found at %s", p.paths.PRDPath()))
	}
	bootstrap, _ := os.ReadFile(p.paths.BootstrapPath())

	in := brief.PlanningInputs{
		ProjectName:      p.project.Name,
		PRDContent:       strings.TrimSpace(string(prd)),
		BootstrapContent: strings.TrimSpace(string(bootstrap)),
	}
	if !opts.Replan {
		return brief.PlanningBrief(in)
	}

	current, err := p.currentPlanJSON(ctx)
	if err != nil {
		return "", err
	}
	return brief.ReplanBrief(brief.ReplanInputs{
		PlanningInputs: in,
		CurrentPlan:    current,
		Reason:         opts.Reason,
	})
}

// currentPlanJSON serializes the stored plan with per-task statuses so
// a replanning Agent sees what already shipped.
func (p *Planner) currentPlanJSON(ctx context.Context) (string, error) {
	snap, err := p.store.Snapshot(ctx, p.project.ID)
	if err != nil {
		return "", tcerrors.ErrStoreUnavailable(err)
	}

	type taskView struct {
		Name   string          `json:"name"`
		Kind   core.TaskKind   `json:"kind"`
		Status core.TaskStatus `json:"status"`
	}
	type phaseView struct {
		Name  string     `json:"name"`
		Tasks []taskView `json:"tasks"`
	}

	views := make([]phaseView, 0, len(snap.Phases))
	for _, ph := range snap.Phases {
		v := phaseView{Name: ph.Name}
		for _, t := range snap.TasksForPhase(ph.ID) {
			v.Tasks = append(v.Tasks, taskView{Name: t.Name, Kind: t.Kind, Status: t.Status})
		}
		views = append(views, v)
	}
	data, err := json.MarshalIndent(map[string]any{"phases": views}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize current plan: %w", err)
	}
	return string(data), nil
}

// materialize mints IDs and sequences for a decoded plan. Sequences are
// 1-based; dependency numbers resolve through global appearance order,
// which validate has already confirmed points strictly backwards.
func (p *Planner) materialize(plan *Plan) ([]core.Phase, []core.Task, []core.Dependency, error) {
	var (
		phases []core.Phase
		tasks  []core.Task
		deps   []core.Dependency
		ids    []string
	)
	for pi, ph := range plan.Phases {
		phase, err := core.NewPhase(uuid.NewString(), p.project.ID, pi+1, ph.Name)
		if err != nil {
			return nil, nil, nil, tcerrors.ErrPlanInvalid(err.Error())
		}
		phase.Description = ph.Description
		phases = append(phases, phase)

		for ti, pt := range ph.Tasks {
			task, err := core.NewTask(uuid.NewString(), phase.ID, ti+1, pt.Kind, pt.Name)
			if err != nil {
				return nil, nil, nil, tcerrors.ErrPlanInvalid(err.Error())
			}
			task.Description = pt.Description
			task.TimeoutSecs = pt.TimeoutSecs
			for _, dep := range pt.DependsOn {
				deps = append(deps, core.Dependency{TaskID: task.ID, DependsOn: ids[dep]})
			}
			ids = append(ids, task.ID)
			tasks = append(tasks, task)
		}
	}
	return phases, tasks, deps, nil
}

// saveCapture writes the extracted document under .tc/plans before it
// is parsed, so a rejected plan still leaves evidence.
func (p *Planner) saveCapture(doc string) (string, error) {
	stamp := time.Now().UTC().Format("20060102-150405")
	path := p.paths.PlanPath(stamp)
	if err := util.AtomicWriteFileString(path, doc+"\n", 0o644); err != nil {
		return "", fmt.Errorf("save plan capture: %w", err)
	}
	return path, nil
}

// fail marks the project failed and passes the causing error through.
// The status write uses an uncancellable context: a project left in
// planning would block every later command.
func (p *Planner) fail(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)
	reason := "planning failed: " + cause.Error()
	if err := p.store.UpdateProjectStatus(ctx, p.project.ID, core.ProjectFailed, reason); err != nil {
		p.logger.Error("mark project failed", "error", err)
	}
	return cause
}

// agentArgs put the Agent into non-interactive print mode. The prompt
// arrives on stdin so argv length limits never truncate it.
var agentArgs = []string{"-p", "--output-format", "text"}

// runAgent is the real Agent invocation, bounded by PlanTimeoutSecs and
// run from the project root.
func (p *Planner) runAgent(ctx context.Context, prompt string) (string, error) {
	timeout := time.Duration(p.settings.PlanTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.settings.AgentBin, agentArgs...)
	cmd.Dir = p.paths.Root
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", tcerrors.ErrPlanTimeout(p.settings.PlanTimeoutSecs)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return "", tcerrors.ErrAgentUnavailable(p.settings.AgentBin, err)
	}
	return "", fmt.Errorf("%s exited: %w; stderr: %s",
		p.settings.AgentBin, err, util.Truncate(strings.TrimSpace(stderr.String()), stderrExcerpt))
}
