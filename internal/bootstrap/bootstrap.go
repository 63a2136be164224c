// Package bootstrap verifies that a project's environment can actually
// run the orchestrator: the tools bootstrap.md names, the credentials
// it probes, and the variables its .env section requires. Every run
// also exercises the builtin agent, tmux, and git checks, and records
// the outcome in the store so `tc status` can show when the
// environment was last known good.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/project"
	"github.com/randalmurphal/tc/internal/util"
)

// CheckKind classifies where a check came from.
type CheckKind string

const (
	// CheckTool verifies a binary responds, usually `<tool> --version`.
	CheckTool CheckKind = "tool"
	// CheckCredential probes an authenticated service, e.g. `gh auth status`.
	CheckCredential CheckKind = "credential"
	// CheckEnv asserts a variable is set in the project's .env file.
	CheckEnv CheckKind = "env"
)

// Check is one verification predicate parsed from bootstrap.md.
type Check struct {
	Name    string
	Kind    CheckKind
	Command string
}

// Result is the outcome of running one check.
type Result struct {
	Check
	OK       bool
	Output   string
	ExitCode int
}

// Report is one verification run, in bootstrap.md order with the
// builtins last.
type Report struct {
	Results []Result
}

// Total is the number of checks run.
func (r *Report) Total() int { return len(r.Results) }

// Passed counts successful checks.
func (r *Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.OK {
			n++
		}
	}
	return n
}

// Failed counts failing checks.
func (r *Report) Failed() int { return r.Total() - r.Passed() }

// Err returns the validation error for a run with failures, nil when
// everything passed.
func (r *Report) Err() error {
	if failed := r.Failed(); failed > 0 {
		return tcerrors.ErrBootstrapFailed(failed)
	}
	return nil
}

// Config holds verifier dependencies.
type Config struct {
	Store    *db.Store
	Settings *config.Config
	Logger   *slog.Logger
	Project  core.Project
	Paths    project.Paths
}

// Verifier runs one environment verification end to end.
type Verifier struct {
	store    *db.Store
	settings *config.Config
	logger   *slog.Logger
	project  core.Project
	paths    project.Paths
}

// New assembles a verifier. Verify does the actual work.
func New(cfg Config) *Verifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	return &Verifier{
		store:    cfg.Store,
		settings: settings,
		logger:   logger.With("component", "bootstrap"),
		project:  cfg.Project,
		paths:    cfg.Paths,
	}
}

// Verify parses bootstrap.md, runs every check, and records the
// results. A missing bootstrap.md is not an error; the builtins still
// run. Failures are reported through Report.Err, not the returned
// error, so callers can render the full table first.
func (v *Verifier) Verify(ctx context.Context) (*Report, error) {
	content := ""
	data, err := os.ReadFile(v.paths.BootstrapPath())
	switch {
	case err == nil:
		content = string(data)
	case os.IsNotExist(err):
		v.logger.Debug("no bootstrap.md, running builtin checks only")
	default:
		return nil, fmt.Errorf("read bootstrap.md: %w", err)
	}

	checks := Parse(content, v.settings.AgentBin)
	report := &Report{Results: make([]Result, 0, len(checks))}
	records := make([]db.BootstrapCheck, 0, len(checks))
	for _, c := range checks {
		res := v.run(ctx, c)
		v.logger.Debug("check finished",
			"name", res.Name, "kind", res.Kind, "ok", res.OK)
		report.Results = append(report.Results, res)
		records = append(records, db.BootstrapCheck{
			ProjectID: v.project.ID,
			Name:      res.Name,
			Command:   res.Command,
			OK:        res.OK,
			Output:    util.Truncate(res.Output, maxCheckOutput),
			CheckedAt: time.Now().UTC(),
		})
	}

	if err := v.store.RecordBootstrapChecks(ctx, v.project.ID, records); err != nil {
		return nil, tcerrors.ErrStoreUnavailable(err)
	}
	v.logger.Info("environment verified",
		"passed", report.Passed(), "failed", report.Failed())
	return report, nil
}
