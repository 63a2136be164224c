// Package brief turns tasks into the markdown files agent sessions read
// as their instructions. Rendering is deterministic for given inputs;
// writes are atomic so a half-written brief is never dispatched.
package brief

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/randalmurphal/tc/templates"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/retry"
	"github.com/randalmurphal/tc/internal/util"
)

// TaskBriefInputs carries everything a task brief can mention.
type TaskBriefInputs struct {
	Task            core.Task
	Phase           core.Phase
	TotalPhases     int
	ProjectName     string
	ProjectOverview string
	// CompletedTasks holds preformatted "name: summary" lines for
	// finished dependencies.
	CompletedTasks []string
	// ReviewFindings carries reviewer findings into follow-up coding
	// tasks.
	ReviewFindings []string

	// Review-only fields.
	SourceTask        *core.Task
	CompletionSummary string
	FilesChanged      []string

	ControlEndpoint string
	SessionToken    string
}

// PlanningInputs feeds the initial planning brief.
type PlanningInputs struct {
	ProjectName      string
	PRDContent       string
	BootstrapContent string
}

// ReplanInputs feeds the replanning brief.
type ReplanInputs struct {
	PlanningInputs
	// CurrentPlan is the serialized existing plan shown to the planner.
	CurrentPlan string
	Reason      string
}

// TaskBrief renders the brief for one dispatch. Template choice follows
// the task: coding or review, retry variant once the task has failed
// before.
func TaskBrief(in TaskBriefInputs) (string, error) {
	name := templateFor(in.Task)
	vars, err := taskVars(in)
	if err != nil {
		return "", err
	}
	return render(name, vars)
}

// WriteTaskBrief renders and atomically writes the brief to
// <briefsDir>/<task-id>.md, returning the path.
func WriteTaskBrief(briefsDir string, in TaskBriefInputs) (string, error) {
	content, err := TaskBrief(in)
	if err != nil {
		return "", err
	}
	path := filepath.Join(briefsDir, in.Task.ID+".md")
	if err := util.AtomicWriteFileString(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write brief for task %s: %w", in.Task.ID, err)
	}
	return path, nil
}

// PlanningBrief renders the initial planning prompt.
func PlanningBrief(in PlanningInputs) (string, error) {
	return render("planning.md", Vars{
		"PROJECT_NAME":      in.ProjectName,
		"PRD_CONTENT":       in.PRDContent,
		"BOOTSTRAP_CONTENT": in.BootstrapContent,
	})
}

// ReplanBrief renders the wholesale replanning prompt.
func ReplanBrief(in ReplanInputs) (string, error) {
	return render("replan.md", Vars{
		"PROJECT_NAME":      in.ProjectName,
		"PRD_CONTENT":       in.PRDContent,
		"BOOTSTRAP_CONTENT": in.BootstrapContent,
		"CURRENT_PLAN":      in.CurrentPlan,
		"REPLAN_REASON":     in.Reason,
	})
}

func templateFor(task core.Task) string {
	isRetry := task.RetryCount > 0
	if task.Kind == core.KindReview {
		if isRetry {
			return "retry_review.md"
		}
		return "review.md"
	}
	if isRetry {
		return "retry_coding.md"
	}
	return "coding.md"
}

func taskVars(in TaskBriefInputs) (Vars, error) {
	vars := Vars{
		"TASK_ID":          in.Task.ID,
		"TASK_NAME":        in.Task.Name,
		"TASK_DESCRIPTION": in.Task.Description,
		"PHASE_NAME":       in.Phase.Name,
		"PHASE_NUMBER":     strconv.Itoa(in.Phase.Sequence),
		"TOTAL_PHASES":     strconv.Itoa(in.TotalPhases),
		"PROJECT_NAME":     in.ProjectName,
		"PROJECT_OVERVIEW": in.ProjectOverview,
		"COMPLETED_TASKS":  bulletList(in.CompletedTasks),
		"REVIEW_FINDINGS":  bulletList(in.ReviewFindings),
		"CONTROL_ENDPOINT": in.ControlEndpoint,
		"SESSION_TOKEN":    in.SessionToken,
		"ATTEMPT":          strconv.Itoa(in.Task.RetryCount + 1),
	}
	if in.Task.RetryCount > 0 {
		vars["ERROR_CONTEXT"] = retry.FailureContext(in.Task.RetryCount, in.Task.ErrorContext)
	}
	if in.Task.Kind == core.KindReview {
		if in.SourceTask == nil {
			return nil, fmt.Errorf("review brief for task %s needs the reviewed task", in.Task.ID)
		}
		vars["SOURCE_TASK_ID"] = in.SourceTask.ID
		vars["SOURCE_TASK_NAME"] = in.SourceTask.Name
		vars["FILES_CHANGED"] = bulletList(in.FilesChanged)
		vars["COMPLETION_SUMMARY"] = in.CompletionSummary
	}
	return vars, nil
}

func render(name string, vars Vars) (string, error) {
	raw, err := templates.Prompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	out, missing := RenderStrict(string(raw), vars)
	if len(missing) > 0 {
		return "", fmt.Errorf("template %s missing variables: %s", name, strings.Join(missing, ", "))
	}
	return out, nil
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
