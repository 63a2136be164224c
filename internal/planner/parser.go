package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/tc/internal/core"
)

// PlannedTask is one task as proposed by the Agent. DependsOn holds
// global task numbers: tasks are numbered 0..n-1 in order of appearance
// across all phases, and a dependency must point at an earlier number.
type PlannedTask struct {
	Name        string
	Kind        core.TaskKind
	Description string
	DependsOn   []int
	TimeoutSecs int
}

// PlannedPhase groups proposed tasks under one milestone.
type PlannedPhase struct {
	Name        string
	Description string
	Tasks       []PlannedTask
}

// Plan is the decoded planning payload.
type Plan struct {
	Phases []PlannedPhase
	// ClaudeMD carries the agent-standards content destined for the
	// project's CLAUDE.md.
	ClaudeMD string
}

// TaskCount returns the total number of proposed tasks.
func (p *Plan) TaskCount() int {
	n := 0
	for _, ph := range p.Phases {
		n += len(ph.Tasks)
	}
	return n
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// ExtractJSON pulls the first JSON object out of an Agent response:
// the first fenced code block holding an object when one exists,
// otherwise the first balanced object found by brace matching. Agents
// wrap their output in prose often enough that neither path can be
// skipped.
func ExtractJSON(response string) (string, error) {
	for _, m := range fencedBlock.FindAllStringSubmatch(response, -1) {
		candidate := strings.TrimSpace(m[1])
		if strings.HasPrefix(candidate, "{") {
			return candidate, nil
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return "", fmt.Errorf("no JSON object in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in response")
}

// ParsePlan decodes and validates a planning payload. Missing names and
// kinds get defaults; structural problems are errors because the stored
// plan must be runnable as-is.
func ParsePlan(doc string) (*Plan, error) {
	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("plan is not valid JSON")
	}
	root := gjson.Parse(doc)
	phasesField := root.Get("phases")
	if !phasesField.IsArray() {
		return nil, fmt.Errorf(`plan has no "phases" array`)
	}

	plan := &Plan{ClaudeMD: root.Get("claude_md").String()}
	for _, ph := range phasesField.Array() {
		phase := PlannedPhase{
			Name:        stringOr(ph.Get("name"), "Unnamed Phase"),
			Description: ph.Get("description").String(),
		}
		for _, t := range ph.Get("tasks").Array() {
			task := PlannedTask{
				Name:        stringOr(t.Get("name"), "Unnamed Task"),
				Kind:        core.TaskKind(stringOr(t.Get("kind"), string(core.KindCoding))),
				Description: t.Get("description").String(),
				TimeoutSecs: int(t.Get("timeout_secs").Int()),
			}
			if task.TimeoutSecs < 0 {
				task.TimeoutSecs = 0
			}
			for _, d := range t.Get("depends_on").Array() {
				if d.Type != gjson.Number {
					return nil, fmt.Errorf("task %q has a non-numeric dependency %s", task.Name, d.Raw)
				}
				task.DependsOn = append(task.DependsOn, int(d.Int()))
			}
			phase.Tasks = append(phase.Tasks, task)
		}
		plan.Phases = append(plan.Phases, phase)
	}

	if err := plan.validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// validate enforces the structural contract before any IDs are minted:
// at least one phase, no empty phases, known kinds, and dependency
// numbers that resolve to an earlier task. The ordering rule makes
// cycles impossible by construction.
func (p *Plan) validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}
	total := p.TaskCount()
	if total == 0 {
		return fmt.Errorf("plan has no tasks")
	}

	index := 0
	for i, ph := range p.Phases {
		if len(ph.Tasks) == 0 {
			return fmt.Errorf("phase %d (%s) has no tasks", i+1, ph.Name)
		}
		for _, t := range ph.Tasks {
			if !core.IsValidTaskKind(t.Kind) {
				return fmt.Errorf("task %d (%s) has unknown kind %q", index, t.Name, t.Kind)
			}
			for _, dep := range t.DependsOn {
				if dep < 0 || dep >= total {
					return fmt.Errorf("task %d (%s) depends on nonexistent task %d", index, t.Name, dep)
				}
				if dep >= index {
					return fmt.Errorf("task %d (%s) depends on task %d, which does not come before it", index, t.Name, dep)
				}
			}
			index++
		}
	}
	return nil
}

func stringOr(r gjson.Result, fallback string) string {
	if s := strings.TrimSpace(r.String()); s != "" {
		return s
	}
	return fallback
}
