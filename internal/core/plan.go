package core

import (
	"fmt"
	"strings"
)

// ValidatePlan checks a plan's structural integrity before it is persisted:
// phases belong to the project with unique 1-based sequences, tasks reference
// known phases with unique sequences per phase, dependency edges reference
// known tasks, and the dependency graph is acyclic. Returns the first
// violation found.
func ValidatePlan(projectID string, phases []Phase, tasks []Task, deps []Dependency) error {
	if len(phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}

	phaseSeqs := make(map[int]string, len(phases))
	phaseIDs := make(map[string]bool, len(phases))
	for _, p := range phases {
		if p.ProjectID != projectID {
			return fmt.Errorf("phase %s belongs to project %s, want %s", p.ID, p.ProjectID, projectID)
		}
		if p.Sequence < 1 {
			return fmt.Errorf("phase %s has sequence %d, must be >= 1", p.ID, p.Sequence)
		}
		if other, dup := phaseSeqs[p.Sequence]; dup {
			return fmt.Errorf("phases %s and %s share sequence %d", other, p.ID, p.Sequence)
		}
		if phaseIDs[p.ID] {
			return fmt.Errorf("duplicate phase id %s", p.ID)
		}
		phaseSeqs[p.Sequence] = p.ID
		phaseIDs[p.ID] = true
	}

	taskIDs := make(map[string]bool, len(tasks))
	taskSeqs := make(map[string]map[int]string, len(phases))
	for _, t := range tasks {
		if !phaseIDs[t.PhaseID] {
			return fmt.Errorf("task %s references unknown phase %s", t.ID, t.PhaseID)
		}
		if t.Sequence < 1 {
			return fmt.Errorf("task %s has sequence %d, must be >= 1", t.ID, t.Sequence)
		}
		if !IsValidTaskKind(t.Kind) {
			return fmt.Errorf("task %s has invalid kind %q", t.ID, t.Kind)
		}
		if taskIDs[t.ID] {
			return fmt.Errorf("duplicate task id %s", t.ID)
		}
		seqs := taskSeqs[t.PhaseID]
		if seqs == nil {
			seqs = make(map[int]string)
			taskSeqs[t.PhaseID] = seqs
		}
		if other, dup := seqs[t.Sequence]; dup {
			return fmt.Errorf("tasks %s and %s share sequence %d in phase %s", other, t.ID, t.Sequence, t.PhaseID)
		}
		seqs[t.Sequence] = t.ID
		taskIDs[t.ID] = true
	}

	for _, d := range deps {
		if !taskIDs[d.TaskID] {
			return fmt.Errorf("dependency references unknown task %s", d.TaskID)
		}
		if !taskIDs[d.DependsOn] {
			return fmt.Errorf("task %s depends on unknown task %s", d.TaskID, d.DependsOn)
		}
		if d.TaskID == d.DependsOn {
			return fmt.Errorf("task %s depends on itself", d.TaskID)
		}
	}

	if cycle := FindCycle(tasks, deps); cycle != nil {
		return fmt.Errorf("circular dependency: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

// FindCycle searches the dependency graph for a cycle and returns its path
// (first task repeated at the end), or nil when the graph is acyclic.
func FindCycle(tasks []Task, deps []Dependency) []string {
	adj := make(map[string][]string, len(tasks))
	for _, d := range deps {
		adj[d.TaskID] = append(adj[d.TaskID], d.DependsOn)
	}

	visited := make(map[string]bool, len(tasks))
	inProgress := make(map[string]bool, len(tasks))

	var cycle []string
	var dfs func(id string, path []string) bool
	dfs = func(id string, path []string) bool {
		if inProgress[id] {
			start := 0
			for i, p := range path {
				if p == id {
					start = i
					break
				}
			}
			cycle = append(append([]string{}, path[start:]...), id)
			return true
		}
		if visited[id] {
			return false
		}

		inProgress[id] = true
		path = append(path, id)
		for _, dep := range adj[id] {
			if dfs(dep, path) {
				return true
			}
		}
		inProgress[id] = false
		visited[id] = true
		return false
	}

	for _, t := range tasks {
		if !visited[t.ID] && dfs(t.ID, nil) {
			return cycle
		}
	}
	return nil
}
