package core

import "sort"

// Snapshot is a consistent read of one project's plan state: phases, tasks,
// and dependency edges as of a single repository transaction. The scheduler
// consumes it as a pure value; it is never shared across ticks.
type Snapshot struct {
	ProjectID string
	Project   Project
	Phases    []Phase
	Tasks     []Task
	Deps      []Dependency
}

// Normalize sorts phases by sequence and tasks by (phase sequence, task
// sequence) so iteration order is deterministic.
func (s *Snapshot) Normalize() {
	sort.Slice(s.Phases, func(i, j int) bool {
		return s.Phases[i].Sequence < s.Phases[j].Sequence
	})
	order := make(map[string]int, len(s.Phases))
	for _, p := range s.Phases {
		order[p.ID] = p.Sequence
	}
	sort.Slice(s.Tasks, func(i, j int) bool {
		if order[s.Tasks[i].PhaseID] != order[s.Tasks[j].PhaseID] {
			return order[s.Tasks[i].PhaseID] < order[s.Tasks[j].PhaseID]
		}
		return s.Tasks[i].Sequence < s.Tasks[j].Sequence
	})
}

// TaskByID returns the task with the given id, if present.
func (s *Snapshot) TaskByID(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// PhaseByID returns the phase with the given id, if present.
func (s *Snapshot) PhaseByID(id string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// TasksForPhase returns the phase's tasks in ascending sequence order.
func (s *Snapshot) TasksForPhase(phaseID string) []Task {
	var out []Task
	for _, t := range s.Tasks {
		if t.PhaseID == phaseID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// DependenciesOf returns the ids a task depends on.
func (s *Snapshot) DependenciesOf(taskID string) []string {
	var out []string
	for _, d := range s.Deps {
		if d.TaskID == taskID {
			out = append(out, d.DependsOn)
		}
	}
	return out
}

// UnmetDependencies returns the dependency ids of taskID that are not yet
// completed or skipped. Edges pointing at unknown tasks count as unmet so a
// corrupted plan blocks rather than runs.
func (s *Snapshot) UnmetDependencies(taskID string) []string {
	var unmet []string
	for _, depID := range s.DependenciesOf(taskID) {
		dep, ok := s.TaskByID(depID)
		if !ok || !dep.Status.IsFinished() {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}

// RunningTasks returns every task currently marked running.
func (s *Snapshot) RunningTasks() []Task {
	var out []Task
	for _, t := range s.Tasks {
		if t.Status == TaskRunning {
			out = append(out, t)
		}
	}
	return out
}

// AllFinished reports whether every task is completed or skipped.
func (s *Snapshot) AllFinished() bool {
	if len(s.Tasks) == 0 {
		return false
	}
	for _, t := range s.Tasks {
		if !t.Status.IsFinished() {
			return false
		}
	}
	return true
}

// MaxSequence returns the highest task sequence within a phase, or 0.
func (s *Snapshot) MaxSequence(phaseID string) int {
	max := 0
	for _, t := range s.Tasks {
		if t.PhaseID == phaseID && t.Sequence > max {
			max = t.Sequence
		}
	}
	return max
}
