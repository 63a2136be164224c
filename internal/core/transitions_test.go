package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTaskTransition(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskPending, TaskRunning, true},
		{TaskPending, TaskSkipped, true},
		{TaskPending, TaskCompleted, false},
		{TaskPending, TaskPaused, false},
		{TaskRunning, TaskCompleted, true},
		{TaskRunning, TaskFailed, true},
		{TaskRunning, TaskPending, false},
		{TaskRunning, TaskRunning, false},
		{TaskFailed, TaskRunning, true},
		{TaskFailed, TaskPaused, true},
		{TaskFailed, TaskPending, true},
		{TaskFailed, TaskCompleted, false},
		{TaskPaused, TaskRunning, true},
		{TaskPaused, TaskPending, true},
		{TaskPaused, TaskFailed, false},
		{TaskCompleted, TaskPending, true},
		{TaskCompleted, TaskRunning, false},
		{TaskSkipped, TaskPending, true},
		{TaskSkipped, TaskRunning, false},
	}

	for _, tt := range tests {
		got := CanTaskTransition(tt.from, tt.to)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestCanSessionTransition(t *testing.T) {
	assert.True(t, CanSessionTransition(SessionRunning, SessionCompleted))
	assert.True(t, CanSessionTransition(SessionRunning, SessionFailed))
	assert.True(t, CanSessionTransition(SessionRunning, SessionKilled))

	// Terminal states have no exits.
	for _, from := range []SessionStatus{SessionCompleted, SessionFailed, SessionKilled} {
		for _, to := range ValidSessionStatuses() {
			assert.False(t, CanSessionTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanPhaseTransition(t *testing.T) {
	tests := []struct {
		from PhaseStatus
		to   PhaseStatus
		want bool
	}{
		{PhasePending, PhaseRunning, true},
		{PhasePending, PhaseSkipped, true},
		{PhaseRunning, PhaseCompleted, true},
		{PhaseRunning, PhaseFailed, true},
		{PhaseRunning, PhasePending, false},
		{PhaseFailed, PhasePending, true},
		{PhaseCompleted, PhasePending, true},
		{PhaseSkipped, PhasePending, true},
		{PhaseCompleted, PhaseRunning, false},
	}

	for _, tt := range tests {
		got := CanPhaseTransition(tt.from, tt.to)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestCanProjectTransition(t *testing.T) {
	assert.True(t, CanProjectTransition(ProjectInitialized, ProjectPlanning))
	assert.True(t, CanProjectTransition(ProjectPlanning, ProjectPlanned))
	assert.True(t, CanProjectTransition(ProjectPlanned, ProjectRunning))
	assert.True(t, CanProjectTransition(ProjectRunning, ProjectPaused))
	assert.True(t, CanProjectTransition(ProjectPaused, ProjectRunning))
	assert.True(t, CanProjectTransition(ProjectRunning, ProjectCompleted))
	assert.True(t, CanProjectTransition(ProjectFailed, ProjectPlanning))

	assert.False(t, CanProjectTransition(ProjectInitialized, ProjectRunning))
	assert.False(t, CanProjectTransition(ProjectCompleted, ProjectPaused))
}

func TestValidTransition_MatchesTypedPredicates(t *testing.T) {
	// The generic predicate and the typed tables must agree everywhere.
	for _, from := range ValidTaskStatuses() {
		for _, to := range ValidTaskStatuses() {
			want := CanTaskTransition(from, to)
			got := ValidTransition(EntityTask, string(from), string(to))
			assert.Equal(t, want, got, "task %s -> %s", from, to)
		}
	}
	for _, from := range ValidSessionStatuses() {
		for _, to := range ValidSessionStatuses() {
			want := CanSessionTransition(from, to)
			got := ValidTransition(EntitySession, string(from), string(to))
			assert.Equal(t, want, got, "session %s -> %s", from, to)
		}
	}
	for _, from := range ValidPhaseStatuses() {
		for _, to := range ValidPhaseStatuses() {
			want := CanPhaseTransition(from, to)
			got := ValidTransition(EntityPhase, string(from), string(to))
			assert.Equal(t, want, got, "phase %s -> %s", from, to)
		}
	}
}

func TestValidTransition_UnknownEntity(t *testing.T) {
	assert.False(t, ValidTransition(EntityKind("queue"), "pending", "running"))
	assert.False(t, ValidTransition(EntityTask, "bogus", "running"))
	assert.False(t, ValidTransition(EntityTask, "pending", "bogus"))
}

func TestDerivePhaseStatus(t *testing.T) {
	mk := func(statuses ...TaskStatus) []Task {
		tasks := make([]Task, len(statuses))
		for i, s := range statuses {
			tasks[i] = Task{ID: "t", Status: s}
		}
		return tasks
	}

	tests := []struct {
		name  string
		tasks []Task
		want  PhaseStatus
	}{
		{"no tasks", nil, PhasePending},
		{"all pending", mk(TaskPending, TaskPending), PhasePending},
		{"one running", mk(TaskCompleted, TaskRunning), PhaseRunning},
		{"all completed", mk(TaskCompleted, TaskCompleted), PhaseCompleted},
		{"completed and skipped", mk(TaskCompleted, TaskSkipped), PhaseCompleted},
		{"failed with pending left", mk(TaskFailed, TaskPending), PhasePending},
		{"failed with running left", mk(TaskFailed, TaskRunning), PhaseRunning},
		{"failed settled", mk(TaskFailed, TaskCompleted), PhaseFailed},
		{"paused and failed", mk(TaskPaused, TaskFailed), PhaseFailed},
		{"paused only", mk(TaskPaused), PhasePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePhaseStatus(tt.tasks))
		})
	}
}
