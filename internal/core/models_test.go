package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProject(t *testing.T) {
	p, err := NewProject("proj-1", "demo", "/tmp/demo")
	require.NoError(t, err)

	assert.Equal(t, "proj-1", p.ID)
	assert.Equal(t, ProjectInitialized, p.Status)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestNewProject_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		pname   string
		rootDir string
	}{
		{"empty id", "", "demo", "/tmp/demo"},
		{"empty name", "proj-1", "", "/tmp/demo"},
		{"empty root", "proj-1", "demo", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProject(tt.id, tt.pname, tt.rootDir)
			assert.Error(t, err)
		})
	}
}

func TestNewPhase(t *testing.T) {
	ph, err := NewPhase("phase-1", "proj-1", 1, "Foundation")
	require.NoError(t, err)

	assert.Equal(t, PhasePending, ph.Status)
	assert.Equal(t, 1, ph.Sequence)
}

func TestNewPhase_SequenceMustBePositive(t *testing.T) {
	_, err := NewPhase("phase-1", "proj-1", 0, "Foundation")
	assert.Error(t, err)

	_, err = NewPhase("phase-1", "proj-1", -3, "Foundation")
	assert.Error(t, err)
}

func TestNewTask(t *testing.T) {
	task, err := NewTask("task-1", "phase-1", 1, KindCoding, "implement parser")
	require.NoError(t, err)

	assert.Equal(t, TaskPending, task.Status)
	assert.Equal(t, 0, task.RetryCount)
	assert.Empty(t, task.ErrorContext)
}

func TestNewTask_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		phaseID  string
		sequence int
		kind     TaskKind
		taskName string
	}{
		{"empty id", "", "phase-1", 1, KindCoding, "x"},
		{"empty phase", "task-1", "", 1, KindCoding, "x"},
		{"zero sequence", "task-1", "phase-1", 0, KindCoding, "x"},
		{"bad kind", "task-1", "phase-1", 1, TaskKind("qa"), "x"},
		{"empty name", "task-1", "phase-1", 1, KindReview, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTask(tt.id, tt.phaseID, tt.sequence, tt.kind, tt.taskName)
			assert.Error(t, err)
		})
	}
}

func TestNewSession(t *testing.T) {
	s, err := NewSession("sess-1", "task-1", PaneCoding, 4242)
	require.NoError(t, err)

	assert.Equal(t, SessionRunning, s.Status)
	assert.Nil(t, s.EndedAt)
	assert.Nil(t, s.ExitCode)
}

func TestNewSession_RejectsUnknownPane(t *testing.T) {
	_, err := NewSession("sess-1", "task-1", 2, 4242)
	assert.Error(t, err)
}

func TestTaskKind_Pane(t *testing.T) {
	assert.Equal(t, PaneCoding, KindCoding.Pane())
	assert.Equal(t, PaneReview, KindReview.Pane())
}

func TestTaskStatus_IsFinished(t *testing.T) {
	assert.True(t, TaskCompleted.IsFinished())
	assert.True(t, TaskSkipped.IsFinished())
	assert.False(t, TaskPending.IsFinished())
	assert.False(t, TaskRunning.IsFinished())
	assert.False(t, TaskFailed.IsFinished())
	assert.False(t, TaskPaused.IsFinished())
}

func TestIsValidStatusHelpers(t *testing.T) {
	assert.True(t, IsValidTaskStatus(TaskPaused))
	assert.False(t, IsValidTaskStatus(TaskStatus("queued")))

	assert.True(t, IsValidSessionStatus(SessionKilled))
	assert.False(t, IsValidSessionStatus(SessionStatus("stopped")))

	assert.True(t, IsValidPhaseStatus(PhaseSkipped))
	assert.False(t, IsValidPhaseStatus(PhaseStatus("done")))

	assert.True(t, IsValidProjectStatus(ProjectPlanned))
	assert.False(t, IsValidProjectStatus(ProjectStatus("archived")))

	assert.True(t, IsValidTaskKind(KindReview))
	assert.False(t, IsValidTaskKind(TaskKind("deploy")))

	assert.True(t, IsValidReviewVerdict(VerdictChangesRequested))
	assert.False(t, IsValidReviewVerdict(ReviewVerdict("maybe")))
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventProgress, "task-1", `{"pct":40}`)

	assert.Equal(t, EventProgress, e.Kind)
	assert.Equal(t, "task-1", e.Subject)
	assert.False(t, e.CreatedAt.IsZero())
	assert.Zero(t, e.ID)
}
