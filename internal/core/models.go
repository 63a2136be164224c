// Package core defines the Terminal Coder domain model: projects, phases,
// tasks, sessions, events, and the state machine governing their statuses.
// It has no I/O; persistence lives in internal/db and decisions in
// internal/scheduler.
package core

import (
	"fmt"
	"time"
)

// Project is the root entity, one per orchestrated directory.
type Project struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	RootDir   string        `json:"root_dir" yaml:"root_dir"`
	Status    ProjectStatus `json:"status" yaml:"status"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" yaml:"updated_at"`
}

// NewProject creates a project in the initialized state.
func NewProject(id, name, rootDir string) (Project, error) {
	if id == "" {
		return Project{}, fmt.Errorf("project id must not be empty")
	}
	if name == "" {
		return Project{}, fmt.Errorf("project name must not be empty")
	}
	if rootDir == "" {
		return Project{}, fmt.Errorf("project root directory must not be empty")
	}
	now := time.Now().UTC()
	return Project{
		ID:        id,
		Name:      name,
		RootDir:   rootDir,
		Status:    ProjectInitialized,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Phase groups tasks and gates the phases behind it.
type Phase struct {
	ID          string      `json:"id" yaml:"id"`
	ProjectID   string      `json:"project_id" yaml:"project_id"`
	Sequence    int         `json:"sequence" yaml:"sequence"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Status      PhaseStatus `json:"status" yaml:"status"`
}

// NewPhase creates a pending phase. Sequence is 1-based.
func NewPhase(id, projectID string, sequence int, name string) (Phase, error) {
	if id == "" || projectID == "" {
		return Phase{}, fmt.Errorf("phase id and project id must not be empty")
	}
	if sequence < 1 {
		return Phase{}, fmt.Errorf("phase sequence must be >= 1, got %d", sequence)
	}
	if name == "" {
		return Phase{}, fmt.Errorf("phase name must not be empty")
	}
	return Phase{
		ID:        id,
		ProjectID: projectID,
		Sequence:  sequence,
		Name:      name,
		Status:    PhasePending,
	}, nil
}

// Task is the atomic unit of Agent work.
type Task struct {
	ID           string     `json:"id" yaml:"id"`
	PhaseID      string     `json:"phase_id" yaml:"phase_id"`
	Sequence     int        `json:"sequence" yaml:"sequence"`
	Kind         TaskKind   `json:"kind" yaml:"kind"`
	Name         string     `json:"name" yaml:"name"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty"`
	BriefPath    string     `json:"brief_path,omitempty" yaml:"brief_path,omitempty"`
	Status       TaskStatus `json:"status" yaml:"status"`
	RetryCount   int        `json:"retry_count" yaml:"retry_count"`
	ErrorContext string     `json:"error_context,omitempty" yaml:"error_context,omitempty"`
	// TimeoutSecs bounds one session's wall clock; 0 means unbounded.
	TimeoutSecs int `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty"`
}

// NewTask creates a pending task. Sequence is 1-based within the phase.
func NewTask(id, phaseID string, sequence int, kind TaskKind, name string) (Task, error) {
	if id == "" || phaseID == "" {
		return Task{}, fmt.Errorf("task id and phase id must not be empty")
	}
	if sequence < 1 {
		return Task{}, fmt.Errorf("task sequence must be >= 1, got %d", sequence)
	}
	if !IsValidTaskKind(kind) {
		return Task{}, fmt.Errorf("invalid task kind %q", kind)
	}
	if name == "" {
		return Task{}, fmt.Errorf("task name must not be empty")
	}
	return Task{
		ID:       id,
		PhaseID:  phaseID,
		Sequence: sequence,
		Kind:     kind,
		Name:     name,
		Status:   TaskPending,
	}, nil
}

// MaxRetryCount caps automatic retries per task.
const MaxRetryCount = 1

// Dependency is one edge of the task DAG: Task waits for DependsOn.
type Dependency struct {
	TaskID    string `json:"task_id" yaml:"task_id"`
	DependsOn string `json:"depends_on" yaml:"depends_on"`
}

// Session is one Agent process bound to one task and one pane.
type Session struct {
	ID        string        `json:"id" yaml:"id"`
	TaskID    string        `json:"task_id" yaml:"task_id"`
	Pane      int           `json:"pane" yaml:"pane"`
	ProcessID int           `json:"process_id,omitempty" yaml:"process_id,omitempty"`
	Status    SessionStatus `json:"status" yaml:"status"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	ExitCode  *int          `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
}

// NewSession creates a running session record.
func NewSession(id, taskID string, pane, processID int) (Session, error) {
	if id == "" || taskID == "" {
		return Session{}, fmt.Errorf("session id and task id must not be empty")
	}
	if pane != PaneCoding && pane != PaneReview {
		return Session{}, fmt.Errorf("pane must be %d or %d, got %d", PaneCoding, PaneReview, pane)
	}
	return Session{
		ID:        id,
		TaskID:    taskID,
		Pane:      pane,
		ProcessID: processID,
		Status:    SessionRunning,
		StartedAt: time.Now().UTC(),
	}, nil
}

// Event is one row of the append-only log. Payload is structured JSON.
type Event struct {
	ID        int64     `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Kind      EventKind `json:"kind" yaml:"kind"`
	Subject   string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Payload   string    `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// NewEvent creates an event stamped with the current time. The ID is
// assigned by the store on append.
func NewEvent(kind EventKind, subject, payload string) Event {
	return Event{
		CreatedAt: time.Now().UTC(),
		Kind:      kind,
		Subject:   subject,
		Payload:   payload,
	}
}
