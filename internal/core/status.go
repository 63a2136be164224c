package core

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectInitialized ProjectStatus = "initialized"
	ProjectPlanning    ProjectStatus = "planning"
	ProjectPlanned     ProjectStatus = "planned"
	ProjectRunning     ProjectStatus = "running"
	ProjectPaused      ProjectStatus = "paused"
	ProjectCompleted   ProjectStatus = "completed"
	ProjectFailed      ProjectStatus = "failed"
)

// ValidProjectStatuses returns all valid project statuses.
func ValidProjectStatuses() []ProjectStatus {
	return []ProjectStatus{
		ProjectInitialized, ProjectPlanning, ProjectPlanned,
		ProjectRunning, ProjectPaused, ProjectCompleted, ProjectFailed,
	}
}

// IsValidProjectStatus checks if a project status is valid.
func IsValidProjectStatus(s ProjectStatus) bool {
	for _, valid := range ValidProjectStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// PhaseStatus represents the execution state of a phase.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// ValidPhaseStatuses returns all valid phase statuses.
func ValidPhaseStatuses() []PhaseStatus {
	return []PhaseStatus{PhasePending, PhaseRunning, PhaseCompleted, PhaseFailed, PhaseSkipped}
}

// IsValidPhaseStatus checks if a phase status is valid.
func IsValidPhaseStatus(s PhaseStatus) bool {
	for _, valid := range ValidPhaseStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// TaskStatus represents the execution state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskPaused    TaskStatus = "paused"
	TaskSkipped   TaskStatus = "skipped"
)

// ValidTaskStatuses returns all valid task statuses.
func ValidTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskPending, TaskRunning, TaskCompleted, TaskFailed, TaskPaused, TaskSkipped}
}

// IsValidTaskStatus checks if a task status is valid.
func IsValidTaskStatus(s TaskStatus) bool {
	for _, valid := range ValidTaskStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// IsFinished reports whether a task no longer needs scheduling.
// Completed and skipped tasks satisfy dependencies equally.
func (s TaskStatus) IsFinished() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// SessionStatus represents the state of one Agent process invocation.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionKilled    SessionStatus = "killed"
)

// ValidSessionStatuses returns all valid session statuses.
func ValidSessionStatuses() []SessionStatus {
	return []SessionStatus{SessionRunning, SessionCompleted, SessionFailed, SessionKilled}
}

// IsValidSessionStatus checks if a session status is valid.
func IsValidSessionStatus(s SessionStatus) bool {
	for _, valid := range ValidSessionStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// TaskKind distinguishes coding work from review work.
type TaskKind string

const (
	KindCoding TaskKind = "coding"
	KindReview TaskKind = "review"
)

// ValidTaskKinds returns all valid task kinds.
func ValidTaskKinds() []TaskKind {
	return []TaskKind{KindCoding, KindReview}
}

// IsValidTaskKind checks if a task kind is valid.
func IsValidTaskKind(k TaskKind) bool {
	return k == KindCoding || k == KindReview
}

// Pane assignment per kind: coding runs on pane 0, review on pane 1.
func (k TaskKind) Pane() int {
	if k == KindReview {
		return PaneReview
	}
	return PaneCoding
}

// Pane indices. The topology is fixed at two panes.
const (
	PaneCoding = 0
	PaneReview = 1
)

// EventKind classifies entries in the append-only event log.
type EventKind string

const (
	EventStatusChange       EventKind = "status_change"
	EventProgress           EventKind = "progress"
	EventError              EventKind = "error"
	EventReviewVerdict      EventKind = "review_verdict"
	EventHumanInputRequest  EventKind = "human_input_request"
	EventHumanInputResponse EventKind = "human_input_response"
	EventEngineTick         EventKind = "engine_tick"
	// EventOverflow is synthesized by the bus when a subscriber lost
	// events; it never appears in the persisted log.
	EventOverflow EventKind = "overflow"
)

// ValidEventKinds returns all valid event kinds.
func ValidEventKinds() []EventKind {
	return []EventKind{
		EventStatusChange, EventProgress, EventError, EventReviewVerdict,
		EventHumanInputRequest, EventHumanInputResponse, EventEngineTick, EventOverflow,
	}
}

// IsValidEventKind checks if an event kind is valid.
func IsValidEventKind(k EventKind) bool {
	for _, valid := range ValidEventKinds() {
		if k == valid {
			return true
		}
	}
	return false
}

// ReviewVerdict is the outcome a review task reports.
type ReviewVerdict string

const (
	VerdictApproved         ReviewVerdict = "approved"
	VerdictChangesRequested ReviewVerdict = "changes_requested"
)

// IsValidReviewVerdict checks if a review verdict is valid.
func IsValidReviewVerdict(v ReviewVerdict) bool {
	return v == VerdictApproved || v == VerdictChangesRequested
}
