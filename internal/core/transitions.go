package core

// EntityKind names the entity a transition applies to.
type EntityKind string

const (
	EntityProject EntityKind = "project"
	EntityPhase   EntityKind = "phase"
	EntityTask    EntityKind = "task"
	EntitySession EntityKind = "session"
)

// taskTransitions is the legal task status graph.
//
//	pending  -> running, skipped
//	running  -> completed, failed
//	failed   -> running (retry), paused, pending (reset)
//	paused   -> running (manual retry), pending (reset)
//	completed, skipped -> pending (reset only)
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:   {TaskRunning, TaskSkipped},
	TaskRunning:   {TaskCompleted, TaskFailed},
	TaskFailed:    {TaskRunning, TaskPaused, TaskPending},
	TaskPaused:    {TaskRunning, TaskPending},
	TaskCompleted: {TaskPending},
	TaskSkipped:   {TaskPending},
}

// sessionTransitions: sessions only ever leave running.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionRunning: {SessionCompleted, SessionFailed, SessionKilled},
}

// phaseTransitions includes the reset edges used by replan.
var phaseTransitions = map[PhaseStatus][]PhaseStatus{
	PhasePending:   {PhaseRunning, PhaseSkipped},
	PhaseRunning:   {PhaseCompleted, PhaseFailed},
	PhaseFailed:    {PhasePending},
	PhaseCompleted: {PhasePending},
	PhaseSkipped:   {PhasePending},
}

// projectTransitions covers the project lifecycle driven by init, plan,
// run, pause/resume, and replan.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectInitialized: {ProjectPlanning},
	ProjectPlanning:    {ProjectPlanned, ProjectFailed},
	ProjectPlanned:     {ProjectRunning, ProjectPlanning},
	ProjectRunning:     {ProjectPaused, ProjectCompleted, ProjectFailed},
	ProjectPaused:      {ProjectRunning, ProjectFailed},
	ProjectCompleted:   {ProjectPlanning, ProjectRunning},
	ProjectFailed:      {ProjectPlanning, ProjectRunning},
}

// CanTaskTransition reports whether a task may move from one status to
// another.
func CanTaskTransition(from, to TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanSessionTransition reports whether a session may move from one status
// to another.
func CanSessionTransition(from, to SessionStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanPhaseTransition reports whether a phase may move from one status to
// another.
func CanPhaseTransition(from, to PhaseStatus) bool {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanProjectTransition reports whether a project may move from one status
// to another.
func CanProjectTransition(from, to ProjectStatus) bool {
	for _, next := range projectTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidTransition is the generic transition predicate over entity kind and
// raw status strings. Unknown entities and statuses are invalid.
func ValidTransition(entity EntityKind, from, to string) bool {
	switch entity {
	case EntityTask:
		return CanTaskTransition(TaskStatus(from), TaskStatus(to))
	case EntitySession:
		return CanSessionTransition(SessionStatus(from), SessionStatus(to))
	case EntityPhase:
		return CanPhaseTransition(PhaseStatus(from), PhaseStatus(to))
	case EntityProject:
		return CanProjectTransition(ProjectStatus(from), ProjectStatus(to))
	default:
		return false
	}
}

// DerivePhaseStatus computes a phase's status from its tasks:
// completed when every task is completed or skipped; failed when any task
// failed and none is pending or running; running when any task runs;
// otherwise pending.
func DerivePhaseStatus(tasks []Task) PhaseStatus {
	if len(tasks) == 0 {
		return PhasePending
	}

	allFinished := true
	anyFailed := false
	anyPendingOrRunning := false
	anyRunning := false
	for _, t := range tasks {
		if !t.Status.IsFinished() {
			allFinished = false
		}
		switch t.Status {
		case TaskFailed:
			anyFailed = true
		case TaskRunning:
			anyRunning = true
			anyPendingOrRunning = true
		case TaskPending:
			anyPendingOrRunning = true
		}
	}

	switch {
	case allFinished:
		return PhaseCompleted
	case anyFailed && !anyPendingOrRunning:
		return PhaseFailed
	case anyRunning:
		return PhaseRunning
	default:
		return PhasePending
	}
}
