// Package errors provides structured error types for tc.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for tc.
const (
	// Project errors
	CodeNotInitialized     Code = "TC_NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "TC_ALREADY_INITIALIZED"
	CodeProjectNotFound    Code = "PROJECT_NOT_FOUND"

	// Validation errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodePlanInvalid     Code = "PLAN_INVALID"
	CodePlanCycle       Code = "PLAN_CYCLE"
	CodeBootstrapFailed Code = "BOOTSTRAP_FAILED"
	CodeConfigInvalid   Code = "CONFIG_INVALID"

	// Precondition errors
	CodeTaskNotFound      Code = "TASK_NOT_FOUND"
	CodePhaseNotFound     Code = "PHASE_NOT_FOUND"
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeTaskNotRunning    Code = "TASK_NOT_RUNNING"
	CodeWrongTaskKind     Code = "WRONG_TASK_KIND"
	CodeBadSessionToken   Code = "BAD_SESSION_TOKEN"
	CodeEngineRunning     Code = "ENGINE_RUNNING"
	CodeNoPlan            Code = "NO_PLAN"
	CodeAlreadyPlanned    Code = "ALREADY_PLANNED"

	// Run-level errors
	CodeTaskFailed    Code = "TASK_FAILED"
	CodeDeadlock      Code = "DEADLOCK"
	CodeAgentTimeout  Code = "AGENT_TIMEOUT"
	CodeInputTimedOut Code = "HUMAN_INPUT_TIMEOUT"

	// Infrastructure errors
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodePaneUnavailable  Code = "PANE_UNAVAILABLE"
	CodeAgentUnavailable Code = "AGENT_UNAVAILABLE"
)

// Kind groups error codes for exit-code and HTTP status mapping. Errors
// are always tagged by kind, never matched by text.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindPrecondition   Kind = "precondition"
	KindTaskFailure    Kind = "task_failure"
	KindDeadlock       Kind = "deadlock"
	KindInfrastructure Kind = "infrastructure"
)

// codeKinds maps error codes to their kinds.
var codeKinds = map[Code]Kind{
	CodeNotInitialized:     KindPrecondition,
	CodeAlreadyInitialized: KindPrecondition,
	CodeProjectNotFound:    KindPrecondition,
	CodeInvalidArgument:    KindValidation,
	CodePlanInvalid:        KindValidation,
	CodePlanCycle:          KindValidation,
	CodeBootstrapFailed:    KindValidation,
	CodeConfigInvalid:      KindValidation,
	CodeTaskNotFound:       KindPrecondition,
	CodePhaseNotFound:      KindPrecondition,
	CodeSessionNotFound:    KindPrecondition,
	CodeInvalidTransition:  KindPrecondition,
	CodeTaskNotRunning:     KindPrecondition,
	CodeWrongTaskKind:      KindPrecondition,
	CodeBadSessionToken:    KindPrecondition,
	CodeEngineRunning:      KindPrecondition,
	CodeNoPlan:             KindPrecondition,
	CodeAlreadyPlanned:     KindPrecondition,
	CodeTaskFailed:         KindTaskFailure,
	CodeDeadlock:           KindDeadlock,
	CodeAgentTimeout:       KindTaskFailure,
	CodeInputTimedOut:      KindTaskFailure,
	CodeStoreUnavailable:   KindInfrastructure,
	CodePaneUnavailable:    KindInfrastructure,
	CodeAgentUnavailable:   KindInfrastructure,
}

// ExitCode returns the process exit code for a kind: 2 validation,
// 4 precondition, 5 deadlock or fatal task failure, 1 infrastructure or
// unknown.
func (k Kind) ExitCode() int {
	switch k {
	case KindValidation:
		return 2
	case KindPrecondition:
		return 4
	case KindTaskFailure, KindDeadlock:
		return 5
	default:
		return 1
	}
}

// HTTPStatus returns the HTTP status the control plane uses for a kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return 400
	case KindPrecondition:
		return 409
	case KindTaskFailure:
		return 422
	case KindDeadlock:
		return 409
	case KindInfrastructure:
		return 503
	default:
		return 500
	}
}

// TCError is the structured error type for tc.
type TCError struct {
	Code    Code   `json:"code"`
	Subject string `json:"subject,omitempty"` // offending task/session/phase id
	What    string `json:"what"`
	Why     string `json:"why,omitempty"`
	Fix     string `json:"fix,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *TCError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *TCError) Unwrap() error {
	return e.Cause
}

// Kind returns the error kind for this error's code.
func (e *TCError) Kind() Kind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindInfrastructure
}

// ExitCode returns the CLI exit code for this error. The missing-project
// case has its own code (3) distinct from other precondition failures.
func (e *TCError) ExitCode() int {
	if e.Code == CodeNotInitialized || e.Code == CodeProjectNotFound {
		return 3
	}
	return e.Kind().ExitCode()
}

// HTTPStatus returns the control-plane HTTP status for this error.
func (e *TCError) HTTPStatus() int {
	switch e.Code {
	case CodeTaskNotFound, CodePhaseNotFound, CodeSessionNotFound:
		return 404
	case CodeBadSessionToken:
		return 403
	}
	return e.Kind().HTTPStatus()
}

// UserMessage returns a short user-facing rendering: one line, the stable
// kind, and the offending subject when known.
func (e *TCError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	b.WriteString(" [")
	b.WriteString(string(e.Kind()))
	b.WriteString("]")
	if e.Subject != "" {
		b.WriteString(" (")
		b.WriteString(e.Subject)
		b.WriteString(")")
	}
	if e.Fix != "" {
		b.WriteString("\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// MarshalJSON implements json.Marshaler.
func (e *TCError) MarshalJSON() ([]byte, error) {
	type alias TCError
	aux := struct {
		*alias
		Kind     Kind   `json:"kind"`
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
		Kind:  e.Kind(),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a TCError with the same code.
func (e *TCError) Is(target error) bool {
	t, ok := target.(*TCError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *TCError) WithCause(err error) *TCError {
	return &TCError{
		Code:    e.Code,
		Subject: e.Subject,
		What:    e.What,
		Why:     e.Why,
		Fix:     e.Fix,
		Cause:   err,
	}
}

// WithSubject returns a copy of the error pointing at a subject id.
func (e *TCError) WithSubject(subject string) *TCError {
	out := *e
	out.Subject = subject
	return &out
}

// --- Error constructors ---

// ErrNotInitialized returns an error for a directory with no project.
func ErrNotInitialized(dir string) *TCError {
	return &TCError{
		Code: CodeNotInitialized,
		What: "no tc project in this directory",
		Why:  fmt.Sprintf("no .tc/ directory found at %s", dir),
		Fix:  "Run 'tc init <dir> --prd <prd.md> --bootstrap <bootstrap.md>' first",
	}
}

// ErrAlreadyInitialized returns an error when a project already exists.
func ErrAlreadyInitialized(path string) *TCError {
	return &TCError{
		Code: CodeAlreadyInitialized,
		What: "tc is already initialized here",
		Why:  fmt.Sprintf("found existing .tc/ directory at %s", path),
		Fix:  "Remove .tc/ to start over, or run 'tc plan --replan' to regenerate the plan",
	}
}

// ErrProjectNotFound returns an error when the store holds no project row.
func ErrProjectNotFound(id string) *TCError {
	return &TCError{
		Code:    CodeProjectNotFound,
		Subject: id,
		What:    "project not found",
		Why:     "the store exists but holds no matching project record",
		Fix:     "Re-run 'tc init' to create the project",
	}
}

// ErrInvalidArgument returns a CLI argument validation error.
func ErrInvalidArgument(what string) *TCError {
	return &TCError{
		Code: CodeInvalidArgument,
		What: what,
	}
}

// ErrPlanInvalid returns an error for a malformed plan.
func ErrPlanInvalid(reason string) *TCError {
	return &TCError{
		Code: CodePlanInvalid,
		What: "planning output is invalid",
		Why:  reason,
		Fix:  "Re-run 'tc plan'; if it persists, check prd.md for ambiguity",
	}
}

// ErrPlanCycle returns an error when the plan's dependency graph has a cycle.
func ErrPlanCycle(cycle string) *TCError {
	return &TCError{
		Code: CodePlanCycle,
		What: "plan has a dependency cycle",
		Why:  cycle,
		Fix:  "Regenerate the plan with 'tc plan --replan'",
	}
}

// ErrBootstrapFailed returns an error when bootstrap verification failed.
func ErrBootstrapFailed(failed int) *TCError {
	return &TCError{
		Code: CodeBootstrapFailed,
		What: fmt.Sprintf("%d bootstrap check(s) failed", failed),
		Fix:  "Fix the failing checks listed above, then run 'tc verify' again",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *TCError {
	return &TCError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .tc/config.yaml and the TC_* environment variables",
	}
}

// ErrTaskNotFound returns an error when a task does not exist.
func ErrTaskNotFound(id string) *TCError {
	return &TCError{
		Code:    CodeTaskNotFound,
		Subject: id,
		What:    fmt.Sprintf("task %s not found", id),
		Fix:     "Run 'tc status' to list tasks",
	}
}

// ErrPhaseNotFound returns an error when a phase does not exist.
func ErrPhaseNotFound(id string) *TCError {
	return &TCError{
		Code:    CodePhaseNotFound,
		Subject: id,
		What:    fmt.Sprintf("phase %s not found", id),
		Fix:     "Run 'tc status' to list phases",
	}
}

// ErrSessionNotFound returns an error when a session does not exist.
func ErrSessionNotFound(id string) *TCError {
	return &TCError{
		Code:    CodeSessionNotFound,
		Subject: id,
		What:    fmt.Sprintf("session %s not found", id),
	}
}

// ErrInvalidTransition flags an illegal state-machine move. These indicate
// a caller bug and must never mutate state.
func ErrInvalidTransition(entity, id, from, to string) *TCError {
	return &TCError{
		Code:    CodeInvalidTransition,
		Subject: id,
		What:    fmt.Sprintf("illegal %s transition %s -> %s", entity, from, to),
		Why:     "the requested status change violates the state machine",
	}
}

// ErrTaskNotRunning returns a precondition error for control-plane reports
// against a task that is not running.
func ErrTaskNotRunning(id, current string) *TCError {
	return &TCError{
		Code:    CodeTaskNotRunning,
		Subject: id,
		What:    fmt.Sprintf("task %s is %s, not running", id, current),
		Why:     "reports are only accepted while the task runs; the engine has moved on",
	}
}

// ErrWrongTaskKind returns a precondition error when an operation targets
// the wrong task kind.
func ErrWrongTaskKind(id, kind, expected string) *TCError {
	return &TCError{
		Code:    CodeWrongTaskKind,
		Subject: id,
		What:    fmt.Sprintf("task %s is a %s task, expected %s", id, kind, expected),
	}
}

// ErrBadSessionToken returns an error for a stale or foreign session token.
func ErrBadSessionToken(taskID string) *TCError {
	return &TCError{
		Code:    CodeBadSessionToken,
		Subject: taskID,
		What:    "session token does not match the task's running session",
		Why:     "the session that obtained this token is no longer current",
	}
}

// ErrEngineRunning returns an error when a second engine would start.
func ErrEngineRunning(pid int) *TCError {
	return &TCError{
		Code: CodeEngineRunning,
		What: fmt.Sprintf("an engine is already running (pid %d)", pid),
		Fix:  "Stop it first, or remove .tc/run.yaml if it is stale",
	}
}

// ErrNoPlan means the engine was asked to run a project with no tasks.
func ErrNoPlan(projectID string) *TCError {
	return &TCError{
		Code:    CodeNoPlan,
		Subject: projectID,
		What:    "project has no plan",
		Fix:     "Run `tc plan` first",
	}
}

// ErrAlreadyPlanned refuses a repeat plan without the replan flag.
func ErrAlreadyPlanned(projectID string) *TCError {
	return &TCError{
		Code:    CodeAlreadyPlanned,
		Subject: projectID,
		What:    "project already has a plan",
		Why:     "planning again would replace every phase and task",
		Fix:     "Run `tc plan --replan` to regenerate the plan",
	}
}

// ErrTaskFailed wraps an Agent-reported or exit-code failure.
func ErrTaskFailed(id, reason string) *TCError {
	return &TCError{
		Code:    CodeTaskFailed,
		Subject: id,
		What:    fmt.Sprintf("task %s failed", id),
		Why:     reason,
	}
}

// ErrDeadlock returns the terminal scheduling error for this run.
func ErrDeadlock(reason string) *TCError {
	return &TCError{
		Code: CodeDeadlock,
		What: "no runnable task and no active session",
		Why:  reason,
		Fix:  "Inspect 'tc status', then 'tc reset' a task/phase or 'tc plan --replan'",
	}
}

// ErrAgentTimeout returns an error for a session that exceeded its limit.
func ErrAgentTimeout(sessionID string, secs int) *TCError {
	return &TCError{
		Code:    CodeAgentTimeout,
		Subject: sessionID,
		What:    fmt.Sprintf("session exceeded its %ds wall-clock limit", secs),
	}
}

// ErrPlanTimeout returns an error when a planning run exceeded its
// wall-clock limit.
func ErrPlanTimeout(secs int) *TCError {
	return &TCError{
		Code: CodeAgentTimeout,
		What: fmt.Sprintf("planning run exceeded its %ds limit", secs),
		Fix:  "Raise TC_PLAN_TIMEOUT_SECS or trim prd.md",
	}
}

// ErrInputTimedOut returns an error when nobody answered a human-input
// request in time.
func ErrInputTimedOut(requestID string) *TCError {
	return &TCError{
		Code:    CodeInputTimedOut,
		Subject: requestID,
		What:    "human input request timed out",
		Fix:     "Answer pending requests with 'tc respond' or from the dashboard",
	}
}

// ErrStoreUnavailable returns an error when the store cannot be reached.
func ErrStoreUnavailable(err error) *TCError {
	return &TCError{
		Code:  CodeStoreUnavailable,
		What:  "state store unavailable",
		Cause: err,
	}
}

// ErrPaneUnavailable returns an error when the pane wrapper fails.
func ErrPaneUnavailable(err error) *TCError {
	return &TCError{
		Code:  CodePaneUnavailable,
		What:  "terminal pane unavailable",
		Why:   "tmux is required to host Agent sessions",
		Fix:   "Check that tmux is installed and the tc session is not broken",
		Cause: err,
	}
}

// ErrAgentUnavailable returns an error when the Agent binary cannot run.
func ErrAgentUnavailable(bin string, err error) *TCError {
	return &TCError{
		Code:  CodeAgentUnavailable,
		What:  fmt.Sprintf("agent binary %q is not available", bin),
		Fix:   "Install the agent CLI or set TC_AGENT_BIN",
		Cause: err,
	}
}

// AsTCError attempts to convert an error to a TCError.
// Returns nil if the error is not a TCError.
func AsTCError(err error) *TCError {
	var tcErr *TCError
	if As(err, &tcErr) {
		return tcErr
	}
	return nil
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return asError(err, target)
}

// asError implements errors.As behavior.
func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if tcErr, ok := err.(*TCError); ok {
		if t, ok := target.(**TCError); ok {
			*t = tcErr
			return true
		}
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// ExitCodeFor resolves the process exit code for any error: TCErrors map
// through their kind, everything else is an internal error (1).
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if tcErr := AsTCError(err); tcErr != nil {
		return tcErr.ExitCode()
	}
	return 1
}

// Wrap wraps a generic error into a TCError with unknown code.
func Wrap(err error, what string) *TCError {
	return &TCError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
