package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

const taskColumns = "id, phase_id, sequence, kind, name, description, brief_path, status, retry_count, error_context, timeout_secs"

func scanTask(sc scanner) (core.Task, error) {
	var t core.Task
	var kind, status string
	var errCtx sql.NullString
	if err := sc.Scan(&t.ID, &t.PhaseID, &t.Sequence, &kind, &t.Name, &t.Description,
		&t.BriefPath, &status, &t.RetryCount, &errCtx, &t.TimeoutSecs); err != nil {
		return core.Task{}, err
	}
	t.Kind = core.TaskKind(kind)
	t.Status = core.TaskStatus(status)
	if errCtx.Valid {
		t.ErrorContext = errCtx.String
	}
	return t, nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (core.Task, error) {
	row := s.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Task{}, tcerrors.ErrTaskNotFound(id)
	}
	if err != nil {
		return core.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// TaskByIDTx retrieves a task inside a transaction.
func TaskByIDTx(tx *TxOps, id string) (core.Task, error) {
	row := tx.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Task{}, tcerrors.ErrTaskNotFound(id)
	}
	if err != nil {
		return core.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListPhaseTasks returns a phase's tasks ordered by sequence.
func (s *Store) ListPhaseTasks(ctx context.Context, phaseID string) ([]core.Task, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE phase_id = ? ORDER BY sequence
	`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("list phase tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListProjectTasks returns every task in a project, ordered by phase then
// task sequence.
func (s *Store) ListProjectTasks(ctx context.Context, projectID string) ([]core.Task, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT t.id, t.phase_id, t.sequence, t.kind, t.name, t.description, t.brief_path,
		       t.status, t.retry_count, t.error_context, t.timeout_secs
		FROM tasks t
		JOIN phases p ON t.phase_id = p.id
		WHERE p.project_id = ?
		ORDER BY p.sequence, t.sequence
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListDependencies returns every dependency edge in a project.
func (s *Store) ListDependencies(ctx context.Context, projectID string) ([]core.Dependency, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT d.task_id, d.depends_on_id
		FROM task_dependencies d
		JOIN tasks t ON d.task_id = t.id
		JOIN phases p ON t.phase_id = p.id
		WHERE p.project_id = ?
		ORDER BY d.task_id, d.depends_on_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []core.Dependency
	for rows.Next() {
		var d core.Dependency
		if err := rows.Scan(&d.TaskID, &d.DependsOn); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

func collectTasks(rows *sql.Rows) ([]core.Task, error) {
	defer func() { _ = rows.Close() }()

	var tasks []core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func listPhaseTasksTx(tx *TxOps, phaseID string) ([]core.Task, error) {
	rows, err := tx.Query(`
		SELECT `+taskColumns+` FROM tasks WHERE phase_id = ? ORDER BY sequence
	`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("list phase tasks: %w", err)
	}
	return collectTasks(rows)
}

// InsertTaskTx inserts one task row.
func InsertTaskTx(tx *TxOps, t core.Task) error {
	var errCtx any
	if t.ErrorContext != "" {
		errCtx = t.ErrorContext
	}
	now := nowText()
	_, err := tx.Exec(`
		INSERT INTO tasks (id, phase_id, sequence, kind, name, description, brief_path,
		                   status, retry_count, error_context, timeout_secs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.PhaseID, t.Sequence, string(t.Kind), t.Name, t.Description, t.BriefPath,
		string(t.Status), t.RetryCount, errCtx, t.TimeoutSecs, now, now)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// DependenciesOfTx returns the ids a task depends on.
func DependenciesOfTx(tx *TxOps, taskID string) ([]string, error) {
	rows, err := tx.Query(`
		SELECT depends_on_id FROM task_dependencies WHERE task_id = ? ORDER BY depends_on_id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("dependencies of %s: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var deps []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, id)
	}
	return deps, rows.Err()
}

// InsertDependencyTx inserts one dependency edge.
func InsertDependencyTx(tx *TxOps, d core.Dependency) error {
	_, err := tx.Exec(`
		INSERT INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)
	`, d.TaskID, d.DependsOn)
	if err != nil {
		return fmt.Errorf("insert dependency %s -> %s: %w", d.TaskID, d.DependsOn, err)
	}
	return nil
}

// NextTaskSequenceTx returns the next free sequence at the phase's tail.
func NextTaskSequenceTx(tx *TxOps, phaseID string) (int, error) {
	row := tx.QueryRow("SELECT COALESCE(MAX(sequence), 0) + 1 FROM tasks WHERE phase_id = ?", phaseID)
	var seq int
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("next task sequence: %w", err)
	}
	return seq, nil
}

// StatusChange describes one task transition. Pointer fields are applied
// only when non-nil; absent fields keep their stored values. Completion
// rides along in the status_change event payload so the reported summary
// survives in the log.
type StatusChange struct {
	To           core.TaskStatus
	ErrorContext *string
	RetryCount   *int
	BriefPath    *string
	Reason       string
	Completion   *core.CompletionPayload
}

// UpdateTaskStatus transitions a task, validating the move against the
// state machine inside the transaction and recording a status_change
// event. The owning phase is reconciled in the same transaction.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, change StatusChange) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		return UpdateTaskStatusTx(tx, taskID, change)
	})
}

// UpdateTaskStatusTx is UpdateTaskStatus within a caller transaction.
func UpdateTaskStatusTx(tx *TxOps, taskID string, change StatusChange) error {
	t, err := TaskByIDTx(tx, taskID)
	if err != nil {
		return err
	}

	// Self-transitions are not in the table: a same-status write means
	// the caller read stale state, and it gets the same loud rejection
	// as any other illegal move.
	if !core.IsValidTaskStatus(change.To) || !core.CanTaskTransition(t.Status, change.To) {
		return tcerrors.ErrInvalidTransition("task", taskID, string(t.Status), string(change.To))
	}

	retry := t.RetryCount
	if change.RetryCount != nil {
		retry = *change.RetryCount
		if retry < 0 || retry > core.MaxRetryCount {
			return tcerrors.ErrInvalidArgument(fmt.Sprintf("retry_count %d out of range", retry))
		}
	}

	var errCtx any
	switch {
	case change.ErrorContext != nil && *change.ErrorContext != "":
		errCtx = *change.ErrorContext
	case change.ErrorContext != nil:
		errCtx = nil
	case t.ErrorContext != "":
		errCtx = t.ErrorContext
	}

	brief := t.BriefPath
	if change.BriefPath != nil {
		brief = *change.BriefPath
	}

	if _, err := tx.Exec(`
		UPDATE tasks
		SET status = ?, retry_count = ?, error_context = ?, brief_path = ?, updated_at = ?
		WHERE id = ?
	`, string(change.To), retry, errCtx, brief, nowText(), taskID); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}

	ev := core.NewEvent(core.EventStatusChange, taskID, core.MarshalPayload(core.StatusChangePayload{
		Entity:     "task",
		From:       string(t.Status),
		To:         string(change.To),
		Reason:     change.Reason,
		Completion: change.Completion,
	}))
	if _, err := AppendEventTx(tx, ev); err != nil {
		return err
	}

	return ReconcilePhaseTx(tx, t.PhaseID)
}

// SetTaskBriefPath records where a task's rendered brief lives.
func (s *Store) SetTaskBriefPath(ctx context.Context, taskID, path string) error {
	res, err := s.ExecContext(ctx, `
		UPDATE tasks SET brief_path = ?, updated_at = ? WHERE id = ?
	`, path, nowText(), taskID)
	if err != nil {
		return fmt.Errorf("set brief path: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set brief path: %w", err)
	}
	if n == 0 {
		return tcerrors.ErrTaskNotFound(taskID)
	}
	return nil
}
