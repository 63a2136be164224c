package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

const sessionColumns = "id, task_id, pane, process_id, status, started_at, ended_at, exit_code"

func scanSession(sc scanner) (core.Session, error) {
	var s core.Session
	var status, startedAt string
	var endedAt sql.NullString
	var exitCode sql.NullInt64
	if err := sc.Scan(&s.ID, &s.TaskID, &s.Pane, &s.ProcessID, &status, &startedAt, &endedAt, &exitCode); err != nil {
		return core.Session{}, err
	}
	s.Status = core.SessionStatus(status)
	s.StartedAt = parseTime(startedAt)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		s.EndedAt = &t
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		s.ExitCode = &c
	}
	return s, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (core.Session, error) {
	row := s.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, tcerrors.ErrSessionNotFound(id)
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListTaskSessions returns every session for a task, oldest first.
func (s *Store) ListTaskSessions(ctx context.Context, taskID string) ([]core.Session, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE task_id = ? ORDER BY started_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task sessions: %w", err)
	}
	return collectSessions(rows)
}

// RunningSessions returns all sessions currently marked running.
func (s *Store) RunningSessions(ctx context.Context) ([]core.Session, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE status = 'running' ORDER BY pane
	`)
	if err != nil {
		return nil, fmt.Errorf("running sessions: %w", err)
	}
	return collectSessions(rows)
}

// RunningSessionForTask returns the task's running session, if any.
func (s *Store) RunningSessionForTask(ctx context.Context, taskID string) (core.Session, bool, error) {
	row := s.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE task_id = ? AND status = 'running'
	`, taskID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, false, nil
	}
	if err != nil {
		return core.Session{}, false, fmt.Errorf("running session for task: %w", err)
	}
	return sess, true, nil
}

// RunningSessionForTaskTx is RunningSessionForTask within a caller
// transaction, so token checks and the mutations they guard share one
// consistent view.
func RunningSessionForTaskTx(tx *TxOps, taskID string) (core.Session, bool, error) {
	row := tx.QueryRow(`
		SELECT `+sessionColumns+` FROM sessions WHERE task_id = ? AND status = 'running'
	`, taskID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, false, nil
	}
	if err != nil {
		return core.Session{}, false, fmt.Errorf("running session for task: %w", err)
	}
	return sess, true, nil
}

func collectSessions(rows *sql.Rows) ([]core.Session, error) {
	defer func() { _ = rows.Close() }()

	var sessions []core.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// CreateSessionTx inserts a running session row. The partial unique
// indexes reject a second running session per task or per pane.
func CreateSessionTx(tx *TxOps, sess core.Session) error {
	_, err := tx.Exec(`
		INSERT INTO sessions (id, task_id, pane, process_id, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.TaskID, sess.Pane, sess.ProcessID, string(sess.Status), formatTime(sess.StartedAt))
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// StartTask transitions a task to running and records its new session in
// one transaction, so a dispatch either fully happens or not at all.
func (s *Store) StartTask(ctx context.Context, taskID string, sess core.Session) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		if err := UpdateTaskStatusTx(tx, taskID, StatusChange{To: core.TaskRunning, Reason: "dispatch"}); err != nil {
			return err
		}
		return CreateSessionTx(tx, sess)
	})
}

// FinishSession closes a session with its exit code and final status,
// validating the session transition.
func (s *Store) FinishSession(ctx context.Context, sessionID string, exitCode *int, to core.SessionStatus) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		return FinishSessionTx(tx, sessionID, exitCode, to)
	})
}

// FinishSessionTx is FinishSession within a caller transaction.
func FinishSessionTx(tx *TxOps, sessionID string, exitCode *int, to core.SessionStatus) error {
	row := tx.QueryRow("SELECT status FROM sessions WHERE id = ?", sessionID)
	var fromStr string
	if err := row.Scan(&fromStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tcerrors.ErrSessionNotFound(sessionID)
		}
		return fmt.Errorf("read session status: %w", err)
	}

	from := core.SessionStatus(fromStr)
	if !core.CanSessionTransition(from, to) {
		return tcerrors.ErrInvalidTransition("session", sessionID, fromStr, string(to))
	}

	var code any
	if exitCode != nil {
		code = *exitCode
	}
	if _, err := tx.Exec(`
		UPDATE sessions SET status = ?, ended_at = ?, exit_code = ? WHERE id = ?
	`, string(to), formatTime(time.Now()), code, sessionID); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}

	ev := core.NewEvent(core.EventStatusChange, sessionID, core.MarshalPayload(core.StatusChangePayload{
		Entity: "session",
		From:   fromStr,
		To:     string(to),
	}))
	if _, err := AppendEventTx(tx, ev); err != nil {
		return err
	}
	return nil
}
