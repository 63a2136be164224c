package db

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/tc/internal/core"
)

// BootstrapCheck is one recorded verification predicate run.
type BootstrapCheck struct {
	ID        int64     `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Command   string    `json:"command"`
	OK        bool      `json:"ok"`
	Output    string    `json:"output,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// RecordBootstrapChecks stores one verification run's results and emits an
// error event naming the failures, if any.
func (s *Store) RecordBootstrapChecks(ctx context.Context, projectID string, checks []BootstrapCheck) error {
	if len(checks) == 0 {
		return nil
	}

	return s.RunInTx(ctx, func(tx *TxOps) error {
		failed := 0
		for _, c := range checks {
			ok := 0
			if c.OK {
				ok = 1
			} else {
				failed++
			}
			at := c.CheckedAt
			if at.IsZero() {
				at = time.Now().UTC()
			}
			if _, err := tx.Exec(`
				INSERT INTO bootstrap_checks (project_id, name, command, ok, output, checked_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, projectID, c.Name, c.Command, ok, c.Output, formatTime(at)); err != nil {
				return fmt.Errorf("record bootstrap check %s: %w", c.Name, err)
			}
		}

		if failed > 0 {
			ev := core.NewEvent(core.EventError, projectID, core.MarshalPayload(core.ErrorPayload{
				Message: fmt.Sprintf("%d bootstrap check(s) failed", failed),
			}))
			if _, err := AppendEventTx(tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListBootstrapChecks returns recorded checks, newest run first.
func (s *Store) ListBootstrapChecks(ctx context.Context, projectID string) ([]BootstrapCheck, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, project_id, name, command, ok, output, checked_at
		FROM bootstrap_checks
		WHERE project_id = ?
		ORDER BY id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list bootstrap checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var checks []BootstrapCheck
	for rows.Next() {
		var c BootstrapCheck
		var ok int
		var checkedAt string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Command, &ok, &c.Output, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan bootstrap check: %w", err)
		}
		c.OK = ok == 1
		c.CheckedAt = parseTime(checkedAt)
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
