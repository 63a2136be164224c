package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// ReplacePlan atomically swaps a project's plan: prior phases, tasks and
// dependency edges are deleted and the new plan inserted in one
// transaction. The plan is validated first; an invalid or cyclic plan
// persists nothing.
func (s *Store) ReplacePlan(ctx context.Context, projectID string, phases []core.Phase, tasks []core.Task, deps []core.Dependency) error {
	if cycle := core.FindCycle(tasks, deps); cycle != nil {
		return tcerrors.ErrPlanCycle(strings.Join(cycle, " -> "))
	}
	if err := core.ValidatePlan(projectID, phases, tasks, deps); err != nil {
		return tcerrors.ErrPlanInvalid(err.Error())
	}

	return s.RunInTx(ctx, func(tx *TxOps) error {
		if _, err := GetProjectTx(tx, projectID); err != nil {
			return err
		}

		// Cascades to tasks, task_dependencies, and sessions.
		if _, err := tx.Exec("DELETE FROM phases WHERE project_id = ?", projectID); err != nil {
			return fmt.Errorf("delete prior plan: %w", err)
		}

		for _, p := range phases {
			if err := InsertPhaseTx(tx, p); err != nil {
				return err
			}
		}
		for _, t := range tasks {
			if err := InsertTaskTx(tx, t); err != nil {
				return err
			}
		}
		for _, d := range deps {
			if err := InsertDependencyTx(tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProjectTx retrieves a project inside a transaction.
func GetProjectTx(tx *TxOps, id string) (core.Project, error) {
	row := tx.QueryRow("SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, tcerrors.ErrProjectNotFound(id)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}
