package db

import (
	"context"

	"github.com/randalmurphal/tc/internal/core"
)

// Snapshot loads the project plus its phases, tasks and dependencies in
// one transaction, so the scheduler sees a consistent view per tick.
func (s *Store) Snapshot(ctx context.Context, projectID string) (*core.Snapshot, error) {
	var snap *core.Snapshot
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		project, err := GetProjectTx(tx, projectID)
		if err != nil {
			return err
		}

		phases, err := listPhasesTx(tx, projectID)
		if err != nil {
			return err
		}

		var tasks []core.Task
		for _, p := range phases {
			pt, err := listPhaseTasksTx(tx, p.ID)
			if err != nil {
				return err
			}
			tasks = append(tasks, pt...)
		}

		deps, err := listDependenciesTx(tx, projectID)
		if err != nil {
			return err
		}

		snap = &core.Snapshot{
			ProjectID: projectID,
			Project:   project,
			Phases:    phases,
			Tasks:     tasks,
			Deps:      deps,
		}
		snap.Normalize()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func listPhasesTx(tx *TxOps, projectID string) ([]core.Phase, error) {
	rows, err := tx.Query(`
		SELECT `+phaseColumns+` FROM phases WHERE project_id = ? ORDER BY sequence
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var phases []core.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

func listDependenciesTx(tx *TxOps, projectID string) ([]core.Dependency, error) {
	rows, err := tx.Query(`
		SELECT d.task_id, d.depends_on_id
		FROM task_dependencies d
		JOIN tasks t ON d.task_id = t.id
		JOIN phases p ON t.phase_id = p.id
		WHERE p.project_id = ?
		ORDER BY d.task_id, d.depends_on_id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var deps []core.Dependency
	for rows.Next() {
		var d core.Dependency
		if err := rows.Scan(&d.TaskID, &d.DependsOn); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
