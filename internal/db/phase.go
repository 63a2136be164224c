package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

const phaseColumns = "id, project_id, sequence, name, description, status"

func scanPhase(sc scanner) (core.Phase, error) {
	var p core.Phase
	var status string
	if err := sc.Scan(&p.ID, &p.ProjectID, &p.Sequence, &p.Name, &p.Description, &status); err != nil {
		return core.Phase{}, err
	}
	p.Status = core.PhaseStatus(status)
	return p, nil
}

// GetPhase retrieves a phase by id.
func (s *Store) GetPhase(ctx context.Context, id string) (core.Phase, error) {
	row := s.QueryRowContext(ctx, "SELECT "+phaseColumns+" FROM phases WHERE id = ?", id)
	p, err := scanPhase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Phase{}, tcerrors.ErrPhaseNotFound(id)
	}
	if err != nil {
		return core.Phase{}, fmt.Errorf("get phase: %w", err)
	}
	return p, nil
}

// GetPhaseBySequence retrieves a phase by its 1-based sequence.
func (s *Store) GetPhaseBySequence(ctx context.Context, projectID string, sequence int) (core.Phase, error) {
	row := s.QueryRowContext(ctx, `
		SELECT `+phaseColumns+` FROM phases WHERE project_id = ? AND sequence = ?
	`, projectID, sequence)
	p, err := scanPhase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Phase{}, tcerrors.ErrPhaseNotFound(fmt.Sprintf("%d", sequence))
	}
	if err != nil {
		return core.Phase{}, fmt.Errorf("get phase by sequence: %w", err)
	}
	return p, nil
}

// ListPhases returns a project's phases ordered by sequence.
func (s *Store) ListPhases(ctx context.Context, projectID string) ([]core.Phase, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT `+phaseColumns+` FROM phases WHERE project_id = ? ORDER BY sequence
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var phases []core.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

// InsertPhaseTx inserts one phase row.
func InsertPhaseTx(tx *TxOps, p core.Phase) error {
	_, err := tx.Exec(`
		INSERT INTO phases (id, project_id, sequence, name, description, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.ProjectID, p.Sequence, p.Name, p.Description, string(p.Status))
	if err != nil {
		return fmt.Errorf("insert phase %s: %w", p.ID, err)
	}
	return nil
}

// ReconcilePhaseTx recomputes a phase's status from its tasks and stores
// the derived value, emitting a status_change event when it moved. Phase
// status is derived state; derivation overrides the transition table.
func ReconcilePhaseTx(tx *TxOps, phaseID string) error {
	row := tx.QueryRow("SELECT status FROM phases WHERE id = ?", phaseID)
	var currentStr string
	if err := row.Scan(&currentStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tcerrors.ErrPhaseNotFound(phaseID)
		}
		return fmt.Errorf("read phase status: %w", err)
	}
	current := core.PhaseStatus(currentStr)
	if current == core.PhaseSkipped {
		return nil
	}

	tasks, err := listPhaseTasksTx(tx, phaseID)
	if err != nil {
		return err
	}
	derived := core.DerivePhaseStatus(tasks)
	if derived == current {
		return nil
	}

	if _, err := tx.Exec("UPDATE phases SET status = ? WHERE id = ?", string(derived), phaseID); err != nil {
		return fmt.Errorf("update phase status: %w", err)
	}

	ev := core.NewEvent(core.EventStatusChange, phaseID, core.MarshalPayload(core.StatusChangePayload{
		Entity: "phase",
		From:   currentStr,
		To:     string(derived),
	}))
	if _, err := AppendEventTx(tx, ev); err != nil {
		return err
	}
	return nil
}
