package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

const projectColumns = "id, name, root_dir, status, created_at, updated_at"

func scanProject(sc scanner) (core.Project, error) {
	var p core.Project
	var status, createdAt, updatedAt string
	if err := sc.Scan(&p.ID, &p.Name, &p.RootDir, &status, &createdAt, &updatedAt); err != nil {
		return core.Project{}, err
	}
	p.Status = core.ProjectStatus(status)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// CreateProject inserts a new project row.
func (s *Store) CreateProject(ctx context.Context, p core.Project) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO projects (id, name, root_dir, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.RootDir, string(p.Status), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (core.Project, error) {
	row := s.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, tcerrors.ErrProjectNotFound(id)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// CurrentProject returns the store's single project. The store holds one
// project per directory; the oldest row wins if more exist.
func (s *Store) CurrentProject(ctx context.Context) (core.Project, error) {
	row := s.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at LIMIT 1")
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, tcerrors.ErrProjectNotFound("")
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("current project: %w", err)
	}
	return p, nil
}

// UpdateProjectStatus transitions a project, validating the move and
// recording a status_change event in the same transaction.
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, to core.ProjectStatus, reason string) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		return UpdateProjectStatusTx(tx, id, to, reason)
	})
}

// UpdateProjectStatusTx is UpdateProjectStatus within a caller transaction.
func UpdateProjectStatusTx(tx *TxOps, id string, to core.ProjectStatus, reason string) error {
	row := tx.QueryRow("SELECT status FROM projects WHERE id = ?", id)
	var fromStr string
	if err := row.Scan(&fromStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tcerrors.ErrProjectNotFound(id)
		}
		return fmt.Errorf("read project status: %w", err)
	}

	from := core.ProjectStatus(fromStr)
	if from == to {
		return nil
	}
	if !core.CanProjectTransition(from, to) {
		return tcerrors.ErrInvalidTransition("project", id, fromStr, string(to))
	}

	if _, err := tx.Exec(`
		UPDATE projects SET status = ?, updated_at = ? WHERE id = ?
	`, string(to), nowText(), id); err != nil {
		return fmt.Errorf("update project status: %w", err)
	}

	ev := core.NewEvent(core.EventStatusChange, id, core.MarshalPayload(core.StatusChangePayload{
		Entity: "project",
		From:   fromStr,
		To:     string(to),
		Reason: reason,
	}))
	if _, err := AppendEventTx(tx, ev); err != nil {
		return err
	}
	return nil
}
