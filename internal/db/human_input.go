package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// HumanInput is a question the Agent asked the operator. The control
// plane blocks on the response; the store is the handoff point so the
// answer survives an engine restart.
type HumanInput struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id,omitempty"`
	Question   string     `json:"question"`
	Choices    []string   `json:"choices,omitempty"`
	Response   *string    `json:"response,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// CreateHumanInput records a new question and publishes the matching
// human_input_request event in the same transaction.
func (s *Store) CreateHumanInput(ctx context.Context, in HumanInput) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		if in.CreatedAt.IsZero() {
			in.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.Exec(`
			INSERT INTO human_inputs (id, task_id, question, choices, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, in.ID, in.TaskID, in.Question, strings.Join(in.Choices, "\n"), formatTime(in.CreatedAt)); err != nil {
			return fmt.Errorf("create human input: %w", err)
		}

		ev := core.NewEvent(core.EventHumanInputRequest, in.TaskID, core.MarshalPayload(core.HumanInputRequestPayload{
			RequestID: in.ID,
			Question:  in.Question,
			Choices:   in.Choices,
		}))
		if _, err := AppendEventTx(tx, ev); err != nil {
			return err
		}
		return nil
	})
}

// GetHumanInput retrieves one question by request id.
func (s *Store) GetHumanInput(ctx context.Context, id string) (HumanInput, error) {
	row := s.QueryRowContext(ctx, `
		SELECT id, task_id, question, choices, response, created_at, answered_at
		FROM human_inputs WHERE id = ?
	`, id)
	in, err := scanHumanInput(row)
	if errors.Is(err, sql.ErrNoRows) {
		return HumanInput{}, tcerrors.ErrInvalidArgument(fmt.Sprintf("no human input with id %s", id))
	}
	if err != nil {
		return HumanInput{}, fmt.Errorf("get human input: %w", err)
	}
	return in, nil
}

// PendingHumanInputs returns unanswered questions, oldest first.
func (s *Store) PendingHumanInputs(ctx context.Context) ([]HumanInput, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, task_id, question, choices, response, created_at, answered_at
		FROM human_inputs WHERE response IS NULL ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("pending human inputs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var inputs []HumanInput
	for rows.Next() {
		in, err := scanHumanInput(rows)
		if err != nil {
			return nil, fmt.Errorf("scan human input: %w", err)
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// AnswerHumanInput records the operator's response and publishes the
// human_input_response event. Answering twice is rejected.
func (s *Store) AnswerHumanInput(ctx context.Context, id, response string) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		res, err := tx.Exec(`
			UPDATE human_inputs SET response = ?, answered_at = ?
			WHERE id = ? AND response IS NULL
		`, response, nowText(), id)
		if err != nil {
			return fmt.Errorf("answer human input: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("answer human input: %w", err)
		}
		if n == 0 {
			return tcerrors.ErrInvalidArgument(fmt.Sprintf("input %s does not exist or is already answered", id))
		}

		var taskID string
		row := tx.QueryRow("SELECT task_id FROM human_inputs WHERE id = ?", id)
		if err := row.Scan(&taskID); err != nil {
			return fmt.Errorf("answer human input: %w", err)
		}

		ev := core.NewEvent(core.EventHumanInputResponse, taskID, core.MarshalPayload(core.HumanInputResponsePayload{
			RequestID: id,
			Response:  response,
		}))
		if _, err := AppendEventTx(tx, ev); err != nil {
			return err
		}
		return nil
	})
}

func scanHumanInput(sc scanner) (HumanInput, error) {
	var in HumanInput
	var choices, createdAt string
	var response, answeredAt sql.NullString
	if err := sc.Scan(&in.ID, &in.TaskID, &in.Question, &choices, &response, &createdAt, &answeredAt); err != nil {
		return HumanInput{}, err
	}
	if choices != "" {
		in.Choices = strings.Split(choices, "\n")
	}
	if response.Valid {
		in.Response = &response.String
	}
	in.CreatedAt = parseTime(createdAt)
	if answeredAt.Valid {
		t := parseTime(answeredAt.String)
		in.AnsweredAt = &t
	}
	return in, nil
}
