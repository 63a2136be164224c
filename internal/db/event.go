package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db/driver"
)

// EventQuery filters ReadEvents. Zero values mean "no filter".
type EventQuery struct {
	Subject string
	Kinds   []core.EventKind
	Since   *time.Time
	Limit   int
}

// AppendEvent appends one event to the log and returns it with its
// store-assigned id.
func (s *Store) AppendEvent(ctx context.Context, ev core.Event) (core.Event, error) {
	var out core.Event
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		out, err = AppendEventTx(tx, ev)
		return err
	})
	return out, err
}

// AppendEventTx is AppendEvent within a caller transaction.
func AppendEventTx(tx *TxOps, ev core.Event) (core.Event, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	created := formatTime(ev.CreatedAt)

	if tx.Dialect() == driver.DialectPostgres {
		row := tx.QueryRow(`
			INSERT INTO events (kind, subject, payload, created_at)
			VALUES (?, ?, ?, ?) RETURNING id
		`, string(ev.Kind), ev.Subject, ev.Payload, created)
		if err := row.Scan(&ev.ID); err != nil {
			return core.Event{}, fmt.Errorf("append event: %w", err)
		}
		return ev, nil
	}

	res, err := tx.Exec(`
		INSERT INTO events (kind, subject, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, string(ev.Kind), ev.Subject, ev.Payload, created)
	if err != nil {
		return core.Event{}, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Event{}, fmt.Errorf("event id: %w", err)
	}
	ev.ID = id
	return ev, nil
}

// ReadEvents returns events matching the query, newest first.
func (s *Store) ReadEvents(ctx context.Context, q EventQuery) ([]core.Event, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT id, kind, subject, payload, created_at FROM events WHERE 1=1")
	if q.Subject != "" {
		sb.WriteString(" AND subject = ?")
		args = append(args, q.Subject)
	}
	if len(q.Kinds) > 0 {
		sb.WriteString(" AND kind IN (")
		for i, k := range q.Kinds {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, string(k))
		}
		sb.WriteString(")")
	}
	if q.Since != nil {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, formatTime(*q.Since))
	}
	sb.WriteString(" ORDER BY id DESC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []core.Event
	for rows.Next() {
		var ev core.Event
		var kind, createdAt string
		if err := rows.Scan(&ev.ID, &kind, &ev.Subject, &ev.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = core.EventKind(kind)
		ev.CreatedAt = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// TaskCompletion returns the completion summary the Agent reported for a
// task, read back from its latest completed status_change event. It
// returns nil when the task never reported one.
func (s *Store) TaskCompletion(ctx context.Context, taskID string) (*core.CompletionPayload, error) {
	events, err := s.ReadEvents(ctx, EventQuery{Subject: taskID, Kinds: []core.EventKind{core.EventStatusChange}})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		var p core.StatusChangePayload
		if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
			continue
		}
		if p.To == string(core.TaskCompleted) && p.Completion != nil {
			return p.Completion, nil
		}
	}
	return nil, nil
}

// ReviewFindingsFor returns the findings of the review verdict that
// spawned the given follow-up task, or nil if none did.
func (s *Store) ReviewFindingsFor(ctx context.Context, followUpID string) ([]string, error) {
	events, err := s.ReadEvents(ctx, EventQuery{Kinds: []core.EventKind{core.EventReviewVerdict}})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		var p core.ReviewVerdictPayload
		if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
			continue
		}
		if p.FollowUpID == followUpID {
			return p.Findings, nil
		}
	}
	return nil, nil
}

// ReviewVerdictFor returns the verdict event payload recorded by a review
// task, or nil when it has not reported yet.
func (s *Store) ReviewVerdictFor(ctx context.Context, reviewTaskID string) (*core.ReviewVerdictPayload, error) {
	events, err := s.ReadEvents(ctx, EventQuery{Subject: reviewTaskID, Kinds: []core.EventKind{core.EventReviewVerdict}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	var p core.ReviewVerdictPayload
	if err := json.Unmarshal([]byte(events[0].Payload), &p); err != nil {
		return nil, fmt.Errorf("decode review verdict: %w", err)
	}
	return &p, nil
}

// LastEventID returns the highest event id, or 0 for an empty log. Log
// readers use it as a starting cursor.
func (s *Store) LastEventID(ctx context.Context) (int64, error) {
	row := s.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM events")
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("last event id: %w", err)
	}
	return id, nil
}

// EventsAfter returns events with id greater than cursor, oldest first.
// This is the durable-read path for observers that must not miss events.
func (s *Store) EventsAfter(ctx context.Context, cursor int64, limit int) ([]core.Event, error) {
	q := "SELECT id, kind, subject, payload, created_at FROM events WHERE id > ? ORDER BY id"
	args := []any{cursor}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("events after: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []core.Event
	for rows.Next() {
		var ev core.Event
		var kind, createdAt string
		if err := rows.Scan(&ev.ID, &kind, &ev.Subject, &ev.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = core.EventKind(kind)
		ev.CreatedAt = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
