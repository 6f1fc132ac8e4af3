package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"todo-scheduler/internal/database"
	"todo-scheduler/internal/models"
	"todo-scheduler/pkg/logger"
)

// EventRepository stores the change history written by the event worker.
type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append records an event. Redelivered events (same EventID) are ignored.
func (r *EventRepository) Append(ctx context.Context, ev models.TodoEvent) error {
	var snapshot any
	if ev.Todo != nil {
		b, err := json.Marshal(ev.Todo)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		snapshot = string(b)
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO todo_events (event_id, todo_id, action, snapshot, occurred_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`),
		ev.EventID, ev.TodoID, string(ev.Action), snapshot, ev.OccurredAt.UTC())
	if err != nil {
		logger.Error(ctx, "Repository Append event failed", "error", err, "event_id", ev.EventID)
		return fmt.Errorf("append event %s: %w", ev.EventID, err)
	}
	return nil
}

// ListForTodo returns a todo's history, oldest first.
func (r *EventRepository) ListForTodo(ctx context.Context, todoID int64) ([]models.TodoEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(
		`SELECT event_id, todo_id, action, snapshot, occurred_at
		 FROM todo_events WHERE todo_id = ? ORDER BY occurred_at ASC, event_id ASC`), todoID)
	if err != nil {
		logger.Error(ctx, "Repository ListForTodo failed", "error", err, "todo_id", todoID)
		return nil, err
	}
	defer rows.Close()
	events := []models.TodoEvent{}
	for rows.Next() {
		var (
			ev         models.TodoEvent
			action     string
			snapshot   sql.NullString
			occurredAt nullTime
		)
		if err := rows.Scan(&ev.EventID, &ev.TodoID, &action, &snapshot, &occurredAt); err != nil {
			return nil, err
		}
		ev.Action = models.EventAction(action)
		ev.OccurredAt = occurredAt.Time
		if snapshot.Valid {
			var t models.Todo
			if err := json.Unmarshal([]byte(snapshot.String), &t); err != nil {
				return nil, fmt.Errorf("decode snapshot of %s: %w", ev.EventID, err)
			}
			ev.Todo = &t
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
