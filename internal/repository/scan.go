package repository

import (
	"database/sql"
	"fmt"
	"time"

	"todo-scheduler/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const todoColumns = `id, title, description, status, scheduled_at, duration, created_at, updated_at`

func scanTodo(row rowScanner) (models.Todo, error) {
	var (
		t           models.Todo
		description sql.NullString
		status      string
		scheduledAt nullTime
		duration    sql.NullInt64
		createdAt   nullTime
		updatedAt   nullTime
	)
	if err := row.Scan(&t.ID, &t.Title, &description, &status, &scheduledAt, &duration, &createdAt, &updatedAt); err != nil {
		return models.Todo{}, err
	}
	t.Status = models.Status(status)
	if description.Valid {
		d := description.String
		t.Description = &d
	}
	if scheduledAt.Valid {
		at := scheduledAt.Time
		t.ScheduledAt = &at
	}
	if duration.Valid {
		d := int(duration.Int64)
		t.Duration = &d
	}
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	return t, nil
}

// sqlite hands timestamps back as text in some result sets (RETURNING among
// them); postgres always returns time.Time.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// nullTime scans a nullable timestamp stored either natively or as text.
// Scanned values are normalized to UTC.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (n *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

// nullable turns a nil pointer into a SQL NULL argument.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
