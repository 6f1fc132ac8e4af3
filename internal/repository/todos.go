package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"todo-scheduler/internal/database"
	"todo-scheduler/internal/models"
	"todo-scheduler/pkg/logger"
)

// ErrNotFound is returned when no todo row has the requested id.
var ErrNotFound = errors.New("todo not found")

// TodoRepository reads and writes the todos table.
type TodoRepository struct {
	db  *database.DB
	now func() time.Time
}

func NewTodoRepository(db *database.DB) *TodoRepository {
	return &TodoRepository{db: db, now: time.Now}
}

// GetAll returns all todos, newest first.
func (r *TodoRepository) GetAll(ctx context.Context) ([]models.Todo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos ORDER BY created_at DESC, id DESC`)
	if err != nil {
		logger.Error(ctx, "Repository GetAll failed", "error", err)
		return nil, err
	}
	defer rows.Close()
	todos := []models.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			logger.Error(ctx, "Repository scan todo failed", "error", err)
			return nil, err
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// Get returns the todo with the given id or ErrNotFound.
func (r *TodoRepository) Get(ctx context.Context, id int64) (models.Todo, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+todoColumns+` FROM todos WHERE id = ?`), id)
	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Todo{}, ErrNotFound
	}
	if err != nil {
		logger.Error(ctx, "Repository Get failed", "error", err, "id", id)
		return models.Todo{}, fmt.Errorf("get todo %d: %w", id, err)
	}
	return t, nil
}

// Create inserts a new pending todo and returns it with its generated id.
func (r *TodoRepository) Create(ctx context.Context, title string, description *string) (models.Todo, error) {
	now := r.now().UTC()
	row := r.db.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO todos (title, description, status, scheduled_at, duration, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, NULL, ?, ?)
		 RETURNING `+todoColumns),
		title, nullable(description), string(models.StatusPending), now, now)
	t, err := scanTodo(row)
	if err != nil {
		logger.Error(ctx, "Repository Create failed", "error", err)
		return models.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	return t, nil
}

// Update applies changes to one row in a single statement and returns the
// row as stored. An empty change set only reads the row.
func (r *TodoRepository) Update(ctx context.Context, id int64, changes *TodoChanges) (models.Todo, error) {
	if changes.Empty() {
		return r.Get(ctx, id)
	}
	sets := append(append([]string{}, changes.cols...), "updated_at = ?")
	args := append(append([]any{}, changes.args...), r.now().UTC(), id)
	query := `UPDATE todos SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + todoColumns

	t, err := scanTodo(r.db.QueryRowContext(ctx, r.db.Rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Todo{}, ErrNotFound
	}
	if err != nil {
		logger.Error(ctx, "Repository Update failed", "error", err, "id", id)
		return models.Todo{}, fmt.Errorf("update todo %d: %w", id, err)
	}
	return t, nil
}

// SetSchedule schedules (s != nil) or unschedules (s == nil) a todo.
func (r *TodoRepository) SetSchedule(ctx context.Context, id int64, s *models.Schedule) (models.Todo, error) {
	return r.Update(ctx, id, NewTodoChanges().SetSchedule(s))
}

// Delete removes a todo permanently. Deleting a missing id is ErrNotFound.
func (r *TodoRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM todos WHERE id = ?`), id)
	if err != nil {
		logger.Error(ctx, "Repository Delete failed", "error", err, "id", id)
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TodoChanges collects the columns written by one Update.
type TodoChanges struct {
	cols []string
	args []any
}

func NewTodoChanges() *TodoChanges {
	return &TodoChanges{}
}

func (c *TodoChanges) SetTitle(title string) *TodoChanges {
	return c.set("title", title)
}

// SetDescription writes the description; nil stores NULL.
func (c *TodoChanges) SetDescription(description *string) *TodoChanges {
	return c.set("description", nullable(description))
}

// SetSchedule is the only writer of scheduled_at, duration and status, which
// always change together: status is scheduled exactly when s is non-nil.
func (c *TodoChanges) SetSchedule(s *models.Schedule) *TodoChanges {
	if s == nil {
		c.set("scheduled_at", nil)
		c.set("duration", nil)
	} else {
		c.set("scheduled_at", s.At.UTC())
		c.set("duration", nullable(s.Duration))
	}
	return c.set("status", string(models.StatusFor(s)))
}

// Empty reports whether no column was set.
func (c *TodoChanges) Empty() bool {
	return c == nil || len(c.cols) == 0
}

func (c *TodoChanges) set(col string, arg any) *TodoChanges {
	for i, existing := range c.cols {
		if existing == col+" = ?" {
			c.args[i] = arg
			return c
		}
	}
	c.cols = append(c.cols, col+" = ?")
	c.args = append(c.args, arg)
	return c
}
