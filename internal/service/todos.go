package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"todo-scheduler/internal/models"
	"todo-scheduler/internal/repository"
	"todo-scheduler/pkg/logger"
)

const listFlight = "todos"

// Store is the relational store behind the service.
type Store interface {
	GetAll(ctx context.Context) ([]models.Todo, error)
	Get(ctx context.Context, id int64) (models.Todo, error)
	Create(ctx context.Context, title string, description *string) (models.Todo, error)
	Update(ctx context.Context, id int64, changes *repository.TodoChanges) (models.Todo, error)
	SetSchedule(ctx context.Context, id int64, s *models.Schedule) (models.Todo, error)
	Delete(ctx context.Context, id int64) error
}

// History reads the change log written by the event worker.
type History interface {
	ListForTodo(ctx context.Context, todoID int64) ([]models.TodoEvent, error)
}

// ListCache caches the full todo list.
type ListCache interface {
	GetTodos(ctx context.Context) ([]models.Todo, bool)
	SetTodos(ctx context.Context, todos []models.Todo)
	InvalidateTodos(ctx context.Context)
}

// EventPublisher announces committed mutations.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.TodoEvent) error
}

type Option func(*TodoService)

func WithCache(c ListCache) Option {
	return func(s *TodoService) { s.cache = c }
}

func WithEvents(p EventPublisher) Option {
	return func(s *TodoService) { s.events = p }
}

func WithHistory(h History) Option {
	return func(s *TodoService) { s.history = h }
}

// TodoService implements todo CRUD and scheduling on top of a Store.
type TodoService struct {
	store   Store
	history History
	cache   ListCache
	events  EventPublisher
	sf      singleflight.Group
	now     func() time.Time

	// listMu orders list cache fills against write invalidations; listGen
	// counts writes so a fill that started before one is discarded.
	listMu  sync.Mutex
	listGen uint64
	newID   func() string
}

func NewTodoService(store Store, opts ...Option) *TodoService {
	s := &TodoService{store: store, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Title       string
	Description *string
}

// Field is an optional, nullable patch value: Set reports presence and a nil
// Value means an explicit null.
type Field[T any] struct {
	Set   bool
	Value *T
}

// UpdateInput lists the fields a generic update may touch.
type UpdateInput struct {
	Title       Field[string]
	Description Field[string]
	ScheduledAt Field[time.Time]
	Duration    Field[int]
	Status      Field[models.Status]
}

// ListFilter narrows List. The zero value lists everything.
type ListFilter struct {
	// Date selects todos scheduled on this calendar day (year, month, day)
	// as seen in Location.
	Date        *time.Time
	Location    *time.Location
	Unscheduled bool
}

func (s *TodoService) Create(ctx context.Context, in CreateInput) (models.Todo, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Todo{}, Invalid("Title is required")
	}
	todo, err := s.store.Create(ctx, title, in.Description)
	if err != nil {
		return models.Todo{}, err
	}
	s.afterWrite(ctx, models.ActionCreated, todo.ID, &todo)
	return todo, nil
}

func (s *TodoService) List(ctx context.Context, f ListFilter) ([]models.Todo, error) {
	if f.Date != nil && f.Unscheduled {
		return nil, Invalid("date and unscheduled cannot be combined")
	}
	todos, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case f.Date != nil:
		return filter(todos, func(t models.Todo) bool { return t.ScheduledOn(*f.Date, f.Location) }), nil
	case f.Unscheduled:
		return filter(todos, func(t models.Todo) bool { return t.ScheduledAt == nil }), nil
	default:
		return todos, nil
	}
}

func (s *TodoService) Get(ctx context.Context, id int64) (models.Todo, error) {
	if id <= 0 {
		return models.Todo{}, Invalid("Invalid ID")
	}
	return s.store.Get(ctx, id)
}

// Update applies a partial update. Schedule-related fields are resolved
// against the current record and written together so status always matches
// scheduledAt.
func (s *TodoService) Update(ctx context.Context, id int64, in UpdateInput) (models.Todo, error) {
	if id <= 0 {
		return models.Todo{}, Invalid("Invalid ID")
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Todo{}, err
	}

	changes := repository.NewTodoChanges()
	if in.Title.Set {
		if in.Title.Value == nil || strings.TrimSpace(*in.Title.Value) == "" {
			return models.Todo{}, Invalid("Title cannot be empty")
		}
		changes.SetTitle(strings.TrimSpace(*in.Title.Value))
	}
	if in.Description.Set {
		changes.SetDescription(in.Description.Value)
	}
	next, touched, err := resolveSchedule(current.Schedule(), in)
	if err != nil {
		return models.Todo{}, err
	}
	if touched {
		changes.SetSchedule(next)
	}
	if changes.Empty() {
		return current, nil
	}

	updated, err := s.store.Update(ctx, id, changes)
	if err != nil {
		return models.Todo{}, err
	}
	action := models.ActionUpdated
	switch {
	case touched && next != nil:
		action = models.ActionScheduled
	case touched && current.ScheduledAt != nil:
		action = models.ActionUnscheduled
	}
	s.afterWrite(ctx, action, id, &updated)
	return updated, nil
}

// Schedule sets (or overwrites) a todo's slot and marks it scheduled.
func (s *TodoService) Schedule(ctx context.Context, id int64, at time.Time, duration *int) (models.Todo, error) {
	if id <= 0 {
		return models.Todo{}, Invalid("Invalid ID")
	}
	if at.IsZero() {
		return models.Todo{}, Invalid("Invalid scheduledAt value")
	}
	if duration != nil && *duration <= 0 {
		return models.Todo{}, Invalid("Invalid duration")
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return models.Todo{}, err
	}
	todo, err := s.store.SetSchedule(ctx, id, &models.Schedule{At: at.UTC(), Duration: duration})
	if err != nil {
		return models.Todo{}, err
	}
	s.afterWrite(ctx, models.ActionScheduled, id, &todo)
	return todo, nil
}

// Unschedule clears a todo's slot and marks it pending.
func (s *TodoService) Unschedule(ctx context.Context, id int64) (models.Todo, error) {
	if id <= 0 {
		return models.Todo{}, Invalid("Invalid ID")
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return models.Todo{}, err
	}
	todo, err := s.store.SetSchedule(ctx, id, nil)
	if err != nil {
		return models.Todo{}, err
	}
	s.afterWrite(ctx, models.ActionUnscheduled, id, &todo)
	return todo, nil
}

// Delete removes a todo. Deleting an id that does not exist is ErrNotFound.
func (s *TodoService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return Invalid("Invalid ID")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.afterWrite(ctx, models.ActionDeleted, id, nil)
	return nil
}

// History returns the recorded change events of a todo, oldest first.
func (s *TodoService) History(ctx context.Context, id int64) ([]models.TodoEvent, error) {
	if id <= 0 {
		return nil, Invalid("Invalid ID")
	}
	if s.history == nil {
		return []models.TodoEvent{}, nil
	}
	return s.history.ListForTodo(ctx, id)
}

func (s *TodoService) all(ctx context.Context) ([]models.Todo, error) {
	if s.cache != nil {
		if todos, ok := s.cache.GetTodos(ctx); ok {
			return todos, nil
		}
	}
	v, err, _ := s.sf.Do(listFlight, func() (any, error) {
		// the result is shared by all waiters
		fetchCtx := context.WithoutCancel(ctx)
		gen := s.listGeneration()
		todos, err := s.store.GetAll(fetchCtx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.listMu.Lock()
			if s.listGen == gen {
				s.cache.SetTodos(fetchCtx, todos)
			}
			s.listMu.Unlock()
		}
		return todos, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Todo), nil
}

func (s *TodoService) listGeneration() uint64 {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	return s.listGen
}

func (s *TodoService) afterWrite(ctx context.Context, action models.EventAction, id int64, todo *models.Todo) {
	s.listMu.Lock()
	s.listGen++
	s.sf.Forget(listFlight)
	if s.cache != nil {
		s.cache.InvalidateTodos(ctx)
	}
	s.listMu.Unlock()
	if s.events == nil {
		return
	}
	ev := models.TodoEvent{
		EventID:    s.newID(),
		TodoID:     id,
		Action:     action,
		Todo:       todo,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Warn(ctx, "Publish todo event failed", "error", err, "todo_id", id, "action", action)
	}
}

// resolveSchedule computes the slot an update leaves behind. touched is false
// when the update does not mention any scheduling field.
func resolveSchedule(current *models.Schedule, in UpdateInput) (next *models.Schedule, touched bool, err error) {
	next = current
	if in.ScheduledAt.Set {
		touched = true
		if in.ScheduledAt.Value == nil {
			next = nil
		} else {
			s := &models.Schedule{At: in.ScheduledAt.Value.UTC()}
			if current != nil {
				s.Duration = current.Duration
			}
			next = s
		}
	}
	if in.Duration.Set {
		touched = true
		if in.Duration.Value != nil {
			if *in.Duration.Value <= 0 {
				return nil, false, Invalid("Invalid duration")
			}
			if next == nil {
				return nil, false, Invalid("duration requires scheduledAt")
			}
			d := *in.Duration.Value
			next = &models.Schedule{At: next.At, Duration: &d}
		} else if next != nil {
			next = &models.Schedule{At: next.At}
		}
	}
	if in.Status.Set {
		touched = true
		if in.Status.Value == nil {
			return nil, false, Invalid("Invalid status")
		}
		switch *in.Status.Value {
		case models.StatusPending:
			if (in.ScheduledAt.Set && in.ScheduledAt.Value != nil) || (in.Duration.Set && in.Duration.Value != nil) {
				return nil, false, Invalid("status pending conflicts with scheduledAt")
			}
			next = nil
		case models.StatusScheduled:
			if next == nil {
				return nil, false, Invalid("status scheduled requires scheduledAt")
			}
		default:
			return nil, false, Invalid("Invalid status %q", string(*in.Status.Value))
		}
	}
	return next, touched, nil
}

func filter(todos []models.Todo, keep func(models.Todo) bool) []models.Todo {
	out := []models.Todo{}
	for _, t := range todos {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
