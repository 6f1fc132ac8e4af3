package service

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"todo-scheduler/internal/config"
	"todo-scheduler/internal/database"
	"todo-scheduler/internal/models"
	"todo-scheduler/internal/repository"
)

type fakeCache struct {
	mu          sync.Mutex
	todos       []models.Todo
	ok          bool
	sets        int
	invalidated int
}

func (c *fakeCache) GetTodos(context.Context) ([]models.Todo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.todos, c.ok
}

func (c *fakeCache) SetTodos(_ context.Context, todos []models.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.todos, c.ok = todos, true
	c.sets++
}

func (c *fakeCache) InvalidateTodos(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.todos, c.ok = nil, false
	c.invalidated++
}

type fakePublisher struct {
	events []models.TodoEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev models.TodoEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) actions() []models.EventAction {
	out := make([]models.EventAction, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Action
	}
	return out
}

type fixture struct {
	svc    *TodoService
	cache  *fakeCache
	events *fakePublisher
	db     *database.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Driver:   config.DriverSQLite,
		URL:      filepath.Join(t.TempDir(), "todos.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.MigrateOrCreateSchema(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &fixture{cache: &fakeCache{}, events: &fakePublisher{}, db: db}
	f.svc = NewTodoService(repository.NewTodoRepository(db),
		WithCache(f.cache),
		WithEvents(f.events),
		WithHistory(repository.NewEventRepository(db)),
	)
	n := 0
	f.svc.newID = func() string { n++; return "ev-" + strconv.Itoa(n) }
	return f
}

func set[T any](v T) Field[T] { return Field[T]{Set: true, Value: &v} }
func null[T any]() Field[T]   { return Field[T]{Set: true} }
func ptr[T any](v T) *T       { return &v }

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, title := range []string{"", "   "} {
		_, err := f.svc.Create(ctx, CreateInput{Title: title})
		if !IsValidation(err) {
			t.Errorf("Create(%q): got %v, want ValidationError", title, err)
		}
	}

	todo, err := f.svc.Create(ctx, CreateInput{Title: "  Write report  "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if todo.Title != "Write report" {
		t.Errorf("Title: got %q, want trimmed", todo.Title)
	}
	if todo.Status != models.StatusPending || todo.ScheduledAt != nil || todo.Description != nil {
		t.Errorf("Create: got %+v", todo)
	}
	if f.cache.invalidated != 1 {
		t.Errorf("cache invalidations: got %d, want 1", f.cache.invalidated)
	}
	if len(f.events.events) != 1 || f.events.events[0].Action != models.ActionCreated || f.events.events[0].TodoID != todo.ID {
		t.Errorf("events: got %+v", f.events.events)
	}
}

func TestScheduleGetUnscheduleRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig, _ := f.svc.Create(ctx, CreateInput{Title: "Haircut", Description: ptr("short")})

	tests := []struct {
		at       time.Time
		duration *int
	}{
		{time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), ptr(30)},
		{time.Date(2024, 5, 3, 17, 15, 0, 0, time.FixedZone("", -5*3600)), ptr(90)},
		{time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC), nil},
	}
	for _, tt := range tests {
		if _, err := f.svc.Schedule(ctx, orig.ID, tt.at, tt.duration); err != nil {
			t.Fatalf("Schedule(%v): %v", tt.at, err)
		}
		got, err := f.svc.Get(ctx, orig.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != models.StatusScheduled {
			t.Errorf("Status: got %q, want scheduled", got.Status)
		}
		if got.ScheduledAt == nil || !got.ScheduledAt.Equal(tt.at) {
			t.Errorf("ScheduledAt: got %v, want %v", got.ScheduledAt, tt.at)
		}
		if (got.Duration == nil) != (tt.duration == nil) || (got.Duration != nil && *got.Duration != *tt.duration) {
			t.Errorf("Duration: got %v, want %v", got.Duration, tt.duration)
		}
	}

	back, err := f.svc.Unschedule(ctx, orig.ID)
	if err != nil {
		t.Fatalf("Unschedule: %v", err)
	}
	if back.Status != models.StatusPending || back.ScheduledAt != nil || back.Duration != nil {
		t.Errorf("Unschedule: got %+v", back)
	}
	if back.ID != orig.ID || back.Title != orig.Title || *back.Description != *orig.Description {
		t.Errorf("Unschedule changed identity or details: %+v vs %+v", back, orig)
	}
	if !back.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", back.CreatedAt, orig.CreatedAt)
	}

	want := []models.EventAction{models.ActionCreated, models.ActionScheduled, models.ActionScheduled, models.ActionScheduled, models.ActionUnscheduled}
	got := f.events.actions()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestScheduleValidationAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	todo, _ := f.svc.Create(ctx, CreateInput{Title: "x"})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := f.svc.Schedule(ctx, 99999, at, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Schedule missing: got %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Schedule(ctx, 0, at, nil); !IsValidation(err) {
		t.Errorf("Schedule id 0: got %v, want ValidationError", err)
	}
	if _, err := f.svc.Schedule(ctx, todo.ID, time.Time{}, nil); !IsValidation(err) {
		t.Errorf("Schedule zero time: got %v, want ValidationError", err)
	}
	if _, err := f.svc.Schedule(ctx, todo.ID, at, ptr(0)); !IsValidation(err) {
		t.Errorf("Schedule duration 0: got %v, want ValidationError", err)
	}
	if _, err := f.svc.Unschedule(ctx, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Unschedule missing: got %v, want ErrNotFound", err)
	}
}

func TestUpdateKeepsStatusInSyncWithSchedule(t *testing.T) {
	at := time.Date(2024, 7, 4, 10, 0, 0, 0, time.UTC)
	later := at.Add(48 * time.Hour)

	tests := []struct {
		name       string
		scheduled  bool
		in         UpdateInput
		wantErr    bool
		wantStatus models.Status
		wantAt     *time.Time
		wantDur    *int
		wantAction models.EventAction
	}{
		{
			name:       "title only keeps schedule",
			scheduled:  true,
			in:         UpdateInput{Title: set("renamed")},
			wantStatus: models.StatusScheduled, wantAt: &at, wantDur: ptr(60),
			wantAction: models.ActionUpdated,
		},
		{
			name:       "scheduledAt schedules pending todo",
			in:         UpdateInput{ScheduledAt: set(later)},
			wantStatus: models.StatusScheduled, wantAt: &later,
			wantAction: models.ActionScheduled,
		},
		{
			name:       "scheduledAt keeps existing duration",
			scheduled:  true,
			in:         UpdateInput{ScheduledAt: set(later)},
			wantStatus: models.StatusScheduled, wantAt: &later, wantDur: ptr(60),
			wantAction: models.ActionScheduled,
		},
		{
			name:       "duration alone on scheduled todo",
			scheduled:  true,
			in:         UpdateInput{Duration: set(15)},
			wantStatus: models.StatusScheduled, wantAt: &at, wantDur: ptr(15),
			wantAction: models.ActionScheduled,
		},
		{
			name:       "null scheduledAt clears schedule",
			scheduled:  true,
			in:         UpdateInput{ScheduledAt: null[time.Time]()},
			wantStatus: models.StatusPending,
			wantAction: models.ActionUnscheduled,
		},
		{
			name:       "status pending clears schedule",
			scheduled:  true,
			in:         UpdateInput{Status: set(models.StatusPending)},
			wantStatus: models.StatusPending,
			wantAction: models.ActionUnscheduled,
		},
		{
			name:       "status scheduled with scheduledAt",
			in:         UpdateInput{Status: set(models.StatusScheduled), ScheduledAt: set(at), Duration: set(20)},
			wantStatus: models.StatusScheduled, wantAt: &at, wantDur: ptr(20),
			wantAction: models.ActionScheduled,
		},
		{name: "status scheduled without time", in: UpdateInput{Status: set(models.StatusScheduled)}, wantErr: true},
		{name: "status done rejected", in: UpdateInput{Status: set(models.Status("done"))}, wantErr: true},
		{name: "pending with scheduledAt conflicts", in: UpdateInput{Status: set(models.StatusPending), ScheduledAt: set(at)}, wantErr: true},
		{name: "duration without schedule", in: UpdateInput{Duration: set(30)}, wantErr: true},
		{name: "negative duration", scheduled: true, in: UpdateInput{Duration: set(-5)}, wantErr: true},
		{name: "empty title", in: UpdateInput{Title: set("  ")}, wantErr: true},
		{name: "null title", in: UpdateInput{Title: null[string]()}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			todo, _ := f.svc.Create(ctx, CreateInput{Title: "task"})
			if tt.scheduled {
				if _, err := f.svc.Schedule(ctx, todo.ID, at, ptr(60)); err != nil {
					t.Fatalf("Schedule: %v", err)
				}
			}
			before := len(f.events.events)

			got, err := f.svc.Update(ctx, todo.ID, tt.in)
			if tt.wantErr {
				if !IsValidation(err) {
					t.Fatalf("Update: got %v, want ValidationError", err)
				}
				if len(f.events.events) != before {
					t.Errorf("rejected update published an event")
				}
				return
			}
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status: got %q, want %q", got.Status, tt.wantStatus)
			}
			if (got.ScheduledAt == nil) != (got.Status == models.StatusPending) {
				t.Errorf("status out of sync: status %q, scheduledAt %v", got.Status, got.ScheduledAt)
			}
			if tt.wantAt == nil && got.ScheduledAt != nil || tt.wantAt != nil && (got.ScheduledAt == nil || !got.ScheduledAt.Equal(*tt.wantAt)) {
				t.Errorf("ScheduledAt: got %v, want %v", got.ScheduledAt, tt.wantAt)
			}
			if tt.wantDur == nil && got.Duration != nil || tt.wantDur != nil && (got.Duration == nil || *got.Duration != *tt.wantDur) {
				t.Errorf("Duration: got %v, want %v", got.Duration, tt.wantDur)
			}
			last := f.events.events[len(f.events.events)-1]
			if last.Action != tt.wantAction {
				t.Errorf("event action: got %s, want %s", last.Action, tt.wantAction)
			}
		})
	}
}

func TestUpdateDescriptionAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	todo, _ := f.svc.Create(ctx, CreateInput{Title: "t", Description: ptr("old")})

	got, err := f.svc.Update(ctx, todo.ID, UpdateInput{Description: set("new")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Description == nil || *got.Description != "new" {
		t.Errorf("Description: got %v, want new", got.Description)
	}
	got, err = f.svc.Update(ctx, todo.ID, UpdateInput{Description: null[string]()})
	if err != nil {
		t.Fatalf("Update null description: %v", err)
	}
	if got.Description != nil {
		t.Errorf("Description: got %q, want nil", *got.Description)
	}

	if _, err := f.svc.Update(ctx, 99999, UpdateInput{Title: set("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: got %v, want ErrNotFound", err)
	}

	// an update naming no known field returns the record unchanged
	before := len(f.events.events)
	same, err := f.svc.Update(ctx, todo.ID, UpdateInput{})
	if err != nil {
		t.Fatalf("empty Update: %v", err)
	}
	if same.Title != "t" || len(f.events.events) != before {
		t.Errorf("empty Update wrote: %+v", same)
	}
}

func TestDeleteThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	todo, _ := f.svc.Create(ctx, CreateInput{Title: "bye"})

	if err := f.svc.Delete(ctx, todo.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, todo.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
	}
	if err := f.svc.Delete(ctx, todo.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
	last := f.events.events[len(f.events.events)-1]
	if last.Action != models.ActionDeleted || last.Todo != nil {
		t.Errorf("delete event: got %+v", last)
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late, _ := f.svc.Create(ctx, CreateInput{Title: "late night"})
	noon, _ := f.svc.Create(ctx, CreateInput{Title: "noon"})
	f.svc.Create(ctx, CreateInput{Title: "backlog"})
	f.svc.Schedule(ctx, late.ID, time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC), ptr(30))
	f.svc.Schedule(ctx, noon.ID, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), nil)

	may1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	may2 := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	plus2 := time.FixedZone("UTC+2", 2*3600)

	tests := []struct {
		name string
		f    ListFilter
		want []string
	}{
		{"all", ListFilter{}, []string{"backlog", "noon", "late night"}},
		{"utc may 1", ListFilter{Date: &may1, Location: time.UTC}, []string{"noon", "late night"}},
		{"plus2 may 1", ListFilter{Date: &may1, Location: plus2}, []string{"noon"}},
		{"plus2 may 2", ListFilter{Date: &may2, Location: plus2}, []string{"late night"}},
		{"unscheduled", ListFilter{Unscheduled: true}, []string{"backlog"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.List(ctx, tt.f)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List: got %d todos, want %v", len(got), tt.want)
			}
			for i, title := range tt.want {
				if got[i].Title != title {
					t.Errorf("List[%d]: got %q, want %q", i, got[i].Title, title)
				}
			}
		})
	}

	if _, err := f.svc.List(ctx, ListFilter{Date: &may1, Unscheduled: true}); !IsValidation(err) {
		t.Errorf("List date+unscheduled: got %v, want ValidationError", err)
	}
}

func TestListUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Create(ctx, CreateInput{Title: "one"})

	if _, err := f.svc.List(ctx, ListFilter{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if f.cache.sets != 1 {
		t.Fatalf("cache sets: got %d, want 1", f.cache.sets)
	}

	// a cache hit is served without touching the store
	f.cache.SetTodos(ctx, []models.Todo{{ID: 500, Title: "cached"}})
	got, err := f.svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Title != "cached" {
		t.Errorf("List: got %+v, want cached entry", got)
	}

	// writes invalidate
	f.svc.Create(ctx, CreateInput{Title: "two"})
	got, _ = f.svc.List(ctx, ListFilter{})
	if len(got) != 2 {
		t.Errorf("List after write: got %d todos, want 2", len(got))
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	todo, err := f.svc.Create(context.Background(), CreateInput{Title: "still saved"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), todo.ID); err != nil {
		t.Errorf("Get: %v", err)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.History(ctx, 0); !IsValidation(err) {
		t.Errorf("History(0): got %v, want ValidationError", err)
	}

	history := repository.NewEventRepository(f.db)
	todo, _ := f.svc.Create(ctx, CreateInput{Title: "tracked"})
	for _, ev := range f.events.events {
		if err := history.Append(ctx, ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := f.svc.History(ctx, todo.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 || got[0].Action != models.ActionCreated {
		t.Errorf("History: got %+v", got)
	}

	bare := NewTodoService(repository.NewTodoRepository(f.db))
	empty, err := bare.History(ctx, todo.ID)
	if err != nil || len(empty) != 0 {
		t.Errorf("History without store: got (%v, %v)", empty, err)
	}
}

// gatedStore holds the first GetAll after it has read the table until release
// is closed.
type gatedStore struct {
	*repository.TodoRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (g *gatedStore) GetAll(ctx context.Context) ([]models.Todo, error) {
	todos, err := g.TodoRepository.GetAll(ctx)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return todos, err
}

func TestListAfterConcurrentWriteIsFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := &gatedStore{
		TodoRepository: repository.NewTodoRepository(f.db),
		read:           make(chan struct{}),
		release:        make(chan struct{}),
	}
	cache := &fakeCache{}
	svc := NewTodoService(store, WithCache(cache))

	done := make(chan []models.Todo)
	go func() {
		todos, err := svc.List(ctx, ListFilter{})
		if err != nil {
			t.Errorf("List: %v", err)
		}
		done <- todos
	}()
	<-store.read

	created, err := svc.Create(ctx, CreateInput{Title: "written mid-read"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	close(store.release)
	if stale := <-done; len(stale) != 0 {
		t.Fatalf("in-flight read: got %d todos, want the pre-write empty list", len(stale))
	}

	if _, ok := cache.GetTodos(ctx); ok {
		t.Error("pre-write list was stored in the cache")
	}
	got, err := svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != created.ID {
		t.Errorf("List after write: got %+v, want [%d]", got, created.ID)
	}
}
