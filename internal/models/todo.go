package models

import "time"

// Status is the scheduling state of a todo. It is derived from ScheduledAt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
)

// Todo represents a todo item.
type Todo struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      Status     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	Duration    *int       `json:"duration"` // minutes
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Schedule is a calendar slot: a start time and an optional length in minutes.
type Schedule struct {
	At       time.Time
	Duration *int
}

// StatusFor returns the status implied by a schedule (nil means unscheduled).
func StatusFor(s *Schedule) Status {
	if s == nil {
		return StatusPending
	}
	return StatusScheduled
}

// Schedule returns the todo's current slot, or nil when it is not scheduled.
func (t Todo) Schedule() *Schedule {
	if t.ScheduledAt == nil {
		return nil
	}
	return &Schedule{At: *t.ScheduledAt, Duration: t.Duration}
}

// ScheduledOn reports whether the todo's start falls on the calendar day of
// day (year, month, day only) when read in loc.
func (t Todo) ScheduledOn(day time.Time, loc *time.Location) bool {
	if t.ScheduledAt == nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	y1, m1, d1 := t.ScheduledAt.In(loc).Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// EventAction names a committed mutation on the change feed.
type EventAction string

const (
	ActionCreated     EventAction = "created"
	ActionUpdated     EventAction = "updated"
	ActionScheduled   EventAction = "scheduled"
	ActionUnscheduled EventAction = "unscheduled"
	ActionDeleted     EventAction = "deleted"
)

// TodoEvent is the message payload for Kafka and a row of a todo's history.
type TodoEvent struct {
	EventID    string      `json:"eventId"`
	TodoID     int64       `json:"todoId"`
	Action     EventAction `json:"action"`
	Todo       *Todo       `json:"todo"` // snapshot after the change; nil for deletes
	OccurredAt time.Time   `json:"occurredAt"`
}
