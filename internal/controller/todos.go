package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"todo-scheduler/internal/service"
	"todo-scheduler/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TodoController exposes the todo service over HTTP.
type TodoController struct {
	todos *service.TodoService
}

func NewTodoController(todos *service.TodoService) *TodoController {
	return &TodoController{todos: todos}
}

// errorReplies holds the per-endpoint wording for the shared error mapping.
// A zero notFoundStatus marks endpoints that never look up an existing todo.
type errorReplies struct {
	notFoundStatus int
	notFound       string
	internal       string
}

var (
	listReplies       = errorReplies{internal: "Failed to fetch todos"}
	getReplies        = errorReplies{http.StatusNotFound, "Todo not found", "Failed to fetch todo"}
	createReplies     = errorReplies{internal: "Failed to create todo"}
	updateReplies     = errorReplies{http.StatusBadRequest, "Todo not found or update failed", "Failed to update todo"}
	deleteReplies     = errorReplies{http.StatusBadRequest, "Todo not found or delete failed", "Failed to delete todo"}
	scheduleReplies   = errorReplies{http.StatusNotFound, "Todo not found for scheduling", "Failed to schedule todo"}
	unscheduleReplies = errorReplies{http.StatusBadRequest, "Todo not found or unschedule failed", "Failed to unschedule todo"}
	historyReplies    = errorReplies{http.StatusNotFound, "Todo not found", "Failed to fetch todo history"}
)

func respondError(c *gin.Context, err error, r errorReplies) {
	ctx := c.Request.Context()
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case r.notFoundStatus != 0 && errors.Is(err, service.ErrNotFound):
		c.JSON(r.notFoundStatus, gin.H{"error": r.notFound})
	case ctx.Err() != nil || isContextErr(err):
		// client went away
		c.Status(http.StatusRequestTimeout)
	default:
		logger.Error(ctx, r.internal, "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": r.internal})
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// GetTodos lists todos, newest first. ?date=YYYY-MM-DD (with optional
// ?tz=) keeps only todos scheduled on that day; ?unscheduled=true keeps only
// pending ones.
func (h *TodoController) GetTodos(c *gin.Context) {
	var f service.ListFilter
	if d := c.Query("date"); d != "" {
		day, err := parseDate(d)
		if err != nil {
			respondError(c, err, listReplies)
			return
		}
		loc, err := parseLocation(c.Query("tz"))
		if err != nil {
			respondError(c, err, listReplies)
			return
		}
		f.Date, f.Location = &day, loc
	}
	if u := c.Query("unscheduled"); u != "" {
		v, err := strconv.ParseBool(u)
		if err != nil {
			respondError(c, service.Invalid("Invalid unscheduled flag"), listReplies)
			return
		}
		f.Unscheduled = v
	}
	todos, err := h.todos.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err, listReplies)
		return
	}
	c.JSON(http.StatusOK, todos)
}

func (h *TodoController) GetTodo(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		respondError(c, err, getReplies)
		return
	}
	todo, err := h.todos.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, getReplies)
		return
	}
	c.JSON(http.StatusOK, todo)
}

func (h *TodoController) CreateTodo(c *gin.Context) {
	var body createTodoRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}
	todo, err := h.todos.Create(c.Request.Context(), service.CreateInput{
		Title:       body.Title,
		Description: body.Description,
	})
	if err != nil {
		respondError(c, err, createReplies)
		return
	}
	c.JSON(http.StatusCreated, todo)
}

func (h *TodoController) UpdateTodo(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		respondError(c, err, updateReplies)
		return
	}
	var body updateTodoRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	in, err := body.toInput()
	if err != nil {
		respondError(c, err, updateReplies)
		return
	}
	todo, err := h.todos.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err, updateReplies)
		return
	}
	c.JSON(http.StatusOK, todo)
}

func (h *TodoController) DeleteTodo(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		respondError(c, err, deleteReplies)
		return
	}
	if err := h.todos.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, deleteReplies)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Todo deleted"})
}

// ScheduleTodo handles POST /schedule {id, scheduledAt, duration?}.
func (h *TodoController) ScheduleTodo(c *gin.Context) {
	var body scheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	id, err := parseID(body.ID)
	if err != nil {
		respondError(c, err, scheduleReplies)
		return
	}
	if len(body.ScheduledAt) == 0 || isNull(body.ScheduledAt) {
		respondError(c, service.Invalid("Invalid input"), scheduleReplies)
		return
	}
	at, err := parseTimestampJSON(body.ScheduledAt)
	if err != nil {
		respondError(c, err, scheduleReplies)
		return
	}
	duration, err := parseDuration(body.Duration)
	if err != nil {
		respondError(c, err, scheduleReplies)
		return
	}
	todo, err := h.todos.Schedule(c.Request.Context(), id, at, duration)
	if err != nil {
		respondError(c, err, scheduleReplies)
		return
	}
	c.JSON(http.StatusOK, todo)
}

// UnscheduleTodo handles PUT /schedule {id}.
func (h *TodoController) UnscheduleTodo(c *gin.Context) {
	var body scheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	id, err := parseID(body.ID)
	if err != nil {
		respondError(c, err, unscheduleReplies)
		return
	}
	todo, err := h.todos.Unschedule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, unscheduleReplies)
		return
	}
	c.JSON(http.StatusOK, todo)
}

// TodoEvents returns the recorded change history of one todo.
func (h *TodoController) TodoEvents(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		respondError(c, err, historyReplies)
		return
	}
	events, err := h.todos.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, historyReplies)
		return
	}
	c.JSON(http.StatusOK, events)
}
