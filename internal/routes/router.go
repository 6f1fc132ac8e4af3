package routes

import (
	"time"

	"todo-scheduler/internal/controller"
	"todo-scheduler/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	Todos       *controller.TodoController
	Ready       []controller.ReadinessCheck
	JWTSecret   string
	CORSOrigins []string
}

func Router(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())
	if len(d.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  d.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders: []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	// Health for load balancers and K8s probes
	router.GET("/health", controller.Health)
	router.GET("/ready", controller.Ready(d.Ready...))

	// Same API at the root and under /api
	for _, prefix := range []string{"", "/api"} {
		registerTodos(router.Group(prefix), d)
	}
	return router
}

func registerTodos(g *gin.RouterGroup, d Deps) {
	// Public: reads
	g.GET("/todos", d.Todos.GetTodos)
	g.GET("/todos/:id", d.Todos.GetTodo)
	g.GET("/todos/:id/events", d.Todos.TodoEvents)

	// Writes: JWT required when a secret is configured
	w := g.Group("")
	if d.JWTSecret != "" {
		w.Use(middleware.AuthMiddleware(d.JWTSecret))
	}
	w.POST("/todos", d.Todos.CreateTodo)
	w.PUT("/todos/:id", d.Todos.UpdateTodo)
	w.DELETE("/todos/:id", d.Todos.DeleteTodo)
	w.POST("/schedule", d.Todos.ScheduleTodo)
	w.PUT("/schedule", d.Todos.UnscheduleTodo)
}
