package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli"

	"todo-scheduler/internal/cache"
	"todo-scheduler/internal/controller"
	"todo-scheduler/internal/database"
	"todo-scheduler/internal/queue"
	"todo-scheduler/internal/repository"
	"todo-scheduler/internal/routes"
	"todo-scheduler/internal/service"
	"todo-scheduler/internal/worker"
	"todo-scheduler/pkg/logger"
)

func serve(_ *cli.Context) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.MigrateOrCreateSchema(ctx, db); err != nil {
		return err
	}

	history := repository.NewEventRepository(db)
	opts := []service.Option{service.WithHistory(history)}
	ready := []controller.ReadinessCheck{{Name: "database", Ping: db.PingContext}}

	// Redis is optional; the list is served from the database without it
	var invalidator worker.Invalidator
	if cfg.CacheEnabled() {
		todoCache, err := cache.New(ctx, cfg.Redis)
		if err != nil {
			logger.Warn(ctx, "Redis unavailable, running without list cache", "error", err)
		} else {
			defer todoCache.Close()
			opts = append(opts, service.WithCache(todoCache))
			ready = append(ready, controller.ReadinessCheck{Name: "redis", Ping: todoCache.Ping})
			invalidator = todoCache
		}
	}

	workerDone := make(chan struct{})
	if cfg.EventsEnabled() {
		queue.EnsureTopic(ctx, cfg.Kafka)
		publisher := queue.NewPublisher(ctx, cfg.Kafka)
		defer publisher.Close()
		opts = append(opts, service.WithEvents(publisher))

		w := worker.New(cfg.Kafka, history, invalidator)
		go func() {
			defer close(workerDone)
			w.Run(ctx)
		}()
	} else {
		logger.Info(ctx, "Kafka not configured, change feed and history disabled")
		close(workerDone)
	}

	svc := service.NewTodoService(repository.NewTodoRepository(db), opts...)
	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr: ":" + cfg.HTTP.Port,
		Handler: routes.Router(routes.Deps{
			Todos:       controller.NewTodoController(svc),
			Ready:       ready,
			JWTSecret:   cfg.Auth.JWTSecret,
			CORSOrigins: cfg.HTTP.CORSOrigins,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "port", cfg.HTTP.Port, "driver", cfg.Database.Driver, "auth", cfg.AuthEnabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "Shutting down server")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-workerDone
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Server shutdown error", "error", err)
	}
	stop()
	<-workerDone
	logger.Info(shutdownCtx, "Server stopped")
	return nil
}
