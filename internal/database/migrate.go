package database

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"todo-scheduler/internal/config"
	"todo-scheduler/pkg/logger"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// MigrateOrCreateSchema applies every pending migration for the pool's dialect.
func MigrateOrCreateSchema(ctx context.Context, db *DB) error {
	return withGoose(ctx, db, func(dir string) error {
		return goose.UpContext(ctx, db.DB, dir)
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *DB) error {
	return withGoose(ctx, db, func(dir string) error {
		return goose.DownContext(ctx, db.DB, dir)
	})
}

// MigrationStatus logs the applied state of every migration.
func MigrationStatus(ctx context.Context, db *DB) error {
	return withGoose(ctx, db, func(dir string) error {
		return goose.StatusContext(ctx, db.DB, dir)
	})
}

func withGoose(ctx context.Context, db *DB, fn func(dir string) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect, dir := "postgres", "migrations/postgres"
	if db.Driver == config.DriverSQLite {
		dialect, dir = "sqlite3", "migrations/sqlite"
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{ctx: ctx})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := fn(dir); err != nil {
		return fmt.Errorf("goose %s: %w", dir, err)
	}
	return nil
}

type gooseLogger struct {
	ctx context.Context
}

func (l gooseLogger) Printf(format string, v ...any) {
	logger.Info(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	logger.Error(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}
