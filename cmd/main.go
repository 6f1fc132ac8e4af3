package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"todo-scheduler/internal/config"
	"todo-scheduler/internal/database"
	"todo-scheduler/pkg/logger"
)

var version = "dev"

func main() {
	app := cli.App{
		Name:      "todo-scheduler",
		Usage:     "todo list API with calendar scheduling",
		UsageText: "todo-scheduler [command]",
		Version:   version,
		Action:    serve,
		Commands: []cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the event worker (default)",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Subcommands: []cli.Command{
					{Name: "up", Usage: "apply all pending migrations", Action: migrateCmd(database.MigrateOrCreateSchema)},
					{Name: "down", Usage: "roll back the latest migration", Action: migrateCmd(database.MigrateDown)},
					{Name: "status", Usage: "print applied and pending migrations", Action: migrateCmd(database.MigrationStatus)},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads .env (values already in the environment win), the config
// and the process logger.
func bootstrap() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func migrateCmd(run func(context.Context, *database.DB) error) func(*cli.Context) error {
	return func(_ *cli.Context) error {
		cfg, err := bootstrap()
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		return run(ctx, db)
	}
}
