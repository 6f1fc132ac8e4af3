// Seed adds sample todos to the database, scheduling every third one on the
// coming days. Run from project root: go run ./scripts/seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"todo-scheduler/internal/config"
	"todo-scheduler/internal/database"
	"todo-scheduler/internal/models"
	"todo-scheduler/internal/repository"
)

const total = 1_000

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config:", err)
		os.Exit(1)
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintln(os.Stderr, "DB connection failed:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.MigrateOrCreateSchema(ctx, db); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}

	todos := repository.NewTodoRepository(db)
	start := time.Now()
	day := start.UTC().Truncate(24 * time.Hour)
	scheduled := 0

	for n := 1; n <= total; n++ {
		desc := fmt.Sprintf("Description for todo %d", n)
		todo, err := todos.Create(ctx, fmt.Sprintf("Todo %d", n), &desc)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Insert failed:", err)
			os.Exit(1)
		}
		if n%3 == 0 {
			duration := 15 * (1 + n%4)
			slot := &models.Schedule{
				At:       day.Add(time.Duration(n%14)*24*time.Hour + time.Duration(8+n%10)*time.Hour),
				Duration: &duration,
			}
			if _, err := todos.SetSchedule(ctx, todo.ID, slot); err != nil {
				fmt.Fprintln(os.Stderr, "Schedule failed:", err)
				os.Exit(1)
			}
			scheduled++
		}
		if n%100 == 0 {
			fmt.Printf("\rInserted %d / %d", n, total)
		}
	}

	fmt.Printf("\nDone: %d todos (%d scheduled) in %v\n", total, scheduled, time.Since(start))
}
