package main

import (
	"context"
	"flag"
	"log"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/johnquangdev/transcript-indexer/internal/infrastructure/database"
	"github.com/johnquangdev/transcript-indexer/pkg/config"
)

func main() {
	down := flag.Bool("down", false, "roll back instead of applying")
	steps := flag.Int("steps", 0, "maximum number of migrations to run (0 = all)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewPostgresDB(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	direction := migrate.Up
	if *down {
		direction = migrate.Down
		if *steps == 0 {
			*steps = 1
		}
	}

	log.Printf("🔄 Running migrations from %s/ ...", cfg.Database.MigrationsDir)
	n, err := database.Migrate(db, cfg.Database.MigrationsDir, direction, *steps)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Printf("✅ Successfully ran %d migration(s)!", n)
}
