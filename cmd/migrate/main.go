package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"airquality-platform/internal/config"
	"airquality-platform/internal/repository"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "Invalid direction %q, expected up or down\n", *direction)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger("airquality-migrate", "1.0.0")
	collector := metrics.NewCollector("airquality_migrate", nil)

	db, err := database.Open(cfg.DatabaseOptions(false), logger, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s store successfully\n", db.Dialect().Name)

	repo := repository.NewAirQualityRepository(db, logger, collector)
	ctx := context.Background()

	if *direction == "up" {
		fmt.Println("Creating schema")
		err = repo.EnsureSchema(ctx)
	} else {
		fmt.Println("Dropping schema")
		err = repo.DropSchema(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
		db.Close()
		os.Exit(1)
	}

	fmt.Println("Migration completed successfully")
}
