package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"airquality-platform/internal/config"
	"airquality-platform/internal/repository"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	dataDir := flag.String("data-dir", "downloads", "Directory containing <station_id>_<name>.json report files")
	configDir := flag.String("config-dir", "config", "Directory containing appsettings.json and code_title_map.json")
	metricsFile := flag.String("metrics-file", "", "Write ingestion metrics to this Prometheus textfile")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger("airquality-ingester", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := config.LoadRunSettings(*configDir)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to load run settings", logging.Fields{
			"config_dir": *configDir,
		}, err)
	}
	codes, err := config.LoadCodeMap(*configDir)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to load code map", logging.Fields{
			"config_dir": *configDir,
		}, err)
	}

	logger.Info(ctx, "[INGESTER_START] Starting air quality ingestion", logging.Fields{
		"version":        version,
		"data_dir":       *dataDir,
		"config_dir":     *configDir,
		"db_driver":      cfg.Database.Driver,
		"db_path":        cfg.Database.Path,
		"report_type":    settings.ReportType,
		"granularity":    settings.GranularityMinutes,
		"monitor_prefix": settings.MonitorPrefix,
		"mapped_codes":   len(codes),
	})

	metricsCollector := metrics.NewCollector("airquality_ingester", prometheus.NewRegistry())

	db, err := database.Open(cfg.DatabaseOptions(false), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to open store", logging.Fields{}, err)
	}

	repo := repository.NewAirQualityRepository(db, logger, metricsCollector)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to create schema", logging.Fields{}, err)
	}

	ingestionService := services.NewIngestionService(repo, settings, codes, logger, metricsCollector)

	result, err := ingestionService.IngestDirectory(ctx, *dataDir)
	exitCode := 0
	switch {
	case errors.Is(err, services.ErrNoInputFiles):
		logger.Warn(ctx, "[INGESTER_NO_FILES] No JSON files to ingest", logging.Fields{
			"data_dir": *dataDir,
		})
	case errors.Is(err, services.ErrDataDirNotFound):
		logger.Error(ctx, "[INGESTER_ERROR] Data directory not found", logging.Fields{
			"data_dir": *dataDir,
		}, err)
		exitCode = 1
	case err != nil:
		logger.Error(ctx, "[INGESTER_ERROR] Ingestion stopped", logging.Fields{}, err)
		exitCode = 1
	}

	if result != nil {
		printResult(result)
	}

	if *metricsFile != "" {
		if err := metricsCollector.WriteTextfile(*metricsFile); err != nil {
			logger.Error(ctx, "[INGESTER_METRICS_ERROR] Failed to write metrics file", logging.Fields{
				"metrics_file": *metricsFile,
			}, err)
		}
	}

	if err := db.Close(); err != nil {
		logger.Warn(ctx, "[INGESTER_CLOSE] Failed to close store", logging.Fields{"error": err.Error()})
	}

	if result != nil {
		logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion finished", logging.Fields{
			"files_succeeded":      result.FilesSucceeded,
			"files_failed":         result.FilesFailed,
			"measurements_written": result.MeasurementsWritten,
			"duration_seconds":     result.Duration.Seconds(),
		})
	}
	os.Exit(exitCode)
}

func printResult(result *services.IngestionResult) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Files:                %d found, %d ok, %d failed\n", result.FilesFound, result.FilesSucceeded, result.FilesFailed)
	fmt.Printf("Rows:                 %d read, %d skipped\n", result.RowsTotal, result.RowsSkipped)
	fmt.Printf("Measurements written: %d\n", result.MeasurementsWritten)
	fmt.Printf("Duration:             %v\n", result.Duration)

	if s := result.Summary; s != nil {
		fmt.Println()
		fmt.Printf("Store measurements:   %d\n", s.TotalMeasurements)
		fmt.Printf("Stations:             %d\n", s.TotalStations)
		fmt.Printf("Monitors:             %d\n", s.TotalMonitors)
		if s.FirstTimestamp != nil && s.LastTimestamp != nil {
			fmt.Printf("Date range:           %s to %s\n",
				s.FirstTimestamp.Format("2006-01-02 15:04"), s.LastTimestamp.Format("2006-01-02 15:04"))
		}
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}
}
