package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"airquality-platform/internal/config"
	"airquality-platform/internal/handlers"
	"airquality-platform/internal/repository"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger("airquality-dashboard", version)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting air quality dashboard", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"db_path":     cfg.Database.Path,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := metrics.NewCollector("airquality_dashboard", registry)

	db, err := database.Open(cfg.DatabaseOptions(true), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open store", logging.Fields{}, err)
	}
	defer db.Close()

	repo := repository.NewAirQualityRepository(db, logger, metricsCollector)

	statsService := services.NewStatisticsService(logger, metricsCollector)
	dashboardService := services.NewDashboardService(repo, statsService, logger, metricsCollector)

	if err := dashboardService.Load(ctx); err != nil {
		hint := ""
		if errors.Is(err, services.ErrMissingTable) || errors.Is(err, services.ErrNoData) {
			hint = "run the ingester first"
		}
		db.Close()
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load dashboard data", logging.Fields{
			"hint": hint,
		}, err)
	}

	dashboardHandler := handlers.NewDashboardHandler(dashboardService, statsService, repo, logger, metricsCollector)

	router := dashboardHandler.Router()
	router.Handle("/metrics", promhttp.HandlerFor(metricsCollector.Gatherer(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
