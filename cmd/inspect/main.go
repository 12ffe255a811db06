// Command inspect parses and classifies report files without a database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"airquality-platform/internal/config"
	"airquality-platform/internal/models"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

func main() {
	dataDir := flag.String("data-dir", "downloads", "Directory containing <station_id>_<name>.json report files")
	configDir := flag.String("config-dir", "config", "Directory containing appsettings.json and code_title_map.json")
	verbose := flag.Bool("v", false, "Print the monitors found in each file")
	flag.Parse()

	logger := logging.NewStructuredLogger("airquality-inspect", "1.0.0", logging.WarnLevel)
	logger.SetFormat(logging.FormatConsole)
	ctx := context.Background()

	settings, err := config.LoadRunSettings(*configDir)
	if err != nil {
		logger.Fatal(ctx, "[INSPECT_ERROR] Failed to load run settings", logging.Fields{}, err)
	}
	codes, err := config.LoadCodeMap(*configDir)
	if err != nil {
		logger.Fatal(ctx, "[INSPECT_ERROR] Failed to load code map", logging.Fields{}, err)
	}

	files, err := services.ListReportFiles(*dataDir)
	if err != nil {
		logger.Fatal(ctx, "[INSPECT_ERROR] Failed to list directory", logging.Fields{"data_dir": *dataDir}, err)
	}

	extractor := services.NewExtractor(settings.MonitorPrefix, codes)
	stats := services.NewStatisticsService(logger, metrics.NewCollector("airquality_inspect", nil))

	rule := strings.Repeat("─", 64)
	fmt.Println(strings.Repeat("═", 64))
	fmt.Println("AIR QUALITY REPORTS - DRY RUN")
	fmt.Println(strings.Repeat("═", 64))
	fmt.Printf("Found %d report files in %s\n\n", len(files), *dataDir)

	var (
		totalRows, totalSkipped, totalMeasurements, totalNull, failed int
	)

	for _, path := range files {
		name := filepath.Base(path)
		fileCtx := logging.WithFile(ctx, name)

		stationID, stationName, err := services.ParseFilename(name)
		if err != nil {
			logger.Warn(fileCtx, "[INSPECT_SKIP] Unusable file name", logging.Fields{"error": err.Error()})
			failed++
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error(fileCtx, "[INSPECT_ERROR] Failed to read file", logging.Fields{}, err)
			failed++
			continue
		}
		rows, err := services.DecodeRecords(data)
		if err != nil {
			logger.Warn(fileCtx, "[INSPECT_SKIP] Malformed JSON", logging.Fields{"error": err.Error()})
			failed++
			continue
		}

		res := extractor.Extract(rows, stationID)
		nulls, values := splitValues(res.Measurements)

		totalRows += res.RowsTotal
		totalSkipped += res.RowsSkipped
		totalMeasurements += len(res.Measurements)
		totalNull += nulls

		fmt.Println(rule)
		fmt.Printf("Station %d: %s (%s)\n", stationID, stationName, name)
		fmt.Println(rule)
		fmt.Printf("  Rows:          %d (%d valid, %d skipped)\n", res.RowsTotal, res.RowsValid, res.RowsSkipped)
		fmt.Printf("  Measurements:  %d (%d without value)\n", len(res.Measurements), nulls)
		fmt.Printf("  Monitors:      %d\n", res.Registry.Len())

		if *verbose {
			for _, m := range res.Registry.Monitors() {
				line := fmt.Sprintf("    %-12s %s", m.Code, m.Name)
				if m.Unit != "" {
					line += " (" + m.Unit + ")"
				}
				if d, err := stats.Describe(values[m.Code]); err == nil {
					line += fmt.Sprintf("  n=%d mean=%.2f median=%.2f", d.Count, d.Mean, d.Median)
				}
				fmt.Println(line)
			}
		}
		fmt.Println()
	}

	fmt.Println(strings.Repeat("═", 64))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("═", 64))
	fmt.Printf("Files:               %d (%d unreadable)\n", len(files), failed)
	fmt.Printf("Rows:                %d (%d skipped)\n", totalRows, totalSkipped)
	fmt.Printf("Measurements:        %d (%d without value)\n", totalMeasurements, totalNull)
	fmt.Printf("Report type:         %s every %d min\n", settings.ReportType, settings.GranularityMinutes)
}

// splitValues counts null readings and groups the others by monitor code.
func splitValues(ms []models.Measurement) (int, map[string][]float64) {
	nulls := 0
	values := make(map[string][]float64)
	for _, m := range ms {
		if m.Value == nil {
			nulls++
			continue
		}
		values[m.MonitorCode] = append(values[m.MonitorCode], *m.Value)
	}
	return nulls, values
}
