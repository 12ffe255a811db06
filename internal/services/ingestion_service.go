package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"airquality-platform/internal/config"
	"airquality-platform/internal/models"
	"airquality-platform/internal/repository"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// Sentinel errors returned by IngestDirectory before any file is processed.
var (
	ErrDataDirNotFound = errors.New("data directory not found")
	ErrNoInputFiles    = errors.New("no input files")
)

// ErrNoStationID is returned for file names without a leading "<digits>_".
var ErrNoStationID = errors.New("file name has no station id prefix")

// Keys searched, in order, for the record array of an object-shaped export.
var recordArrayKeys = []string{"data", "Data", "records", "Records"}

var stationPrefix = regexp.MustCompile(`^(\d+)_`)

// IngestionService coordinates loading report files into the store
type IngestionService struct {
	repo      repository.AirQualityRepository
	extractor *Extractor
	settings  config.RunSettings
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	now       func() time.Time
}

// IngestionResult contains run statistics
type IngestionResult struct {
	FilesFound          int
	FilesSucceeded      int
	FilesFailed         int
	RowsTotal           int
	RowsSkipped         int
	MeasurementsWritten int
	Files               []*FileResult
	Errors              []string
	Duration            time.Duration
	Summary             *models.StoreSummary
}

// FileResult contains per-file statistics
type FileResult struct {
	File         string
	StationID    int
	StationName  string
	RowsTotal    int
	RowsValid    int
	RowsSkipped  int
	Measurements int
	Monitors     int
	Persisted    bool
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.AirQualityRepository, settings config.RunSettings, codes models.CodeMap, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:      repo,
		extractor: NewExtractor(settings.MonitorPrefix, codes),
		settings:  settings,
		logger:    logger,
		metrics:   metricsCollector,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ParseFilename derives the station id and display name from a file name of
// the form <id>_<name>[_...].json.
func ParseFilename(name string) (int, string, error) {
	base := filepath.Base(name)
	m := stationPrefix.FindStringSubmatch(base)
	if m == nil {
		return 0, "", fmt.Errorf("%s: %w", base, ErrNoStationID)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("%s: station id out of range: %w", base, err)
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, "_")
	if len(parts) > 1 && parts[1] != "" {
		return id, parts[1], nil
	}
	return id, fmt.Sprintf("Station %d", id), nil
}

// DecodeRecords parses a report export into rows. A top-level array is used
// as is; an object contributes the first array found under a conventional
// key. Any other shape yields no rows. Array elements that are not objects
// become empty rows, which the classifier rejects.
func DecodeRecords(data []byte) ([]models.RawRow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("malformed JSON: trailing data after document")
	}

	var items []interface{}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		for _, key := range recordArrayKeys {
			if arr, ok := v[key].([]interface{}); ok {
				items = arr
				break
			}
		}
	}

	rows := make([]models.RawRow, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]interface{})
		rows = append(rows, models.RawRow(obj))
	}
	return rows, nil
}

// ListReportFiles returns the paths of the *.json files directly
// inside dir, sorted by name. The directory name is never read as a pattern.
func ListReportFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("*.json", entry.Name()); ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// IngestFile loads one report file and upserts its measurements. Files
// yielding no measurements are not persisted.
func (s *IngestionService) IngestFile(ctx context.Context, path string) (*FileResult, error) {
	fileName := filepath.Base(path)
	ctx = logging.WithFile(ctx, fileName)

	stationID, stationName, err := ParseFilename(fileName)
	if err != nil {
		s.metrics.RecordIngestionError("station_id")
		return nil, err
	}
	log := s.logger.WithFields(logging.Fields{
		"file":       fileName,
		"station_id": stationID,
	})

	result := &FileResult{
		File:        fileName,
		StationID:   stationID,
		StationName: stationName,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.metrics.RecordIngestionError("read_error")
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	rows, err := DecodeRecords(data)
	if err != nil {
		s.metrics.RecordIngestionError("parse_error")
		return nil, err
	}

	extracted := s.extractor.Extract(rows, stationID)
	result.RowsTotal = extracted.RowsTotal
	result.RowsValid = extracted.RowsValid
	result.RowsSkipped = extracted.RowsSkipped
	result.Monitors = extracted.Registry.Len()
	s.metrics.RecordRows(extracted.RowsValid, extracted.RowsSkipped)

	log.Debug(ctx, "[INGEST_PARSE] File parsed", logging.Fields{
		"station_name": stationName,
		"rows_total":   extracted.RowsTotal,
		"rows_valid":   extracted.RowsValid,
		"measurements": len(extracted.Measurements),
		"monitors":     extracted.Registry.Len(),
	})

	if len(extracted.Measurements) == 0 {
		log.Warn(ctx, "[INGEST_FILE_EMPTY] No valid measurements found, skipping persistence", logging.Fields{
			"rows_total": extracted.RowsTotal,
		})
		return result, nil
	}

	ingestedAt := s.now()
	for i := range extracted.Measurements {
		m := &extracted.Measurements[i]
		m.ReportType = s.settings.ReportType
		m.GranularityMinutes = s.settings.GranularityMinutes
		m.CreatedAt = ingestedAt
	}

	batch := &models.FileBatch{
		Station: models.Station{
			StationID:   stationID,
			StationName: stationName,
			CreatedAt:   ingestedAt,
		},
		Monitors:           extracted.Registry.Monitors(),
		Measurements:       extracted.Measurements,
		ReportType:         s.settings.ReportType,
		GranularityMinutes: s.settings.GranularityMinutes,
		IngestedAt:         ingestedAt,
	}

	written, err := s.repo.SaveBatch(ctx, batch)
	if err != nil {
		s.metrics.RecordIngestionError("persist_error")
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}
	log.Debug(ctx, "[INGEST_PERSIST] Batch persisted", logging.Fields{
		"measurements": written,
	})

	result.Measurements = written
	result.Persisted = true
	return result, nil
}

// IngestDirectory ingests every *.json file of dir in lexicographic order.
// A failing file is logged and counted; it never aborts the run.
func (s *IngestionService) IngestDirectory(ctx context.Context, dir string) (*IngestionResult, error) {
	startTime := time.Now()

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrDataDirNotFound)
	}

	files, err := ListReportFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoInputFiles)
	}

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":    dir,
		"file_count":  len(files),
		"report_type": s.settings.ReportType,
		"granularity": s.settings.GranularityMinutes,
		"stage":       "INITIALIZATION",
	})

	result := &IngestionResult{
		FilesFound: len(files),
		Errors:     make([]string, 0),
	}

	for _, filePath := range files {
		if err := ctx.Err(); err != nil {
			s.logger.Warn(ctx, "[INGEST_CANCELLED] Ingestion interrupted", logging.Fields{
				"files_remaining": len(files) - result.FilesSucceeded - result.FilesFailed,
			})
			result.Duration = time.Since(startTime)
			return result, err
		}

		fileResult, err := s.ingestFileSafely(ctx, filePath)
		if err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(filePath), err))
			s.metrics.RecordFile("failed")
			s.logger.Error(logging.WithFile(ctx, filepath.Base(filePath)), "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			continue
		}

		result.FilesSucceeded++
		result.Files = append(result.Files, fileResult)
		result.RowsTotal += fileResult.RowsTotal
		result.RowsSkipped += fileResult.RowsSkipped
		result.MeasurementsWritten += fileResult.Measurements

		outcome := "ok"
		if !fileResult.Persisted {
			outcome = "empty"
		}
		s.metrics.RecordFile(outcome)

		s.logger.Info(logging.WithFile(ctx, fileResult.File), "[INGEST_FILE_SUCCESS] File ingested", logging.Fields{
			"station_id":   fileResult.StationID,
			"station_name": fileResult.StationName,
			"rows_total":   fileResult.RowsTotal,
			"rows_skipped": fileResult.RowsSkipped,
			"measurements": fileResult.Measurements,
			"monitors":     fileResult.Monitors,
			"stage":        "FILE_COMPLETE",
		})
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	summary, err := s.repo.GetStoreTotals(ctx)
	if err != nil {
		s.logger.Warn(ctx, "[INGEST_SUMMARY_ERROR] Could not read store totals", logging.Fields{
			"error": err.Error(),
		})
	} else {
		result.Summary = summary
	}

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"files_found":          result.FilesFound,
		"files_succeeded":      result.FilesSucceeded,
		"files_failed":         result.FilesFailed,
		"rows_total":           result.RowsTotal,
		"measurements_written": result.MeasurementsWritten,
		"duration_seconds":     result.Duration.Seconds(),
		"stage":                "COMPLETE",
	})

	return result, nil
}

// ingestFileSafely turns a panic while processing one file into an error.
func (s *IngestionService) ingestFileSafely(ctx context.Context, path string) (result *FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordIngestionError("panic")
			s.logger.Error(logging.WithFile(ctx, filepath.Base(path)), "[INGEST_PANIC] Recovered from panic", logging.Fields{
				"stack": string(debug.Stack()),
			}, fmt.Errorf("%v", r))
			result, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.IngestFile(ctx, path)
}
