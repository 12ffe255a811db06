package services

import (
	"sort"
	"strings"
	"time"

	"airquality-platform/internal/models"
)

// Extractor turns classified report rows into measurements for one station.
type Extractor struct {
	prefix string
	codes  models.CodeMap
}

// ExtractResult holds what one file's rows produced.
type ExtractResult struct {
	Measurements []models.Measurement
	Registry     *models.MonitorRegistry
	RowsTotal    int
	RowsValid    int
	RowsSkipped  int
}

// NewExtractor creates an extractor recognizing monitor fields by prefix.
func NewExtractor(prefix string, codes models.CodeMap) *Extractor {
	if codes == nil {
		codes = models.CodeMap{}
	}
	return &Extractor{prefix: prefix, codes: codes}
}

// IsMonitorField reports whether key names a monitor column.
func (e *Extractor) IsMonitorField(key string) bool {
	return key != models.DatetimeField && strings.HasPrefix(key, e.prefix)
}

// ExtractRow emits one measurement per monitor field of a valid row and
// registers every monitor it sees. Keys are visited in sorted order.
func (e *Extractor) ExtractRow(row models.RawRow, stationID int, ts time.Time, registry *models.MonitorRegistry) []models.Measurement {
	keys := make([]string, 0, len(row))
	for key := range row {
		if e.IsMonitorField(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]models.Measurement, 0, len(keys))
	for _, code := range keys {
		registry.Register(code, e.codes)
		out = append(out, models.Measurement{
			StationID:   stationID,
			MonitorCode: code,
			Timestamp:   ts,
			Value:       models.CoerceValue(row[code]),
		})
	}
	return out
}

// Extract classifies every row and extracts the valid ones. Summary rows and
// rows with an unusable timestamp are counted as skipped.
func (e *Extractor) Extract(rows []models.RawRow, stationID int) *ExtractResult {
	result := &ExtractResult{
		Registry:  models.NewMonitorRegistry(),
		RowsTotal: len(rows),
	}

	for _, row := range rows {
		if !models.IsValidMeasurementRow(row) {
			result.RowsSkipped++
			continue
		}
		ts, err := models.NormalizeDatetime(row.DatetimeText())
		if err != nil {
			result.RowsSkipped++
			continue
		}
		result.RowsValid++
		result.Measurements = append(result.Measurements, e.ExtractRow(row, stationID, ts, result.Registry)...)
	}

	return result
}
