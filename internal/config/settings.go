package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"airquality-platform/internal/models"
)

// File names looked up inside the configuration directory.
const (
	SettingsFileName = "appsettings.json"
	CodeMapFileName  = "code_title_map.json"
)

// Defaults applied when the run settings omit a key.
const (
	DefaultReportType         = "Average"
	DefaultGranularityMinutes = 60
	DefaultMonitorPrefix      = "S_"
)

// RunSettings are the per-run ingestion parameters from appsettings.json.
type RunSettings struct {
	ReportType         string
	GranularityMinutes int
	MonitorPrefix      string
}

// settingsFile mirrors the on-disk layout; pointers tell absent keys apart.
type settingsFile struct {
	Report struct {
		Type *string `json:"type"`
	} `json:"report"`
	Time struct {
		GranularityMinutes *int `json:"granularity_minutes"`
	} `json:"time"`
	Ingest struct {
		MonitorPrefix *string `json:"monitor_prefix"`
	} `json:"ingest"`
}

// DefaultRunSettings returns the settings used when no file is present.
func DefaultRunSettings() RunSettings {
	return RunSettings{
		ReportType:         DefaultReportType,
		GranularityMinutes: DefaultGranularityMinutes,
		MonitorPrefix:      DefaultMonitorPrefix,
	}
}

// LoadRunSettings reads appsettings.json from dir. A missing file yields the
// defaults; a malformed one is an error.
func LoadRunSettings(dir string) (RunSettings, error) {
	settings := DefaultRunSettings()

	data, err := os.ReadFile(filepath.Join(dir, SettingsFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("read %s: %w", SettingsFileName, err)
	}

	var raw settingsFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return settings, fmt.Errorf("parse %s: %w", SettingsFileName, err)
	}

	if raw.Report.Type != nil && strings.TrimSpace(*raw.Report.Type) != "" {
		settings.ReportType = strings.TrimSpace(*raw.Report.Type)
	}
	if raw.Time.GranularityMinutes != nil {
		if *raw.Time.GranularityMinutes <= 0 {
			return settings, fmt.Errorf("%s: time.granularity_minutes must be positive, got %d",
				SettingsFileName, *raw.Time.GranularityMinutes)
		}
		settings.GranularityMinutes = *raw.Time.GranularityMinutes
	}
	if raw.Ingest.MonitorPrefix != nil && *raw.Ingest.MonitorPrefix != "" {
		settings.MonitorPrefix = *raw.Ingest.MonitorPrefix
	}

	return settings, nil
}

// codeMapFile mirrors code_title_map.json: stations -> codes -> label/unit.
type codeMapFile struct {
	Stations map[string]struct {
		Codes map[string]models.CodeInfo `json:"codes"`
	} `json:"stations"`
}

// LoadCodeMap reads code_title_map.json from dir and flattens it into one
// code table. When two stations describe the same code, the station that
// sorts last wins. A missing file yields an empty map.
func LoadCodeMap(dir string) (models.CodeMap, error) {
	codes := models.CodeMap{}

	data, err := os.ReadFile(filepath.Join(dir, CodeMapFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return codes, nil
	}
	if err != nil {
		return codes, fmt.Errorf("read %s: %w", CodeMapFileName, err)
	}

	var raw codeMapFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return codes, fmt.Errorf("parse %s: %w", CodeMapFileName, err)
	}

	stationIDs := make([]string, 0, len(raw.Stations))
	for id := range raw.Stations {
		stationIDs = append(stationIDs, id)
	}
	sort.Strings(stationIDs)

	for _, id := range stationIDs {
		for code, info := range raw.Stations[id].Codes {
			codes[code] = info
		}
	}
	return codes, nil
}
