package models

import (
	"time"
)

// Station is a fixed sensor site. StationID comes from the input file name.
type Station struct {
	StationID   int       `json:"station_id" db:"station_id"`
	StationName string    `json:"station_name" db:"station_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Monitor is a sensor channel (pollutant or meteorological variable).
// MonitorID is assigned by the store on first sight of Code.
type Monitor struct {
	MonitorID int64  `json:"monitor_id" db:"monitor_id"`
	Code      string `json:"monitor_code" db:"monitor_code"`
	Name      string `json:"monitor_name" db:"monitor_name"`
	Unit      string `json:"unit" db:"unit"`
}

// Measurement is one (station, monitor, timestamp) reading.
// A nil Value is an explicit "no reading" and is stored as NULL.
type Measurement struct {
	ID                 int64     `json:"id" db:"id"`
	StationID          int       `json:"station_id" db:"station_id"`
	MonitorCode        string    `json:"monitor_code" db:"monitor_code"`
	Timestamp          time.Time `json:"timestamp" db:"timestamp"`
	Value              *float64  `json:"value" db:"value"`
	ReportType         string    `json:"report_type" db:"report_type"`
	GranularityMinutes int       `json:"granularity_minutes" db:"granularity_minutes"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Key returns the natural key of a measurement within one report type.
func (m Measurement) Key() MeasurementKey {
	return MeasurementKey{
		StationID:   m.StationID,
		MonitorCode: m.MonitorCode,
		Timestamp:   m.Timestamp.UnixNano(),
		ReportType:  m.ReportType,
	}
}

// MeasurementKey is the composite uniqueness key of the measurements table.
type MeasurementKey struct {
	StationID   int
	MonitorCode string
	Timestamp   int64
	ReportType  string
}

// MeasurementView is the denormalized row served to the dashboard.
// Station and monitor metadata come from left joins and may be missing.
type MeasurementView struct {
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	Value       float64   `json:"value" db:"value"`
	StationID   int       `json:"station_id" db:"station_id"`
	StationName *string   `json:"station_name" db:"station_name"`
	MonitorCode string    `json:"monitor_code" db:"monitor_code"`
	MonitorName *string   `json:"monitor_name" db:"monitor_name"`
	Unit        *string   `json:"unit" db:"unit"`
}

// StoreSummary holds row counts and the covered time range of the store.
type StoreSummary struct {
	TotalMeasurements int        `json:"total_measurements"`
	TotalStations     int        `json:"total_stations"`
	TotalMonitors     int        `json:"total_monitors"`
	FirstTimestamp    *time.Time `json:"first_date,omitempty"`
	LastTimestamp     *time.Time `json:"last_date,omitempty"`
}

// DaysCovered returns the whole days between the first and last reading.
func (s StoreSummary) DaysCovered() int {
	if s.FirstTimestamp == nil || s.LastTimestamp == nil {
		return 0
	}
	return int(s.LastTimestamp.Sub(*s.FirstTimestamp).Hours() / 24)
}

// CodeInfo is the display metadata configured for a monitor code.
type CodeInfo struct {
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

// CodeMap maps raw monitor codes to display metadata.
type CodeMap map[string]CodeInfo

// MonitorRegistry collects the monitors seen while reading one file, in
// first-seen order. It is owned by the caller processing that file.
type MonitorRegistry struct {
	order  []string
	byCode map[string]Monitor
}

// NewMonitorRegistry returns an empty registry.
func NewMonitorRegistry() *MonitorRegistry {
	return &MonitorRegistry{byCode: make(map[string]Monitor)}
}

// Register records code on first sight, resolving name and unit from codes.
// Unmapped codes use the raw code as name and an empty unit.
func (r *MonitorRegistry) Register(code string, codes CodeMap) Monitor {
	if m, ok := r.byCode[code]; ok {
		return m
	}
	m := Monitor{Code: code, Name: code}
	if info, ok := codes[code]; ok {
		if info.Label != "" {
			m.Name = info.Label
		}
		m.Unit = info.Unit
	}
	r.byCode[code] = m
	r.order = append(r.order, code)
	return m
}

// Monitors returns the registered monitors in first-seen order.
func (r *MonitorRegistry) Monitors() []Monitor {
	out := make([]Monitor, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.byCode[code])
	}
	return out
}

// Len returns the number of distinct monitors registered.
func (r *MonitorRegistry) Len() int {
	return len(r.order)
}

// FileBatch is everything one input file contributes to the store.
type FileBatch struct {
	Station            Station
	Monitors           []Monitor
	Measurements       []Measurement
	ReportType         string
	GranularityMinutes int
	IngestedAt         time.Time
}
