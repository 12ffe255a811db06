package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"airquality-platform/internal/models"
	"airquality-platform/internal/repository"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// Startup failures of the dashboard.
var (
	ErrMissingTable = errors.New("measurements table not found")
	ErrNoData       = errors.New("store holds no measurements with a value")
	ErrNotLoaded    = errors.New("dashboard data not loaded")
)

// Option is one entry of a selection list.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Selection is the filtered subset shown for one (station, monitor) pair.
type Selection struct {
	StationID   int               `json:"station_id"`
	StationName string            `json:"station_name"`
	MonitorCode string            `json:"monitor_code"`
	MonitorName string            `json:"monitor_name"`
	Unit        string            `json:"unit"`
	Points      []Point           `json:"points"`
	Stats       *DescriptiveStats `json:"stats,omitempty"`
	Weekdays    []WeekdayGroup    `json:"weekdays"`
}

// Empty reports whether the selection has no readings.
func (s *Selection) Empty() bool {
	return len(s.Points) == 0
}

// DashboardService holds the denormalized view loaded once at startup and
// answers selection queries from memory.
type DashboardService struct {
	repo    repository.AirQualityRepository
	stats   *StatisticsService
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	mu       sync.RWMutex
	rows     []*models.MeasurementView
	summary  *models.StoreSummary
	loadedAt time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(repo repository.AirQualityRepository, stats *StatisticsService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DashboardService {
	return &DashboardService{
		repo:    repo,
		stats:   stats,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Load reads the measurement view and the store summary. It fails with
// ErrMissingTable or ErrNoData when there is nothing to show.
func (s *DashboardService) Load(ctx context.Context) error {
	startTime := time.Now()

	exists, err := s.repo.TableExists(ctx, "measurements")
	if err != nil {
		return err
	}
	if !exists {
		return ErrMissingTable
	}

	rows, err := s.repo.ListMeasurementView(ctx, repository.MeasurementFilter{})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNoData
	}

	summary, err := s.repo.GetSummary(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rows = rows
	s.summary = summary
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()

	s.metrics.DashboardRowsLoaded.Set(float64(len(rows)))
	s.logger.Info(ctx, "[DASHBOARD_LOAD] Measurement view loaded", logging.Fields{
		"rows":        len(rows),
		"stations":    summary.TotalStations,
		"monitors":    summary.TotalMonitors,
		"duration_ms": time.Since(startTime).Milliseconds(),
	})

	return nil
}

// Summary returns the store summary captured by Load.
func (s *DashboardService) Summary() (*models.StoreSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return nil, ErrNotLoaded
	}
	return s.summary, nil
}

// LoadedAt returns when the view was last loaded.
func (s *DashboardService) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// StationOptions lists the stations present in the view, sorted by name.
func (s *DashboardService) StationOptions() []Option {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int]bool)
	var out []Option
	for _, row := range s.rows {
		if seen[row.StationID] {
			continue
		}
		seen[row.StationID] = true
		out = append(out, Option{
			Value: strconv.Itoa(row.StationID),
			Label: stationLabel(row),
		})
	}
	sortOptions(out)
	return out
}

// MonitorOptions lists the monitors present in the view, sorted by name.
func (s *DashboardService) MonitorOptions() []Option {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Option
	for _, row := range s.rows {
		if seen[row.MonitorCode] {
			continue
		}
		seen[row.MonitorCode] = true
		out = append(out, Option{
			Value: row.MonitorCode,
			Label: monitorLabel(row),
		})
	}
	sortOptions(out)
	return out
}

// DefaultSelection returns the first station and monitor of the option lists.
func (s *DashboardService) DefaultSelection() (int, string, bool) {
	stations := s.StationOptions()
	monitors := s.MonitorOptions()
	if len(stations) == 0 || len(monitors) == 0 {
		return 0, "", false
	}
	id, err := strconv.Atoi(stations[0].Value)
	if err != nil {
		return 0, "", false
	}
	return id, monitors[0].Value, true
}

// Series returns the readings of one station and monitor in timestamp order.
func (s *DashboardService) Series(stationID int, monitorCode string) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Point
	for _, row := range s.rows {
		if row.StationID == stationID && row.MonitorCode == monitorCode {
			out = append(out, Point{Timestamp: row.Timestamp, Value: row.Value})
		}
	}
	return out
}

// Select builds the full selection view: series, statistics and weekday
// groups. An empty selection is not an error; check Selection.Empty.
func (s *DashboardService) Select(stationID int, monitorCode string) *Selection {
	sel := &Selection{
		StationID:   stationID,
		StationName: fmt.Sprintf("Station %d", stationID),
		MonitorCode: monitorCode,
		MonitorName: monitorCode,
	}

	s.mu.RLock()
	for _, row := range s.rows {
		if row.StationID == stationID {
			sel.StationName = stationLabel(row)
			break
		}
	}
	for _, row := range s.rows {
		if row.MonitorCode == monitorCode {
			sel.MonitorName = monitorLabel(row)
			if row.Unit != nil {
				sel.Unit = *row.Unit
			}
			break
		}
	}
	s.mu.RUnlock()

	sel.Points = s.Series(stationID, monitorCode)
	sel.Weekdays = s.stats.ByWeekday(sel.Points)
	if stats, err := s.stats.Describe(Values(sel.Points)); err == nil {
		sel.Stats = stats
	}
	return sel
}

func stationLabel(row *models.MeasurementView) string {
	if row.StationName != nil && *row.StationName != "" {
		return *row.StationName
	}
	return fmt.Sprintf("Station %d", row.StationID)
}

func monitorLabel(row *models.MeasurementView) string {
	if row.MonitorName != nil && *row.MonitorName != "" {
		return *row.MonitorName
	}
	return row.MonitorCode
}

func sortOptions(opts []Option) {
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].Label != opts[j].Label {
			return opts[i].Label < opts[j].Label
		}
		return opts[i].Value < opts[j].Value
	})
}
