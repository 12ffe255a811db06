package services

import (
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// ErrEmptySample is returned when statistics are requested for no values.
var ErrEmptySample = errors.New("no values to describe")

// WeekdayLabels are the display labels, Monday first.
var WeekdayLabels = [7]string{"Lunes", "Martes", "Miercoles", "Jueves", "Viernes", "Sabado", "Domingo"}

// Point is one reading of a time series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// DescriptiveStats summarizes a sample. Std is nil for fewer than two values.
type DescriptiveStats struct {
	Count  int      `json:"count"`
	Mean   float64  `json:"mean"`
	Std    *float64 `json:"std"`
	Min    float64  `json:"min"`
	Q25    float64  `json:"q25"`
	Median float64  `json:"median"`
	Q75    float64  `json:"q75"`
	Max    float64  `json:"max"`
}

// WeekdayGroup holds the values that fell on one day of the week.
type WeekdayGroup struct {
	Weekday time.Weekday `json:"weekday"`
	Label   string       `json:"label"`
	Values  []float64    `json:"values"`
}

// StatisticsService computes descriptive statistics for the dashboard
type StatisticsService struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Describe returns count, mean, sample standard deviation, extremes and
// quartiles of values. The quartiles are taken at the nearest rank; the
// median averages the two middle values of an even sample. The input slice
// is not modified.
func (s *StatisticsService) Describe(values []float64) (*DescriptiveStats, error) {
	if len(values) == 0 {
		return nil, ErrEmptySample
	}
	timer := s.metrics.NewTimer(s.metrics.StatsCalculationDuration)
	defer timer.ObserveDuration()

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	out := &DescriptiveStats{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Q25:    NearestQuantile(sorted, 0.25),
		Median: Quantile(sorted, 0.5),
		Q75:    NearestQuantile(sorted, 0.75),
	}
	if len(sorted) > 1 {
		std := stat.StdDev(sorted, nil)
		out.Std = &std
	}
	return out, nil
}

// Quantile returns the p-quantile of sorted values, interpolating linearly
// between the two closest ranks. sorted must be ascending and non-empty.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// NearestQuantile returns the sorted value at rank round(p*(n-1)), halves
// rounding away from zero. sorted must be ascending and non-empty.
func NearestQuantile(sorted []float64, p float64) float64 {
	idx := int(math.Round(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ByWeekday groups points by the weekday of their timestamp.
func (s *StatisticsService) ByWeekday(points []Point) []WeekdayGroup {
	return GroupByWeekday(points)
}

// GroupByWeekday returns all seven weekday groups, Monday first, with empty
// Values for days without readings.
func GroupByWeekday(points []Point) []WeekdayGroup {
	groups := make([]WeekdayGroup, 7)
	for i := range groups {
		groups[i] = WeekdayGroup{
			Weekday: time.Weekday((i + 1) % 7),
			Label:   WeekdayLabels[i],
		}
	}
	for _, p := range points {
		idx := MondayIndex(p.Timestamp.Weekday())
		groups[idx].Values = append(groups[idx].Values, p.Value)
	}
	return groups
}

// MondayIndex maps a weekday to its position in a Monday-first week.
func MondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Values extracts the reading values of points.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
