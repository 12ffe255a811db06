package services

import (
	"errors"
	"math"
	"testing"
	"time"

	"airquality-platform/pkg/metrics"
)

func newStats() *StatisticsService {
	return NewStatisticsService(quietLogger(), metrics.NewCollector("stats_test", nil))
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDescribe(t *testing.T) {
	s := newStats()

	tests := []struct {
		name   string
		values []float64
		want   DescriptiveStats
		std    float64 // negative means nil
	}{
		{
			name:   "four values",
			values: []float64{4, 1, 3, 2},
			want:   DescriptiveStats{Count: 4, Mean: 2.5, Min: 1, Q25: 2, Median: 2.5, Q75: 3, Max: 4},
			std:    math.Sqrt(5.0 / 3.0),
		},
		{
			name:   "odd count",
			values: []float64{10, 20, 30, 40, 50},
			want:   DescriptiveStats{Count: 5, Mean: 30, Min: 10, Q25: 20, Median: 30, Q75: 40, Max: 50},
			std:    math.Sqrt(250),
		},
		{
			name:   "single value",
			values: []float64{7.5},
			want:   DescriptiveStats{Count: 1, Mean: 7.5, Min: 7.5, Q25: 7.5, Median: 7.5, Q75: 7.5, Max: 7.5},
			std:    -1,
		},
		{
			name:   "constant",
			values: []float64{2, 2, 2},
			want:   DescriptiveStats{Count: 3, Mean: 2, Min: 2, Q25: 2, Median: 2, Q75: 2, Max: 2},
			std:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append([]float64(nil), tt.values...)
			got, err := s.Describe(input)
			if err != nil {
				t.Fatalf("Describe: %v", err)
			}
			if got.Count != tt.want.Count {
				t.Errorf("Count = %d, want %d", got.Count, tt.want.Count)
			}
			checks := []struct {
				field     string
				got, want float64
			}{
				{"Mean", got.Mean, tt.want.Mean},
				{"Min", got.Min, tt.want.Min},
				{"Q25", got.Q25, tt.want.Q25},
				{"Median", got.Median, tt.want.Median},
				{"Q75", got.Q75, tt.want.Q75},
				{"Max", got.Max, tt.want.Max},
			}
			for _, c := range checks {
				if !almostEqual(c.got, c.want) {
					t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
				}
			}
			switch {
			case tt.std < 0 && got.Std != nil:
				t.Errorf("Std = %v, want nil", *got.Std)
			case tt.std >= 0 && (got.Std == nil || !almostEqual(*got.Std, tt.std)):
				t.Errorf("Std = %v, want %v", got.Std, tt.std)
			}
			for i := range input {
				if input[i] != tt.values[i] {
					t.Fatal("Describe modified its input")
				}
			}
		})
	}
}

func TestDescribe_Empty(t *testing.T) {
	if _, err := newStats().Describe(nil); !errors.Is(err, ErrEmptySample) {
		t.Errorf("Describe(nil) error = %v, want ErrEmptySample", err)
	}
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.25, 3.25},
		{0.5, 5.5},
		{0.75, 7.75},
		{1, 10},
	}
	for _, tt := range tests {
		if got := Quantile(sorted, tt.p); !almostEqual(got, tt.want) {
			t.Errorf("Quantile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestNearestQuantile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"q25 of four rounds up", []float64{1, 2, 3, 4}, 0.25, 2},
		{"q75 of four rounds down", []float64{1, 2, 3, 4}, 0.75, 3},
		{"exact rank", []float64{10, 20, 30, 40, 50}, 0.25, 20},
		{"half rank rounds away from zero", []float64{1, 2, 3}, 0.25, 2},
		{"single value", []float64{7}, 0.75, 7},
		{"lower bound", []float64{1, 2}, 0, 1},
		{"upper bound", []float64{1, 2}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NearestQuantile(tt.sorted, tt.p); got != tt.want {
				t.Errorf("NearestQuantile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestByWeekday(t *testing.T) {
	s := newStats()
	monday := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	points := []Point{
		{Timestamp: monday, Value: 1},
		{Timestamp: monday.Add(2 * time.Hour), Value: 2},
		{Timestamp: monday.AddDate(0, 0, 2), Value: 3}, // Wednesday
		{Timestamp: monday.AddDate(0, 0, 6), Value: 4}, // Sunday
	}

	groups := s.ByWeekday(points)
	if len(groups) != 7 {
		t.Fatalf("groups = %d, want 7", len(groups))
	}

	wantLabels := []string{"Lunes", "Martes", "Miercoles", "Jueves", "Viernes", "Sabado", "Domingo"}
	for i, g := range groups {
		if g.Label != wantLabels[i] {
			t.Errorf("group %d label = %s, want %s", i, g.Label, wantLabels[i])
		}
	}
	if groups[0].Weekday != time.Monday || groups[6].Weekday != time.Sunday {
		t.Errorf("weekday order = %v ... %v", groups[0].Weekday, groups[6].Weekday)
	}
	if len(groups[0].Values) != 2 || len(groups[2].Values) != 1 || len(groups[6].Values) != 1 {
		t.Errorf("group sizes = %d/%d/%d", len(groups[0].Values), len(groups[2].Values), len(groups[6].Values))
	}
	if len(groups[1].Values) != 0 {
		t.Errorf("Tuesday should be empty, got %v", groups[1].Values)
	}
}

func TestMondayIndex(t *testing.T) {
	tests := []struct {
		day  time.Weekday
		want int
	}{
		{time.Monday, 0},
		{time.Tuesday, 1},
		{time.Saturday, 5},
		{time.Sunday, 6},
	}
	for _, tt := range tests {
		if got := MondayIndex(tt.day); got != tt.want {
			t.Errorf("MondayIndex(%v) = %d, want %d", tt.day, got, tt.want)
		}
	}
}
