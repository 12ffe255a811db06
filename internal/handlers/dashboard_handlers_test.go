package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"airquality-platform/internal/models"
	"airquality-platform/internal/repository"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

func ptr(f float64) *float64 { return &f }

// newTestServer seeds a SQLite store with two stations and returns the
// dashboard router over it.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	logger := logging.NewStructuredLogger("handlers-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollector("handlers_test", nil)

	db, err := database.Open(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "store.db"),
	}, logger, collector)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := repository.NewAirQualityRepository(db, logger, collector)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	monday := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	batches := []*models.FileBatch{
		{
			Station:  models.Station{StationID: 1, StationName: "Centro"},
			Monitors: []models.Monitor{{Code: "S_PM25", Name: "PM2.5", Unit: "µg/m3"}},
			Measurements: []models.Measurement{
				{MonitorCode: "S_PM25", Timestamp: monday, Value: ptr(10)},
				{MonitorCode: "S_PM25", Timestamp: monday.Add(time.Hour), Value: ptr(20)},
				{MonitorCode: "S_PM25", Timestamp: monday.AddDate(0, 0, 1), Value: ptr(30)},
				{MonitorCode: "S_PM25", Timestamp: monday.AddDate(0, 0, 2), Value: nil},
			},
		},
		{
			Station:  models.Station{StationID: 2, StationName: "Usaquen"},
			Monitors: []models.Monitor{{Code: "S_O3", Name: "Ozono", Unit: "ppb"}},
			Measurements: []models.Measurement{
				{MonitorCode: "S_O3", Timestamp: monday, Value: ptr(5)},
			},
		},
	}
	for _, b := range batches {
		for i := range b.Measurements {
			b.Measurements[i].StationID = b.Station.StationID
			b.Measurements[i].ReportType = "Average"
			b.Measurements[i].GranularityMinutes = 60
		}
		b.IngestedAt = time.Now().UTC()
		if _, err := repo.SaveBatch(ctx, b); err != nil {
			t.Fatalf("SaveBatch: %v", err)
		}
	}

	stats := services.NewStatisticsService(logger, collector)
	dashboard := services.NewDashboardService(repo, stats, logger, collector)
	if err := dashboard.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	return NewDashboardHandler(dashboard, stats, repo, logger, collector).Router()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetSummary(t *testing.T) {
	rec := get(t, newTestServer(t), "/api/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp SummaryResponse
	decode(t, rec, &resp)
	if resp.TotalMeasurements != 4 || resp.TotalStations != 2 || resp.TotalMonitors != 2 {
		t.Errorf("summary = %+v", resp)
	}
	if resp.DaysCovered != 1 {
		t.Errorf("DaysCovered = %d, want 1", resp.DaysCovered)
	}
}

func TestGetStationsAndMonitors(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		path  string
		count int
	}{
		{"/api/stations", 2},
		{"/api/monitors", 2},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var resp struct {
				Count int `json:"count"`
			}
			decode(t, rec, &resp)
			if resp.Count != tt.count {
				t.Errorf("count = %d, want %d", resp.Count, tt.count)
			}
		})
	}
}

func TestGetMeasurements(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTotal  int
		wantRows   int
	}{
		{"all values", "", http.StatusOK, 4, 4},
		{"by station", "?station=1", http.StatusOK, 3, 3},
		{"by monitor", "?monitor=S_O3", http.StatusOK, 1, 1},
		{"date range", "?station=1&start=2024-01-02&end=2024-01-02", http.StatusOK, 1, 1},
		{"paged", "?limit=3&page=2", http.StatusOK, 4, 1},
		{"invalid station", "?station=abc", http.StatusBadRequest, 0, 0},
		{"invalid start", "?start=01-01-2024", http.StatusBadRequest, 0, 0},
		{"invalid include_null", "?include_null=maybe", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, "/api/measurements"+tt.query)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				var errResp ErrorResponse
				decode(t, rec, &errResp)
				if errResp.Code != tt.wantStatus || errResp.Message == "" {
					t.Errorf("error response = %+v", errResp)
				}
				return
			}
			var resp struct {
				Data  []models.MeasurementView `json:"data"`
				Total int                      `json:"total"`
			}
			decode(t, rec, &resp)
			if resp.Total != tt.wantTotal || len(resp.Data) != tt.wantRows {
				t.Errorf("total = %d rows = %d, want %d/%d", resp.Total, len(resp.Data), tt.wantTotal, tt.wantRows)
			}
		})
	}
}

func TestGetMeasurements_IncludeNull(t *testing.T) {
	h := newTestServer(t)

	rec := get(t, h, "/api/measurements?station=1&include_null=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Data  []models.Measurement `json:"data"`
		Total int                  `json:"total"`
	}
	decode(t, rec, &resp)
	if resp.Total != 4 || len(resp.Data) != 4 {
		t.Fatalf("total = %d rows = %d, want 4/4", resp.Total, len(resp.Data))
	}
	last := resp.Data[3]
	if last.Value != nil || last.ReportType != "Average" {
		t.Errorf("last row = %+v, want the stored null reading", last)
	}

	rec = get(t, h, "/api/measurements?station=1&include_null=false")
	decode(t, rec, &resp)
	if resp.Total != 3 {
		t.Errorf("include_null=false total = %d, want 3", resp.Total)
	}
}

func TestGetStation(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		path       string
		wantStatus int
		wantName   string
	}{
		{"/api/stations/2", http.StatusOK, "Usaquen"},
		{"/api/stations/99", http.StatusNotFound, ""},
		{"/api/stations/abc", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				var errResp ErrorResponse
				decode(t, rec, &errResp)
				if errResp.Code != tt.wantStatus {
					t.Errorf("error response = %+v", errResp)
				}
				return
			}
			var station models.Station
			decode(t, rec, &station)
			if station.StationID != 2 || station.StationName != tt.wantName {
				t.Errorf("station = %+v", station)
			}
		})
	}
}

func TestGetStatistics(t *testing.T) {
	h := newTestServer(t)

	rec := get(t, h, "/api/statistics?station=1&monitor=S_PM25")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp StatisticsResponse
	decode(t, rec, &resp)
	if resp.Stats == nil || resp.Stats.Count != 3 || resp.Stats.Mean != 20 {
		t.Errorf("stats = %+v", resp.Stats)
	}
	if len(resp.Weekdays) != 7 || resp.Weekdays[0].Label != "Lunes" || resp.Weekdays[0].Count != 2 {
		t.Errorf("weekdays = %+v", resp.Weekdays)
	}

	rec = get(t, h, "/api/statistics?station=2&monitor=S_PM25")
	var empty StatisticsResponse
	decode(t, rec, &empty)
	if empty.Stats != nil || empty.Message != "Sin datos" {
		t.Errorf("empty selection = %+v", empty)
	}
}

func TestGetChart(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/charts/timeseries.svg?station=1&monitor=S_PM25", http.StatusOK},
		{"/charts/histogram.svg?station=1&monitor=S_PM25", http.StatusOK},
		{"/charts/boxplot.svg", http.StatusOK},
		{"/charts/timeseries.svg?station=2&monitor=S_PM25", http.StatusOK},
		{"/charts/pie.svg", http.StatusNotFound},
		{"/charts/histogram.svg?station=x", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && rec.Header().Get("Content-Type") != "image/svg+xml" {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestDashboardPage(t *testing.T) {
	h := newTestServer(t)

	rec := get(t, h, "/?station=1&monitor=S_PM25")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Calidad del Aire - Bogota", "Mediciones totales", "Centro", "Usaquen", "Mediana", "/charts/boxplot.svg?station=1"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "Sin datos") {
		t.Error("Centro/PM2.5 should have data")
	}

	// the default pair is Centro/Ozono, which has no readings
	rec = get(t, h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Sin datos") {
		t.Error("empty selection should show Sin datos")
	}

	if rec := get(t, h, "/?station=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid station status = %d, want 400", rec.Code)
	}
}

func TestHealthCheckAndRequestID(t *testing.T) {
	h := newTestServer(t)

	rec := get(t, h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestOpenAPISpec(t *testing.T) {
	rec := get(t, newTestServer(t), "/api/docs/openapi.json")
	var doc struct {
		Paths map[string]interface{} `json:"paths"`
	}
	decode(t, rec, &doc)
	for _, path := range []string{"/api/measurements", "/api/stations/{id}", "/api/statistics", "/charts/{kind}.svg"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("openapi.json missing %s", path)
		}
	}
}

func TestThousands(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4500: "-4,500"}
	for n, want := range tests {
		if got := thousands(n); got != want {
			t.Errorf("thousands(%d) = %q, want %q", n, got, want)
		}
	}
}
