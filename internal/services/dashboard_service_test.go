package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"airquality-platform/internal/models"
)

func ptr(f float64) *float64 { return &f }

func seedBatch(t *testing.T, env *testEnv, stationID int, name string, monitors []models.Monitor, ms ...models.Measurement) {
	t.Helper()
	for i := range ms {
		ms[i].StationID = stationID
		ms[i].ReportType = "Average"
		ms[i].GranularityMinutes = 60
	}
	_, err := env.repo.SaveBatch(context.Background(), &models.FileBatch{
		Station:      models.Station{StationID: stationID, StationName: name},
		Monitors:     monitors,
		Measurements: ms,
		IngestedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
}

func newDashboard(env *testEnv) *DashboardService {
	return NewDashboardService(env.repo, NewStatisticsService(env.logger, env.metrics), env.logger, env.metrics)
}

func TestDashboardLoad_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing table", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.repo.DropSchema(ctx); err != nil {
			t.Fatalf("DropSchema: %v", err)
		}
		if err := newDashboard(env).Load(ctx); !errors.Is(err, ErrMissingTable) {
			t.Errorf("Load error = %v, want ErrMissingTable", err)
		}
	})

	t.Run("empty store", func(t *testing.T) {
		env := newTestEnv(t)
		if err := newDashboard(env).Load(ctx); !errors.Is(err, ErrNoData) {
			t.Errorf("Load error = %v, want ErrNoData", err)
		}
	})

	t.Run("only null values", func(t *testing.T) {
		env := newTestEnv(t)
		seedBatch(t, env, 1, "Centro", []models.Monitor{{Code: "S_PM25", Name: "PM2.5"}},
			models.Measurement{MonitorCode: "S_PM25", Timestamp: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)})
		if err := newDashboard(env).Load(ctx); !errors.Is(err, ErrNoData) {
			t.Errorf("Load error = %v, want ErrNoData", err)
		}
	})
}

func TestDashboard_OptionsAndSelection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	monday := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	seedBatch(t, env, 2, "Usaquen",
		[]models.Monitor{{Code: "S_PM25", Name: "PM2.5", Unit: "µg/m3"}, {Code: "S_O3", Name: "Ozono", Unit: "ppb"}},
		models.Measurement{MonitorCode: "S_PM25", Timestamp: monday.Add(time.Hour), Value: ptr(20)},
		models.Measurement{MonitorCode: "S_PM25", Timestamp: monday, Value: ptr(10)},
		models.Measurement{MonitorCode: "S_PM25", Timestamp: monday.AddDate(0, 0, 1), Value: ptr(30)},
		models.Measurement{MonitorCode: "S_O3", Timestamp: monday, Value: ptr(5)},
	)
	seedBatch(t, env, 1, "Kennedy",
		[]models.Monitor{{Code: "S_PM25", Name: "PM2.5", Unit: "µg/m3"}},
		models.Measurement{MonitorCode: "S_PM25", Timestamp: monday, Value: nil},
		models.Measurement{MonitorCode: "S_PM25", Timestamp: monday.Add(time.Hour), Value: ptr(40)},
	)

	d := newDashboard(env)
	if err := d.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	summary, err := d.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalMeasurements != 5 || summary.TotalStations != 2 || summary.TotalMonitors != 2 {
		t.Errorf("summary = %+v", summary)
	}

	stations := d.StationOptions()
	if len(stations) != 2 || stations[0].Label != "Kennedy" || stations[1].Label != "Usaquen" {
		t.Errorf("stations = %+v", stations)
	}
	monitors := d.MonitorOptions()
	if len(monitors) != 2 || monitors[0].Label != "Ozono" || monitors[1].Label != "PM2.5" {
		t.Errorf("monitors = %+v", monitors)
	}

	station, monitor, ok := d.DefaultSelection()
	if !ok || station != 1 || monitor != "S_O3" {
		t.Errorf("DefaultSelection = %d, %s, %v", station, monitor, ok)
	}

	sel := d.Select(2, "S_PM25")
	if sel.Empty() {
		t.Fatal("selection should not be empty")
	}
	if sel.StationName != "Usaquen" || sel.MonitorName != "PM2.5" || sel.Unit != "µg/m3" {
		t.Errorf("selection metadata = %s/%s/%s", sel.StationName, sel.MonitorName, sel.Unit)
	}
	if len(sel.Points) != 3 {
		t.Fatalf("points = %d, want 3", len(sel.Points))
	}
	for i := 1; i < len(sel.Points); i++ {
		if sel.Points[i].Timestamp.Before(sel.Points[i-1].Timestamp) {
			t.Errorf("points out of order at %d", i)
		}
	}
	if sel.Stats == nil || sel.Stats.Count != 3 || sel.Stats.Mean != 20 {
		t.Errorf("stats = %+v", sel.Stats)
	}
	if len(sel.Weekdays[0].Values) != 2 || len(sel.Weekdays[1].Values) != 1 {
		t.Errorf("weekday groups = %+v", sel.Weekdays)
	}

	empty := d.Select(1, "S_O3")
	if !empty.Empty() || empty.Stats != nil {
		t.Errorf("Kennedy/S_O3 should be empty, got %+v", empty)
	}
}

func TestDashboard_SummaryBeforeLoad(t *testing.T) {
	env := newTestEnv(t)
	if _, err := newDashboard(env).Summary(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Summary error = %v, want ErrNotLoaded", err)
	}
}
