package models

import (
	"testing"
	"time"
)

func TestMonitorRegistry_Register(t *testing.T) {
	codes := CodeMap{
		"S_PM25": {Label: "PM2.5", Unit: "µg/m3"},
		"S_O3":   {Label: "", Unit: "ppb"},
	}
	r := NewMonitorRegistry()

	pm := r.Register("S_PM25", codes)
	if pm.Name != "PM2.5" || pm.Unit != "µg/m3" {
		t.Errorf("mapped monitor = %+v", pm)
	}

	raw := r.Register("S_NO2", codes)
	if raw.Name != "S_NO2" || raw.Unit != "" {
		t.Errorf("unmapped monitor = %+v, want raw code and empty unit", raw)
	}

	o3 := r.Register("S_O3", codes)
	if o3.Name != "S_O3" || o3.Unit != "ppb" {
		t.Errorf("monitor with empty label = %+v", o3)
	}

	// second sighting does not duplicate
	r.Register("S_PM25", nil)
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	got := r.Monitors()
	want := []string{"S_PM25", "S_NO2", "S_O3"}
	for i, code := range want {
		if got[i].Code != code {
			t.Errorf("Monitors()[%d] = %s, want %s", i, got[i].Code, code)
		}
	}
}

func TestMeasurement_Key(t *testing.T) {
	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	v := 1.0
	a := Measurement{StationID: 1, MonitorCode: "S_PM25", Timestamp: ts, ReportType: "Average", Value: &v}
	b := Measurement{StationID: 1, MonitorCode: "S_PM25", Timestamp: ts.In(time.FixedZone("x", 3600)), ReportType: "Average"}
	if a.Key() != b.Key() {
		t.Error("same instant and key columns should produce the same key")
	}
	c := a
	c.ReportType = "Maximum"
	if a.Key() == c.Key() {
		t.Error("report type is part of the key")
	}
}

func TestStoreSummary_DaysCovered(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

	s := StoreSummary{FirstTimestamp: &first, LastTimestamp: &last}
	if got := s.DaysCovered(); got != 30 {
		t.Errorf("DaysCovered() = %d, want 30", got)
	}
	if got := (StoreSummary{}).DaysCovered(); got != 0 {
		t.Errorf("empty DaysCovered() = %d, want 0", got)
	}
}
