package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"airquality-platform/internal/charts"
	"airquality-platform/internal/repository"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

const (
	defaultPageLimit = 1000
	maxPageLimit     = 10000
)

// DashboardHandler serves the dashboard page, its charts and the JSON API
type DashboardHandler struct {
	dashboard *services.DashboardService
	stats     *services.StatisticsService
	repo      repository.AirQualityRepository
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(
	dashboard *services.DashboardService,
	stats *services.StatisticsService,
	repo repository.AirQualityRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		stats:     stats,
		repo:      repo,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ListResponse wraps an unpaginated list.
type ListResponse struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// SummaryResponse is the store summary plus the derived day span.
type SummaryResponse struct {
	TotalMeasurements int        `json:"total_measurements"`
	TotalStations     int        `json:"total_stations"`
	TotalMonitors     int        `json:"total_monitors"`
	FirstDate         *time.Time `json:"first_date"`
	LastDate          *time.Time `json:"last_date"`
	DaysCovered       int        `json:"days_covered"`
	LoadedAt          time.Time  `json:"loaded_at"`
}

// WeekdayStats describes the readings of one day of the week.
type WeekdayStats struct {
	Label string                     `json:"label"`
	Count int                        `json:"count"`
	Stats *services.DescriptiveStats `json:"stats,omitempty"`
}

// StatisticsResponse is the statistics view of one selection.
type StatisticsResponse struct {
	StationID   int                        `json:"station_id"`
	StationName string                     `json:"station_name"`
	MonitorCode string                     `json:"monitor_code"`
	MonitorName string                     `json:"monitor_name"`
	Unit        string                     `json:"unit"`
	Stats       *services.DescriptiveStats `json:"stats"`
	Weekdays    []WeekdayStats             `json:"weekdays"`
	Message     string                     `json:"message,omitempty"`
}

// GetSummary handles GET /api/summary
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dashboard.Summary()
	if err != nil {
		h.logger.Error(r.Context(), "[API_GET_SUMMARY_ERROR] Summary not available", logging.Fields{}, err)
		h.metrics.RecordAPIError("not_loaded", "/api/summary")
		h.sendError(w, "dashboard data not loaded", http.StatusServiceUnavailable)
		return
	}

	h.sendJSON(w, SummaryResponse{
		TotalMeasurements: summary.TotalMeasurements,
		TotalStations:     summary.TotalStations,
		TotalMonitors:     summary.TotalMonitors,
		FirstDate:         summary.FirstTimestamp,
		LastDate:          summary.LastTimestamp,
		DaysCovered:       summary.DaysCovered(),
		LoadedAt:          h.dashboard.LoadedAt(),
	}, http.StatusOK)
}

// GetStations handles GET /api/stations
func (h *DashboardHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stations, err := h.repo.ListStations(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATIONS_ERROR] Failed to list stations", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/stations")
		h.sendError(w, "failed to retrieve stations", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, ListResponse{Data: stations, Count: len(stations)}, http.StatusOK)
}

// GetStation handles GET /api/stations/{id}
func (h *DashboardHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, "invalid station, expected an integer id", http.StatusBadRequest)
		return
	}

	station, err := h.repo.GetStation(ctx, id)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, notFound.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_GET_STATION_ERROR] Failed to get station", logging.Fields{
			"station_id": id,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/stations/{id}")
		h.sendError(w, "failed to retrieve station", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, station, http.StatusOK)
}

// GetMonitors handles GET /api/monitors
func (h *DashboardHandler) GetMonitors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	monitors, err := h.repo.ListMonitors(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_MONITORS_ERROR] Failed to list monitors", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/monitors")
		h.sendError(w, "failed to retrieve monitors", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, ListResponse{Data: monitors, Count: len(monitors)}, http.StatusOK)
}

// GetMeasurements handles GET /api/measurements. By default only readings
// holding a value are returned, joined with station and monitor metadata.
// With include_null=true the stored rows are returned as they are, missing
// readings included.
func (h *DashboardHandler) GetMeasurements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page := 1
	limit := defaultPageLimit

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= maxPageLimit {
		limit = l
	}

	includeNull := false
	if s := q.Get("include_null"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			h.sendError(w, "invalid include_null, expected true or false", http.StatusBadRequest)
			return
		}
		includeNull = v
	}

	filter := repository.MeasurementFilter{
		OnlyValues: !includeNull,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}

	if s := q.Get("station"); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			h.sendError(w, "invalid station, expected an integer id", http.StatusBadRequest)
			return
		}
		filter.StationID = &id
	}
	if m := q.Get("monitor"); m != "" {
		filter.MonitorCode = &m
	}
	if s := q.Get("start"); s != "" {
		start, err := parseTimeParam(s, false)
		if err != nil {
			h.sendError(w, "invalid start, expected YYYY-MM-DD or RFC 3339", http.StatusBadRequest)
			return
		}
		filter.StartTime = &start
	}
	if s := q.Get("end"); s != "" {
		end, err := parseTimeParam(s, true)
		if err != nil {
			h.sendError(w, "invalid end, expected YYYY-MM-DD or RFC 3339", http.StatusBadRequest)
			return
		}
		filter.EndTime = &end
	}

	var (
		rows interface{}
		err  error
	)
	if includeNull {
		rows, err = h.repo.ListMeasurements(ctx, filter)
	} else {
		rows, err = h.repo.ListMeasurementView(ctx, filter)
	}
	if err != nil {
		h.logger.Error(ctx, "[API_GET_MEASUREMENTS_ERROR] Failed to get measurements", logging.Fields{
			"page":  page,
			"limit": limit,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/measurements")
		h.sendError(w, "failed to retrieve measurements", http.StatusInternalServerError)
		return
	}

	total, err := h.repo.CountMeasurements(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_COUNT_MEASUREMENTS_ERROR] Failed to count measurements", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/measurements")
		h.sendError(w, "failed to count measurements", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, PaginatedResponse{
		Data:       rows,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, http.StatusOK)
}

// GetStatistics handles GET /api/statistics
func (h *DashboardHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stationID, monitorCode, err := h.resolveSelection(r)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sel := h.dashboard.Select(stationID, monitorCode)
	resp := StatisticsResponse{
		StationID:   sel.StationID,
		StationName: sel.StationName,
		MonitorCode: sel.MonitorCode,
		MonitorName: sel.MonitorName,
		Unit:        sel.Unit,
		Stats:       sel.Stats,
		Weekdays:    make([]WeekdayStats, 0, len(sel.Weekdays)),
	}
	if sel.Empty() {
		resp.Message = emptySelectionText
	}
	for _, g := range sel.Weekdays {
		ws := WeekdayStats{Label: g.Label, Count: len(g.Values)}
		if stats, err := h.stats.Describe(g.Values); err == nil {
			ws.Stats = stats
		}
		resp.Weekdays = append(resp.Weekdays, ws)
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// GetChart handles GET /charts/{kind}.svg
func (h *DashboardHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kind, err := charts.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		h.sendError(w, err.Error(), http.StatusNotFound)
		return
	}
	stationID, monitorCode, err := h.resolveSelection(r)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sel := h.dashboard.Select(stationID, monitorCode)

	var buf bytes.Buffer
	timer := h.metrics.NewTimer(h.metrics.ChartRenderDuration.WithLabelValues(string(kind)))
	err = charts.Render(&buf, kind, sel, charts.Size{})
	timer.ObserveDuration()
	if err != nil {
		h.logger.Error(ctx, "[CHART_RENDER_ERROR] Failed to render chart", logging.Fields{
			"kind":         kind,
			"station_id":   stationID,
			"monitor_code": monitorCode,
		}, err)
		h.metrics.RecordAPIError("render_error", "/charts/{kind}.svg")
		h.sendError(w, "failed to render chart", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// HealthCheck handles GET /health
func (h *DashboardHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.repo.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK] Store unreachable", logging.Fields{"error": err.Error()})
		status["status"] = "unhealthy"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if loaded := h.dashboard.LoadedAt(); !loaded.IsZero() {
		status["loaded_at"] = loaded.Format(time.RFC3339)
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// resolveSelection reads ?station= and ?monitor=, falling back to the
// first option of each list.
func (h *DashboardHandler) resolveSelection(r *http.Request) (int, string, error) {
	q := r.URL.Query()
	stationID, monitorCode, _ := h.dashboard.DefaultSelection()

	if s := strings.TrimSpace(q.Get("station")); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			return 0, "", fmt.Errorf("invalid station %q, expected an integer id", s)
		}
		stationID = id
	}
	if m := strings.TrimSpace(q.Get("monitor")); m != "" {
		monitorCode = m
	}
	return stationID, monitorCode, nil
}

// parseTimeParam accepts a date or an RFC 3339 timestamp. A bare date used
// as an upper bound covers the whole day.
func parseTimeParam(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// sendJSON sends a JSON response
func (h *DashboardHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *DashboardHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers the dashboard, chart, API and docs routes
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Dashboard).Methods("GET")
	router.HandleFunc("/charts/{kind}.svg", h.GetChart).Methods("GET")
	router.HandleFunc("/api/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/api/stations", h.GetStations).Methods("GET")
	router.HandleFunc("/api/stations/{id}", h.GetStation).Methods("GET")
	router.HandleFunc("/api/monitors", h.GetMonitors).Methods("GET")
	router.HandleFunc("/api/measurements", h.GetMeasurements).Methods("GET")
	router.HandleFunc("/api/statistics", h.GetStatistics).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

// Router builds a router with the request id and metrics middleware and all
// dashboard routes registered.
func (h *DashboardHandler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID, Instrument(h.metrics))
	h.RegisterRoutes(router)
	return router
}
