package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"airquality-platform/internal/models"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// AirQualityRepository provides data access for stations, monitors and measurements
type AirQualityRepository interface {
	// Schema operations
	EnsureSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error
	TableExists(ctx context.Context, table string) (bool, error)

	// Write operations
	SaveBatch(ctx context.Context, batch *models.FileBatch) (int, error)

	// Read operations
	GetStation(ctx context.Context, stationID int) (*models.Station, error)
	ListStations(ctx context.Context) ([]*models.Station, error)
	ListMonitors(ctx context.Context) ([]*models.Monitor, error)
	ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]*models.Measurement, error)
	CountMeasurements(ctx context.Context, filter MeasurementFilter) (int, error)
	ListMeasurementView(ctx context.Context, filter MeasurementFilter) ([]*models.MeasurementView, error)
	GetSummary(ctx context.Context) (*models.StoreSummary, error)
	GetStoreTotals(ctx context.Context) (*models.StoreSummary, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// MeasurementFilter narrows measurement queries. Zero values mean "any".
type MeasurementFilter struct {
	StationID   *int
	MonitorCode *string
	StartTime   *time.Time
	EndTime     *time.Time
	ReportType  *string
	OnlyValues  bool
	Limit       int
	Offset      int
}

// where renders the filter as AND clauses on the measurements alias m.
func (f MeasurementFilter) where() (string, []interface{}) {
	clause := ""
	args := []interface{}{}

	if f.StationID != nil {
		clause += " AND m.station_id = ?"
		args = append(args, *f.StationID)
	}
	if f.MonitorCode != nil {
		clause += " AND m.monitor_code = ?"
		args = append(args, *f.MonitorCode)
	}
	if f.StartTime != nil {
		clause += " AND m.timestamp >= ?"
		args = append(args, f.StartTime.UTC())
	}
	if f.EndTime != nil {
		clause += " AND m.timestamp <= ?"
		args = append(args, f.EndTime.UTC())
	}
	if f.ReportType != nil {
		clause += " AND m.report_type = ?"
		args = append(args, *f.ReportType)
	}
	if f.OnlyValues {
		clause += " AND m.value IS NOT NULL"
	}
	return clause, args
}

func (f MeasurementFilter) limit() string {
	if f.Limit <= 0 {
		return ""
	}
	out := " LIMIT " + strconv.Itoa(f.Limit)
	if f.Offset > 0 {
		out += " OFFSET " + strconv.Itoa(f.Offset)
	}
	return out
}

// airQualityRepository implements AirQualityRepository
type airQualityRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewAirQualityRepository creates a new repository over an open store
func NewAirQualityRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) AirQualityRepository {
	return &airQualityRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// EnsureSchema creates tables, sequences and indexes when they are missing
func (r *airQualityRepository) EnsureSchema(ctx context.Context) error {
	started := time.Now()
	defer r.db.Observe("ensure_schema", started)

	if err := r.db.Dialect().CreateSchema(ctx, r.db.DB()); err != nil {
		r.metrics.RecordDBError("schema_error")
		return err
	}

	r.logger.Debug(ctx, "[REPO_SCHEMA] Schema ensured", logging.Fields{
		"dialect": r.db.Dialect().Name,
	})
	return nil
}

// DropSchema removes every table and sequence
func (r *airQualityRepository) DropSchema(ctx context.Context) error {
	started := time.Now()
	defer r.db.Observe("drop_schema", started)

	if err := r.db.Dialect().DropSchema(ctx, r.db.DB()); err != nil {
		r.metrics.RecordDBError("schema_error")
		return err
	}
	return nil
}

// TableExists reports whether table is present in the store
func (r *airQualityRepository) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, "table_exists", &count, r.db.Dialect().TableExistsQuery(), table)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return count > 0, nil
}

const upsertStationQuery = `
	INSERT INTO stations (station_id, station_name, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT (station_id) DO UPDATE SET
		station_name = EXCLUDED.station_name
`

func (r *airQualityRepository) upsertMonitorQuery() string {
	col, val := r.db.Dialect().IDColumn("monitor_id", "monitor_seq")
	return `
	INSERT INTO monitors (` + col + `monitor_code, monitor_name, unit)
	VALUES (` + val + `?, ?, ?)
	ON CONFLICT (monitor_code) DO UPDATE SET
		monitor_name = EXCLUDED.monitor_name,
		unit = EXCLUDED.unit
`
}

func (r *airQualityRepository) upsertMeasurementQuery() string {
	col, val := r.db.Dialect().IDColumn("id", "measurement_seq")
	return `
	INSERT INTO measurements (` + col + `station_id, monitor_code, timestamp, value,
		report_type, granularity_minutes, created_at)
	VALUES (` + val + `?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (station_id, monitor_code, timestamp, report_type) DO UPDATE SET
		value = EXCLUDED.value,
		granularity_minutes = EXCLUDED.granularity_minutes,
		created_at = EXCLUDED.created_at
`
}

// SaveBatch writes everything one file contributes in a single transaction:
// the station, its monitors and its measurements. It returns the number of
// measurements written after in-batch deduplication.
func (r *airQualityRepository) SaveBatch(ctx context.Context, batch *models.FileBatch) (int, error) {
	if batch == nil {
		return 0, errors.New("nil batch")
	}

	timer := time.Now()
	measurements := dedupeMeasurements(batch.Measurements)

	station := batch.Station
	if station.CreatedAt.IsZero() {
		station.CreatedAt = batch.IngestedAt
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.upsertStation(ctx, tx, &station); err != nil {
			return err
		}
		if err := r.upsertMonitors(ctx, tx, batch.Monitors); err != nil {
			return err
		}
		return r.upsertMeasurements(ctx, tx, measurements)
	})
	if err != nil {
		return 0, err
	}

	r.db.Observe("save_batch", timer)
	r.metrics.IngestionBatchSize.Observe(float64(len(measurements)))
	r.metrics.IngestionMeasurementsTotal.Add(float64(len(measurements)))

	r.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Batch upsert completed", logging.Fields{
		"station_id":   station.StationID,
		"monitors":     len(batch.Monitors),
		"measurements": len(measurements),
		"duplicates":   len(batch.Measurements) - len(measurements),
		"duration_ms":  time.Since(timer).Milliseconds(),
	})

	return len(measurements), nil
}

func (r *airQualityRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *airQualityRepository) upsertStation(ctx context.Context, exec sqlx.ExecerContext, station *models.Station) error {
	started := time.Now()
	defer r.db.Observe("upsert_station", started)

	_, err := exec.ExecContext(ctx, r.db.Rebind(upsertStationQuery),
		station.StationID,
		station.StationName,
		station.CreatedAt.UTC(),
	)
	if err != nil {
		r.metrics.RecordDBError("exec_error")
		return fmt.Errorf("failed to upsert station %d: %w", station.StationID, err)
	}

	r.logger.Debug(ctx, "[REPO_UPSERT_STATION] Station upserted", logging.Fields{
		"station_id":   station.StationID,
		"station_name": station.StationName,
	})
	return nil
}

func (r *airQualityRepository) upsertMonitors(ctx context.Context, tx *sqlx.Tx, monitors []models.Monitor) error {
	if len(monitors) == 0 {
		return nil
	}
	started := time.Now()
	defer r.db.Observe("upsert_monitors", started)

	stmt, err := tx.PreparexContext(ctx, r.db.Rebind(r.upsertMonitorQuery()))
	if err != nil {
		r.metrics.RecordDBError("prepare_error")
		return fmt.Errorf("failed to prepare monitor statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range monitors {
		if _, err := stmt.ExecContext(ctx, m.Code, m.Name, m.Unit); err != nil {
			r.metrics.RecordDBError("exec_error")
			return fmt.Errorf("failed to upsert monitor %s: %w", m.Code, err)
		}
	}
	return nil
}

func (r *airQualityRepository) upsertMeasurements(ctx context.Context, tx *sqlx.Tx, measurements []models.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}
	started := time.Now()
	defer r.db.Observe("upsert_measurements", started)

	stmt, err := tx.PreparexContext(ctx, r.db.Rebind(r.upsertMeasurementQuery()))
	if err != nil {
		r.metrics.RecordDBError("prepare_error")
		return fmt.Errorf("failed to prepare measurement statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range measurements {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := stmt.ExecContext(ctx,
			m.StationID,
			m.MonitorCode,
			m.Timestamp.UTC(),
			nullFloat(m.Value),
			m.ReportType,
			m.GranularityMinutes,
			createdAt.UTC(),
		)
		if err != nil {
			r.metrics.RecordDBError("exec_error")
			return fmt.Errorf("failed to upsert measurement %s@%s: %w",
				m.MonitorCode, m.Timestamp.Format(time.RFC3339), err)
		}
	}
	return nil
}

// dedupeMeasurements keeps the last measurement per natural key, in the
// position of its first occurrence.
func dedupeMeasurements(in []models.Measurement) []models.Measurement {
	index := make(map[models.MeasurementKey]int, len(in))
	out := make([]models.Measurement, 0, len(in))
	for _, m := range in {
		key := m.Key()
		if i, ok := index[key]; ok {
			out[i] = m
			continue
		}
		index[key] = len(out)
		out = append(out, m)
	}
	return out
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// GetStation retrieves a station by id
func (r *airQualityRepository) GetStation(ctx context.Context, stationID int) (*models.Station, error) {
	query := `
		SELECT station_id, station_name, created_at
		FROM stations
		WHERE station_id = ?
	`

	var station models.Station
	err := r.db.GetContext(ctx, "get_station", &station, query, stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "station",
			ID:       strconv.Itoa(stationID),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}

	return &station, nil
}

// ListStations returns every station ordered by id
func (r *airQualityRepository) ListStations(ctx context.Context) ([]*models.Station, error) {
	query := `
		SELECT station_id, station_name, created_at
		FROM stations
		ORDER BY station_id
	`

	var stations []*models.Station
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	return stations, nil
}

// ListMonitors returns every monitor ordered by code
func (r *airQualityRepository) ListMonitors(ctx context.Context) ([]*models.Monitor, error) {
	query := `
		SELECT monitor_id, monitor_code, monitor_name, unit
		FROM monitors
		ORDER BY monitor_code
	`

	var monitors []*models.Monitor
	if err := r.db.SelectContext(ctx, "list_monitors", &monitors, query); err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	return monitors, nil
}

// ListMeasurements returns stored measurements, null values included
func (r *airQualityRepository) ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]*models.Measurement, error) {
	where, args := filter.where()
	query := `
		SELECT m.id, m.station_id, m.monitor_code, m.timestamp, m.value,
		       m.report_type, m.granularity_minutes, m.created_at
		FROM measurements m
		WHERE 1=1` + where + `
		ORDER BY m.timestamp, m.station_id, m.monitor_code` + filter.limit()

	var rows []*models.Measurement
	if err := r.db.SelectContext(ctx, "list_measurements", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	return rows, nil
}

// CountMeasurements counts stored measurements, null values included
func (r *airQualityRepository) CountMeasurements(ctx context.Context, filter MeasurementFilter) (int, error) {
	where, args := filter.where()
	query := `SELECT COUNT(*) FROM measurements m WHERE 1=1` + where

	var count int
	if err := r.db.GetContext(ctx, "count_measurements", &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return count, nil
}

// ListMeasurementView joins measurements with station and monitor metadata.
// Rows without a value are excluded; the result is ordered by timestamp.
func (r *airQualityRepository) ListMeasurementView(ctx context.Context, filter MeasurementFilter) ([]*models.MeasurementView, error) {
	where, args := filter.where()
	query := `
		SELECT m.timestamp, m.value, m.station_id, s.station_name,
		       m.monitor_code, mo.monitor_name, mo.unit
		FROM measurements m
		LEFT JOIN stations s ON m.station_id = s.station_id
		LEFT JOIN monitors mo ON m.monitor_code = mo.monitor_code
		WHERE m.value IS NOT NULL` + where + `
		ORDER BY m.timestamp, m.station_id, m.monitor_code` + filter.limit()

	var rows []*models.MeasurementView
	if err := r.db.SelectContext(ctx, "list_measurement_view", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load measurement view: %w", err)
	}
	return rows, nil
}

// GetSummary aggregates the measurements holding a value
func (r *airQualityRepository) GetSummary(ctx context.Context) (*models.StoreSummary, error) {
	query := `
		SELECT COUNT(*) AS total_measurements,
		       COUNT(DISTINCT station_id) AS total_stations,
		       COUNT(DISTINCT monitor_code) AS total_monitors
		FROM measurements
		WHERE value IS NOT NULL
	`
	return r.summarize(ctx, "summary_counts", query, "WHERE value IS NOT NULL")
}

// GetStoreTotals counts every stored row, null readings included, along
// with the registered stations and monitors.
func (r *airQualityRepository) GetStoreTotals(ctx context.Context) (*models.StoreSummary, error) {
	query := `
		SELECT (SELECT COUNT(*) FROM measurements) AS total_measurements,
		       (SELECT COUNT(*) FROM stations) AS total_stations,
		       (SELECT COUNT(*) FROM monitors) AS total_monitors
	`
	return r.summarize(ctx, "store_totals", query, "")
}

func (r *airQualityRepository) summarize(ctx context.Context, name, query, rangeWhere string) (*models.StoreSummary, error) {
	var counts struct {
		TotalMeasurements int `db:"total_measurements"`
		TotalStations     int `db:"total_stations"`
		TotalMonitors     int `db:"total_monitors"`
	}
	if err := r.db.GetContext(ctx, name, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to summarize measurements: %w", err)
	}

	summary := &models.StoreSummary{
		TotalMeasurements: counts.TotalMeasurements,
		TotalStations:     counts.TotalStations,
		TotalMonitors:     counts.TotalMonitors,
	}
	if counts.TotalMeasurements == 0 {
		return summary, nil
	}

	// ordered reads keep the column type, which MIN/MAX lose on some drivers
	first, err := r.boundaryTimestamp(ctx, rangeWhere, "ASC")
	if err != nil {
		return nil, err
	}
	last, err := r.boundaryTimestamp(ctx, rangeWhere, "DESC")
	if err != nil {
		return nil, err
	}
	summary.FirstTimestamp = &first
	summary.LastTimestamp = &last

	return summary, nil
}

func (r *airQualityRepository) boundaryTimestamp(ctx context.Context, where, direction string) (time.Time, error) {
	query := `
		SELECT timestamp FROM measurements
		` + where + `
		ORDER BY timestamp ` + direction + `
		LIMIT 1
	`

	var ts time.Time
	if err := r.db.GetContext(ctx, "summary_range", &ts, query); err != nil {
		return time.Time{}, fmt.Errorf("failed to read timestamp range: %w", err)
	}
	return ts.UTC(), nil
}

// HealthCheck performs a repository health check
func (r *airQualityRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
