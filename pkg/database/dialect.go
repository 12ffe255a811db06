package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Dialect captures the DDL and surrogate-id differences between drivers.
// Queries are written with '?' placeholders and rebound by sqlx.
type Dialect struct {
	Name       string
	DriverName string

	// Sequences is true when surrogate ids come from CREATE SEQUENCE/nextval.
	// Otherwise the id column is an auto-increment primary key.
	Sequences bool

	schema []string
	drop   []string

	tableExists string
}

var duckDBDialect = &Dialect{
	Name:       DriverDuckDB,
	DriverName: "duckdb",
	Sequences:  true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stations (
			station_id INTEGER PRIMARY KEY,
			station_name VARCHAR,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE SEQUENCE IF NOT EXISTS monitor_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS measurement_seq START 1`,
		`CREATE TABLE IF NOT EXISTS monitors (
			monitor_id INTEGER PRIMARY KEY,
			monitor_code VARCHAR UNIQUE,
			monitor_name VARCHAR,
			unit VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id BIGINT PRIMARY KEY,
			station_id INTEGER,
			monitor_code VARCHAR,
			timestamp TIMESTAMP NOT NULL,
			value DOUBLE,
			report_type VARCHAR,
			granularity_minutes INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_measurements_unique
			ON measurements(station_id, monitor_code, timestamp, report_type)`,
		// no lookup indexes: DuckDB prunes scans with zone maps
	},
	drop: []string{
		`DROP TABLE IF EXISTS measurements`,
		`DROP TABLE IF EXISTS monitors`,
		`DROP TABLE IF EXISTS stations`,
		`DROP SEQUENCE IF EXISTS measurement_seq`,
		`DROP SEQUENCE IF EXISTS monitor_seq`,
	},
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`,
}

var postgresDialect = &Dialect{
	Name:       DriverPostgres,
	DriverName: "postgres",
	Sequences:  true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stations (
			station_id INTEGER PRIMARY KEY,
			station_name VARCHAR,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE SEQUENCE IF NOT EXISTS monitor_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS measurement_seq START 1`,
		`CREATE TABLE IF NOT EXISTS monitors (
			monitor_id INTEGER PRIMARY KEY,
			monitor_code VARCHAR UNIQUE,
			monitor_name VARCHAR,
			unit VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id BIGINT PRIMARY KEY,
			station_id INTEGER,
			monitor_code VARCHAR,
			timestamp TIMESTAMP NOT NULL,
			value DOUBLE PRECISION,
			report_type VARCHAR,
			granularity_minutes INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_measurements_unique
			ON measurements(station_id, monitor_code, timestamp, report_type)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_station ON measurements(station_id)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_timestamp ON measurements(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_monitor ON measurements(monitor_code)`,
	},
	drop: []string{
		`DROP TABLE IF EXISTS measurements`,
		`DROP TABLE IF EXISTS monitors`,
		`DROP TABLE IF EXISTS stations`,
		`DROP SEQUENCE IF EXISTS measurement_seq`,
		`DROP SEQUENCE IF EXISTS monitor_seq`,
	},
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`,
}

var sqliteDialect = &Dialect{
	Name:       DriverSQLite,
	DriverName: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stations (
			station_id INTEGER PRIMARY KEY,
			station_name TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS monitors (
			monitor_id INTEGER PRIMARY KEY AUTOINCREMENT,
			monitor_code TEXT UNIQUE,
			monitor_name TEXT,
			unit TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id INTEGER,
			monitor_code TEXT,
			timestamp TIMESTAMP NOT NULL,
			value REAL,
			report_type TEXT,
			granularity_minutes INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_measurements_unique
			ON measurements(station_id, monitor_code, timestamp, report_type)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_station ON measurements(station_id)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_timestamp ON measurements(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_monitor ON measurements(monitor_code)`,
	},
	drop: []string{
		`DROP TABLE IF EXISTS measurements`,
		`DROP TABLE IF EXISTS monitors`,
		`DROP TABLE IF EXISTS stations`,
	},
	tableExists: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
}

// DialectFor returns the dialect registered for a driver name.
func DialectFor(driver string) (*Dialect, error) {
	switch driver {
	case DriverDuckDB, "":
		return duckDBDialect, nil
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q (allowed: duckdb, sqlite, postgres)", driver)
}

// IDColumn returns the column-list and value-list fragments that allocate a
// surrogate id from seq. Auto-increment dialects return empty fragments.
func (d *Dialect) IDColumn(column, seq string) (string, string) {
	if !d.Sequences {
		return "", ""
	}
	return column + ", ", fmt.Sprintf("nextval('%s'), ", seq)
}

// TableExistsQuery returns a query counting tables with the bound name.
func (d *Dialect) TableExistsQuery() string {
	return d.tableExists
}

// CreateSchema applies the schema statements; all of them are idempotent.
func (d *Dialect) CreateSchema(ctx context.Context, db sqlx.ExecerContext) error {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema (%s): %w", d.Name, err)
		}
	}
	return nil
}

// DropSchema removes all tables and sequences.
func (d *Dialect) DropSchema(ctx context.Context, db sqlx.ExecerContext) error {
	for _, stmt := range d.drop {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop schema (%s): %w", d.Name, err)
		}
	}
	return nil
}
