package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// Supported driver names.
const (
	DriverDuckDB   = "duckdb"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database connection configuration
type Config struct {
	Driver          string
	Path            string // file path for embedded drivers
	DSN             string // connection string for postgres, overrides Path for embedded drivers
	ReadOnly        bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DB wraps sqlx.DB with the dialect of the selected driver, monitoring and metrics
type DB struct {
	db      *sqlx.DB
	dialect *Dialect
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config
	done    chan struct{}
}

// Open opens the store described by cfg and verifies it answers a ping.
func Open(cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite && !cfg.ReadOnly {
		// one writer connection avoids SQLITE_BUSY between pooled connections
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(context.Background(), "[DB_INIT] Database connection established", logging.Fields{
		"driver":         cfg.Driver,
		"path":           cfg.Path,
		"read_only":      cfg.ReadOnly,
		"max_open_conns": maxOpen,
	})

	store := &DB{
		db:      db,
		dialect: dialect,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
		done:    make(chan struct{}),
	}

	go store.monitorConnectionPool()

	return store, nil
}

// buildDSN turns the configuration into a driver specific connection string.
func buildDSN(cfg *Config) (string, error) {
	switch cfg.Driver {
	case DriverDuckDB:
		if cfg.DSN != "" {
			return cfg.DSN, nil
		}
		if err := ensureDir(cfg.Path, cfg.ReadOnly); err != nil {
			return "", err
		}
		if cfg.ReadOnly {
			return cfg.Path + "?access_mode=read_only", nil
		}
		return cfg.Path, nil

	case DriverSQLite:
		if cfg.DSN != "" {
			return cfg.DSN, nil
		}
		if err := ensureDir(cfg.Path, cfg.ReadOnly); err != nil {
			return "", err
		}
		params := []string{
			"_pragma=busy_timeout(5000)",
			"_time_format=sqlite",
		}
		if cfg.ReadOnly {
			params = append(params, "mode=ro")
		} else {
			params = append(params, "_pragma=journal_mode(WAL)")
		}
		return "file:" + cfg.Path + "?" + strings.Join(params, "&"), nil

	case DriverPostgres:
		if cfg.DSN == "" {
			return "", fmt.Errorf("postgres driver requires a DSN")
		}
		if !cfg.ReadOnly {
			return cfg.DSN, nil
		}
		if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
			sep := "?"
			if strings.Contains(cfg.DSN, "?") {
				sep = "&"
			}
			return cfg.DSN + sep + "default_transaction_read_only=on", nil
		}
		return cfg.DSN + " default_transaction_read_only=on", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// ensureDir creates the parent directory of a file backed store. A read-only
// open requires the file to exist already.
func ensureDir(path string, readOnly bool) error {
	if path == "" {
		return fmt.Errorf("database path is empty")
	}
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("database file %s: %w", path, err)
		}
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// Close stops pool monitoring and closes the database connection
func (d *DB) Close() error {
	d.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{
		"driver": d.config.Driver,
		"path":   d.config.Path,
	})
	close(d.done)
	return d.db.Close()
}

// DB returns the underlying sqlx.DB instance
func (d *DB) DB() *sqlx.DB {
	return d.db
}

// Dialect returns the SQL dialect of the open driver.
func (d *DB) Dialect() *Dialect {
	return d.dialect
}

// Rebind converts '?' placeholders to the driver's bind style.
func (d *DB) Rebind(query string) string {
	return d.db.Rebind(query)
}

// Observe records the duration of one query type.
func (d *DB) Observe(queryType string, started time.Time) {
	d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(started).Seconds())
}

// ExecContext executes a command with context and metrics
func (d *DB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer func() {
		d.Observe(queryType, timer)
		d.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	result, err := d.db.ExecContext(ctx, d.Rebind(query), args...)
	if err != nil {
		d.metrics.RecordDBError("exec_error")
		d.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

// GetContext executes a query that returns a single row
func (d *DB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer d.Observe(queryType, timer)

	err := d.db.GetContext(ctx, dest, d.Rebind(query), args...)
	if err != nil && err != sql.ErrNoRows {
		d.metrics.RecordDBError("get_error")
		d.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

// SelectContext executes a query that returns multiple rows
func (d *DB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		d.Observe(queryType, timer)
		d.logger.Debug(ctx, "[DB_QUERY] Query executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	err := d.db.SelectContext(ctx, dest, d.Rebind(query), args...)
	if err != nil {
		d.metrics.RecordDBError("select_error")
		d.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}

	return nil
}

// BeginTx begins a new transaction with the driver's default isolation.
func (d *DB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		d.metrics.RecordDBError("transaction_begin_error")
		d.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return nil, err
	}

	return tx, nil
}

// monitorConnectionPool periodically updates connection pool metrics
func (d *DB) monitorConnectionPool() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
		}

		stats := d.db.Stats()
		d.metrics.UpdateDBConnectionPool(stats.InUse, stats.Idle, stats.OpenConnections)

		if stats.MaxOpenConnections <= 0 {
			continue
		}
		utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections)
		if utilization > 0.8 {
			d.logger.Warn(context.Background(), "[DB_POOL_WARNING] Connection pool utilization high", logging.Fields{
				"in_use":      stats.InUse,
				"idle":        stats.Idle,
				"total":       stats.OpenConnections,
				"max_open":    stats.MaxOpenConnections,
				"utilization": fmt.Sprintf("%.2f%%", utilization*100),
			})
		}
	}
}

// HealthCheck performs a database health check
func (d *DB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
