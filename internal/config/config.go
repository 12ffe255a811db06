package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
)

const (
	defaultDBDriver     = database.DriverDuckDB
	defaultDBPath       = "air_quality.duckdb"
	defaultServerHost   = "0.0.0.0"
	defaultServerPort   = 8050
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Config holds process configuration read from the environment.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// DatabaseConfig selects and tunes the store.
type DatabaseConfig struct {
	Driver          string
	Path            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from environment variables (optionally .env).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	cfg := &Config{
		Database: DatabaseConfig{
			Driver: envString("DB_DRIVER", defaultDBDriver),
			Path:   envString("DB_PATH", defaultDBPath),
			DSN:    envString("DB_DSN", ""),
		},
		Server: ServerConfig{
			Host: envString("SERVER_HOST", defaultServerHost),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", string(logging.FormatJSON)),
		},
	}

	var err error
	if cfg.Database.MaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 4); err != nil {
		return nil, err
	}
	if cfg.Database.MaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 2); err != nil {
		return nil, err
	}
	if cfg.Database.ConnMaxLifetime, err = envDuration("DB_CONN_MAX_LIFETIME", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Database.ConnMaxIdleTime, err = envDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Server.Port, err = envInt("SERVER_PORT", defaultServerPort); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = envDuration("SERVER_READ_TIMEOUT", defaultReadTimeout); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = envDuration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = envDuration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that cannot be caught while parsing.
func (c *Config) Validate() error {
	if _, err := database.DialectFor(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.Driver == database.DriverPostgres && c.Database.DSN == "" {
		return errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	if c.Database.Driver != database.DriverPostgres && c.Database.Path == "" && c.Database.DSN == "" {
		return errors.New("DB_PATH is required for embedded drivers")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch logging.Format(c.Logging.Format) {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (allowed: json, console)", c.Logging.Format)
	}
	return nil
}

// DatabaseOptions converts the database section to pkg/database options.
func (c *Config) DatabaseOptions(readOnly bool) *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Path:            c.Database.Path,
		DSN:             c.Database.DSN,
		ReadOnly:        readOnly,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

// NewLogger builds the process logger from the logging section.
func (c *Config) NewLogger(service, version string) *logging.StructuredLogger {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.InfoLevel
	}
	logger := logging.NewStructuredLogger(service, version, level)
	if logging.Format(c.Logging.Format) == logging.FormatConsole {
		logger.SetFormat(logging.FormatConsole)
	}
	return logger
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
