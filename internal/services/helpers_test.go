package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"airquality-platform/internal/config"
	"airquality-platform/internal/models"
	"airquality-platform/internal/repository"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

type testEnv struct {
	repo    repository.AirQualityRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func quietLogger() *logging.StructuredLogger {
	l := logging.NewStructuredLogger("services-test", "test", logging.ErrorLevel)
	l.SetOutput(io.Discard)
	return l
}

// newTestEnv opens a fresh SQLite store with the schema applied.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := quietLogger()
	collector := metrics.NewCollector("services_test", nil)

	db, err := database.Open(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "store.db"),
	}, logger, collector)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := repository.NewAirQualityRepository(db, logger, collector)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return &testEnv{repo: repo, logger: logger, metrics: collector}
}

func (e *testEnv) ingestion(codes models.CodeMap) *IngestionService {
	return NewIngestionService(e.repo, config.DefaultRunSettings(), codes, e.logger, e.metrics)
}

func writeJSON(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
