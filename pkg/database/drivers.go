package database

// Driver registrations for database/sql.
//   - DuckDB is the default single-file analytical store (CGO).
//   - modernc.org/sqlite is the pure Go fallback and backs the tests.
//   - lib/pq serves deployments that keep the store on a Postgres server.
import (
	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"
)
