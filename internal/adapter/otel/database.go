package otel

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens the SQLite tenant store database with OpenTelemetry
// instrumentation: every SQL operation is traced and connection pool
// stats are exported as metrics.
func OpenDB(dataSourceName string) (*sql.DB, error) {
	db, err := otelsql.Open("sqlite", dataSourceName,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening instrumented database: %w", err)
	}

	// The store shares this DB with River; a single connection avoids
	// SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	// Writers from other processes (the CLI next to a running server) wait
	// up to five seconds for the lock instead of failing with SQLITE_BUSY.
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}
