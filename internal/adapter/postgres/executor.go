// Package postgres provisions tenant databases on a PostgreSQL server.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	//go:embed fixtures/*.sql
	fixtures embed.FS
)

const (
	codeDuplicateDatabase = "42P04"
	// Concurrent CREATE DATABASE of the same name can also surface as a
	// unique violation on pg_database.
	codeUniqueViolation = "23505"
)

// Compile-time check: Executor implements domain.Executor.
var _ domain.Executor = (*Executor)(nil)

// Executor creates tenant databases through an administrative pool and
// connects to each tenant database to migrate and seed it.
type Executor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewExecutor returns an executor using pool for server-level statements.
// The pool's role needs the CREATEDB privilege.
func NewExecutor(pool *pgxpool.Pool, logger *zap.Logger) *Executor {
	if pool == nil {
		panic("postgres executor requires pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{pool: pool, logger: logger.Named("postgres-executor")}
}

// CreateDatabase issues CREATE DATABASE. A database that already exists is success.
func (e *Executor) CreateDatabase(ctx context.Context, databaseName string, tmpl domain.ConnectionTemplate) error {
	if databaseName == "" {
		return errors.New("database name is empty")
	}

	var exists bool
	if err := e.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, databaseName,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking database %s: %w", databaseName, err)
	}
	if exists {
		e.logger.Info("tenant database already exists", zap.String("database", databaseName))
		return nil
	}

	stmt, err := createStatement(databaseName, tmpl.Charset)
	if err != nil {
		return err
	}

	if _, err := e.pool.Exec(ctx, stmt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == codeDuplicateDatabase || pgErr.Code == codeUniqueViolation) {
			e.logger.Info("tenant database created concurrently", zap.String("database", databaseName))
			return nil
		}
		return fmt.Errorf("creating database %s: %w", databaseName, err)
	}

	e.logger.Info("tenant database created", zap.String("database", databaseName))
	return nil
}

// createStatement builds CREATE DATABASE. DDL takes no bind parameters, so
// the name is quoted as an identifier and the encoding checked by hand.
func createStatement(databaseName, charset string) (string, error) {
	stmt := "CREATE DATABASE " + pgx.Identifier{databaseName}.Sanitize()
	if charset == "" {
		return stmt, nil
	}
	for _, r := range charset {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return "", fmt.Errorf("invalid charset %q", charset)
		}
	}
	return stmt + " TEMPLATE template0 ENCODING '" + charset + "'", nil
}

// Migrate applies pending schema migrations with goose.
func (e *Executor) Migrate(ctx context.Context, databaseName string, _ domain.ConnectionTemplate) error {
	db := stdlib.OpenDB(*e.tenantConfig(databaseName))
	defer db.Close()

	return migrate(ctx, db, databaseName, e.logger)
}

func migrate(ctx context.Context, db *sql.DB, databaseName string, logger *zap.Logger) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening tenant migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrating %s: %w", databaseName, err)
	}

	logger.Info("tenant migrations applied",
		zap.String("database", databaseName),
		zap.Int("applied", len(results)),
	)
	return nil
}

// LoadFixtures runs the fixture scripts in one transaction. Scripts use
// ON CONFLICT DO NOTHING so a rerun leaves existing rows alone.
func (e *Executor) LoadFixtures(ctx context.Context, databaseName string, _ domain.ConnectionTemplate) error {
	conn, err := pgx.ConnectConfig(ctx, e.tenantConfig(databaseName))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", databaseName, err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	entries, err := fs.ReadDir(fixtures, "fixtures")
	if err != nil {
		return fmt.Errorf("reading fixtures: %w", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, entry := range entries {
		script, err := fs.ReadFile(fixtures, "fixtures/"+entry.Name())
		if err != nil {
			return fmt.Errorf("reading fixture %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("loading fixture %s into %s: %w", entry.Name(), databaseName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fixtures: %w", err)
	}

	e.logger.Info("tenant fixtures loaded",
		zap.String("database", databaseName),
		zap.Int("scripts", len(entries)),
	)
	return nil
}

// tenantConfig returns the admin connection settings pointed at the tenant database.
func (e *Executor) tenantConfig(databaseName string) *pgx.ConnConfig {
	cfg := e.pool.Config().ConnConfig.Copy()
	cfg.Database = databaseName
	return cfg
}
