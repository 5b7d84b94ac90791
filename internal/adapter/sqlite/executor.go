package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

var (
	//go:embed tenant_migrations/*.sql
	tenantMigrations embed.FS

	//go:embed fixtures/*.sql
	fixtures embed.FS
)

// Compile-time check: Executor implements domain.Executor.
var _ domain.Executor = (*Executor)(nil)

// Executor provisions each tenant as its own SQLite file under a data
// directory. The connection template is not used: a file path is all a
// SQLite tenant needs.
type Executor struct {
	dir    string
	logger *zap.Logger
}

// NewExecutor creates the data directory if needed and returns an executor
// that keeps tenant databases in it.
func NewExecutor(dir string, logger *zap.Logger) (*Executor, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating tenant data directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{dir: dir, logger: logger.Named("sqlite-executor")}, nil
}

// Path returns the file that holds the named tenant database.
func (e *Executor) Path(databaseName string) string {
	return filepath.Join(e.dir, databaseName+".db")
}

// CreateDatabase creates the database file. An existing file is success.
func (e *Executor) CreateDatabase(ctx context.Context, databaseName string, _ domain.ConnectionTemplate) error {
	if err := checkName(databaseName); err != nil {
		return err
	}

	path := e.Path(databaseName)
	if _, err := os.Stat(path); err == nil {
		e.logger.Info("tenant database already exists", zap.String("database", databaseName))
		return nil
	}

	db, err := openFile(path)
	if err != nil {
		return err
	}
	defer db.Close()

	// The file is created on first use.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("creating database %s: %w", databaseName, err)
	}

	e.logger.Info("tenant database created", zap.String("database", databaseName), zap.String("path", path))
	return nil
}

// Migrate applies pending tenant schema migrations.
func (e *Executor) Migrate(ctx context.Context, databaseName string, _ domain.ConnectionTemplate) error {
	db, err := e.openExisting(databaseName)
	if err != nil {
		return err
	}
	defer db.Close()

	fsys, err := fs.Sub(tenantMigrations, "tenant_migrations")
	if err != nil {
		return fmt.Errorf("opening tenant migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrating %s: %w", databaseName, err)
	}

	e.logger.Info("tenant migrations applied",
		zap.String("database", databaseName),
		zap.Int("applied", len(results)),
	)
	return nil
}

// LoadFixtures runs every fixture script in one transaction. Scripts use
// INSERT OR IGNORE so a rerun leaves existing rows alone.
func (e *Executor) LoadFixtures(ctx context.Context, databaseName string, _ domain.ConnectionTemplate) error {
	db, err := e.openExisting(databaseName)
	if err != nil {
		return err
	}
	defer db.Close()

	return loadFixtureScripts(ctx, db, databaseName)
}

func loadFixtureScripts(ctx context.Context, db *sql.DB, databaseName string) (err error) {
	entries, err := fs.ReadDir(fixtures, "fixtures")
	if err != nil {
		return fmt.Errorf("reading fixtures: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning fixtures transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, entry := range entries {
		script, err := fs.ReadFile(fixtures, "fixtures/"+entry.Name())
		if err != nil {
			return fmt.Errorf("reading fixture %s: %w", entry.Name(), err)
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("loading fixture %s into %s: %w", entry.Name(), databaseName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing fixtures: %w", err)
	}
	return nil
}

func (e *Executor) openExisting(databaseName string) (*sql.DB, error) {
	if err := checkName(databaseName); err != nil {
		return nil, err
	}

	path := e.Path(databaseName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("tenant database %s does not exist", databaseName)
		}
		return nil, fmt.Errorf("checking tenant database %s: %w", databaseName, err)
	}
	return openFile(path)
}

func openFile(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// checkName rejects names that could escape the data directory. Derived
// names only contain [a-z0-9_].
func checkName(name string) error {
	if name == "" {
		return errors.New("database name is empty")
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("database name %q contains %q", name, r)
		}
	}
	return nil
}
