package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/tenantdb/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: TenantStore implements domain.TenantStore.
var _ domain.TenantStore = (*TenantStore)(nil)

// TenantStore implements domain.TenantStore using SQLite.
type TenantStore struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*TenantStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// are private to the connection that created them.
	db.SetMaxOpenConns(1)

	// busy_timeout goes first: switching to WAL already needs the write lock
	// when another process has the file open.
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

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*TenantStore, error) {
	if err := runMigrations(context.Background(), db); err != nil {
		return nil, err
	}

	return &TenantStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *TenantStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *TenantStore) DB() *sql.DB {
	return s.db
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

const selectColumns = `SELECT id, name, email, company_name, subdomain, database_name,
	database_status, migration_status, fixtures_status, created_at, updated_at
	FROM tenants`

// Create inserts the tenant and returns it with the id assigned by SQLite.
func (s *TenantStore) Create(ctx context.Context, t domain.Tenant) (domain.Tenant, error) {
	if t.ID != 0 {
		return domain.Tenant{}, fmt.Errorf("creating tenant: id %d already assigned", t.ID)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (name, email, company_name, subdomain, database_name,
			database_status, migration_status, fixtures_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Email, t.CompanyName, t.Subdomain, nullable(t.DatabaseName()),
		string(t.DatabaseStatus()), string(t.MigrationStatus()), string(t.FixturesStatus()),
		t.CreatedAt.UTC().Format(timeFormat),
		t.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("inserting tenant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("reading tenant id: %w", err)
	}
	t.ID = domain.TenantID(id)
	return t, nil
}

func (s *TenantStore) GetByID(ctx context.Context, id domain.TenantID) (domain.Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, err
}

// List returns tenants ordered by id.
func (s *TenantStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	query := selectColumns
	var args []any

	if filter.DatabaseStatus != nil {
		query += ` WHERE database_status = ?`
		args = append(args, string(*filter.DatabaseStatus))
	}

	query += ` ORDER BY id ASC`

	// SQLite needs a LIMIT for OFFSET; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

// UpdateContact stores the display name and contact fields. Lifecycle
// columns are left alone, so it cannot race a provisioning step backwards.
func (s *TenantStore) UpdateContact(ctx context.Context, t domain.Tenant) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET name = ?, email = ?, company_name = ?, subdomain = ?, updated_at = ?
		 WHERE id = ?`,
		t.Name, t.Email, t.CompanyName, t.Subdomain,
		time.Now().UTC().Format(timeFormat),
		int64(t.ID),
	)
	if err != nil {
		return fmt.Errorf("updating tenant contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

// UpdateLifecycle writes the lifecycle columns of t, guarded by the values
// in expected. A stored database name can only be set, never replaced.
func (s *TenantStore) UpdateLifecycle(ctx context.Context, expected domain.LifecycleRecord, t domain.Tenant) error {
	if expected.ID != t.ID {
		return fmt.Errorf("updating tenant %d: expected lifecycle belongs to tenant %d", t.ID, expected.ID)
	}
	if old := expected.DatabaseName(); old != "" && old != t.DatabaseName() {
		return &domain.IdentityError{
			TenantID: t.ID,
			Reason:   fmt.Sprintf("database name already assigned as %q", old),
		}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET database_name = ?, database_status = ?, migration_status = ?,
			fixtures_status = ?, updated_at = ?
		 WHERE id = ? AND database_name IS ? AND database_status = ?
			AND migration_status = ? AND fixtures_status = ?`,
		nullable(t.DatabaseName()),
		string(t.DatabaseStatus()), string(t.MigrationStatus()), string(t.FixturesStatus()),
		time.Now().UTC().Format(timeFormat),
		int64(t.ID), nullable(expected.DatabaseName()),
		string(expected.DatabaseStatus()), string(expected.MigrationStatus()), string(expected.FixturesStatus()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.IdentityError{
				TenantID: t.ID,
				Reason:   fmt.Sprintf("database name %q is used by another tenant", t.DatabaseName()),
			}
		}
		return fmt.Errorf("updating tenant lifecycle: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		// Tell a missing tenant apart from one that moved on under us.
		if _, err := s.GetByID(ctx, t.ID); err != nil {
			return err
		}
		return &domain.ConflictError{TenantID: t.ID}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanTenant scans a single row into a domain.Tenant and re-checks the
// lifecycle invariants of the stored values.
func scanTenant(row scanner) (domain.Tenant, error) {
	var (
		id                   int64
		name, email          string
		company, subdomain   string
		databaseName         sql.NullString
		db, mig, fix         string
		createdAt, updatedAt string
	)

	err := row.Scan(&id, &name, &email, &company, &subdomain, &databaseName,
		&db, &mig, &fix, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, err
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}

	rec, err := domain.RestoreLifecycleRecord(domain.TenantID(id), name, databaseName.String,
		domain.DatabaseStatus(db), domain.MigrationStatus(mig), domain.FixturesStatus(fix))
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("loading tenant %d: %w", id, err)
	}

	t := domain.Tenant{
		LifecycleRecord: rec,
		Email:           email,
		CompanyName:     company,
		Subdomain:       subdomain,
	}
	t.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	t.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return t, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
