package domain

import (
	"context"
	"time"
)

// TenantStore defines the persistence contract for tenants.
type TenantStore interface {
	// Create persists a new tenant and returns it with its assigned id.
	Create(ctx context.Context, tenant Tenant) (Tenant, error)
	GetByID(ctx context.Context, id TenantID) (Tenant, error)
	// List returns tenants ordered by id ascending.
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	// UpdateContact stores the display name and contact fields. It never
	// writes the database name or a stage status.
	UpdateContact(ctx context.Context, tenant Tenant) error
	// UpdateLifecycle stores the database name and stage statuses of tenant
	// only if the stored ones still equal expected. Otherwise nothing is
	// written and a *ConflictError is returned.
	UpdateLifecycle(ctx context.Context, expected LifecycleRecord, tenant Tenant) error
}

// StepLeaser grants time-limited, per-tenant provisioning leases through
// shared storage, so processes using the same store never run two steps
// for one tenant at once.
type StepLeaser interface {
	// AcquireLease takes or renews the lease for owner. It returns false
	// while another owner holds an unexpired lease.
	AcquireLease(ctx context.Context, id TenantID, owner string, ttl time.Duration) (bool, error)
	// ReleaseLease drops the lease if owner still holds it.
	ReleaseLease(ctx context.Context, id TenantID, owner string) error
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	DatabaseStatus *DatabaseStatus
	Limit          int
	Offset         int
}

// DatabaseCreator creates a tenant database. It must treat an existing
// database of the same name as success.
type DatabaseCreator interface {
	CreateDatabase(ctx context.Context, databaseName string, tmpl ConnectionTemplate) error
}

// MigrationRunner applies pending schema migrations to a tenant database.
type MigrationRunner interface {
	Migrate(ctx context.Context, databaseName string, tmpl ConnectionTemplate) error
}

// FixtureLoader seeds a tenant database with its initial data.
type FixtureLoader interface {
	LoadFixtures(ctx context.Context, databaseName string, tmpl ConnectionTemplate) error
}

// Executor performs every provisioning side effect against one database server.
type Executor interface {
	DatabaseCreator
	MigrationRunner
	FixtureLoader
}

// EventPublisher defines the contract for emitting domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, tenant Tenant) error
}

// TransitionValidator checks a stage status change and returns the
// destination status.
type TransitionValidator interface {
	Apply(ctx context.Context, stage Stage, current string, event Event) (string, error)
}

// RegistryRefresher rewrites the connection registry from the current
// tenant set.
type RegistryRefresher interface {
	Regenerate(ctx context.Context) error
}
