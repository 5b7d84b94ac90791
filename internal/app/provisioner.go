package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// DefaultStepTimeout bounds a single executor call when no timeout is configured.
const DefaultStepTimeout = 5 * time.Minute

const (
	// leaseGrace covers the status write and event publish after the step.
	leaseGrace = 30 * time.Second
	// LeasePollInterval is how often a waiting step retries a held lease.
	LeasePollInterval = 100 * time.Millisecond
)

// ProvisionerDeps holds the collaborators of a Provisioner.
type ProvisionerDeps struct {
	Store     domain.TenantStore
	Creator   domain.DatabaseCreator
	Migrator  domain.MigrationRunner
	Loader    domain.FixtureLoader
	Validator domain.TransitionValidator
	Publisher domain.EventPublisher
	// Registry is regenerated after a database is created. Optional.
	Registry domain.RegistryRefresher
	Template domain.ConnectionTemplate
	// Leases extends per-tenant serialization to every process sharing the
	// store. Optional; without it steps are serialized in this process only.
	Leases domain.StepLeaser

	StepTimeout  time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Provisioner drives tenant databases through creation, schema migration
// and fixture seeding. Steps for one tenant are serialized; steps for
// different tenants run concurrently. Nothing is chained or retried: each
// operation performs exactly one step.
type Provisioner struct {
	store     domain.TenantStore
	creator   domain.DatabaseCreator
	migrator  domain.MigrationRunner
	loader    domain.FixtureLoader
	validator domain.TransitionValidator
	publisher domain.EventPublisher
	registry  domain.RegistryRefresher
	template  domain.ConnectionTemplate
	leases    domain.StepLeaser
	owner     string
	timeout   time.Duration
	poll      time.Duration
	logger    *zap.Logger
	locks     *keyedMutex
}

// NewProvisioner creates a Provisioner. It panics if a required
// collaborator is missing.
func NewProvisioner(deps ProvisionerDeps) *Provisioner {
	switch {
	case deps.Store == nil:
		panic("provisioner requires a tenant store")
	case deps.Creator == nil, deps.Migrator == nil, deps.Loader == nil:
		panic("provisioner requires database, migration and fixture executors")
	case deps.Validator == nil:
		panic("provisioner requires a transition validator")
	case deps.Publisher == nil:
		panic("provisioner requires an event publisher")
	}

	timeout := deps.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	poll := deps.PollInterval
	if poll <= 0 {
		poll = LeasePollInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provisioner{
		store:     deps.Store,
		creator:   deps.Creator,
		migrator:  deps.Migrator,
		loader:    deps.Loader,
		validator: deps.Validator,
		publisher: deps.Publisher,
		registry:  deps.Registry,
		template:  deps.Template,
		leases:    deps.Leases,
		owner:     uuid.NewString(),
		timeout:   timeout,
		poll:      poll,
		logger:    logger.Named("provisioner"),
		locks:     newKeyedMutex(),
	}
}

// DeriveIdentity assigns the tenant its database name if it has none yet.
// An existing name is kept as is.
func (p *Provisioner) DeriveIdentity(ctx context.Context, id domain.TenantID) (domain.Tenant, error) {
	unlock, err := p.lockTenant(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer unlock()

	tenant, err := p.store.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	if err := p.ensureIdentity(ctx, &tenant); err != nil {
		return domain.Tenant{}, err
	}
	return tenant, nil
}

// ProvisionDatabase creates the tenant database, deriving its name first
// when needed, and regenerates the connection registry. If only the
// registry write fails, the updated tenant is returned together with a
// *domain.RegistryWriteError.
func (p *Provisioner) ProvisionDatabase(ctx context.Context, id domain.TenantID) (domain.Tenant, error) {
	return p.runStep(ctx, id, domain.StageDatabase)
}

// RunMigrations applies the schema migrations to a tenant database that
// has been created.
func (p *Provisioner) RunMigrations(ctx context.Context, id domain.TenantID) (domain.Tenant, error) {
	return p.runStep(ctx, id, domain.StageMigration)
}

// LoadFixtures seeds a migrated tenant database.
func (p *Provisioner) LoadFixtures(ctx context.Context, id domain.TenantID) (domain.Tenant, error) {
	return p.runStep(ctx, id, domain.StageFixtures)
}

// Provision runs the given stage.
func (p *Provisioner) Provision(ctx context.Context, id domain.TenantID, stage domain.Stage) (domain.Tenant, error) {
	if !stage.Valid() {
		return domain.Tenant{}, fmt.Errorf("unknown stage %q", stage)
	}
	return p.runStep(ctx, id, stage)
}

func (p *Provisioner) runStep(ctx context.Context, id domain.TenantID, stage domain.Stage) (domain.Tenant, error) {
	unlock, err := p.lockTenant(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer unlock()

	tenant, err := p.store.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}

	log := p.logger.With(zap.Int64("tenant_id", int64(id)), zap.String("stage", string(stage)))

	if tenant.StageCreated(stage) {
		log.Debug("stage already created, skipping")
		return tenant, nil
	}
	if err := tenant.CheckReady(stage); err != nil {
		log.Warn("stage requested out of order", zap.Error(err))
		return domain.Tenant{}, err
	}

	if stage == domain.StageDatabase {
		// Persisted before the executor runs so a retry reuses the name.
		if err := p.ensureIdentity(ctx, &tenant); err != nil {
			return domain.Tenant{}, err
		}
	}
	if tenant.DatabaseName() == "" {
		return domain.Tenant{}, &domain.MissingIdentityError{TenantID: id}
	}
	log = log.With(zap.String("database", tenant.DatabaseName()))

	event := domain.CompletionEvent(stage)
	next, err := p.validator.Apply(ctx, stage, tenant.StageStatus(stage), event)
	if err != nil {
		return domain.Tenant{}, err
	}

	log.Info("running provisioning step")
	start := time.Now()
	if err := p.execute(ctx, stage, tenant.DatabaseName()); err != nil {
		perr := &domain.ProvisioningError{Stage: stage, TenantID: id, Cause: err}
		log.Error("provisioning step failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		p.publish(context.WithoutCancel(ctx), domain.FailureEvent(stage), tenant)
		return domain.Tenant{}, perr
	}

	// The executor effect is in place; record it even if the caller gives up now.
	ctx = context.WithoutCancel(ctx)

	before := tenant.LifecycleRecord
	if err := tenant.SetStageStatus(stage, next); err != nil {
		return domain.Tenant{}, err
	}
	tenant.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateLifecycle(ctx, before, tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("persisting %s status: %w", stage, err)
	}
	log.Info("provisioning step completed", zap.Duration("elapsed", time.Since(start)))

	p.publish(ctx, event, tenant)

	if stage == domain.StageDatabase && p.registry != nil {
		if err := p.registry.Regenerate(ctx); err != nil {
			log.Error("registry regeneration failed", zap.Error(err))
			var regErr *domain.RegistryWriteError
			if !errors.As(err, &regErr) {
				err = &domain.RegistryWriteError{Cause: err}
			}
			return tenant, err
		}
	}
	return tenant, nil
}

// lockTenant takes the in-process lock for id and then, when a leaser is
// configured, the store lease. Waiting for a lease held elsewhere polls
// until it is free or ctx is done.
func (p *Provisioner) lockTenant(ctx context.Context, id domain.TenantID) (func(), error) {
	unlock, err := p.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.leases == nil {
		return unlock, nil
	}

	if err := p.acquireLease(ctx, id); err != nil {
		unlock()
		return nil, err
	}
	return func() {
		if err := p.leases.ReleaseLease(context.WithoutCancel(ctx), id, p.owner); err != nil {
			p.logger.Warn("releasing provisioning lease failed",
				zap.Int64("tenant_id", int64(id)),
				zap.Error(err),
			)
		}
		unlock()
	}, nil
}

func (p *Provisioner) acquireLease(ctx context.Context, id domain.TenantID) error {
	ttl := p.timeout + leaseGrace
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		ok, err := p.leases.AcquireLease(ctx, id, p.owner, ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("acquiring provisioning lease: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// execute calls the executor for stage under the step timeout.
func (p *Provisioner) execute(ctx context.Context, stage domain.Stage, databaseName string) error {
	stepCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var err error
	switch stage {
	case domain.StageDatabase:
		err = p.creator.CreateDatabase(stepCtx, databaseName, p.template)
	case domain.StageMigration:
		err = p.migrator.Migrate(stepCtx, databaseName, p.template)
	case domain.StageFixtures:
		err = p.loader.LoadFixtures(stepCtx, databaseName, p.template)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	// Only the step deadline counts as a timeout; a caller's own deadline
	// or cancellation is reported as is.
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return &domain.TimeoutError{Stage: stage, After: p.timeout, Err: err}
	}
	return err
}

func (p *Provisioner) ensureIdentity(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.DatabaseName() != "" {
		return nil
	}

	name, err := domain.DeriveDatabaseName(tenant.Name, tenant.ID)
	if err != nil {
		return err
	}
	before := tenant.LifecycleRecord
	if err := tenant.AssignDatabaseName(name); err != nil {
		return err
	}
	tenant.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateLifecycle(ctx, before, *tenant); err != nil {
		return fmt.Errorf("persisting database name: %w", err)
	}

	p.logger.Info("database identity derived",
		zap.Int64("tenant_id", int64(tenant.ID)),
		zap.String("database", name),
	)
	return nil
}

// publish emits an event. Failures are logged and never undo the step.
func (p *Provisioner) publish(ctx context.Context, event domain.Event, tenant domain.Tenant) {
	if err := p.publisher.Publish(ctx, event, tenant); err != nil {
		p.logger.Warn("publishing event failed",
			zap.String("event", string(event)),
			zap.Int64("tenant_id", int64(tenant.ID)),
			zap.Error(err),
		)
	}
}
