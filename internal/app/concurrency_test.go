package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/adapter/fsm"
	"github.com/neomorfeo/tenantdb/internal/adapter/sqlite"
	"github.com/neomorfeo/tenantdb/internal/app"
	"github.com/neomorfeo/tenantdb/internal/domain"
)

// pausingStore runs hook once, right after the first GetByID returns.
type pausingStore struct {
	*sqlite.TenantStore
	once sync.Once
	hook func()
}

func (s *pausingStore) GetByID(ctx context.Context, id domain.TenantID) (domain.Tenant, error) {
	tenant, err := s.TenantStore.GetByID(ctx, id)
	s.once.Do(s.hook)
	return tenant, err
}

func openStore(t *testing.T, path string) *sqlite.TenantStore {
	t.Helper()
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newSQLiteProvisioner(store *sqlite.TenantStore, exec *mockExecutor) *app.Provisioner {
	return app.NewProvisioner(app.ProvisionerDeps{
		Store:        store,
		Creator:      exec,
		Migrator:     exec,
		Loader:       exec,
		Validator:    fsm.New(),
		Publisher:    &mockPublisher{},
		Template:     testTemplate(),
		Leases:       store,
		PollInterval: 10 * time.Millisecond,
		Logger:       zap.NewNop(),
	})
}

func TestRename_WhileDatabaseIsProvisioned(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "tenantdb.db"))
	ctx := context.Background()

	created, err := store.Create(ctx, domain.NewTenant("Acme Corp", "", "", ""))
	require.NoError(t, err)

	prov := newSQLiteProvisioner(store, newMockExecutor())
	_, err = prov.DeriveIdentity(ctx, created.ID)
	require.NoError(t, err)

	// The database step commits between rename's read and its write.
	var provisionErr error
	paused := &pausingStore{TenantStore: store, hook: func() {
		_, provisionErr = prov.ProvisionDatabase(ctx, created.ID)
	}}
	svc := app.NewTenantService(paused, &mockPublisher{}, zap.NewNop())

	renamed, err := svc.Rename(ctx, created.ID, "Acme Holdings")
	require.NoError(t, err)
	require.NoError(t, provisionErr)

	got, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", got.Name)
	assert.Equal(t, domain.DatabaseCreated, got.DatabaseStatus())
	assert.Equal(t, "acme_corp_tenant_1", got.DatabaseName())
	assert.Equal(t, domain.DatabaseCreated, renamed.DatabaseStatus())
}

func TestLoadFixtures_TwoProcessesShareOneStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenantdb.db")
	serverStore := openStore(t, path)
	cliStore := openStore(t, path)
	ctx := context.Background()

	tenant, err := serverStore.Create(ctx, domain.NewTenant("Acme Corp", "", "", ""))
	require.NoError(t, err)
	before := tenant.LifecycleRecord
	require.NoError(t, tenant.AssignDatabaseName("acme_corp_tenant_1"))
	require.NoError(t, tenant.SetDatabaseStatus(domain.DatabaseCreated))
	require.NoError(t, tenant.SetMigrationStatus(domain.MigrationCreated))
	require.NoError(t, serverStore.UpdateLifecycle(ctx, before, tenant))

	exec := newMockExecutor()
	exec.on(domain.StageFixtures, func(ctx context.Context, _ string) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	provisioners := []*app.Provisioner{
		newSQLiteProvisioner(serverStore, exec),
		newSQLiteProvisioner(cliStore, exec),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(provisioners))
	for i, prov := range provisioners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = prov.LoadFixtures(ctx, tenant.ID)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "provisioner %d", i)
	}
	assert.Equal(t, 1, exec.callCount(domain.StageFixtures), "fixtures must load exactly once")

	got, err := cliStore.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FixturesCreated, got.FixturesStatus())

	// Both leases were released.
	ok, err := cliStore.AcquireLease(ctx, tenant.ID, "someone-else", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadFixtures_WaitsForLeaseUntilContextDone(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "tenantdb.db"))
	ctx := context.Background()

	tenant, err := store.Create(ctx, domain.NewTenant("Acme Corp", "", "", ""))
	require.NoError(t, err)

	ok, err := store.AcquireLease(ctx, tenant.ID, "other-process", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	exec := newMockExecutor()
	prov := newSQLiteProvisioner(store, exec)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = prov.ProvisionDatabase(waitCtx, tenant.ID)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Zero(t, exec.callCount(domain.StageDatabase))
}

func TestProvisionDatabase_ConcurrentLifecycleChangeConflicts(t *testing.T) {
	f := newFixture(t, time.Second)
	f.store.put(domain.Tenant{LifecycleRecord: domain.NewLifecycleRecord(7, "Acme Corp")})

	// Another writer moves the tenant while the executor runs.
	f.exec.on(domain.StageDatabase, func(context.Context, string) error {
		stored, err := f.store.GetByID(context.Background(), 7)
		if err != nil {
			return err
		}
		if err := stored.SetDatabaseStatus(domain.DatabaseCreated); err != nil {
			return err
		}
		f.store.put(stored)
		return nil
	})

	_, err := f.prov.ProvisionDatabase(context.Background(), 7)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.TenantID(7), conflict.TenantID)
	assert.Zero(t, f.pub.count(domain.EventDatabaseCreated))
}
