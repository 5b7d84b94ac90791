package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

func TestLifecycle_MigrationRequiresDatabase(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")

	err := r.SetMigrationStatus(domain.MigrationCreated)
	var ov *domain.OrderingViolationError
	require.ErrorAs(t, err, &ov)
	assert.Equal(t, domain.TenantID(7), ov.TenantID)
	assert.Equal(t, domain.StageMigration, ov.Stage)
	assert.Equal(t, domain.StageDatabase, ov.Requires)
	assert.Equal(t, domain.MigrationNotCreated, r.MigrationStatus())
}

func TestLifecycle_FixturesRequireMigration(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")
	require.NoError(t, r.AssignDatabaseName("acme_corp_tenant_7"))
	require.NoError(t, r.SetDatabaseStatus(domain.DatabaseCreated))

	err := r.SetFixturesStatus(domain.FixturesCreated)
	var ov *domain.OrderingViolationError
	require.ErrorAs(t, err, &ov)
	assert.Equal(t, domain.StageFixtures, ov.Stage)
	assert.Equal(t, domain.StageMigration, ov.Requires)
	assert.Equal(t, domain.FixturesNotCreated, r.FixturesStatus())
}

func TestLifecycle_DatabaseRequiresName(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")

	err := r.SetDatabaseStatus(domain.DatabaseCreated)
	var missing *domain.MissingIdentityError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, domain.TenantID(7), missing.TenantID)
	assert.Equal(t, domain.DatabaseNotCreated, r.DatabaseStatus())
}

func TestLifecycle_FullSequence(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")
	require.NoError(t, r.AssignDatabaseName("acme_corp_tenant_7"))
	require.NoError(t, r.SetDatabaseStatus(domain.DatabaseCreated))
	require.NoError(t, r.SetMigrationStatus(domain.MigrationCreated))
	require.NoError(t, r.SetFixturesStatus(domain.FixturesCreated))

	assert.True(t, r.FullyProvisioned())
	for _, stage := range domain.Stages {
		assert.True(t, r.StageCreated(stage), "stage %s", stage)
	}
}

func TestLifecycle_SettingCurrentValueIsNoop(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")
	require.NoError(t, r.SetDatabaseStatus(domain.DatabaseNotCreated))
	require.NoError(t, r.AssignDatabaseName("acme_corp_tenant_7"))
	require.NoError(t, r.SetDatabaseStatus(domain.DatabaseCreated))
	require.NoError(t, r.SetDatabaseStatus(domain.DatabaseCreated))
	assert.Equal(t, domain.DatabaseCreated, r.DatabaseStatus())
}

func TestLifecycle_RejectsBackwardMove(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")
	require.NoError(t, r.AssignDatabaseName("acme_corp_tenant_7"))
	require.NoError(t, r.SetDatabaseStatus(domain.DatabaseCreated))

	err := r.SetDatabaseStatus(domain.DatabaseNotCreated)
	var trErr *domain.TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, domain.StageDatabase, trErr.Stage)
	assert.Equal(t, domain.DatabaseCreated, r.DatabaseStatus())
}

func TestLifecycle_RejectsUnknownStatus(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")
	assert.Error(t, r.SetDatabaseStatus("FAILED"))
	assert.Error(t, r.SetMigrationStatus("FAILED"))
	assert.Error(t, r.SetFixturesStatus("FAILED"))
}

func TestLifecycle_DatabaseNameImmutable(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")
	require.NoError(t, r.AssignDatabaseName("acme_corp_tenant_7"))
	require.NoError(t, r.AssignDatabaseName("acme_corp_tenant_7"))

	r.Name = "Acme Renamed"
	err := r.AssignDatabaseName("acme_renamed_tenant_7")
	var idErr *domain.IdentityError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, "acme_corp_tenant_7", r.DatabaseName())

	assert.Error(t, r.AssignDatabaseName(""))
}

func TestRestoreLifecycleRecord(t *testing.T) {
	r, err := domain.RestoreLifecycleRecord(7, "Acme Corp", "acme_corp_tenant_7",
		domain.DatabaseCreated, domain.MigrationCreated, domain.FixturesNotCreated)
	require.NoError(t, err)
	assert.Equal(t, "acme_corp_tenant_7", r.DatabaseName())
	assert.Equal(t, domain.MigrationCreated, r.MigrationStatus())
	assert.False(t, r.FullyProvisioned())
}

func TestRestoreLifecycleRecord_RejectsOutOfOrderStatuses(t *testing.T) {
	cases := []struct {
		name   string
		dbName string
		db     domain.DatabaseStatus
		mig    domain.MigrationStatus
		fix    domain.FixturesStatus
	}{
		{"created without name", "", domain.DatabaseCreated, domain.MigrationNotCreated, domain.FixturesNotCreated},
		{"migration before database", "x_tenant_1", domain.DatabaseNotCreated, domain.MigrationCreated, domain.FixturesNotCreated},
		{"fixtures before migration", "x_tenant_1", domain.DatabaseCreated, domain.MigrationNotCreated, domain.FixturesCreated},
		{"unknown status", "x_tenant_1", "0", domain.MigrationNotCreated, domain.FixturesNotCreated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.RestoreLifecycleRecord(1, "X", tc.dbName, tc.db, tc.mig, tc.fix)
			assert.Error(t, err)
		})
	}
}

func TestLifecycle_CheckReady(t *testing.T) {
	r := domain.NewLifecycleRecord(7, "Acme Corp")
	assert.NoError(t, r.CheckReady(domain.StageDatabase))

	var ov *domain.OrderingViolationError
	assert.ErrorAs(t, r.CheckReady(domain.StageMigration), &ov)
	assert.ErrorAs(t, r.CheckReady(domain.StageFixtures), &ov)
}
