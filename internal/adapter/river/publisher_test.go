package river_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	riveradapter "github.com/neomorfeo/tenantdb/internal/adapter/river"
	"github.com/neomorfeo/tenantdb/internal/domain"
)

// startClient runs a River client on a fresh SQLite file and returns it
// with a channel of completed jobs.
func startClient(t *testing.T) (*riveradapter.Client, <-chan *goriver.Event) {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	require.NoError(t, err)

	ctx := context.Background()
	client, err := riveradapter.Setup(ctx, db, riveradapter.Options{
		FetchPollInterval: 100 * time.Millisecond,
		Logger:            zap.NewNop(),
	})
	require.NoError(t, err)

	completed, cancel := client.Subscribe(goriver.EventKindJobCompleted)
	t.Cleanup(cancel)

	require.NoError(t, client.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, client.Stop(stopCtx))
	})
	return client, completed
}

func awaitJob(t *testing.T, completed <-chan *goriver.Event) *goriver.Event {
	t.Helper()
	select {
	case event := <-completed:
		return event
	case <-time.After(10 * time.Second):
		t.Fatal("no job completed within 10s")
		return nil
	}
}

func TestPublisher_RoutesToEventsQueue(t *testing.T) {
	client, completed := startClient(t)

	tenant := domain.NewTenant("Acme", "ops@acme.test", "Acme Inc", "acme")
	tenant.ID = 1
	require.NoError(t, riveradapter.NewPublisher(client).Publish(context.Background(), domain.EventTenantOnboarded, tenant))

	event := awaitJob(t, completed)
	assert.Equal(t, "tenant.event", event.Job.Kind)
	assert.Equal(t, riveradapter.QueueEvents, event.Job.Queue)
	assert.Equal(t, 5, event.Job.MaxAttempts)
}

func TestPublisher_SnapshotsLifecycle(t *testing.T) {
	client, completed := startClient(t)

	tenant := domain.NewTenant("Test Corp", "", "", "")
	tenant.ID = 42
	require.NoError(t, tenant.AssignDatabaseName("test_corp_tenant_42"))
	require.NoError(t, tenant.SetDatabaseStatus(domain.DatabaseCreated))
	require.NoError(t, riveradapter.NewPublisher(client).Publish(context.Background(), domain.EventDatabaseCreated, tenant))

	event := awaitJob(t, completed)

	var args riveradapter.EventJobArgs
	require.NoError(t, json.Unmarshal(event.Job.EncodedArgs, &args))
	assert.Equal(t, riveradapter.EventJobArgs{
		Event:           "database_created",
		TenantID:        42,
		Name:            "Test Corp",
		DatabaseName:    "test_corp_tenant_42",
		DatabaseStatus:  "DATABASE_CREATED",
		MigrationStatus: "MIGRATION_NOT_CREATED",
		FixturesStatus:  "FIXTURES_NOT_CREATED",
	}, args)
}

func TestEventJobArgs_InsertOpts(t *testing.T) {
	opts := riveradapter.EventJobArgs{}.InsertOpts()
	assert.Equal(t, riveradapter.QueueEvents, opts.Queue)
	assert.Equal(t, 5, opts.MaxAttempts)
}
