package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries a provisioning event through River's job table as
// JSON. It snapshots the tenant's lifecycle at publish time, so the worker
// never needs to query the tenant store.
type EventJobArgs struct {
	Event           string `json:"event"`
	TenantID        int64  `json:"tenant_id"`
	Name            string `json:"name"`
	DatabaseName    string `json:"database_name,omitempty"`
	DatabaseStatus  string `json:"database_status"`
	MigrationStatus string `json:"migration_status"`
	FixturesStatus  string `json:"fixtures_status"`
}

func (EventJobArgs) Kind() string { return "tenant.event" }

// InsertOpts routes every event to the events queue. The worker only logs,
// so a handful of attempts covers transient SQLite lock errors.
func (EventJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueEvents, MaxAttempts: 5}
}

// Client is a River client over the SQLite store database.
type Client = river.Client[*sql.Tx]

// Publisher turns provisioning events into jobs on the events queue.
type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish inserts one job per event. Delivery is asynchronous: a nil error
// means the job row was written, not that the worker ran.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, tenant domain.Tenant) error {
	if _, err := p.client.Insert(ctx, argsFor(event, tenant), nil); err != nil {
		return fmt.Errorf("enqueuing %s for tenant %d: %w", event, tenant.ID, err)
	}
	return nil
}

func argsFor(event domain.Event, tenant domain.Tenant) EventJobArgs {
	return EventJobArgs{
		Event:           string(event),
		TenantID:        int64(tenant.ID),
		Name:            tenant.Name,
		DatabaseName:    tenant.DatabaseName(),
		DatabaseStatus:  string(tenant.DatabaseStatus()),
		MigrationStatus: string(tenant.MigrationStatus()),
		FixturesStatus:  string(tenant.FixturesStatus()),
	}
}
