package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"
)

// QueueEvents is the queue provisioning events are inserted into.
const QueueEvents = "tenant_events"

// Options tunes the River client. Zero values keep River's defaults.
// FetchPollInterval may not be shorter than River's 100ms fetch cooldown.
type Options struct {
	MaxWorkers        int
	FetchPollInterval time.Duration
	Logger            *zap.Logger
}

// Setup migrates River's tables in db and returns a client serving the
// events queue. The caller starts and stops the client.
func Setup(ctx context.Context, db *sql.DB, opts Options) (*Client, error) {
	driver := riversqlite.New(db)
	if err := migrateRiver(ctx, driver); err != nil {
		return nil, err
	}

	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 2
	}

	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, NewEventWorker(opts.Logger)); err != nil {
		return nil, fmt.Errorf("registering event worker: %w", err)
	}

	client, err := river.NewClient(driver, &river.Config{
		FetchPollInterval: opts.FetchPollInterval,
		Queues: map[string]river.QueueConfig{
			QueueEvents: {MaxWorkers: opts.MaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}
	return client, nil
}

// migrateRiver brings river_job, river_leader and friends up to date. They
// live beside the tenant table but outside goose's migration set.
func migrateRiver(ctx context.Context, driver *riversqlite.Driver) error {
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("running river migrations: %w", err)
	}
	return nil
}
