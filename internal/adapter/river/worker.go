package river

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"
)

// EventWorker records provisioning events from the River queue in the
// audit log. It never triggers further provisioning steps.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]

	logger *zap.Logger
}

// NewEventWorker creates a worker that logs to logger.
func NewEventWorker(logger *zap.Logger) *EventWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventWorker{logger: logger.Named("events")}
}

// Timeout bounds a single log write; River's default minute is far too long.
func (w *EventWorker) Timeout(*river.Job[EventJobArgs]) time.Duration {
	return 10 * time.Second
}

// Work processes a single event job.
func (w *EventWorker) Work(_ context.Context, job *river.Job[EventJobArgs]) error {
	w.logger.Info("tenant event",
		zap.String("event", job.Args.Event),
		zap.Int64("tenant_id", job.Args.TenantID),
		zap.String("database", job.Args.DatabaseName),
		zap.String("database_status", job.Args.DatabaseStatus),
		zap.String("migration_status", job.Args.MigrationStatus),
		zap.String("fixtures_status", job.Args.FixturesStatus),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}
