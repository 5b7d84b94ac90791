package domain

import "fmt"

// Stage names one of the three provisioning steps of a tenant database.
type Stage string

const (
	StageDatabase  Stage = "database"
	StageMigration Stage = "migration"
	StageFixtures  Stage = "fixtures"
)

// Stages lists the provisioning stages in execution order.
var Stages = []Stage{StageDatabase, StageMigration, StageFixtures}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageDatabase, StageMigration, StageFixtures:
		return true
	}
	return false
}

// DatabaseStatus tracks whether the tenant database exists.
type DatabaseStatus string

const (
	DatabaseNotCreated DatabaseStatus = "DATABASE_NOT_CREATED"
	DatabaseCreated    DatabaseStatus = "DATABASE_CREATED"
)

// Valid reports whether s is a known database status.
func (s DatabaseStatus) Valid() bool {
	switch s {
	case DatabaseNotCreated, DatabaseCreated:
		return true
	}
	return false
}

// ParseDatabaseStatus converts a stored value into a DatabaseStatus.
func ParseDatabaseStatus(v string) (DatabaseStatus, error) {
	s := DatabaseStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown database status %q", v)
	}
	return s, nil
}

// MigrationStatus tracks whether the tenant schema migrations were applied.
type MigrationStatus string

const (
	MigrationNotCreated MigrationStatus = "MIGRATION_NOT_CREATED"
	MigrationCreated    MigrationStatus = "MIGRATION_CREATED"
)

// Valid reports whether s is a known migration status.
func (s MigrationStatus) Valid() bool {
	switch s {
	case MigrationNotCreated, MigrationCreated:
		return true
	}
	return false
}

// ParseMigrationStatus converts a stored value into a MigrationStatus.
func ParseMigrationStatus(v string) (MigrationStatus, error) {
	s := MigrationStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown migration status %q", v)
	}
	return s, nil
}

// FixturesStatus tracks whether the tenant fixtures were loaded.
type FixturesStatus string

const (
	FixturesNotCreated FixturesStatus = "FIXTURES_NOT_CREATED"
	FixturesCreated    FixturesStatus = "FIXTURES_CREATED"
)

// Valid reports whether s is a known fixtures status.
func (s FixturesStatus) Valid() bool {
	switch s {
	case FixturesNotCreated, FixturesCreated:
		return true
	}
	return false
}

// ParseFixturesStatus converts a stored value into a FixturesStatus.
func ParseFixturesStatus(v string) (FixturesStatus, error) {
	s := FixturesStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown fixtures status %q", v)
	}
	return s, nil
}

// Event represents an action that triggers a state transition or is
// recorded for audit purposes.
type Event string

const (
	EventDatabaseCreated   Event = "database_created"
	EventMigrationsApplied Event = "migrations_applied"
	EventFixturesLoaded    Event = "fixtures_loaded"

	// Audit-only events. They never move a status.
	EventTenantOnboarded Event = "tenant_onboarded"
	EventDatabaseFailed  Event = "database_failed"
	EventMigrationFailed Event = "migration_failed"
	EventFixturesFailed  Event = "fixtures_failed"
)

// CompletionEvent returns the event that advances the given stage.
func CompletionEvent(stage Stage) Event {
	switch stage {
	case StageDatabase:
		return EventDatabaseCreated
	case StageMigration:
		return EventMigrationsApplied
	case StageFixtures:
		return EventFixturesLoaded
	}
	return ""
}

// FailureEvent returns the audit event recorded when a stage fails.
func FailureEvent(stage Stage) Event {
	switch stage {
	case StageDatabase:
		return EventDatabaseFailed
	case StageMigration:
		return EventMigrationFailed
	case StageFixtures:
		return EventFixturesFailed
	}
	return ""
}

// StageOf returns the stage an event reports on and whether the event
// marks a failure. Events that belong to no stage return ok == false.
func StageOf(e Event) (stage Stage, failed, ok bool) {
	for _, s := range Stages {
		switch e {
		case CompletionEvent(s):
			return s, false, true
		case FailureEvent(s):
			return s, true, true
		}
	}
	return "", false, false
}

// Transition defines a valid state change: an event moves a stage from Src to Dst.
type Transition struct {
	Stage Stage
	Event Event
	Src   string
	Dst   string
}

// Transitions defines all valid status changes of the provisioning stages.
// There is exactly one forward move per stage and no way back.
var Transitions = []Transition{
	{Stage: StageDatabase, Event: EventDatabaseCreated, Src: string(DatabaseNotCreated), Dst: string(DatabaseCreated)},
	{Stage: StageMigration, Event: EventMigrationsApplied, Src: string(MigrationNotCreated), Dst: string(MigrationCreated)},
	{Stage: StageFixtures, Event: EventFixturesLoaded, Src: string(FixturesNotCreated), Dst: string(FixturesCreated)},
}

// TransitionsFor returns the transitions that belong to a single stage.
func TransitionsFor(stage Stage) []Transition {
	var out []Transition
	for _, t := range Transitions {
		if t.Stage == stage {
			out = append(out, t)
		}
	}
	return out
}
