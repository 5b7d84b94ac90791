package domain

import "fmt"

// TenantID is the stable identifier assigned to a tenant when it is first
// persisted. Zero means the tenant has not been stored yet.
type TenantID int64

// LifecycleRecord holds the provisioning state of a tenant: its identity
// and the status of each provisioning stage. Status fields are only
// changed through setters that enforce the stage ordering.
type LifecycleRecord struct {
	ID   TenantID
	Name string

	databaseName    string
	databaseStatus  DatabaseStatus
	migrationStatus MigrationStatus
	fixturesStatus  FixturesStatus
}

// NewLifecycleRecord returns a record with every stage NOT_CREATED and no
// database name.
func NewLifecycleRecord(id TenantID, name string) LifecycleRecord {
	return LifecycleRecord{
		ID:              id,
		Name:            name,
		databaseStatus:  DatabaseNotCreated,
		migrationStatus: MigrationNotCreated,
		fixturesStatus:  FixturesNotCreated,
	}
}

// RestoreLifecycleRecord rebuilds a record from persisted values and
// rejects combinations that break the ordering invariants.
func RestoreLifecycleRecord(id TenantID, name, databaseName string, db DatabaseStatus, mig MigrationStatus, fix FixturesStatus) (LifecycleRecord, error) {
	if !db.Valid() {
		return LifecycleRecord{}, fmt.Errorf("tenant %d: unknown database status %q", id, db)
	}
	if !mig.Valid() {
		return LifecycleRecord{}, fmt.Errorf("tenant %d: unknown migration status %q", id, mig)
	}
	if !fix.Valid() {
		return LifecycleRecord{}, fmt.Errorf("tenant %d: unknown fixtures status %q", id, fix)
	}
	if db == DatabaseCreated && databaseName == "" {
		return LifecycleRecord{}, &MissingIdentityError{TenantID: id}
	}
	if mig == MigrationCreated && db != DatabaseCreated {
		return LifecycleRecord{}, &OrderingViolationError{TenantID: id, Stage: StageMigration, Requires: StageDatabase}
	}
	if fix == FixturesCreated && mig != MigrationCreated {
		return LifecycleRecord{}, &OrderingViolationError{TenantID: id, Stage: StageFixtures, Requires: StageMigration}
	}

	return LifecycleRecord{
		ID:              id,
		Name:            name,
		databaseName:    databaseName,
		databaseStatus:  db,
		migrationStatus: mig,
		fixturesStatus:  fix,
	}, nil
}

// DatabaseName returns the derived database name, or "" if none was assigned.
func (r LifecycleRecord) DatabaseName() string { return r.databaseName }

// DatabaseStatus reports whether the tenant database exists.
func (r LifecycleRecord) DatabaseStatus() DatabaseStatus { return r.databaseStatus }

// MigrationStatus reports whether the schema migrations were applied.
func (r LifecycleRecord) MigrationStatus() MigrationStatus { return r.migrationStatus }

// FixturesStatus reports whether the initial data was loaded.
func (r LifecycleRecord) FixturesStatus() FixturesStatus { return r.fixturesStatus }

// StageCreated reports whether the given stage has completed.
func (r LifecycleRecord) StageCreated(stage Stage) bool {
	switch stage {
	case StageDatabase:
		return r.databaseStatus == DatabaseCreated
	case StageMigration:
		return r.migrationStatus == MigrationCreated
	case StageFixtures:
		return r.fixturesStatus == FixturesCreated
	}
	return false
}

// StageStatus returns the stored value of the given stage's status.
func (r LifecycleRecord) StageStatus(stage Stage) string {
	switch stage {
	case StageDatabase:
		return string(r.databaseStatus)
	case StageMigration:
		return string(r.migrationStatus)
	case StageFixtures:
		return string(r.fixturesStatus)
	}
	return ""
}

// FullyProvisioned reports whether every stage is CREATED.
func (r LifecycleRecord) FullyProvisioned() bool {
	return r.databaseStatus == DatabaseCreated &&
		r.migrationStatus == MigrationCreated &&
		r.fixturesStatus == FixturesCreated
}

// AssignDatabaseName sets the database name once. Assigning the same name
// again is a no-op; a different name is rejected since it would orphan the
// existing database.
func (r *LifecycleRecord) AssignDatabaseName(name string) error {
	if name == "" {
		return &IdentityError{TenantID: r.ID, Reason: "database name is empty"}
	}
	if r.databaseName != "" && r.databaseName != name {
		return &IdentityError{
			TenantID: r.ID,
			Reason:   fmt.Sprintf("database name already assigned as %q", r.databaseName),
		}
	}
	r.databaseName = name
	return nil
}

// SetDatabaseStatus changes the database status. CREATED requires a database name.
func (r *LifecycleRecord) SetDatabaseStatus(s DatabaseStatus) error {
	switch s {
	case DatabaseNotCreated:
		if r.databaseStatus == DatabaseCreated {
			return r.backward(StageDatabase, string(s))
		}
	case DatabaseCreated:
		if r.databaseName == "" {
			return &MissingIdentityError{TenantID: r.ID}
		}
	default:
		return fmt.Errorf("tenant %d: unknown database status %q", r.ID, s)
	}
	r.databaseStatus = s
	return nil
}

// SetMigrationStatus changes the migration status. CREATED requires the
// database to be CREATED.
func (r *LifecycleRecord) SetMigrationStatus(s MigrationStatus) error {
	switch s {
	case MigrationNotCreated:
		if r.migrationStatus == MigrationCreated {
			return r.backward(StageMigration, string(s))
		}
	case MigrationCreated:
		if r.databaseStatus != DatabaseCreated {
			return &OrderingViolationError{TenantID: r.ID, Stage: StageMigration, Requires: StageDatabase}
		}
	default:
		return fmt.Errorf("tenant %d: unknown migration status %q", r.ID, s)
	}
	r.migrationStatus = s
	return nil
}

// SetFixturesStatus changes the fixtures status. CREATED requires the
// migrations to be CREATED.
func (r *LifecycleRecord) SetFixturesStatus(s FixturesStatus) error {
	switch s {
	case FixturesNotCreated:
		if r.fixturesStatus == FixturesCreated {
			return r.backward(StageFixtures, string(s))
		}
	case FixturesCreated:
		if r.migrationStatus != MigrationCreated {
			return &OrderingViolationError{TenantID: r.ID, Stage: StageFixtures, Requires: StageMigration}
		}
	default:
		return fmt.Errorf("tenant %d: unknown fixtures status %q", r.ID, s)
	}
	r.fixturesStatus = s
	return nil
}

// CheckReady returns an OrderingViolationError if the stage that the given
// stage depends on has not completed yet.
func (r LifecycleRecord) CheckReady(stage Stage) error {
	switch stage {
	case StageMigration:
		if r.databaseStatus != DatabaseCreated {
			return &OrderingViolationError{TenantID: r.ID, Stage: StageMigration, Requires: StageDatabase}
		}
	case StageFixtures:
		if r.migrationStatus != MigrationCreated {
			return &OrderingViolationError{TenantID: r.ID, Stage: StageFixtures, Requires: StageMigration}
		}
	}
	return nil
}

// SetStageStatus applies a status value produced by the transition
// validator to the matching stage.
func (r *LifecycleRecord) SetStageStatus(stage Stage, value string) error {
	switch stage {
	case StageDatabase:
		return r.SetDatabaseStatus(DatabaseStatus(value))
	case StageMigration:
		return r.SetMigrationStatus(MigrationStatus(value))
	case StageFixtures:
		return r.SetFixturesStatus(FixturesStatus(value))
	}
	return fmt.Errorf("unknown stage %q", stage)
}

func (r *LifecycleRecord) backward(stage Stage, target string) error {
	return &TransitionError{Stage: stage, Current: r.StageStatus(stage), Target: target}
}
