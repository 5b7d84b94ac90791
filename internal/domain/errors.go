package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound = errors.New("tenant not found")
)

// IdentityError is returned when a database name cannot be derived or assigned.
type IdentityError struct {
	TenantID TenantID
	Reason   string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("tenant %d: cannot derive database identity: %s", e.TenantID, e.Reason)
}

// OrderingViolationError is returned when a stage is advanced before the
// stage it depends on.
type OrderingViolationError struct {
	TenantID TenantID
	Stage    Stage
	Requires Stage
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("tenant %d: stage %q requires stage %q to be created first", e.TenantID, e.Stage, e.Requires)
}

// MissingIdentityError is returned when the database is marked created
// for a tenant that has no database name.
type MissingIdentityError struct {
	TenantID TenantID
}

func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("tenant %d: database name has not been derived", e.TenantID)
}

// TransitionError is returned when a status change is not allowed.
type TransitionError struct {
	Stage   Stage
	Event   Event
	Current string
	Target  string
}

func (e *TransitionError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("%s: event %q is not valid from state %q", e.Stage, e.Event, e.Current)
	}
	return fmt.Sprintf("%s: cannot move from state %q to %q", e.Stage, e.Current, e.Target)
}

// ProvisioningError wraps a failure of an external executor.
type ProvisioningError struct {
	Stage    Stage
	TenantID TenantID
	Cause    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("tenant %d: %s provisioning failed: %v", e.TenantID, e.Stage, e.Cause)
}

func (e *ProvisioningError) Unwrap() error { return e.Cause }

// TimeoutError is the cause of a ProvisioningError when the executor call
// exceeded its deadline.
type TimeoutError struct {
	Stage Stage
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s step timed out after %s", e.Stage, e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RegistryWriteError is returned when the connection registry artifact
// could not be produced or persisted.
type RegistryWriteError struct {
	Path  string
	Cause error
}

func (e *RegistryWriteError) Error() string {
	return fmt.Sprintf("writing connection registry %s: %v", e.Path, e.Cause)
}

func (e *RegistryWriteError) Unwrap() error { return e.Cause }

// ConflictError is returned when a tenant's lifecycle changed between the
// read and the write of a provisioning step. The write is not applied.
type ConflictError struct {
	TenantID TenantID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tenant %d: lifecycle changed concurrently", e.TenantID)
}
