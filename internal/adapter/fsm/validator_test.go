package fsm_test

import (
	"context"
	"errors"
	"testing"

	adapter "github.com/neomorfeo/tenantdb/internal/adapter/fsm"
	"github.com/neomorfeo/tenantdb/internal/domain"
)

func TestValidator_AllTransitions(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, tr := range domain.Transitions {
		dst, err := v.Apply(ctx, tr.Stage, tr.Src, tr.Event)
		if err != nil {
			t.Errorf("Apply(%s, %q, %q) unexpected error: %v", tr.Stage, tr.Src, tr.Event, err)
			continue
		}
		if dst != tr.Dst {
			t.Errorf("Apply(%s, %q, %q) = %q, want %q", tr.Stage, tr.Src, tr.Event, dst, tr.Dst)
		}
	}
}

func TestValidator_AlreadyCreated(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	_, err := v.Apply(ctx, domain.StageDatabase, string(domain.DatabaseCreated), domain.EventDatabaseCreated)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Stage != domain.StageDatabase {
		t.Errorf("stage = %q, want %q", trErr.Stage, domain.StageDatabase)
	}
	if trErr.Current != string(domain.DatabaseCreated) {
		t.Errorf("current = %q, want %q", trErr.Current, domain.DatabaseCreated)
	}
}

func TestValidator_EventOfAnotherStage(t *testing.T) {
	v := adapter.New()

	// Migration events cannot move the database stage.
	_, err := v.Apply(context.Background(), domain.StageDatabase, string(domain.DatabaseNotCreated), domain.EventMigrationsApplied)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestValidator_AuditEventsDoNotTransition(t *testing.T) {
	v := adapter.New()

	_, err := v.Apply(context.Background(), domain.StageFixtures, string(domain.FixturesNotCreated), domain.EventFixturesFailed)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestValidator_UnknownStage(t *testing.T) {
	v := adapter.New()

	if _, err := v.Apply(context.Background(), "billing", "x", domain.EventDatabaseCreated); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestValidator_FullProvisioning(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	steps := []struct {
		stage domain.Stage
		from  string
		event domain.Event
		want  string
	}{
		{domain.StageDatabase, string(domain.DatabaseNotCreated), domain.EventDatabaseCreated, string(domain.DatabaseCreated)},
		{domain.StageMigration, string(domain.MigrationNotCreated), domain.EventMigrationsApplied, string(domain.MigrationCreated)},
		{domain.StageFixtures, string(domain.FixturesNotCreated), domain.EventFixturesLoaded, string(domain.FixturesCreated)},
	}

	for _, step := range steps {
		got, err := v.Apply(ctx, step.stage, step.from, step.event)
		if err != nil {
			t.Fatalf("Apply(%s, %q, %q) error: %v", step.stage, step.from, step.event, err)
		}
		if got != step.want {
			t.Errorf("Apply(%s, %q, %q) = %q, want %q", step.stage, step.from, step.event, got, step.want)
		}
	}
}
