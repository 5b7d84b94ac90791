package app_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/neomorfeo/tenantdb/internal/app"
	"github.com/neomorfeo/tenantdb/internal/domain"
)

// --- Mocks ---

type mockStore struct {
	mu      sync.Mutex
	tenants map[domain.TenantID]domain.Tenant
	nextID  domain.TenantID
}

func newMockStore() *mockStore {
	return &mockStore{tenants: make(map[domain.TenantID]domain.Tenant)}
}

func (m *mockStore) Create(_ context.Context, t domain.Tenant) (domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.tenants[t.ID] = t
	return t, nil
}

func (m *mockStore) GetByID(_ context.Context, id domain.TenantID) (domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, nil
}

func (m *mockStore) List(_ context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		if filter.DatabaseStatus != nil && t.DatabaseStatus() != *filter.DatabaseStatus {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b domain.Tenant) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *mockStore) UpdateContact(ctx context.Context, t domain.Tenant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tenants[t.ID]
	if !ok {
		return domain.ErrTenantNotFound
	}
	stored.Name, stored.Email, stored.CompanyName, stored.Subdomain = t.Name, t.Email, t.CompanyName, t.Subdomain
	m.tenants[t.ID] = stored
	return nil
}

func (m *mockStore) UpdateLifecycle(ctx context.Context, expected domain.LifecycleRecord, t domain.Tenant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tenants[t.ID]
	if !ok {
		return domain.ErrTenantNotFound
	}
	if !sameLifecycle(stored.LifecycleRecord, expected) {
		return &domain.ConflictError{TenantID: t.ID}
	}
	name := stored.Name
	stored.LifecycleRecord = t.LifecycleRecord
	stored.Name = name
	m.tenants[t.ID] = stored
	return nil
}

func sameLifecycle(a, b domain.LifecycleRecord) bool {
	return a.DatabaseName() == b.DatabaseName() &&
		a.DatabaseStatus() == b.DatabaseStatus() &&
		a.MigrationStatus() == b.MigrationStatus() &&
		a.FixturesStatus() == b.FixturesStatus()
}

// put stores a tenant under a fixed id.
func (m *mockStore) put(t domain.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
	if t.ID > m.nextID {
		m.nextID = t.ID
	}
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	event  domain.Event
	tenant domain.Tenant
}

func (m *mockPublisher) Publish(_ context.Context, e domain.Event, t domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{event: e, tenant: t})
	return m.err
}

func (m *mockPublisher) count(e domain.Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, pe := range m.events {
		if pe.event == e {
			n++
		}
	}
	return n
}

// --- Tests ---

func TestCreate_Success(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	svc := app.NewTenantService(store, pub, nil)

	tenant, err := svc.Create(context.Background(), app.CreateTenantInput{
		Name:        " Acme Corp ",
		Email:       "ops@acme.test",
		CompanyName: "Acme Corporation",
		Subdomain:   "acme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tenant.ID != 1 {
		t.Errorf("ID = %d, want 1", tenant.ID)
	}
	if tenant.Name != "Acme Corp" {
		t.Errorf("Name = %q, want %q", tenant.Name, "Acme Corp")
	}
	if tenant.DatabaseName() != "" {
		t.Errorf("DatabaseName = %q, want empty", tenant.DatabaseName())
	}
	if tenant.DatabaseStatus() != domain.DatabaseNotCreated {
		t.Errorf("DatabaseStatus = %q, want %q", tenant.DatabaseStatus(), domain.DatabaseNotCreated)
	}

	stored, err := store.GetByID(context.Background(), tenant.ID)
	if err != nil {
		t.Fatalf("tenant not found in store: %v", err)
	}
	if stored.Subdomain != "acme" {
		t.Errorf("stored Subdomain = %q, want %q", stored.Subdomain, "acme")
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	if pub.events[0].event != domain.EventTenantOnboarded {
		t.Errorf("event = %q, want %q", pub.events[0].event, domain.EventTenantOnboarded)
	}
}

func TestCreate_PublishFailureIsNotFatal(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{err: errors.New("queue unavailable")}
	svc := app.NewTenantService(store, pub, nil)

	tenant, err := svc.Create(context.Background(), app.CreateTenantInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.GetByID(context.Background(), tenant.ID); err != nil {
		t.Fatalf("tenant should be persisted: %v", err)
	}
}

func TestCreate_AssignsSequentialIDs(t *testing.T) {
	svc := app.NewTenantService(newMockStore(), &mockPublisher{}, nil)

	first, _ := svc.Create(context.Background(), app.CreateTenantInput{Name: "Acme"})
	second, _ := svc.Create(context.Background(), app.CreateTenantInput{Name: "Acme"})

	if first.ID == second.ID {
		t.Fatalf("ids collide: %d", first.ID)
	}
}

func TestRename_KeepsDatabaseName(t *testing.T) {
	store := newMockStore()
	svc := app.NewTenantService(store, &mockPublisher{}, nil)

	tenant, _ := svc.Create(context.Background(), app.CreateTenantInput{Name: "Acme Corp"})
	if err := tenant.AssignDatabaseName("acme_corp_tenant_1"); err != nil {
		t.Fatal(err)
	}
	store.put(tenant)

	renamed, err := svc.Rename(context.Background(), tenant.ID, "Acme Holdings")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if renamed.Name != "Acme Holdings" {
		t.Errorf("Name = %q, want %q", renamed.Name, "Acme Holdings")
	}
	if renamed.DatabaseName() != "acme_corp_tenant_1" {
		t.Errorf("DatabaseName = %q, want %q", renamed.DatabaseName(), "acme_corp_tenant_1")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	svc := app.NewTenantService(newMockStore(), &mockPublisher{}, nil)

	_, err := svc.GetByID(context.Background(), 42)
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestList_Filter(t *testing.T) {
	store := newMockStore()
	svc := app.NewTenantService(store, &mockPublisher{}, nil)

	for _, name := range []string{"Acme", "Globex", "Initech"} {
		if _, err := svc.Create(context.Background(), app.CreateTenantInput{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := svc.List(context.Background(), domain.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Name != "Acme" || all[2].Name != "Initech" {
		t.Errorf("unexpected list: %+v", all)
	}

	created := domain.DatabaseCreated
	none, err := svc.List(context.Background(), domain.ListFilter{DatabaseStatus: &created})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no provisioned tenants, got %d", len(none))
	}
}
