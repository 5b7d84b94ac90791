package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// CreateTenantInput carries the data captured when a tenant is onboarded.
type CreateTenantInput struct {
	Name        string
	Email       string
	CompanyName string
	Subdomain   string
}

// TenantService handles tenant onboarding and lookups.
type TenantService struct {
	store     domain.TenantStore
	publisher domain.EventPublisher
	logger    *zap.Logger
}

// NewTenantService creates a service with the given adapters.
func NewTenantService(store domain.TenantStore, publisher domain.EventPublisher, logger *zap.Logger) *TenantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantService{
		store:     store,
		publisher: publisher,
		logger:    logger.Named("tenants"),
	}
}

// Create persists a new tenant with every stage NOT_CREATED and publishes
// an onboarding event. The store assigns the id.
func (s *TenantService) Create(ctx context.Context, in CreateTenantInput) (domain.Tenant, error) {
	tenant := domain.NewTenant(strings.TrimSpace(in.Name), in.Email, in.CompanyName, in.Subdomain)

	created, err := s.store.Create(ctx, tenant)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("creating tenant: %w", err)
	}

	if err := s.publisher.Publish(ctx, domain.EventTenantOnboarded, created); err != nil {
		s.logger.Warn("publishing onboarding event failed",
			zap.Int64("tenant_id", int64(created.ID)),
			zap.Error(err),
		)
	}

	s.logger.Info("tenant onboarded", zap.Int64("tenant_id", int64(created.ID)))
	return created, nil
}

// GetByID returns a tenant by its id.
func (s *TenantService) GetByID(ctx context.Context, id domain.TenantID) (domain.Tenant, error) {
	return s.store.GetByID(ctx, id)
}

// List returns tenants matching the given filter, ordered by id.
func (s *TenantService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return s.store.List(ctx, filter)
}

// Rename changes the tenant's display name. Only contact fields are
// written, so a provisioning step running at the same time keeps its
// status and an already derived database name is not affected.
func (s *TenantService) Rename(ctx context.Context, id domain.TenantID, name string) (domain.Tenant, error) {
	tenant, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}

	tenant.Name = strings.TrimSpace(name)
	tenant.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateContact(ctx, tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("updating tenant: %w", err)
	}
	return s.store.GetByID(ctx, id)
}
