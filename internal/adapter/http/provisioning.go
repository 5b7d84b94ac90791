package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tenantdb/internal/app"
	"github.com/neomorfeo/tenantdb/internal/domain"
)

// ProvisionResponse is the tenant after a provisioning step. RegistryError
// is set when the step succeeded but the connection registry could not be
// rewritten.
type ProvisionResponse struct {
	Tenant        TenantResponse `json:"tenant"`
	RegistryError string         `json:"registry_error,omitempty" doc:"Registry rewrite failure; the step itself succeeded"`
}

type DeriveIdentityInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Tenant ID"`
}

type ProvisionInput struct {
	ID    int64  `path:"id" minimum:"1" doc:"Tenant ID"`
	Stage string `path:"stage" enum:"database,migration,fixtures" doc:"Provisioning stage"`
}

type ProvisionOutput struct {
	Body ProvisionResponse
}

// RegisterProvisioning adds the provisioning routes to the Huma API.
func RegisterProvisioning(api huma.API, prov *app.Provisioner) {
	huma.Register(api, huma.Operation{
		OperationID: "derive-identity",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/identity",
		Summary:     "Derive the tenant database name",
		Tags:        []string{"Provisioning"},
	}, func(ctx context.Context, input *DeriveIdentityInput) (*ProvisionOutput, error) {
		tenant, err := prov.DeriveIdentity(ctx, domain.TenantID(input.ID))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProvisionOutput{Body: ProvisionResponse{Tenant: toTenantResponse(tenant)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "provision-stage",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/provisioning/{stage}",
		Summary:     "Run one provisioning stage",
		Description: "Runs exactly one stage. A stage that is already created is a no-op.",
		Tags:        []string{"Provisioning"},
	}, func(ctx context.Context, input *ProvisionInput) (*ProvisionOutput, error) {
		tenant, err := prov.Provision(ctx, domain.TenantID(input.ID), domain.Stage(input.Stage))
		var regErr *domain.RegistryWriteError
		if errors.As(err, &regErr) {
			return &ProvisionOutput{Body: ProvisionResponse{
				Tenant:        toTenantResponse(tenant),
				RegistryError: regErr.Error(),
			}}, nil
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProvisionOutput{Body: ProvisionResponse{Tenant: toTenantResponse(tenant)}}, nil
	})
}
