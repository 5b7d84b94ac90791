package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tenantdb/internal/app"
	"github.com/neomorfeo/tenantdb/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID              int64  `json:"id" doc:"Tenant identifier"`
	Name            string `json:"name" doc:"Display name"`
	Email           string `json:"email,omitempty" doc:"Contact email"`
	CompanyName     string `json:"company_name,omitempty" doc:"Company name"`
	Subdomain       string `json:"subdomain,omitempty" doc:"Subdomain"`
	DatabaseName    string `json:"database_name,omitempty" doc:"Dedicated database name, once derived"`
	DatabaseStatus  string `json:"database_status" doc:"Database creation status"`
	MigrationStatus string `json:"migration_status" doc:"Schema migration status"`
	FixturesStatus  string `json:"fixtures_status" doc:"Fixture seeding status"`
	CreatedAt       string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt       string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:              int64(t.ID),
		Name:            t.Name,
		Email:           t.Email,
		CompanyName:     t.CompanyName,
		Subdomain:       t.Subdomain,
		DatabaseName:    t.DatabaseName(),
		DatabaseStatus:  string(t.DatabaseStatus()),
		MigrationStatus: string(t.MigrationStatus()),
		FixturesStatus:  string(t.FixturesStatus()),
		CreatedAt:       t.CreatedAt.Format(timeFormat),
		UpdatedAt:       t.UpdatedAt.Format(timeFormat),
	}
}

// --- Create Tenant ---

type CreateTenantInput struct {
	Body struct {
		Name        string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Email       string `json:"email,omitempty" maxLength:"255" doc:"Contact email"`
		CompanyName string `json:"company_name,omitempty" maxLength:"255" doc:"Company name"`
		Subdomain   string `json:"subdomain,omitempty" maxLength:"100" doc:"Subdomain"`
	}
}

type CreateTenantOutput struct {
	Body TenantResponse
}

// --- Get Tenant ---

type GetTenantInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Tenant ID"`
}

type GetTenantOutput struct {
	Body TenantResponse
}

// --- List Tenants ---

type ListTenantsInput struct {
	DatabaseStatus string `query:"database_status" required:"false" doc:"Filter by database status"`
	Limit          int    `query:"limit" required:"false" default:"50" minimum:"0" doc:"Max results"`
	Offset         int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Rename ---

type RenameTenantInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Tenant ID"`
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"255" doc:"New display name"`
	}
}

type RenameTenantOutput struct {
	Body TenantResponse
}

// Register adds the tenant routes to the Huma API.
func Register(api huma.API, svc *app.TenantService) {
	huma.Register(api, huma.Operation{
		OperationID: "create-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants",
		Summary:     "Onboard a new tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *CreateTenantInput) (*CreateTenantOutput, error) {
		tenant, err := svc.Create(ctx, app.CreateTenantInput{
			Name:        input.Body.Name,
			Email:       input.Body.Email,
			CompanyName: input.Body.CompanyName,
			Subdomain:   input.Body.Subdomain,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a tenant by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetTenantOutput, error) {
		tenant, err := svc.GetByID(ctx, domain.TenantID(input.ID))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.DatabaseStatus != "" {
			s, err := domain.ParseDatabaseStatus(input.DatabaseStatus)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity(err.Error())
			}
			filter.DatabaseStatus = &s
		}

		tenants, err := svc.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t)
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-tenant",
		Method:      http.MethodPatch,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Rename a tenant",
		Description: "Changes the display name. A database name that was already derived is kept.",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *RenameTenantInput) (*RenameTenantOutput, error) {
		tenant, err := svc.Rename(ctx, domain.TenantID(input.ID), input.Body.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RenameTenantOutput{Body: toTenantResponse(tenant)}, nil
	})
}
