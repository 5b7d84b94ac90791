package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tenantdb/internal/domain"
	"github.com/neomorfeo/tenantdb/internal/registry"
)

// RegistryWriter regenerates and renders the connection registry.
type RegistryWriter interface {
	Regenerate(ctx context.Context) error
	Render(ctx context.Context) ([]byte, error)
}

// ConnectionResolver looks up the connection of a tenant database.
type ConnectionResolver interface {
	Resolve(id domain.TenantID) (registry.Entry, error)
}

// ConnectionResponse is the API representation of a registry entry.
type ConnectionResponse struct {
	TenantID    int64             `json:"tenant_id"`
	Database    string            `json:"database"`
	Driver      string            `json:"driver"`
	Host        string            `json:"host,omitempty"`
	Port        int               `json:"port,omitempty"`
	User        string            `json:"user,omitempty"`
	PasswordRef string            `json:"password_ref,omitempty" doc:"Credential reference, never the secret"`
	Charset     string            `json:"charset,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

func toConnectionResponse(e registry.Entry) ConnectionResponse {
	return ConnectionResponse{
		TenantID:    int64(e.TenantID),
		Database:    e.Database,
		Driver:      e.Driver,
		Host:        e.Host,
		Port:        e.Port,
		User:        e.User,
		PasswordRef: e.PasswordRef,
		Charset:     e.Charset,
		Options:     e.Options,
	}
}

type RegenerateRegistryOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type RenderRegistryOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type GetConnectionInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Tenant ID"`
}

type GetConnectionOutput struct {
	Body ConnectionResponse
}

// RegisterRegistry adds the connection registry routes to the Huma API.
// The resolver may be nil, in which case connection lookups are not exposed.
func RegisterRegistry(api huma.API, writer RegistryWriter, resolver ConnectionResolver) {
	huma.Register(api, huma.Operation{
		OperationID: "regenerate-registry",
		Method:      http.MethodPost,
		Path:        "/api/v1/registry",
		Summary:     "Rewrite the connection registry",
		Tags:        []string{"Registry"},
	}, func(ctx context.Context, _ *struct{}) (*RegenerateRegistryOutput, error) {
		if err := writer.Regenerate(ctx); err != nil {
			return nil, toHumaError(err)
		}
		out := &RegenerateRegistryOutput{}
		out.Body.Status = "written"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "render-registry",
		Method:      http.MethodGet,
		Path:        "/api/v1/registry",
		Summary:     "Render the connection registry without writing it",
		Tags:        []string{"Registry"},
	}, func(ctx context.Context, _ *struct{}) (*RenderRegistryOutput, error) {
		data, err := writer.Render(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RenderRegistryOutput{ContentType: "application/yaml", Body: data}, nil
	})

	if resolver == nil {
		return
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-connection",
		Method:      http.MethodGet,
		Path:        "/api/v1/connections/{id}",
		Summary:     "Resolve a tenant database connection",
		Tags:        []string{"Registry"},
	}, func(_ context.Context, input *GetConnectionInput) (*GetConnectionOutput, error) {
		entry, err := resolver.Resolve(domain.TenantID(input.ID))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetConnectionOutput{Body: toConnectionResponse(entry)}, nil
	})
}
