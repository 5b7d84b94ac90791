package domain

import "time"

// Tenant is the core domain entity representing an organization whose data
// lives in its own database. Provisioning state comes from the embedded
// LifecycleRecord; the remaining fields are contact data.
type Tenant struct {
	LifecycleRecord

	Email       string
	CompanyName string
	Subdomain   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTenant creates an onboarded tenant with every stage NOT_CREATED.
// The id is assigned later by the TenantStore.
func NewTenant(name, email, companyName, subdomain string) Tenant {
	now := time.Now().UTC()
	return Tenant{
		LifecycleRecord: NewLifecycleRecord(0, name),
		Email:           email,
		CompanyName:     companyName,
		Subdomain:       subdomain,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ConnectionTemplate holds the connection parameters shared by every
// tenant database. The tenant database name is the only per-tenant value.
type ConnectionTemplate struct {
	Driver string
	Host   string
	Port   int
	User   string
	// PasswordRef points at the credential (e.g. "env:TENANT_DB_PASSWORD");
	// it is never the secret itself.
	PasswordRef string
	Charset     string
	Options     map[string]string
}
