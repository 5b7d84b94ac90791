// Package registry builds the connection registry: the generated document
// that maps every provisioned tenant database to its connection
// parameters. The registry is a pure function of the tenant set and is
// always rewritten in full.
package registry

import (
	"cmp"
	"errors"
	"maps"
	"slices"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// ErrConnectionNotFound is returned when a tenant has no registry entry.
var ErrConnectionNotFound = errors.New("no connection registered for tenant")

// Entry is the connection of one tenant database.
type Entry struct {
	TenantID    domain.TenantID
	Database    string
	Driver      string
	Host        string
	Port        int
	User        string
	PasswordRef string
	Charset     string
	Options     map[string]string
}

// Artifact is the full registry, ordered by tenant id.
type Artifact struct {
	Entries []Entry
}

// Generate builds the registry for tenants whose database has been
// created. Tenants that are not provisioned yet are left out so the
// registry only describes usable connections.
func Generate(tenants []domain.Tenant, base domain.ConnectionTemplate) Artifact {
	entries := make([]Entry, 0, len(tenants))
	for _, t := range tenants {
		if t.DatabaseStatus() != domain.DatabaseCreated || t.DatabaseName() == "" {
			continue
		}
		entries = append(entries, newEntry(t.ID, t.DatabaseName(), base))
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.TenantID, b.TenantID)
	})

	return Artifact{Entries: entries}
}

func newEntry(id domain.TenantID, database string, base domain.ConnectionTemplate) Entry {
	var opts map[string]string
	if len(base.Options) > 0 {
		opts = maps.Clone(base.Options)
	}
	return Entry{
		TenantID:    id,
		Database:    database,
		Driver:      base.Driver,
		Host:        base.Host,
		Port:        base.Port,
		User:        base.User,
		PasswordRef: base.PasswordRef,
		Charset:     base.Charset,
		Options:     opts,
	}
}

// Lookup returns the entry of the given tenant.
func (a Artifact) Lookup(id domain.TenantID) (Entry, bool) {
	i, found := slices.BinarySearchFunc(a.Entries, id, func(e Entry, id domain.TenantID) int {
		return cmp.Compare(e.TenantID, id)
	})
	if !found {
		return Entry{}, false
	}
	return a.Entries[i], true
}
