package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

var _ domain.StepLeaser = (*TenantStore)(nil)

// AcquireLease inserts or takes over the tenant's lease row. The upsert
// only replaces a row that owner already holds or that has expired, so it
// is a single atomic statement even across processes sharing the file.
func (s *TenantStore) AcquireLease(ctx context.Context, id domain.TenantID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO provisioning_leases (tenant_id, owner, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (tenant_id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		 WHERE provisioning_leases.owner = excluded.owner OR provisioning_leases.expires_at <= ?`,
		int64(id), owner, now.Add(ttl).UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("acquiring lease for tenant %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *TenantStore) ReleaseLease(ctx context.Context, id domain.TenantID, owner string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM provisioning_leases WHERE tenant_id = ? AND owner = ?`,
		int64(id), owner,
	); err != nil {
		return fmt.Errorf("releasing lease for tenant %d: %w", id, err)
	}
	return nil
}
