package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// Compile-time check: Writer implements domain.RegistryRefresher.
var _ domain.RegistryRefresher = (*Writer)(nil)

// TenantLister supplies the current tenant set, ordered by id.
type TenantLister interface {
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error)
}

// Writer regenerates the registry file from the tenant store. It is the
// only writer of its path: writes are serialized, and callers that queue
// up behind a write which started after their own request are satisfied
// by that write instead of rewriting the same content.
type Writer struct {
	tenants TenantLister
	base    domain.ConnectionTemplate
	path    string
	logger  *zap.Logger

	requested atomic.Uint64

	mu      sync.Mutex
	written uint64 // highest request ticket covered by a completed write; guarded by mu
}

// NewWriter creates a registry writer for the file at path.
func NewWriter(tenants TenantLister, base domain.ConnectionTemplate, path string, logger *zap.Logger) *Writer {
	if tenants == nil {
		panic("registry writer requires a tenant lister")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		tenants: tenants,
		base:    base,
		path:    path,
		logger:  logger.Named("registry"),
	}
}

// Path returns the location of the registry file.
func (w *Writer) Path() string { return w.path }

// Regenerate rewrites the registry from the current tenant set. Failures
// are returned as *domain.RegistryWriteError.
func (w *Writer) Regenerate(ctx context.Context) error {
	ticket := w.requested.Add(1)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written >= ticket {
		w.logger.Debug("registry regeneration coalesced", zap.Uint64("ticket", ticket))
		return nil
	}

	// Every request up to start was made before the tenant set is read
	// below, so this write covers all of them.
	start := w.requested.Load()

	count, err := w.write(ctx)
	if err != nil {
		w.logger.Error("registry regeneration failed", zap.String("path", w.path), zap.Error(err))
		return &domain.RegistryWriteError{Path: w.path, Cause: err}
	}

	w.written = start
	w.logger.Info("registry regenerated", zap.String("path", w.path), zap.Int("connections", count))
	return nil
}

// Render generates and encodes the registry without writing it.
func (w *Writer) Render(ctx context.Context) ([]byte, error) {
	artifact, err := w.generate(ctx)
	if err != nil {
		return nil, err
	}
	return artifact.Encode()
}

func (w *Writer) write(ctx context.Context) (int, error) {
	artifact, err := w.generate(ctx)
	if err != nil {
		return 0, err
	}

	data, err := artifact.Encode()
	if err != nil {
		return 0, err
	}

	if err := WriteFile(w.path, data); err != nil {
		return 0, err
	}
	return len(artifact.Entries), nil
}

func (w *Writer) generate(ctx context.Context) (Artifact, error) {
	created := domain.DatabaseCreated
	tenants, err := w.tenants.List(ctx, domain.ListFilter{DatabaseStatus: &created})
	if err != nil {
		return Artifact{}, fmt.Errorf("listing tenants: %w", err)
	}
	return Generate(tenants, w.base), nil
}
