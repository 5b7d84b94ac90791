package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/adapter/fsm"
	handler "github.com/neomorfeo/tenantdb/internal/adapter/http"
	oteladapter "github.com/neomorfeo/tenantdb/internal/adapter/otel"
	"github.com/neomorfeo/tenantdb/internal/adapter/postgres"
	riveradapter "github.com/neomorfeo/tenantdb/internal/adapter/river"
	"github.com/neomorfeo/tenantdb/internal/adapter/sqlite"
	"github.com/neomorfeo/tenantdb/internal/app"
	"github.com/neomorfeo/tenantdb/internal/config"
	"github.com/neomorfeo/tenantdb/internal/domain"
	"github.com/neomorfeo/tenantdb/internal/logging"
	"github.com/neomorfeo/tenantdb/internal/registry"
)

const (
	serviceName    = "tenantdb"
	serviceVersion = "0.1.0"
)

// services is the wired application shared by the server and the CLI.
type services struct {
	cfg         config.Config
	logger      *zap.Logger
	river       *riveradapter.Client
	tenants     *app.TenantService
	provisioner *app.Provisioner
	registry    *registry.Writer

	closers []func()
}

func newServices(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *services, err error) {
	s := &services{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	// --- Adapters (out) ---
	db, err := oteladapter.OpenDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	s.closers = append(s.closers, func() { _ = db.Close() })

	sqliteStore, err := sqlite.NewFromDB(db)
	if err != nil {
		return nil, fmt.Errorf("tenant store: %w", err)
	}
	store := oteladapter.NewTracingTenantStore(sqliteStore)

	s.river, err = riveradapter.Setup(ctx, db, riveradapter.Options{
		MaxWorkers: cfg.EventWorkers,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("river: %w", err)
	}
	publisher := oteladapter.NewTracingPublisher(riveradapter.NewPublisher(s.river))

	exec, err := s.newExecutor(ctx)
	if err != nil {
		return nil, err
	}
	traced, err := oteladapter.NewTracingExecutor(exec)
	if err != nil {
		return nil, fmt.Errorf("executor instruments: %w", err)
	}

	tmpl := cfg.ConnectionTemplate()
	s.registry = registry.NewWriter(store, tmpl, cfg.RegistryPath, logger)

	// --- Application ---
	s.tenants = app.NewTenantService(store, publisher, logger)
	s.provisioner = app.NewProvisioner(app.ProvisionerDeps{
		Store:       store,
		Creator:     traced,
		Migrator:    traced,
		Loader:      traced,
		Validator:   fsm.New(),
		Publisher:   publisher,
		Registry:    s.registry,
		Template:    tmpl,
		// The CLI and a running server may share the store file.
		Leases:      oteladapter.NewTracingStepLeaser(sqliteStore),
		StepTimeout: cfg.StepTimeout,
		Logger:      logger,
	})

	return s, nil
}

func (s *services) newExecutor(ctx context.Context) (domain.Executor, error) {
	switch s.cfg.Executor {
	case config.ExecutorPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			ConnString: s.cfg.AdminDatabaseURL,
			MaxConns:   s.cfg.AdminMaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("admin pool: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		return postgres.NewExecutor(pool, s.logger), nil
	case config.ExecutorSQLite:
		exec, err := sqlite.NewExecutor(s.cfg.TenantDataDir, s.logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite executor: %w", err)
		}
		return exec, nil
	default:
		return nil, fmt.Errorf("unknown executor %q", s.cfg.Executor)
	}
}

// close releases resources in reverse order of acquisition.
func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// newRouter builds the admin API. resolver may be nil.
func newRouter(s *services, resolver handler.ConnectionResolver) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))
	router.Use(logging.RequestLogger(s.logger))
	router.Use(middleware.Recoverer)

	api := humachi.New(router, huma.DefaultConfig(serviceName, serviceVersion))
	handler.Register(api, s.tenants)
	handler.RegisterProvisioning(api, s.provisioner)
	handler.RegisterRegistry(api, s.registry, resolver)

	return router
}

// setupTelemetry installs the OTel providers. Unless OTEL_EXPORTER is set,
// CLI commands export nothing so their stdout stays machine readable.
func setupTelemetry(ctx context.Context, quiet bool) (*oteladapter.Providers, error) {
	cfg, err := oteladapter.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if quiet && !exporterConfigured() {
		cfg.Exporter = "none"
	}
	providers, err := oteladapter.Setup(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	return providers, nil
}

func shutdownTelemetry(ctx context.Context, providers *oteladapter.Providers, logger *zap.Logger) {
	if err := providers.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("otel shutdown failed", zap.Error(err))
	}
}
