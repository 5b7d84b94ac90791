package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/config"
	"github.com/neomorfeo/tenantdb/internal/logging"
	"github.com/neomorfeo/tenantdb/internal/registry"
)

// run serves the admin API and processes event jobs until ctx is done.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{Component: "server", Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	providers, err := setupTelemetry(ctx, false)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		shutdownTelemetry(shutdownCtx, providers, logger)
	}()

	s, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	// River keeps working through shutdown until Stop drains it.
	if err := s.river.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := s.river.Stop(stopCtx); err != nil {
			logger.Warn("river stop failed", zap.Error(err))
		}
	}()

	if err := s.registry.Regenerate(ctx); err != nil {
		logger.Warn("initial registry write failed", zap.Error(err))
	}
	resolver := registry.NewResolver(cfg.RegistryPath, logger)
	if err := resolver.Reload(); err != nil {
		logger.Warn("loading registry failed", zap.Error(err))
	}
	go func() {
		if err := resolver.Watch(ctx); err != nil {
			logger.Warn("registry watch stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(s, resolver),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tenantdb listening",
			zap.String("addr", srv.Addr),
			zap.String("docs", "http://localhost:"+cfg.Port+"/docs"),
			zap.String("executor", cfg.Executor),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	logger.Info("stopped")
	return nil
}
