package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/tenantdb/internal/config"
	"github.com/neomorfeo/tenantdb/internal/domain"
	"github.com/neomorfeo/tenantdb/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tenantdb",
		Short:         "Per-tenant database provisioning",
		Long:          "Provision isolated tenant databases and maintain the connection registry.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		serveCommand(),
		tenantCommand(),
		provisionCommand(),
		registryCommand(),
	)
	return root
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the event worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

// withServices wires the application for a one-shot CLI command. Logs go
// to stderr; command output goes to the command's stdout.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{
		Component: "cli",
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	providers, err := setupTelemetry(ctx, true)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.WithoutCancel(ctx), providers, logger)

	s, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	return fn(ctx, s)
}

func exporterConfigured() bool {
	_, ok := os.LookupEnv("OTEL_EXPORTER")
	return ok
}

func parseTenantID(arg string) (domain.TenantID, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid tenant id %q", arg)
	}
	return domain.TenantID(id), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
