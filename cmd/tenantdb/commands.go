package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/tenantdb/internal/app"
	"github.com/neomorfeo/tenantdb/internal/domain"
)

// tenantView is the CLI representation of a tenant.
type tenantView struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	Subdomain       string `json:"subdomain,omitempty"`
	DatabaseName    string `json:"database_name,omitempty"`
	DatabaseStatus  string `json:"database_status"`
	MigrationStatus string `json:"migration_status"`
	FixturesStatus  string `json:"fixtures_status"`
}

func viewOf(t domain.Tenant) tenantView {
	return tenantView{
		ID:              int64(t.ID),
		Name:            t.Name,
		Email:           t.Email,
		CompanyName:     t.CompanyName,
		Subdomain:       t.Subdomain,
		DatabaseName:    t.DatabaseName(),
		DatabaseStatus:  string(t.DatabaseStatus()),
		MigrationStatus: string(t.MigrationStatus()),
		FixturesStatus:  string(t.FixturesStatus()),
	}
}

func tenantCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Onboard and inspect tenants",
	}
	cmd.AddCommand(tenantCreateCommand(), tenantListCommand(), tenantShowCommand(), tenantRenameCommand())
	return cmd
}

func tenantCreateCommand() *cobra.Command {
	var in app.CreateTenantInput

	c := &cobra.Command{
		Use:   "create",
		Short: "Onboard a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, func(ctx context.Context, s *services) error {
				tenant, err := s.tenants.Create(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), viewOf(tenant))
			})
		},
	}

	c.Flags().StringVar(&in.Name, "name", "", "display name (required)")
	c.Flags().StringVar(&in.Email, "email", "", "contact email")
	c.Flags().StringVar(&in.CompanyName, "company", "", "company name")
	c.Flags().StringVar(&in.Subdomain, "subdomain", "", "subdomain")
	_ = c.MarkFlagRequired("name")
	return c
}

func tenantListCommand() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants ordered by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.ListFilter{Limit: limit, Offset: offset}
			if status != "" {
				s, err := domain.ParseDatabaseStatus(status)
				if err != nil {
					return err
				}
				filter.DatabaseStatus = &s
			}

			return withServices(cmd, func(ctx context.Context, s *services) error {
				tenants, err := s.tenants.List(ctx, filter)
				if err != nil {
					return err
				}
				views := make([]tenantView, len(tenants))
				for i, t := range tenants {
					views[i] = viewOf(t)
				}
				return printJSON(cmd.OutOrStdout(), views)
			})
		},
	}

	c.Flags().StringVar(&status, "database-status", "", "filter by database status")
	c.Flags().IntVar(&limit, "limit", 0, "max results (0 for all)")
	c.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	return c
}

func tenantShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, s *services) error {
				tenant, err := s.tenants.GetByID(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), viewOf(tenant))
			})
		},
	}
}

func tenantRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Change a tenant's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, s *services) error {
				tenant, err := s.tenants.Rename(ctx, id, args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), viewOf(tenant))
			})
		},
	}
}

func provisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Run one provisioning step for a tenant",
		Long:  "Each subcommand performs exactly one step. Steps already completed are no-ops.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "identity <id>",
		Short: "Derive the tenant database name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, s *services) error {
				tenant, err := s.provisioner.DeriveIdentity(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), viewOf(tenant))
			})
		},
	})

	for _, step := range []struct {
		use   string
		short string
		stage domain.Stage
	}{
		{"database <id>", "Create the tenant database", domain.StageDatabase},
		{"migrations <id>", "Apply the tenant schema migrations", domain.StageMigration},
		{"fixtures <id>", "Load the tenant fixtures", domain.StageFixtures},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   step.use,
			Short: step.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseTenantID(args[0])
				if err != nil {
					return err
				}
				return withServices(cmd, func(ctx context.Context, s *services) error {
					return provisionStage(ctx, cmd, s, id, step.stage)
				})
			},
		})
	}
	return cmd
}

// provisionStage prints the tenant whenever the step itself succeeded,
// including when only the registry rewrite failed.
func provisionStage(ctx context.Context, cmd *cobra.Command, s *services, id domain.TenantID, stage domain.Stage) error {
	tenant, err := s.provisioner.Provision(ctx, id, stage)
	var regErr *domain.RegistryWriteError
	if err != nil && !errors.As(err, &regErr) {
		return err
	}
	if perr := printJSON(cmd.OutOrStdout(), viewOf(tenant)); perr != nil {
		return perr
	}
	if regErr != nil {
		return fmt.Errorf("%s step completed but %w", stage, regErr)
	}
	return nil
}

func registryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Maintain the connection registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Rewrite the registry file from the tenant store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, func(ctx context.Context, s *services) error {
				if err := s.registry.Regenerate(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), s.registry.Path())
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the registry the current tenant set produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, func(ctx context.Context, s *services) error {
				data, err := s.registry.Render(ctx)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	})
	return cmd
}
