package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/boddenberg/customer-identity-bfa/internal/app"
	"github.com/boddenberg/customer-identity-bfa/internal/config"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/postgres"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/scheduler"
	"github.com/boddenberg/customer-identity-bfa/internal/service"

	"github.com/spf13/cobra"
)

var (
	fixturesPath string
	logLevel     string
)

func loadConfig() *config.Config {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()
	if fixturesPath != "" {
		cfg.Store = "memory"
		cfg.FixturesPath = fixturesPath
	}
	return cfg
}

func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := loadConfig()
	logger := observability.NewLogger(logLevel, "identityctl")
	defer logger.Sync()

	a, err := app.New(ctx, cfg, observability.NewMetrics(), logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [account-id]",
		Short: "Resolve one account to its canonical customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid account id %q", args[0])
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				customer, err := a.Customers.ResolveCustomer(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), customer)
			})
		},
	}
}

// listFlags mirror the HTTP query parameters and go through the same parser.
var listFlags = []string{"q", "status", "certificate", "group", "managerId", "month", "monthFrom", "monthTo", "page", "pageSize"}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List customers with group counts",
		Long: `List customers the way GET /v1/customers does.

Examples:
  identityctl list --group purchase --pageSize 50
  identityctl list --memory fixtures/demo.json --month 2024-12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for _, name := range listFlags {
				if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
					q.Set(name, f.Value.String())
				}
			}
			filter, ignored := service.NewFilterParser().Parse(q)
			for _, field := range service.IgnoredFields(ignored) {
				fmt.Fprintf(cmd.ErrOrStderr(), "ignoring invalid --%s\n", field)
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				page, err := a.Customers.ListCustomers(cmd.Context(), filter)
				if err != nil {
					return err
				}
				page.IgnoredFilters = service.IgnoredFields(ignored)
				return printJSON(cmd.OutOrStdout(), page)
			})
		},
	}

	for _, name := range listFlags {
		cmd.Flags().String(name, "", "filter: "+name)
	}
	return cmd
}

func reconcileCmd() *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the auto-heal reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if enqueue {
				cfg := loadConfig()
				client, err := scheduler.NewClient(cfg)
				if err != nil {
					return err
				}
				defer client.Close()
				taskID, err := client.EnqueueReconcile(cmd.Context(), "identityctl")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", taskID)
				return nil
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Reconciler.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "hand the run to the worker instead of running inline")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the evidence schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			if err := postgres.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
