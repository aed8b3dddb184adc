package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"restopos-backend/internal/app"
	"restopos-backend/internal/config"
	"restopos-backend/internal/db"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/logger"
	"restopos-backend/internal/repository"
	"restopos-backend/internal/server/authctx"
	"restopos-backend/internal/service"
)

// operator is the identity posctl acts as for admin-only operations.
var operator = &authctx.CurrentUser{UID: "posctl", Admin: true}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "posctl",
		Short:         "Operate the restaurant POS backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(), runJobCmd(), backfillCmd(), backfillStatusCmd(), dispatchCmd(), tokenCmd())
	return root
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger.New(cfg), nil
}

// withApp wires the service without migrating; migrate is its own command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.RunMigrations = false
	ctx, stop := signalContext(cmd)
	defer stop()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			pg, err := db.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer pg.Close()
			return pg.Migrate(ctx, log)
		},
	}
}

func runJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <name>",
		Short: "Run a scheduled job once",
		Long:  "Runs one of: aggregate-hourly, aggregate-daily, ttl-cleanup, backup-export, purge-changes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				started := time.Now()
				if err := a.Scheduler.RunJob(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s finished in %s\n", args[0], time.Since(started).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func backfillCmd() *cobra.Command {
	var batchSize int
	var drain bool
	cmd := &cobra.Command{
		Use:   "backfill [collections...]",
		Short: "Queue a master data backfill",
		Long:  "Queues the first page of each collection (all master data collections when none are named). With --drain the queue is processed before exiting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var collections []string
			if len(args) > 0 {
				collections = args
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Backfill.Start(ctx, operator, collections, batchSize)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !drain {
					return nil
				}
				tasks := 0
				for {
					worked, err := a.Backfill.RunOnce(ctx)
					if err != nil {
						return err
					}
					if !worked {
						break
					}
					tasks++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d backfill tasks\n", tasks)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", service.DefaultBackfillBatchSize, "documents per page (max 500)")
	cmd.Flags().BoolVar(&drain, "drain", false, "process the queue in this process before exiting")
	return cmd
}

func backfillStatusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backfill-status",
		Short: "List recent backfill tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			pg, err := db.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer pg.Close()
			tasks, err := repository.BackfillRepository{DB: pg}.List(ctx, limit)
			if err != nil {
				return err
			}
			writeTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of tasks to show")
	return cmd
}

func writeTasks(w io.Writer, tasks []repository.BackfillTask) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOLLECTION\tSTART AFTER\tBATCH\tSTATUS\tATTEMPTS\tCREATED\tLAST ERROR")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
			t.ID, t.Collection, t.StartAfter, t.BatchSize, t.Status, t.Attempts, t.CreatedAt.UTC().Format(time.RFC3339), t.LastError)
	}
	_ = tw.Flush()
}

func dispatchCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver pending document changes to triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if !once {
					return a.Dispatcher.Run(ctx, nil)
				}
				total := 0
				for {
					n, err := a.Dispatcher.DrainOnce(ctx)
					if err != nil {
						return err
					}
					if n == 0 {
						break
					}
					total += n
				}
				fmt.Fprintf(cmd.OutOrStdout(), "delivered %d changes\n", total)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "drain due changes and exit")
	return cmd
}

func tokenCmd() *cobra.Command {
	var claims service.TokenClaims
	var role, roles string
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an HS256 access token for testing and service accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			claims.Subject = args[0]
			claims.Role = domain.UserRole(strings.ToLower(role))
			for _, r := range strings.Split(roles, ",") {
				if r = strings.TrimSpace(r); r != "" {
					claims.Roles = append(claims.Roles, r)
				}
			}
			token, exp, err := service.AuthService{Config: cfg, Logger: log}.IssueToken(claims)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"token":     token,
				"expiresAt": exp.UTC().Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().StringVar(&claims.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&claims.TenantID, "tenant", "", "tenant the token is scoped to")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStaff), "staff, manager or admin")
	cmd.Flags().StringVar(&roles, "roles", "", "extra comma separated roles")
	cmd.Flags().BoolVar(&claims.Admin, "admin", false, "grant admin")
	cmd.Flags().StringVar(&claims.CustomerID, "customer", "", "customer id for customer-facing callables")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
