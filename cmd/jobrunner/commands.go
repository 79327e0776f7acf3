package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Abraxas-365/jobrunner/migrations"
	"github.com/Abraxas-365/jobrunner/pkg/auth"
	"github.com/Abraxas-365/jobrunner/pkg/config"
	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
	"github.com/Abraxas-365/jobrunner/pkg/ptrx"
)

func newAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the jobs HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *Container) error {
				logx.Info("🚀 Starting jobrunner API...")
				port := c.Config.Server.Port
				printRouteSummary(port)
				return runServer(ctx, newApp(c, true), port, c.Config.Jobx.ShutdownTimeout)
			})
		},
	}
}

func newWorkerCmd() *cobra.Command {
	var metricsPort string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run job workers until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *Container) error {
				return runGroup(ctx, c, metricsPort, c.NewWorker().Start)
			})
		},
	}
	cmd.Flags().StringVar(&metricsPort, "metrics-port", "", "serve /health and /metrics on this port")
	return cmd
}

func newReaperCmd() *cobra.Command {
	var metricsPort string
	cmd := &cobra.Command{
		Use:   "reaper",
		Short: "Restore jobs whose worker died mid-flight",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *Container) error {
				return runGroup(ctx, c, metricsPort, c.NewReaper().Run)
			})
		},
	}
	cmd.Flags().StringVar(&metricsPort, "metrics-port", "", "serve /health and /metrics on this port")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API, workers and reaper in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *Container) error {
				port := c.Config.Server.Port
				printRouteSummary(port)

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return runServer(ctx, newApp(c, true), port, c.Config.Jobx.ShutdownTimeout)
				})
				g.Go(func() error { return c.NewWorker().Start(ctx) })
				g.Go(func() error { return c.NewReaper().Run(ctx) })
				return g.Wait()
			})
		},
	}
}

// runGroup runs loop and, when port is set, an ops server next to it. Either
// one failing stops the other.
func runGroup(ctx context.Context, c *Container, port string, loop func(context.Context) error) error {
	if port == "" {
		return loop(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runServer(ctx, newApp(c, false), port, c.Config.Jobx.ShutdownTimeout) })
	g.Go(func() error { return loop(ctx) })
	return g.Wait()
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the jobs schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(func(cfg config.DatabaseConfig) error {
				db, err := openDB(cfg)
				if err != nil {
					return err
				}
				defer db.Close()

				version, err := migrations.Up(db.DB)
				if err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				logx.Infof("✅ Schema at version %d", version)
				return nil
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(func(cfg config.DatabaseConfig) error {
				db, err := openDB(cfg)
				if err != nil {
					return err
				}
				defer db.Close()

				if err := migrations.Down(db.DB, steps); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				logx.Infof("✅ Rolled back %d migration(s)", steps)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func withDatabase(fn func(cfg config.DatabaseConfig) error) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	return fn(cfg)
}

func newSubmitCmd() *cobra.Command {
	var (
		key         string
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "submit <type> [payload-json]",
		Short: "Submit a job directly to the store and queue",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nj := jobx.NewJob{
				Type:           args[0],
				IdempotencyKey: ptrx.NonEmpty(key),
				MaxAttempts:    maxAttempts,
			}
			if len(args) == 2 {
				nj.Payload = json.RawMessage(args[1])
			}

			return withContainer(cmd, func(ctx context.Context, c *Container) error {
				if c.Config.Jobx.Backend == config.BackendMemory {
					return fmt.Errorf("submit needs a shared backend; JOBX_BACKEND is memory")
				}
				job, created, err := c.Service.Submit(ctx, nj)
				if err != nil {
					return err
				}
				out, _ := json.MarshalIndent(job, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				if !created {
					logx.WithField("job_id", job.ID).Info("Idempotency key matched an existing job")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "idempotency key")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt limit (0 uses JOBX_MAX_ATTEMPTS)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		clientID string
		scopes   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAuth()
			if err != nil {
				return err
			}
			if !cfg.Enabled() {
				return fmt.Errorf("AUTH_JWT_SECRET is not set")
			}

			svc := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL, cfg.JWTIssuer)
			token, err := svc.GenerateAccessToken(kernel.NewClientID(clientID), splitScopes(scopes))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "jobrunner-cli", "client id carried in the token")
	cmd.Flags().StringVar(&scopes, "scopes", auth.ScopeJobsRead+","+auth.ScopeJobsWrite, "comma separated scopes")
	return cmd
}

func splitScopes(raw string) []string {
	var scopes []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func newFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files [dir]",
		Short: "List input files visible to handlers under STORAGE_MODE",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}

			files, err := openFileStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			infos, err := files.List(cmd.Context(), dir)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
			for _, info := range infos {
				if info.IsDir {
					fmt.Fprintf(tw, "%s/\t-\t-\n", info.Name)
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Name, info.Size, info.ModTime.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}
