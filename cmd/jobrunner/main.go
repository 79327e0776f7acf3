package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Abraxas-365/jobrunner/pkg/config"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
)

func main() {
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logx.WithError(err).Error("jobrunner: command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobrunner",
		Short:         "Durable background job runner backed by Postgres and Redis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAPICmd(),
		newWorkerCmd(),
		newReaperCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newSubmitCmd(),
		newTokenCmd(),
		newFilesCmd(),
	)
	return root
}

// withContainer loads configuration, builds the container and runs fn.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Cleanup()

	return fn(ctx, c)
}
