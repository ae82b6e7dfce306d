// Package cmd defines and implements the CLI commands for the jobspy-ingest
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/config"
	"github.com/borgius/n8n-local/internal/ingest"
	"github.com/borgius/n8n-local/internal/server"
	"github.com/borgius/n8n-local/internal/store"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
type App interface {
	Logger() *zap.Logger
	Service() *ingest.Service
	Jobs() store.JobRepository
	Migrate(ctx context.Context) error
	Serve(ctx context.Context) error
	RunSchedule(ctx context.Context, runOnStart bool) error
	Close(ctx context.Context) error
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfg config.Config, dryRun bool) (App, error) {
	return server.Build(ctx, cfg, server.BuildOptions{DryRun: dryRun})
}

type rootFlags struct {
	configFile string
	dryRun     bool
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "jobspy-ingest",
		Short: "Search JobSpy and upsert the results into Postgres.",
		Long: `jobspy-ingest queries a JobSpy aggregation service, validates each
returned listing against a permissive schema, normalizes field names and
dates, and upserts the listings into PostgreSQL keyed by a stable id.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, flags.dryRun)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				return appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "use an in-memory job store instead of Postgres")

	cmd.AddCommand(
		newSearchCmd(),
		newIngestCmd(),
		newMigrateCmd(),
		newServeCmd(),
		newScheduleCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
