// Package cmd defines the CLI commands for the paperflow executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/api"
	"github.com/mboyd/paperflow/internal/app"
	"github.com/mboyd/paperflow/internal/config"
	"github.com/mboyd/paperflow/internal/pipeline"
	"github.com/mboyd/paperflow/internal/scheduler"
	"github.com/mboyd/paperflow/internal/watcher"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface commands depend on. Tests swap the factory
// below for a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Runner() *pipeline.Runner
	Scheduler() *scheduler.Scheduler
	Server() *api.Server
	Watcher() *watcher.Watcher
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paperflow",
		Short: "A scheduled acquisition pipeline for academic paper listings.",
		Long: `paperflow fetches a daily paper listing, downloads each paper with
retries, watches the download directory for completed files, and submits
every new arrival to a processing endpoint exactly once.`,

		// Runs after flags are parsed and before the subcommand's RunE;
		// builds the service graph and stores it in the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
