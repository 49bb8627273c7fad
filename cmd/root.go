// Package cmd defines and implements the CLI commands for the npidb-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agencyatlas/npidb-crawler/internal/app"
	"github.com/agencyatlas/npidb-crawler/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so command tests
// can replace it with a fake factory.
var newApp = func(ctx context.Context, path string) (*app.App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return app.NewApp(ctx, cfg)
}

// newRootCmd creates and configures the root command. The application
// container is built in PersistentPreRunE, stored in the command
// context, and torn down in PersistentPostRun.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "npidb-crawler",
		Short: "Scrapes the NPIDB home-health agency directory into structured records.",
		Long: `npidb-crawler turns the NPIDB home-health agency directory into
structured agency records. It resolves {state, location} queries to
listing pages, walks the pagination, visits every detail page, and
persists what it finds. Runs can go one jurisdiction at a time, as an
ordered batch from a CSV file, or through the HTTP API.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},

		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; environment variables override)")
	cmd.AddCommand(newServeCmd(), newScrapeCmd(), newBatchCmd(), newExportCmd())
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the
// command context so long runs shut down cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}
