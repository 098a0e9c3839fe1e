package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/config"
	"github.com/JakeFAU/product-scraper/internal/logging"
)

// runtimeKeyType is the key for storing the loaded runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime carries what every subcommand needs.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// loadConfig is a variable so tests can inject a configuration.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "scraperd",
		Short: "Scrapes luxury-retail product pages into Postgres.",
		Long: `scraperd accepts product URLs over HTTP, scrapes each page in a fresh
headless browser session and stores a normalized record per retailer,
upserting the caller's catalog product alongside it.`,
		SilenceUsage: true,

		// Runs before every subcommand: load config and build the logger.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Service:     "scraperd",
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
				if err := rt.logger.Sync(); err != nil {
					fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", err)
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env vars with SCRAPER_ prefix override it)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newDiscoverCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, fmt.Errorf("runtime not initialized")
	}
	return rt, nil
}
