package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/product-scraper/internal/app"
	"github.com/JakeFAU/product-scraper/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the embedded schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			pool, err := database.NewPool(cmd.Context(), app.DatabaseConfig(rt.cfg), rt.logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer pool.Close()

			if err := database.MigrateWith(cmd.Context(), pool); err != nil {
				return err
			}
			rt.logger.Info("schema applied")
			return nil
		},
	}
}
