package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/app"
	"github.com/JakeFAU/product-scraper/internal/listing"
)

func newDiscoverCmd() *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "discover <category-url>",
		Short: "Prints product links found on a category page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			d := listing.New(app.ListingConfig(rt.cfg), rt.logger)
			urls, err := d.Discover(cmd.Context(), args[0], max)
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, u := range urls {
				if _, err := fmt.Fprintln(out, u); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
			rt.logger.Debug("discovery finished", zap.Int("count", len(urls)))
			return nil
		},
	}
	cmd.Flags().IntVar(&max, "max", 0, "maximum links to print (0 uses listing.max_results)")
	return cmd
}
