package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Remove insignificant tiles from an output directory",
	Long: `Read every tile under the output directory and delete those that cover
less than threshold of their cell or do not span it. Running it twice
removes nothing the second time.

Examples:
  cantons filter --output out/aargau
  cantons filter --output out/aargau --threshold 0.2 --span coverage --min-span-fraction 0.9`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, dir, err := openStore()
		if err != nil {
			return err
		}
		opts, err := options()
		if err != nil {
			return err
		}

		res, err := cantons.Filter(cmd.Context(), store, cantons.FilterOptions{
			CellSize:        opts.CellSize,
			Threshold:       opts.Threshold,
			Span:            opts.Span,
			Tolerance:       opts.SpanTolerance,
			MinSpanFraction: opts.MinSpanFraction,
			Rescan:          true,
			Workers:         opts.Workers,
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		for _, r := range res.Removals {
			fmt.Printf("removed %s (grid %d): %s\n", cantons.TileName(r.Key), r.GridIndex, r.Reason)
		}
		fmt.Printf("%s: kept %d, removed %d\n", dir, res.Kept, res.Removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filterCmd)
}
