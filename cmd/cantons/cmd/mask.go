package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

var maskCmd = &cobra.Command{
	Use:   "mask",
	Short: "Render PNG masks of the stored tiles",
	Long: `Render a binary mask of every tile under the output directory into
masks/parcel_{key}.png, one pixel per mask-pixel-size units.

Examples:
  cantons mask --output out/aargau --mask-pixel-size 3.0737`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, dir, err := openStore()
		if err != nil {
			return err
		}
		summaries, err := cantons.Summaries(cmd.Context(), store, cfg.Workers, logger)
		if err != nil {
			return err
		}
		paths, err := cantons.WriteMasks(cmd.Context(), store, summaries, dir, cfg.MaskPixelSize)
		if err != nil {
			return err
		}
		fmt.Printf("%d masks in %s\n", len(paths), dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(maskCmd)
}
