package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the grid, extract tiles and remove insignificant ones",
	Long: `Run the full pipeline: grid, extraction and significance filter, then
optionally masks for the kept tiles, a JSON report and a metrics file.

Examples:
  cantons run --data aargau.shp --attributes egrid --parallel
  cantons run --config aargau.json --masks --report report.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCanton()
		if err != nil {
			return err
		}
		r, err := c.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("run %s\n", r.RunID)
		fmt.Printf("%d cells, %d tiles (%d empty cells)\n", r.Cells, r.Tiles, r.EmptyCells)
		fmt.Printf("kept %d, removed %d\n", r.Kept, r.Removed)
		if len(r.Masks) > 0 {
			fmt.Printf("%d masks\n", len(r.Masks))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("masks", false, "render a PNG mask for every kept tile")
	runCmd.Flags().String("report", "", "write the run report as JSON to this file")
	runCmd.Flags().String("metrics", "", "write run metrics in Prometheus text format to this file")
}
