package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Clip the dataset into one tile per non-empty cell",
	Long: `Build the grid, clip the parcels of every cell and write
parcels/parcel_{key}.gpkg for each non-empty cell, followed by the grid.
Keys number the non-empty cells in grid order starting at 0.

Examples:
  cantons extract --data aargau.shp --attributes egrid --parallel
  cantons extract --data zurich.gpkg --format geojson --summary tiles.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCanton()
		if err != nil {
			return err
		}
		g, err := c.CreateGrid()
		if err != nil {
			return err
		}
		res, err := c.ExtractTiles(cmd.Context(), g)
		if err != nil {
			return err
		}

		if path, _ := cmd.Flags().GetString("summary"); path != "" {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
		}

		fmt.Printf("%d tiles from %d cells (%d empty)\n", res.TileCount, res.Cells, res.EmptyCells)
		fmt.Printf("grid: %s\n", res.GridPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().String("summary", "", "write the tile summaries as JSON to this file")
}
