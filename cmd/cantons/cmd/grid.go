package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Build the grid over the dataset extent and write it",
	Long: `Build the grid of square cells covering the dataset extent and write
grid/grid.gpkg with the grid_index, col and row of every cell.

Examples:
  cantons grid --data aargau.shp --attributes egrid,nummer
  cantons grid --data zurich.gpkg --cell-size 1000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCanton()
		if err != nil {
			return err
		}
		g, err := c.CreateGrid()
		if err != nil {
			return err
		}
		path, err := c.Store().PutGrid(cmd.Context(), g)
		if err != nil {
			return err
		}

		fmt.Printf("%d cells (%d cols x %d rows) of %g\n", g.Len(), g.Cols, g.Rows, g.CellSize)
		fmt.Printf("grid: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gridCmd)
}
